package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/discovery"
	"github.com/rsas-protocol/rsas-go/pkg/exchange"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/notify"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
	"github.com/rsas-protocol/rsas-go/pkg/trace"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Engine is the Device Discovery & Activation Engine. It owns the registry
// and its background tasks, and exposes the operations front-ends call.
type Engine struct {
	cfg    Config
	logger log.Logger
	tracer trace.Logger

	exchanger   *exchange.Exchanger
	coordinator *activation.Coordinator

	// Serial mode.
	scanner *discovery.SerialScanner

	// Network mode.
	registry *registry.Registry
	sweeper  *registry.Sweeper
	watcher  *discovery.NetworkWatcher

	mu    sync.RWMutex
	state ServiceState
}

// New creates an Engine. Nothing runs until Start.
func New(cfg Config) (*Engine, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeSerial
	}
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.Opener == nil {
		cfg.Opener = &transport.Dialer{
			Serial:  transport.NewSerialOpener(transport.SerialConfig{}),
			Network: transport.NewNetworkOpener(transport.NetworkConfig{}),
		}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("engine")
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger,
		tracer: trace.OrNoop(cfg.Tracer),
	}

	e.exchanger = exchange.New(exchange.Config{
		Opener:       cfg.Opener,
		Locks:        transport.NewLocks(cfg.FailFast),
		OpenTimeout:  cfg.OpenTimeout,
		InfoWindow:   cfg.InfoWindow,
		FieldsWindow: cfg.FieldsWindow,
		Tracer:       cfg.Tracer,
		Logger:       logger.WithName("exchange"),
	})
	e.coordinator = activation.NewCoordinator(activation.Config{
		Sessions:       e.exchanger,
		RID:            cfg.RID,
		ResponseWindow: cfg.ResponseWindow,
		Tracer:         cfg.Tracer,
		Logger:         logger.WithName("activation"),
	})

	if cfg.Mode.Serial() {
		e.scanner = discovery.NewSerialScanner(discovery.SerialConfig{
			Lister:       cfg.Lister,
			Prober:       e.exchanger,
			Vendors:      cfg.Vendors,
			ProbeTimeout: cfg.ProbeTimeout,
			Concurrency:  cfg.ScanConcurrency,
			Now:          cfg.Now,
			Logger:       logger.WithName("serial-scanner"),
		})
	}

	if cfg.Mode.Network() {
		e.registry = registry.New(e.onRegistryChange)
		e.sweeper = registry.NewSweeper(e.registry, registry.SweeperConfig{
			Interval: cfg.SweepInterval,
			TTL:      cfg.TTL,
			Now:      cfg.Now,
			Logger:   logger.WithName("sweeper"),
		})
		browser := cfg.Browser
		if browser == nil {
			browser = discovery.NewMDNSBrowser(discovery.BrowserConfig{})
		}
		e.watcher = discovery.NewNetworkWatcher(discovery.WatcherConfig{
			Browser:  browser,
			Registry: e.registry,
			Now:      cfg.Now,
			Logger:   logger.WithName("network-watcher"),
		})
	}

	return e, nil
}

// Mode returns the configured discovery mode.
func (e *Engine) Mode() Mode { return e.cfg.Mode }

// State returns the lifecycle state.
func (e *Engine) State() ServiceState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Registry returns the network device registry, or nil in serial mode.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Sweeper returns the registry sweeper, or nil in serial mode.
func (e *Engine) Sweeper() *registry.Sweeper { return e.sweeper }

// Start launches the background watcher and sweeper in network mode. In
// serial mode it only marks the engine running.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning {
		return ErrAlreadyStarted
	}

	if e.cfg.Mode.Network() {
		e.sweeper.Start(ctx)
		e.watcher.Start(ctx)
	}
	e.state = StateRunning
	e.logger.Info("engine started", "mode", e.cfg.Mode)
	return nil
}

// Stop halts background tasks and waits for them to exit.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return ErrNotStarted
	}
	e.state = StateStopped
	e.mu.Unlock()

	if e.cfg.Mode.Network() {
		e.watcher.Stop()
		e.sweeper.Stop()
	}
	e.logger.Info("engine stopped")
	return nil
}

// ListDevices returns the modules currently reachable. Serial mode scans the
// ports on every call; network mode returns a registry snapshot. In both
// mode, a network entry sharing an ESN with a serial one is omitted.
func (e *Engine) ListDevices(ctx context.Context) ([]registry.Device, error) {
	var devices []registry.Device

	if e.cfg.Mode.Serial() {
		scanned, err := e.scan(ctx)
		if err != nil {
			return nil, err
		}
		devices = append(devices, scanned...)
	}

	if e.cfg.Mode.Network() {
		seen := make(map[string]bool, len(devices))
		for _, d := range devices {
			seen[d.ID] = true
		}
		for _, d := range e.registry.List() {
			if !seen[d.ID] {
				devices = append(devices, d)
			}
		}
	}

	if devices == nil {
		devices = []registry.Device{}
	}
	return devices, nil
}

func (e *Engine) scan(ctx context.Context) ([]registry.Device, error) {
	start := e.cfg.Now()
	devices, err := e.scanner.Scan(ctx)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveScan(e.cfg.Now().Sub(start), err)
	}
	if err != nil {
		e.logger.Error(err, "serial scan failed")
		return nil, err
	}
	return devices, nil
}

// Resolve finds the transport of a device by ESN. Serial devices come first,
// as in ListDevices, so a module on both carriers is reached over USB. In
// both mode a failed scan falls through to the network registry.
func (e *Engine) Resolve(ctx context.Context, deviceID string) (registry.Device, error) {
	if e.cfg.Mode.Serial() {
		devices, err := e.scan(ctx)
		if err != nil && !e.cfg.Mode.Network() {
			return registry.Device{}, err
		}
		for _, d := range devices {
			if d.ID == deviceID {
				return d, nil
			}
		}
	}
	if e.cfg.Mode.Network() {
		if d, ok := e.registry.Get(deviceID); ok {
			return d, nil
		}
	}
	return registry.Device{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
}

// Activate writes activation data to a module. A request naming only a
// DeviceID is resolved to its transport first.
func (e *Engine) Activate(ctx context.Context, req activation.Request) (activation.Result, error) {
	if req.Target.IsZero() && req.DeviceID != "" {
		d, err := e.Resolve(ctx, req.DeviceID)
		if err != nil {
			return activation.Result{}, err
		}
		req.Target = d.Ref
	}

	start := e.cfg.Now()
	res, err := e.coordinator.Activate(ctx, req)
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveActivation(req.Target.Kind, e.cfg.Now().Sub(start), res, err)
	}
	e.cfg.Notifier.ActivationCompleted(notify.NewActivation(req.Normalize(), res, err, e.cfg.Now()))

	if err != nil {
		e.logger.Warn("activation failed", "target", req.Target, "device", req.DeviceID, "error", err)
	}
	return res, err
}

// ReadStoredFields reads back the identifiers a module has stored.
func (e *Engine) ReadStoredFields(ctx context.Context, ref transport.Ref) (protocol.Fields, error) {
	return e.exchanger.Fields(ctx, ref)
}

// HealthSnapshot never fails: a device count that cannot be determined is
// reported as zero with a diagnostic.
func (e *Engine) HealthSnapshot(ctx context.Context) Health {
	h := Health{
		Running:        true,
		ConnectionType: e.cfg.Mode.ConnectionType(),
	}
	devices, err := e.ListDevices(ctx)
	if err != nil {
		h.Diagnostic = err.Error()
		return h
	}
	h.DeviceCount = len(devices)
	return h
}

func (e *Engine) onRegistryChange(c registry.Change) {
	if e.cfg.Metrics != nil {
		e.cfg.Metrics.ObserveChange(c, e.registry.Len())
	}
	if c.Kind == registry.ChangeExpired && e.watcher != nil {
		e.watcher.Forget(c.Device.ID)
	}
	e.cfg.Notifier.DeviceChanged(c)
	e.tracer.Log(trace.Event{
		Timestamp: e.cfg.Now(),
		Layer:     trace.LayerProtocol,
		Category:  trace.CategoryState,
		Target:    c.Device.Ref.String(),
		DeviceID:  c.Device.ID,
		StateChange: &trace.StateChangeEvent{
			Entity:   trace.StateEntityRegistry,
			NewState: c.Kind.String(),
		},
	})
}
