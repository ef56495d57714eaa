package discovery

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/connection"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Browser produces service events until ctx is done or browsing fails.
type Browser interface {
	Browse(ctx context.Context, out chan<- ServiceEvent) error
}

// WatcherConfig configures a NetworkWatcher.
type WatcherConfig struct {
	Browser  Browser
	Registry *registry.Registry

	// Backoff paces browse restarts. Defaults to connection.NewBackoff().
	Backoff *connection.Backoff

	// Now overrides the clock (tests).
	Now func() time.Time

	Logger log.Logger
}

// NetworkWatcher is the single consumer of browse events. It keeps the
// registry in step with what is advertised and restarts browsing when it
// stops unexpectedly.
type NetworkWatcher struct {
	cfg    WatcherConfig
	logger log.Logger

	// instances maps an mDNS instance to the ESN it was registered under;
	// removals carry the instance, not the hostname.
	instMu    sync.Mutex
	instances map[string]string

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewNetworkWatcher creates a watcher.
func NewNetworkWatcher(cfg WatcherConfig) *NetworkWatcher {
	if cfg.Backoff == nil {
		cfg.Backoff = connection.NewBackoff()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("network-watcher")
	}
	return &NetworkWatcher{cfg: cfg, logger: logger, instances: make(map[string]string)}
}

// Start launches browsing and the consumer loop.
func (w *NetworkWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})

	events := make(chan ServiceEvent, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.browseLoop(ctx, events)
	}()
	go func(done chan struct{}) {
		defer close(done)
		w.consume(ctx, events)
		wg.Wait()
	}(w.done)
}

// Stop halts browsing and waits for both loops to exit.
func (w *NetworkWatcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (w *NetworkWatcher) browseLoop(ctx context.Context, events chan<- ServiceEvent) {
	for {
		started := w.cfg.Now()
		err := w.cfg.Browser.Browse(ctx, events)
		if ctx.Err() != nil {
			return
		}

		// A browse that ran for a while was healthy; start over from the
		// initial delay.
		if w.cfg.Now().Sub(started) > connection.InitialBackoff*4 {
			w.cfg.Backoff.Reset()
		}
		if err == nil {
			err = errors.New("browse ended")
		}
		w.logger.Error(err, "mDNS browse stopped, restarting", "attempt", w.cfg.Backoff.Attempts()+1, "base_delay", w.cfg.Backoff.Current())

		if w.cfg.Backoff.Wait(ctx) != nil {
			return
		}
	}
}

func (w *NetworkWatcher) consume(ctx context.Context, events <-chan ServiceEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			w.Apply(ev)
		}
	}
}

// Apply folds one event into the registry. It is called only from the
// consumer loop, or directly by tests.
func (w *NetworkWatcher) Apply(ev ServiceEvent) {
	switch ev.Kind {
	case EventAdded, EventUpdated:
		dev, err := DeviceFromEntry(ev.Entry, w.cfg.Now())
		if err != nil {
			w.logger.Debug("ignoring service", "instance", ev.Entry.Instance, "host", ev.Entry.Host, "reason", err)
			return
		}
		w.instMu.Lock()
		prev, ok := w.instances[ev.Entry.Instance]
		w.instances[ev.Entry.Instance] = dev.ID
		w.instMu.Unlock()

		if ok && prev != dev.ID {
			w.cfg.Registry.Remove(prev)
		}
		if w.cfg.Registry.Upsert(dev) {
			w.logger.Info("module discovered", "esn", dev.ID, "target", dev.Ref)
		}

	case EventRemoved:
		w.instMu.Lock()
		esn, ok := w.instances[ev.Entry.Instance]
		delete(w.instances, ev.Entry.Instance)
		w.instMu.Unlock()

		if ok && w.cfg.Registry.Remove(esn) {
			w.logger.Info("module withdrawn", "esn", esn)
		}
	}
}

// Forget drops the instance mappings of a device the registry evicted, so
// the next event for it registers it afresh.
func (w *NetworkWatcher) Forget(esn string) {
	w.instMu.Lock()
	defer w.instMu.Unlock()
	for instance, id := range w.instances {
		if id == esn {
			delete(w.instances, instance)
		}
	}
}

// DeviceFromEntry builds a registry device from a resolved service.
func DeviceFromEntry(e ServiceEntry, seen time.Time) (registry.Device, error) {
	esn, err := ESNFromHost(e.Host)
	if err != nil {
		return registry.Device{}, err
	}
	if len(e.Addrs) == 0 || e.Port <= 0 {
		return registry.Device{}, errors.New("service has no usable address")
	}

	txt := StringsToTXTRecords(e.Text)
	status := txt["status"]
	if status == "" {
		status = "ready"
	}

	return registry.Device{
		ID:       esn,
		Name:     registry.DisplayName(esn),
		Ref:      transport.NetworkRef(preferredAddress(e.Addrs), e.Port),
		Status:   status,
		LastSeen: seen,
		Metadata: map[string]string{
			"hostname":  e.Host,
			"instance":  e.Instance,
			"addresses": strings.Join(e.Addrs, ","),
			"port":      strconv.Itoa(e.Port),
		},
	}, nil
}

// preferredAddress picks the first IPv4 address, falling back to the first.
func preferredAddress(addrs []string) string {
	for _, a := range addrs {
		if !strings.Contains(a, ":") {
			return a
		}
	}
	return addrs[0]
}
