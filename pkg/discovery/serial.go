package discovery

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"
	"golang.org/x/sync/errgroup"

	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// USB bridge chips RSAS modules ship with, keyed by vendor ID.
var DefaultVendors = map[uint16]string{
	0x10C4: "Silicon Labs",
	0x1A86: "QinHeng Electronics",
	0x303A: "Espressif",
}

// UnknownManufacturer is reported when the vendor is not in the allow-list
// table.
const UnknownManufacturer = "Unknown"

// PortInfo describes an enumerated serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          uint16
	PID          uint16
	SerialNumber string
	Product      string
}

// PortLister enumerates serial ports.
type PortLister interface {
	ListPorts() ([]PortInfo, error)
}

// EnumeratorLister lists ports through go.bug.st/serial/enumerator.
type EnumeratorLister struct{}

// ListPorts implements PortLister.
func (EnumeratorLister) ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		p := PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		if d.IsUSB {
			p.VID = parseHexID(d.VID)
			p.PID = parseHexID(d.PID)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func parseHexID(s string) uint16 {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}

// Prober asks a module to identify itself. Only transport failures are
// errors; ok=false means the module answered something unparseable.
type Prober interface {
	Info(ctx context.Context, ref transport.Ref) (info protocol.Info, ok bool, err error)
}

// SerialConfig configures a SerialScanner.
type SerialConfig struct {
	Lister PortLister
	Prober Prober

	// Vendors is the VID allow-list with display names.
	Vendors map[uint16]string

	// ProbeTimeout bounds each port's probe.
	ProbeTimeout time.Duration

	// Concurrency bounds simultaneous probes. Ports are distinct devices, so
	// probing them in parallel is safe.
	Concurrency int

	Now    func() time.Time
	Logger log.Logger
}

// SerialScanner produces a live snapshot of attached USB modules.
type SerialScanner struct {
	cfg    SerialConfig
	logger log.Logger
}

// NewSerialScanner creates a scanner. Prober is required.
func NewSerialScanner(cfg SerialConfig) *SerialScanner {
	if cfg.Lister == nil {
		cfg.Lister = EnumeratorLister{}
	}
	if cfg.Vendors == nil {
		cfg.Vendors = DefaultVendors
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("serial-scanner")
	}
	return &SerialScanner{cfg: cfg, logger: logger}
}

// Candidates returns the enumerated ports whose VID is allow-listed.
func (s *SerialScanner) Candidates() ([]PortInfo, error) {
	ports, err := s.cfg.Lister.ListPorts()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEnumerate, err)
	}

	var out []PortInfo
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if _, ok := s.cfg.Vendors[p.VID]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// Scan probes every candidate port and returns one device per port, in
// enumeration order. A port whose probe fails is still reported with a
// fallback identity; only enumeration failure is an error.
func (s *SerialScanner) Scan(ctx context.Context) ([]registry.Device, error) {
	ports, err := s.Candidates()
	if err != nil {
		return nil, err
	}

	devices := make([]registry.Device, len(ports))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for i, p := range ports {
		g.Go(func() error {
			devices[i] = s.probe(gctx, p)
			return nil
		})
	}
	_ = g.Wait()

	return devices, nil
}

func (s *SerialScanner) probe(ctx context.Context, p PortInfo) registry.Device {
	ref := transport.SerialRef(p.Name)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	info, ok, err := s.cfg.Prober.Info(ctx, ref)
	switch {
	case err != nil:
		s.logger.Warn("probe failed, using fallback identity", "port", p.Name, "error", err)
		info = protocol.DefaultInfo()
	case !ok:
		s.logger.Debug("probe answer not parseable, using fallback identity", "port", p.Name)
	}

	esn := info.ESN
	if esn == "" || esn == protocol.UnknownESN {
		esn = FallbackESN(p)
	}

	return registry.Device{
		ID:       esn,
		Name:     registry.DisplayName(esn),
		Ref:      ref,
		Status:   info.Status,
		LastSeen: s.cfg.Now(),
		Metadata: s.metadata(p),
	}
}

func (s *SerialScanner) metadata(p PortInfo) map[string]string {
	manufacturer, ok := s.cfg.Vendors[p.VID]
	if !ok || manufacturer == "" {
		manufacturer = UnknownManufacturer
	}
	description := p.Product
	if description == "" {
		description = manufacturer + " USB serial"
	}
	return map[string]string{
		"vid":           hexID(p.VID),
		"pid":           hexID(p.PID),
		"manufacturer":  manufacturer,
		"description":   description,
		"serial_number": p.SerialNumber,
	}
}

func hexID(v uint16) string {
	if v == 0 {
		return "N/A"
	}
	return fmt.Sprintf("0x%04x", v)
}

// FallbackESN identifies a port whose module did not report an ESN: the USB
// serial number, else "USB-" and the port's base name.
func FallbackESN(p PortInfo) string {
	if sn := strings.TrimSpace(p.SerialNumber); sn != "" {
		return sn
	}
	return "USB-" + path.Base(strings.ReplaceAll(p.Name, `\`, "/"))
}
