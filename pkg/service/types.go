package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/discovery"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/metrics"
	"github.com/rsas-protocol/rsas-go/pkg/notify"
	"github.com/rsas-protocol/rsas-go/pkg/trace"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Engine errors.
var (
	ErrNotStarted     = errors.New("engine not started")
	ErrAlreadyStarted = errors.New("engine already started")
	ErrDeviceNotFound = errors.New("device not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// ServiceState represents the engine lifecycle state.
type ServiceState uint8

const (
	// StateIdle - engine created but not started.
	StateIdle ServiceState = iota

	// StateRunning - background discovery is running.
	StateRunning

	// StateStopped - engine has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Mode selects which discovery sources the engine uses.
type Mode string

const (
	ModeSerial  Mode = "serial"
	ModeNetwork Mode = "network"
	ModeBoth    Mode = "both"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeSerial, ModeNetwork, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q (want serial, network or both)", ErrInvalidConfig, s)
	}
}

// Serial reports whether the mode scans USB ports.
func (m Mode) Serial() bool { return m == ModeSerial || m == ModeBoth }

// Network reports whether the mode browses mDNS.
func (m Mode) Network() bool { return m == ModeNetwork || m == ModeBoth }

// ConnectionType is the human-readable transport description reported by
// health checks.
func (m Mode) ConnectionType() string {
	switch m {
	case ModeSerial:
		return "USB Serial"
	case ModeNetwork:
		return "Network (mDNS)"
	case ModeBoth:
		return "USB Serial + Network (mDNS)"
	default:
		return "Unknown"
	}
}

// Health is a point-in-time view of the engine.
type Health struct {
	Running        bool   `json:"running"`
	DeviceCount    int    `json:"devices_count"`
	ConnectionType string `json:"connection_type"`

	// Diagnostic carries the error that prevented counting devices.
	Diagnostic string `json:"error,omitempty"`
}

// Config configures an Engine.
type Config struct {
	Mode Mode

	// Opener reaches devices on both transports. Defaults to a
	// transport.Dialer over the default serial and network openers.
	Opener transport.Opener

	// FailFast makes an exchange with a device that is already in use fail
	// with transport.ErrBusy instead of waiting.
	FailFast bool

	// Exchange windows; zero values take the exchange package defaults.
	OpenTimeout  time.Duration
	InfoWindow   time.Duration
	FieldsWindow time.Duration

	// Serial discovery.
	Lister          discovery.PortLister
	Vendors         map[uint16]string
	ProbeTimeout    time.Duration
	ScanConcurrency int

	// Network discovery. Browser defaults to an MDNSBrowser on all
	// interfaces.
	Browser       discovery.Browser
	SweepInterval time.Duration
	TTL           time.Duration

	// Activation.
	RID            activation.RIDGenerator
	ResponseWindow time.Duration

	// Observers; all optional.
	Tracer   trace.Logger
	Notifier notify.Notifier
	Metrics  *metrics.Metrics

	// Now overrides the clock (tests).
	Now func() time.Time

	Logger log.Logger
}
