package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

var _ IOptions = (*SerialOptions)(nil)

// SerialOptions configures the USB serial transport and scanner.
type SerialOptions struct {
	BaudRate int `json:"baud-rate" mapstructure:"baud-rate"`

	// SettleDelay is waited after opening a port; modules reset on open.
	SettleDelay time.Duration `json:"settle-delay" mapstructure:"settle-delay"`

	// ProbeTimeout bounds the GET_INFO probe of each port during a scan.
	ProbeTimeout time.Duration `json:"probe-timeout" mapstructure:"probe-timeout"`

	// ScanConcurrency bounds simultaneous probes.
	ScanConcurrency int `json:"scan-concurrency" mapstructure:"scan-concurrency"`
}

// NewSerialOptions creates SerialOptions with default parameters.
func NewSerialOptions() *SerialOptions {
	return &SerialOptions{
		BaudRate:        transport.DefaultBaudRate,
		SettleDelay:     transport.DefaultSettleDelay,
		ProbeTimeout:    3 * time.Second,
		ScanConcurrency: 4,
	}
}

// Validate checks the serial settings.
func (o *SerialOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if o.BaudRate <= 0 {
		errs = append(errs, errors.New("serial.baud-rate must be positive"))
	}
	if o.SettleDelay < 0 {
		errs = append(errs, errors.New("serial.settle-delay must not be negative"))
	}
	if o.ProbeTimeout <= 0 {
		errs = append(errs, errors.New("serial.probe-timeout must be positive"))
	}
	if o.ScanConcurrency <= 0 {
		errs = append(errs, errors.New("serial.scan-concurrency must be positive"))
	}
	return errs
}

// AddFlags adds flags for the serial transport to fs.
func (o *SerialOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.BaudRate, "serial.baud-rate", o.BaudRate, "Serial line speed.")
	fs.DurationVar(&o.SettleDelay, "serial.settle-delay", o.SettleDelay, "Delay after opening a port before the first command.")
	fs.DurationVar(&o.ProbeTimeout, "serial.probe-timeout", o.ProbeTimeout, "Timeout for the GET_INFO probe of one port.")
	fs.IntVar(&o.ScanConcurrency, "serial.scan-concurrency", o.ScanConcurrency, "Number of ports probed in parallel.")
}

// ToSerialConfig returns the transport configuration.
func (o *SerialOptions) ToSerialConfig() transport.SerialConfig {
	return transport.SerialConfig{
		BaudRate:    o.BaudRate,
		SettleDelay: o.SettleDelay,
	}
}
