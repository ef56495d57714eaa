package options

import (
	"errors"
	"time"

	"github.com/spf13/pflag"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/exchange"
)

var _ IOptions = (*ActivationOptions)(nil)

// ActivationOptions configures device exchanges and activation.
type ActivationOptions struct {
	// RIDStrategy is deterministic or random.
	RIDStrategy string `json:"rid-strategy" mapstructure:"rid-strategy"`

	// ResponseWindow bounds the wait for a BASIC_SET answer.
	ResponseWindow time.Duration `json:"response-window" mapstructure:"response-window"`

	// InfoWindow and FieldsWindow bound GET_INFO and GET_FIELDS answers.
	InfoWindow   time.Duration `json:"info-window" mapstructure:"info-window"`
	FieldsWindow time.Duration `json:"fields-window" mapstructure:"fields-window"`

	// OpenTimeout bounds waiting for a busy device plus opening it.
	OpenTimeout time.Duration `json:"open-timeout" mapstructure:"open-timeout"`

	// FailFast rejects exchanges with a device already in use instead of
	// waiting for it.
	FailFast bool `json:"fail-fast" mapstructure:"fail-fast"`
}

// NewActivationOptions creates ActivationOptions with default parameters.
func NewActivationOptions() *ActivationOptions {
	return &ActivationOptions{
		RIDStrategy:    activation.RIDDeterministic,
		ResponseWindow: activation.DefaultResponseWindow,
		InfoWindow:     exchange.DefaultInfoWindow,
		FieldsWindow:   exchange.DefaultFieldsWindow,
		OpenTimeout:    exchange.DefaultOpenTimeout,
	}
}

// Validate checks the strategy name and windows.
func (o *ActivationOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if _, err := activation.NewRIDGenerator(o.RIDStrategy); err != nil {
		errs = append(errs, err)
	}
	for _, w := range []struct {
		name string
		d    time.Duration
	}{
		{"activation.response-window", o.ResponseWindow},
		{"activation.info-window", o.InfoWindow},
		{"activation.fields-window", o.FieldsWindow},
		{"activation.open-timeout", o.OpenTimeout},
	} {
		if w.d <= 0 {
			errs = append(errs, errors.New(w.name+" must be positive"))
		}
	}
	return errs
}

// AddFlags adds flags for activation to fs.
func (o *ActivationOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.RIDStrategy, "activation.rid-strategy", o.RIDStrategy, "Remote ID generation when none is supplied: deterministic or random.")
	fs.DurationVar(&o.ResponseWindow, "activation.response-window", o.ResponseWindow, "How long to collect the module's answer to BASIC_SET.")
	fs.DurationVar(&o.InfoWindow, "activation.info-window", o.InfoWindow, "How long to collect the answer to GET_INFO.")
	fs.DurationVar(&o.FieldsWindow, "activation.fields-window", o.FieldsWindow, "How long to collect the answer to GET_FIELDS.")
	fs.DurationVar(&o.OpenTimeout, "activation.open-timeout", o.OpenTimeout, "Timeout for acquiring and opening a device.")
	fs.BoolVar(&o.FailFast, "activation.fail-fast", o.FailFast, "Fail immediately when a device is busy instead of waiting.")
}
