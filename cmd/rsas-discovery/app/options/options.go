// Package options aggregates the rsas-discovery option groups.
package options

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	genericoptions "github.com/rsas-protocol/rsas-go/pkg/options"
	"github.com/rsas-protocol/rsas-go/pkg/service"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Options is the complete rsas-discovery configuration. The mapstructure
// keys match the flag prefixes, so a config file mirrors the flags.
type Options struct {
	Log        *log.Options                      `json:"log" mapstructure:"log"`
	Server     *genericoptions.ServerOptions     `json:"http" mapstructure:"http"`
	Serial     *genericoptions.SerialOptions     `json:"serial" mapstructure:"serial"`
	Discovery  *genericoptions.DiscoveryOptions  `json:"discovery" mapstructure:"discovery"`
	Activation *genericoptions.ActivationOptions `json:"activation" mapstructure:"activation"`
	MQTT       *genericoptions.MQTTOptions       `json:"mqtt" mapstructure:"mqtt"`
	Trace      *genericoptions.TraceOptions      `json:"trace" mapstructure:"trace"`
}

// NewOptions returns Options with default values.
func NewOptions() *Options {
	return &Options{
		Log:        log.NewOptions(),
		Server:     genericoptions.NewServerOptions(),
		Serial:     genericoptions.NewSerialOptions(),
		Discovery:  genericoptions.NewDiscoveryOptions(),
		Activation: genericoptions.NewActivationOptions(),
		MQTT:       genericoptions.NewMQTTOptions(),
		Trace:      genericoptions.NewTraceOptions(),
	}
}

// AddFlags binds every group to fs.
func (o *Options) AddFlags(fs *pflag.FlagSet) {
	o.Log.AddFlags(fs)
	o.Server.AddFlags(fs)
	o.Serial.AddFlags(fs)
	o.Discovery.AddFlags(fs)
	o.Activation.AddFlags(fs)
	o.MQTT.AddFlags(fs)
	o.Trace.AddFlags(fs)
}

// Validate checks every group and joins the problems found.
func (o *Options) Validate() error {
	var errs []error
	errs = append(errs, o.Log.Validate()...)
	errs = append(errs, o.Server.Validate()...)
	errs = append(errs, o.Serial.Validate()...)
	errs = append(errs, o.Discovery.Validate()...)
	errs = append(errs, o.Activation.Validate()...)
	errs = append(errs, o.MQTT.Validate()...)
	errs = append(errs, o.Trace.Validate()...)
	return errors.Join(errs...)
}

// EngineConfig builds the engine configuration. Observers (tracer, notifier,
// metrics) are left for the caller to attach.
func (o *Options) EngineConfig() (service.Config, error) {
	mode, err := service.ParseMode(o.Discovery.Mode)
	if err != nil {
		return service.Config{}, err
	}
	rid, err := activation.NewRIDGenerator(o.Activation.RIDStrategy)
	if err != nil {
		return service.Config{}, err
	}

	cfg := service.Config{
		Mode: mode,
		Opener: &transport.Dialer{
			Serial:  transport.NewSerialOpener(o.Serial.ToSerialConfig()),
			Network: transport.NewNetworkOpener(o.Discovery.ToNetworkConfig()),
		},
		FailFast:        o.Activation.FailFast,
		OpenTimeout:     o.Activation.OpenTimeout,
		InfoWindow:      o.Activation.InfoWindow,
		FieldsWindow:    o.Activation.FieldsWindow,
		ProbeTimeout:    o.Serial.ProbeTimeout,
		ScanConcurrency: o.Serial.ScanConcurrency,
		SweepInterval:   o.Discovery.SweepInterval,
		TTL:             o.Discovery.TTL,
		RID:             rid,
		ResponseWindow:  o.Activation.ResponseWindow,
	}
	return cfg, nil
}
