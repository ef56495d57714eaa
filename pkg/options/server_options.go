package options

import (
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ServerOptions)(nil)

// ServerOptions configures the HTTP front-end.
type ServerOptions struct {
	// Addr is the listen address.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadTimeout bounds reading a request.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout bounds handling plus writing a response. It must exceed
	// the slowest activation.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`

	// EnableMetrics serves /metrics.
	EnableMetrics bool `json:"enable-metrics" mapstructure:"enable-metrics"`
}

// NewServerOptions creates ServerOptions with default parameters.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		Addr:            "127.0.0.1:8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		EnableMetrics:   true,
	}
}

// Validate checks the listen address.
func (o *ServerOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if err := ValidateAddress(o.Addr); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// AddFlags adds flags for the HTTP server to fs.
func (o *ServerOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "HTTP API bind address and port.")
	fs.DurationVar(&o.ReadTimeout, "http.read-timeout", o.ReadTimeout, "Timeout for reading a request.")
	fs.DurationVar(&o.WriteTimeout, "http.write-timeout", o.WriteTimeout, "Timeout for handling and writing a response.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Grace period for in-flight requests on shutdown.")
	fs.BoolVar(&o.EnableMetrics, "http.enable-metrics", o.EnableMetrics, "Serve Prometheus metrics on /metrics.")
}
