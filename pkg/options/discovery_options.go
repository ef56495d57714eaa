package options

import (
	"errors"
	"net/http"
	"time"

	"github.com/spf13/pflag"

	"github.com/rsas-protocol/rsas-go/pkg/discovery"
	"github.com/rsas-protocol/rsas-go/pkg/service"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

var _ IOptions = (*DiscoveryOptions)(nil)

// DiscoveryOptions selects discovery sources and configures network
// discovery and the network transport.
type DiscoveryOptions struct {
	// Mode is serial, network or both.
	Mode string `json:"mode" mapstructure:"mode"`

	// Interface restricts mDNS browsing to one network interface.
	Interface string `json:"interface" mapstructure:"interface"`

	// TTL evicts network modules not re-announced within it.
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`

	// RefreshInterval is how often live mDNS services are re-applied to the
	// registry. It must be shorter than TTL.
	RefreshInterval time.Duration `json:"refresh-interval" mapstructure:"refresh-interval"`

	// SweepInterval is how often expired modules are evicted.
	SweepInterval time.Duration `json:"sweep-interval" mapstructure:"sweep-interval"`

	// CommandPath is the module HTTP endpoint commands are POSTed to.
	CommandPath string `json:"command-path" mapstructure:"command-path"`

	// DialTimeout bounds the reachability check when opening a module.
	DialTimeout time.Duration `json:"dial-timeout" mapstructure:"dial-timeout"`

	// RequestTimeout bounds each HTTP command.
	RequestTimeout time.Duration `json:"request-timeout" mapstructure:"request-timeout"`
}

// NewDiscoveryOptions creates DiscoveryOptions with default parameters.
func NewDiscoveryOptions() *DiscoveryOptions {
	return &DiscoveryOptions{
		Mode:            string(service.ModeSerial),
		TTL:             30 * time.Second,
		RefreshInterval: discovery.DefaultRefreshInterval,
		SweepInterval:   10 * time.Second,
		CommandPath:     transport.DefaultCommandPath,
		DialTimeout:     2 * time.Second,
		RequestTimeout:  5 * time.Second,
	}
}

// Validate checks mode and durations.
func (o *DiscoveryOptions) Validate() []error {
	if o == nil {
		return nil
	}
	var errs []error
	if _, err := service.ParseMode(o.Mode); err != nil {
		errs = append(errs, err)
	}
	if o.TTL <= 0 {
		errs = append(errs, errors.New("discovery.ttl must be positive"))
	}
	if o.RefreshInterval <= 0 || o.RefreshInterval >= o.TTL {
		errs = append(errs, errors.New("discovery.refresh-interval must be positive and shorter than discovery.ttl"))
	}
	if o.SweepInterval <= 0 {
		errs = append(errs, errors.New("discovery.sweep-interval must be positive"))
	}
	if o.CommandPath == "" || o.CommandPath[0] != '/' {
		errs = append(errs, errors.New("discovery.command-path must start with '/'"))
	}
	return errs
}

// AddFlags adds flags for discovery to fs.
func (o *DiscoveryOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Mode, "discovery.mode", o.Mode, "Discovery source: serial, network or both.")
	fs.StringVar(&o.Interface, "discovery.interface", o.Interface, "Network interface for mDNS browsing (default all).")
	fs.DurationVar(&o.TTL, "discovery.ttl", o.TTL, "Evict network modules not re-announced within this time.")
	fs.DurationVar(&o.RefreshInterval, "discovery.refresh-interval", o.RefreshInterval, "How often live network modules are marked seen; must be shorter than the TTL.")
	fs.DurationVar(&o.SweepInterval, "discovery.sweep-interval", o.SweepInterval, "How often expired network modules are evicted.")
	fs.StringVar(&o.CommandPath, "discovery.command-path", o.CommandPath, "HTTP path on the module that accepts commands.")
	fs.DurationVar(&o.DialTimeout, "discovery.dial-timeout", o.DialTimeout, "Timeout for reaching a network module.")
	fs.DurationVar(&o.RequestTimeout, "discovery.request-timeout", o.RequestTimeout, "Timeout for one HTTP command.")
}

// ToNetworkConfig returns the network transport configuration.
func (o *DiscoveryOptions) ToNetworkConfig() transport.NetworkConfig {
	return transport.NetworkConfig{
		CommandPath: o.CommandPath,
		DialTimeout: o.DialTimeout,
		Client:      &http.Client{Timeout: o.RequestTimeout},
	}
}

// ToBrowserConfig returns the mDNS browser configuration.
func (o *DiscoveryOptions) ToBrowserConfig() discovery.BrowserConfig {
	return discovery.BrowserConfig{Interface: o.Interface, RefreshInterval: o.RefreshInterval}
}
