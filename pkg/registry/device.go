package registry

import (
	"maps"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// NamePrefix is prepended to the ESN to form a device's display name.
const NamePrefix = "RSAS-Module-"

// Device is a discovered module.
type Device struct {
	// ID is the module's ESN. Unique within a Registry.
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Ref      transport.Ref     `json:"ref" yaml:"ref"`
	Status   string            `json:"status" yaml:"status"`
	LastSeen time.Time         `json:"last_seen" yaml:"last_seen"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Kind returns the carrier the device was found on.
func (d Device) Kind() transport.Kind { return d.Ref.Kind }

// DisplayName returns the conventional name for esn.
func DisplayName(esn string) string { return NamePrefix + esn }

// Clone returns a deep copy.
func (d Device) Clone() Device {
	d.Metadata = maps.Clone(d.Metadata)
	return d
}
