package discovery

import (
	"errors"
	"strings"
)

// mDNS service constants for RSAS modules.
const (
	// ServiceType is the DNS-SD type modules advertise their HTTP API under.
	ServiceType = "_http._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// HostPrefix marks a hostname as an RSAS module ("rsas-<esn>.local.").
	HostPrefix = "rsas-"
)

// Discovery errors.
var (
	ErrEnumerate = errors.New("port enumeration failed")
	ErrNotModule = errors.New("not an RSAS module")
)

// ServiceEntry is a resolved mDNS service, independent of the zeroconf types.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     int
	Text     []string
	Addrs    []string
}

// EventKind classifies a ServiceEvent.
type EventKind uint8

const (
	EventAdded EventKind = iota
	EventUpdated
	EventRemoved
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventUpdated:
		return "updated"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ServiceEvent reports a change in the set of advertised services.
type ServiceEvent struct {
	Kind  EventKind
	Entry ServiceEntry
}

// ESNFromHost derives a module's ESN from its mDNS hostname. Hostnames not
// following the rsas-<esn>.local convention are rejected with ErrNotModule.
func ESNFromHost(host string) (string, error) {
	h := strings.ToLower(strings.TrimSpace(host))
	h = strings.TrimSuffix(h, ".")
	h = strings.TrimSuffix(h, ".local")
	if !strings.HasPrefix(h, HostPrefix) {
		return "", ErrNotModule
	}
	esn := strings.ToUpper(strings.TrimPrefix(h, HostPrefix))
	if esn == "" || strings.ContainsAny(esn, ". ") {
		return "", ErrNotModule
	}
	return esn, nil
}

// StringsToTXTRecords parses "key=value" TXT strings into a map. A key with
// no '=' maps to "".
func StringsToTXTRecords(strs []string) map[string]string {
	txt := make(map[string]string, len(strs))
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}
