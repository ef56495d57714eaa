package discovery

import (
	"context"
	"maps"
	"net"
	"slices"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowseFunc runs one mDNS browse until ctx is done, delivering resolved
// entries and removals. It matches zeroconf.Browse.
type BrowseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry) error

// DefaultRefreshInterval paces the re-emission of live services. It must stay
// below the registry TTL: zeroconf does not repeat identical announcements,
// so the refresh is what keeps an advertising module's last-seen time moving.
const DefaultRefreshInterval = 10 * time.Second

// BrowserConfig configures MDNSBrowser.
type BrowserConfig struct {
	// Service defaults to ServiceType.
	Service string

	// Domain defaults to Domain.
	Domain string

	// Interface restricts browsing to one network interface. Empty means all.
	Interface string

	// RefreshInterval defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration

	// Browse overrides the zeroconf browse call (tests).
	Browse BrowseFunc

	// Refresh overrides the refresh ticker (tests).
	Refresh <-chan time.Time
}

// MDNSBrowser turns zeroconf browse results into ServiceEvents, aggregating
// addresses seen on several interfaces into one entry per instance.
type MDNSBrowser struct {
	cfg BrowserConfig
}

// NewMDNSBrowser creates a browser.
func NewMDNSBrowser(cfg BrowserConfig) *MDNSBrowser {
	if cfg.Service == "" {
		cfg.Service = ServiceType
	}
	if cfg.Domain == "" {
		cfg.Domain = Domain
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.Browse == nil {
		opts := browserOptions(cfg.Interface)
		cfg.Browse = func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry) error {
			return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
		}
	}
	return &MDNSBrowser{cfg: cfg}
}

func browserOptions(ifname string) []zeroconf.ClientOption {
	if ifname == "" {
		return nil
	}
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil
	}
	return []zeroconf.ClientOption{zeroconf.SelectIfaces([]net.Interface{*iface})}
}

// Browse delivers events to out until ctx is done or the underlying browse
// ends. It returns the browse error, or nil when ctx ended it. Every live
// service is re-emitted as EventUpdated once per refresh interval.
func (b *MDNSBrowser) Browse(ctx context.Context, out chan<- ServiceEvent) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	browseErr := make(chan error, 1)
	go func() {
		browseErr <- b.cfg.Browse(ctx, b.cfg.Service, b.cfg.Domain, entries, removed)
	}()

	refresh := b.cfg.Refresh
	if refresh == nil {
		ticker := time.NewTicker(b.cfg.RefreshInterval)
		defer ticker.Stop()
		refresh = ticker.C
	}

	services := make(map[string]*ServiceEntry)
	emit := func(kind EventKind, e *ServiceEntry) bool {
		ev := ServiceEvent{Kind: kind, Entry: *e}
		ev.Entry.Addrs = slices.Clone(e.Addrs)
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				entries = nil
				continue
			}
			svc := fromZeroconf(entry)
			existing, found := services[svc.Instance]
			if !found {
				services[svc.Instance] = &svc
				if !emit(EventAdded, &svc) {
					return nil
				}
				continue
			}
			if !mergeEntry(existing, svc) {
				continue
			}
			if !emit(EventUpdated, existing) {
				return nil
			}

		case entry, ok := <-removed:
			if !ok {
				removed = nil
				continue
			}
			existing, found := services[entry.Instance]
			if !found {
				continue
			}
			existing.Addrs = removeAddresses(existing.Addrs, entry)
			if len(existing.Addrs) > 0 {
				continue
			}
			delete(services, entry.Instance)
			if !emit(EventRemoved, existing) {
				return nil
			}

		case <-refresh:
			for _, instance := range slices.Sorted(maps.Keys(services)) {
				if !emit(EventUpdated, services[instance]) {
					return nil
				}
			}

		case err := <-browseErr:
			if ctx.Err() != nil {
				return nil
			}
			return err

		case <-ctx.Done():
			return nil
		}
	}
}

func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return ServiceEntry{
		Instance: entry.Instance,
		Service:  entry.Service,
		Domain:   entry.Domain,
		Host:     entry.HostName,
		Port:     entry.Port,
		Text:     slices.Clone(entry.Text),
		Addrs:    addrs,
	}
}

// mergeEntry folds a re-announcement into existing and reports whether
// anything a consumer cares about changed.
func mergeEntry(existing *ServiceEntry, svc ServiceEntry) bool {
	changed := false
	for _, a := range svc.Addrs {
		if !slices.Contains(existing.Addrs, a) {
			existing.Addrs = append(existing.Addrs, a)
			changed = true
		}
	}
	if svc.Host != "" && !strings.EqualFold(svc.Host, existing.Host) {
		existing.Host = svc.Host
		changed = true
	}
	if svc.Port != 0 && svc.Port != existing.Port {
		existing.Port = svc.Port
		changed = true
	}
	if len(svc.Text) > 0 && !slices.Equal(svc.Text, existing.Text) {
		existing.Text = slices.Clone(svc.Text)
		changed = true
	}
	return changed
}

// removeAddresses drops the addresses carried by a removal entry. A removal
// with no addresses withdraws the instance entirely.
func removeAddresses(addrs []string, entry *zeroconf.ServiceEntry) []string {
	if len(entry.AddrIPv4) == 0 && len(entry.AddrIPv6) == 0 {
		return nil
	}
	gone := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		gone[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		gone[ip.String()] = true
	}
	return slices.DeleteFunc(addrs, func(a string) bool { return gone[a] })
}
