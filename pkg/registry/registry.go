package registry

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// ChangeKind classifies a registry mutation.
type ChangeKind uint8

const (
	ChangeAdded ChangeKind = iota
	ChangeUpdated
	ChangeRemoved
	ChangeExpired
)

// String returns the change name.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeUpdated:
		return "updated"
	case ChangeRemoved:
		return "removed"
	case ChangeExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Change describes one mutation. Device is a copy.
type Change struct {
	Kind   ChangeKind
	Device Device
}

// Registry is the set of currently known network devices, keyed by ESN.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]*Device

	// onChange is called after each mutation, outside the lock.
	onChange func(Change)
}

// New creates an empty Registry. onChange may be nil.
func New(onChange func(Change)) *Registry {
	return &Registry{devices: make(map[string]*Device), onChange: onChange}
}

func (r *Registry) notify(changes ...Change) {
	if r.onChange == nil {
		return
	}
	for _, c := range changes {
		r.onChange(c)
	}
}

// Upsert inserts d or refreshes the existing entry with the same ID in place.
// It reports whether d was new.
func (r *Registry) Upsert(d Device) bool {
	d = d.Clone()

	r.mu.Lock()
	existing, ok := r.devices[d.ID]
	if ok {
		existing.Name = d.Name
		existing.Ref = d.Ref
		existing.Status = d.Status
		existing.LastSeen = d.LastSeen
		existing.Metadata = d.Metadata
		d = *existing
	} else {
		r.devices[d.ID] = &d
	}
	snapshot := d.Clone()
	r.mu.Unlock()

	kind := ChangeUpdated
	if !ok {
		kind = ChangeAdded
	}
	r.notify(Change{Kind: kind, Device: snapshot})
	return !ok
}

// Remove deletes the device with id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	d, ok := r.devices[id]
	if ok {
		delete(r.devices, id)
	}
	r.mu.Unlock()

	if ok {
		r.notify(Change{Kind: ChangeRemoved, Device: d.Clone()})
	}
	return ok
}

// Get returns a copy of the device with id.
func (r *Registry) Get(id string) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return Device{}, false
	}
	return d.Clone(), true
}

// List returns copies of all devices ordered by ID.
func (r *Registry) List() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Device) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// Len returns the number of devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}

// EvictExpired removes every device with now-LastSeen > ttl and returns their
// IDs in order.
func (r *Registry) EvictExpired(now time.Time, ttl time.Duration) []string {
	r.mu.Lock()
	var evicted []Change
	for id, d := range r.devices {
		if now.Sub(d.LastSeen) > ttl {
			evicted = append(evicted, Change{Kind: ChangeExpired, Device: d.Clone()})
			delete(r.devices, id)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(evicted, func(a, b Change) int { return strings.Compare(a.Device.ID, b.Device.ID) })
	ids := make([]string, len(evicted))
	for i, c := range evicted {
		ids[i] = c.Device.ID
	}
	r.notify(evicted...)
	return ids
}
