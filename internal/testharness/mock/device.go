// Package mock provides in-memory RSAS modules and transports for tests.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Device is a scripted RSAS module. Answers are keyed by command verb
// (GET_INFO, GET_FIELDS, BASIC_SET); Handlers.OnCommand overrides them.
type Device struct {
	// Answers maps a verb to the raw bytes the module sends back.
	Answers map[string]string

	// Delay is applied before an answer becomes readable.
	Delay time.Duration

	// Handlers are callbacks for device operations.
	Handlers DeviceHandlers

	mu       sync.Mutex
	received []string
	opens    int
	active   int
	peak     int
}

// DeviceHandlers holds callbacks for device operations.
type DeviceHandlers struct {
	// OnOpen is called on every open; a non-nil error fails the open.
	OnOpen func() error

	// OnCommand returns the answer for a full command line. ok=false falls
	// back to Answers.
	OnCommand func(line string) (answer string, ok bool)
}

// NewDevice creates a module that answers GET_INFO with esn.
func NewDevice(esn string) *Device {
	return &Device{
		Answers: map[string]string{
			"GET_INFO": `{"esn":"` + esn + `","status":"ready"}` + "\r\n",
		},
	}
}

// Received returns the command lines written so far.
func (d *Device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Opens returns how many times the device was opened.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// PeakConcurrent returns the largest number of simultaneously open handles.
func (d *Device) PeakConcurrent() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peak
}

func (d *Device) answer(line string) string {
	d.mu.Lock()
	d.received = append(d.received, line)
	h := d.Handlers.OnCommand
	d.mu.Unlock()

	if h != nil {
		if a, ok := h(line); ok {
			return a
		}
	}
	verb := strings.TrimSpace(line)
	if i := strings.IndexByte(verb, ' '); i >= 0 {
		verb = verb[:i]
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Answers[verb]
}

// Opener serves Devices keyed by Ref.String().
type Opener struct {
	mu      sync.Mutex
	devices map[string]*Device
}

// NewOpener creates an empty Opener.
func NewOpener() *Opener {
	return &Opener{devices: make(map[string]*Device)}
}

// Attach makes d reachable at ref.
func (o *Opener) Attach(ref transport.Ref, d *Device) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.devices[ref.String()] = d
}

// Detach unplugs the device at ref.
func (o *Opener) Detach(ref transport.Ref) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.devices, ref.String())
}

// Open implements transport.Opener.
func (o *Opener) Open(ctx context.Context, ref transport.Ref) (transport.Conn, error) {
	o.mu.Lock()
	d, ok := o.devices[ref.String()]
	o.mu.Unlock()
	if !ok {
		return nil, ErrDeviceNotConnected
	}

	if d.Handlers.OnOpen != nil {
		if err := d.Handlers.OnOpen(); err != nil {
			return nil, err
		}
	}

	d.mu.Lock()
	d.opens++
	d.active++
	if d.active > d.peak {
		d.peak = d.active
	}
	d.mu.Unlock()

	return &conn{ref: ref, dev: d}, nil
}

type conn struct {
	ref     transport.Ref
	dev     *Device
	pending string
	ready   time.Time
	closed  bool
}

func (c *conn) Ref() transport.Ref { return c.ref }

func (c *conn) Write(ctx context.Context, p []byte) error {
	if c.closed {
		return transport.ErrClosed
	}
	c.pending = c.dev.answer(string(p))
	c.ready = time.Now().Add(c.dev.Delay)
	return nil
}

func (c *conn) ReadAvailable(ctx context.Context, window time.Duration, complete transport.Completion) ([]byte, error) {
	if c.closed {
		return nil, transport.ErrClosed
	}
	wait := time.Until(c.ready)
	if c.pending == "" || wait > window {
		wait = window
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if time.Now().Before(c.ready) {
		return nil, nil
	}
	out := []byte(c.pending)
	c.pending = ""
	return out, nil
}

func (c *conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.dev.mu.Lock()
	c.dev.active--
	c.dev.mu.Unlock()
	return nil
}

var _ transport.Opener = (*Opener)(nil)
