package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Transport errors. ErrBusy is also ErrUnavailable.
var (
	ErrUnavailable = errors.New("transport unavailable")
	ErrTimeout     = errors.New("transport timeout")
	ErrBusy        = fmt.Errorf("%w: in use by another exchange", ErrUnavailable)
	ErrClosed      = errors.New("transport closed")
)

// Kind distinguishes the two carriers.
type Kind uint8

const (
	KindSerial Kind = iota
	KindNetwork
)

// String returns the kind name as used in device listings.
func (k Kind) String() string {
	switch k {
	case KindSerial:
		return "SERIAL"
	case KindNetwork:
		return "NETWORK"
	default:
		return "UNKNOWN"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText accepts a kind name in any case.
func (k *Kind) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "SERIAL":
		*k = KindSerial
	case "NETWORK":
		*k = KindNetwork
	default:
		return fmt.Errorf("unknown connection kind %q", text)
	}
	return nil
}

// Ref is an opaque handle sufficient to open a device.
type Ref struct {
	Kind    Kind   `json:"kind"`
	Path    string `json:"path,omitempty"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
}

// SerialRef returns a Ref for a serial port path.
func SerialRef(path string) Ref {
	return Ref{Kind: KindSerial, Path: path}
}

// NetworkRef returns a Ref for an HTTP endpoint.
func NetworkRef(address string, port int) Ref {
	return Ref{Kind: KindNetwork, Address: address, Port: port}
}

// String renders the port path or host:port.
func (r Ref) String() string {
	if r.Kind == KindNetwork {
		return net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
	}
	return r.Path
}

// IsZero reports whether r identifies nothing.
func (r Ref) IsZero() bool {
	return r.Path == "" && r.Address == ""
}

// Completion reports whether the bytes gathered so far form a full answer.
type Completion func(buf []byte) bool

// Conn is a leased handle to one device. It is not safe for concurrent use;
// callers hold a Locks entry for its Ref while using it.
type Conn interface {
	// Ref returns the device this connection targets.
	Ref() Ref

	// Write sends one command.
	Write(ctx context.Context, p []byte) error

	// ReadAvailable returns the bytes received within window, returning early
	// once complete (if non-nil) is satisfied.
	ReadAvailable(ctx context.Context, window time.Duration, complete Completion) ([]byte, error)

	// Close releases the device. It is safe to call more than once.
	Close() error
}

// Opener opens connections for a Ref.
type Opener interface {
	Open(ctx context.Context, ref Ref) (Conn, error)
}

// Dialer routes Open to the carrier named by the Ref's Kind.
type Dialer struct {
	Serial  Opener
	Network Opener
}

// Open implements Opener.
func (d *Dialer) Open(ctx context.Context, ref Ref) (Conn, error) {
	var o Opener
	switch ref.Kind {
	case KindSerial:
		o = d.Serial
	case KindNetwork:
		o = d.Network
	}
	if o == nil {
		return nil, fmt.Errorf("%w: no opener for %s", ErrUnavailable, ref.Kind)
	}
	return o.Open(ctx, ref)
}

var _ Opener = (*Dialer)(nil)
