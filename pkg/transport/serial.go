package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Serial line defaults.
const (
	DefaultBaudRate     = 115200
	DefaultSettleDelay  = 300 * time.Millisecond
	DefaultPollInterval = 50 * time.Millisecond
)

// Port is the subset of serial.Port the transport uses.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// PortOpenFunc opens a serial port.
type PortOpenFunc func(path string, mode *serial.Mode) (Port, error)

func openSerialPort(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// SerialConfig configures SerialOpener.
type SerialConfig struct {
	BaudRate int

	// SettleDelay is waited after open before the port is handed out.
	SettleDelay time.Duration

	// PollInterval bounds each blocking read of the reader goroutine, and
	// therefore how long Close waits for it.
	PollInterval time.Duration

	// OpenPort overrides the real serial driver (tests).
	OpenPort PortOpenFunc
}

// SerialOpener opens USB serial ports.
type SerialOpener struct {
	cfg SerialConfig
}

// NewSerialOpener creates a SerialOpener, filling unset fields with defaults.
func NewSerialOpener(cfg SerialConfig) *SerialOpener {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = DefaultBaudRate
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.OpenPort == nil {
		cfg.OpenPort = openSerialPort
	}
	return &SerialOpener{cfg: cfg}
}

// Open opens ref.Path at 8N1 and waits for the settle delay.
func (o *SerialOpener) Open(ctx context.Context, ref Ref) (Conn, error) {
	if ref.Kind != KindSerial || ref.Path == "" {
		return nil, fmt.Errorf("%w: not a serial ref: %+v", ErrUnavailable, ref)
	}

	mode := &serial.Mode{
		BaudRate: o.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	type result struct {
		port Port
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := o.cfg.OpenPort(ref.Path, mode)
		done <- result{p, err}
	}()

	var port Port
	select {
	case r := <-done:
		if r.err != nil {
			return nil, mapSerialError(ref, r.err)
		}
		port = r.port
	case <-ctx.Done():
		// The driver call cannot be interrupted; release the port if it
		// eventually opens.
		go func() {
			if r := <-done; r.err == nil {
				_ = r.port.Close()
			}
		}()
		return nil, fmt.Errorf("opening %s: %w", ref.Path, ctxErr(ctx.Err()))
	}

	if err := port.SetReadTimeout(o.cfg.PollInterval); err != nil {
		_ = port.Close()
		return nil, mapSerialError(ref, err)
	}

	c := &serialConn{ref: ref, port: port, buf: newReadBuffer(), done: make(chan struct{})}
	go c.readLoop()

	if err := sleepCtx(ctx, o.cfg.SettleDelay); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// mapSerialError folds driver errors into ErrUnavailable.
func mapSerialError(ref Ref, err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return fmt.Errorf("%w: %s: %s", ErrUnavailable, ref.Path, portErr.EncodedErrorString())
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, ref.Path, err)
}

type serialConn struct {
	ref  Ref
	port Port
	buf  *readBuffer

	closeOnce sync.Once
	done      chan struct{}
}

func (c *serialConn) Ref() Ref { return c.ref }

func (c *serialConn) readLoop() {
	p := make([]byte, 256)
	for {
		n, err := c.port.Read(p)
		if n > 0 {
			c.buf.append(p[:n])
		}
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.buf.fail(fmt.Errorf("%w: %s: %v", ErrUnavailable, c.ref.Path, err))
			return
		}
		select {
		case <-c.done:
			return
		default:
		}
	}
}

func (c *serialConn) Write(ctx context.Context, p []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctxErr(ctx.Err())
	default:
	}

	if err := c.port.ResetInputBuffer(); err != nil {
		return mapSerialError(c.ref, err)
	}
	c.buf.reset()

	if _, err := c.port.Write(p); err != nil {
		return mapSerialError(c.ref, err)
	}
	return nil
}

func (c *serialConn) ReadAvailable(ctx context.Context, window time.Duration, complete Completion) ([]byte, error) {
	select {
	case <-c.done:
		return nil, ErrClosed
	default:
	}
	return c.buf.collect(ctx, window, complete)
}

func (c *serialConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.port.Close()
	})
	return err
}

var _ Opener = (*SerialOpener)(nil)
