package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/trace"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Default windows, derived from module response times on USB.
const (
	DefaultOpenTimeout  = 3 * time.Second
	DefaultInfoWindow   = time.Second
	DefaultFieldsWindow = 1500 * time.Millisecond
)

// Config configures an Exchanger.
type Config struct {
	Opener transport.Opener
	Locks  *transport.Locks

	// OpenTimeout bounds lock acquisition plus open.
	OpenTimeout  time.Duration
	InfoWindow   time.Duration
	FieldsWindow time.Duration

	Tracer trace.Logger
	Logger log.Logger
}

// Exchanger runs command/response cycles against devices, one lease at a time
// per Ref.
type Exchanger struct {
	cfg    Config
	tracer trace.Logger
	logger log.Logger
}

// New creates an Exchanger. Opener is required.
func New(cfg Config) *Exchanger {
	if cfg.Locks == nil {
		cfg.Locks = transport.NewLocks(false)
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.InfoWindow <= 0 {
		cfg.InfoWindow = DefaultInfoWindow
	}
	if cfg.FieldsWindow <= 0 {
		cfg.FieldsWindow = DefaultFieldsWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("exchange")
	}
	return &Exchanger{cfg: cfg, tracer: trace.OrNoop(cfg.Tracer), logger: logger}
}

// Session is one exclusive lease of a device.
type Session struct {
	ID  string
	ref transport.Ref

	conn    transport.Conn
	release func()
	tracer  trace.Logger
	closed  bool
}

// Open acquires the device's lock and opens it. The caller must Close the
// session, which releases both.
func (x *Exchanger) Open(ctx context.Context, ref transport.Ref) (*Session, error) {
	openCtx, cancel := context.WithTimeout(ctx, x.cfg.OpenTimeout)
	defer cancel()

	id := uuid.NewString()

	release, err := x.cfg.Locks.Acquire(openCtx, ref)
	if err != nil {
		x.traceError(id, ref, "acquire", err)
		return nil, err
	}

	conn, err := x.cfg.Opener.Open(openCtx, ref)
	if err != nil {
		release()
		x.traceError(id, ref, "open", err)
		return nil, err
	}

	s := &Session{ID: id, ref: ref, conn: conn, release: release, tracer: x.tracer}
	s.state("", "open")
	return s, nil
}

// Ref returns the device the session targets.
func (s *Session) Ref() transport.Ref { return s.ref }

// Send writes cmd and reads the answer within window. command names the verb
// for trace events.
func (s *Session) Send(ctx context.Context, command string, cmd []byte, window time.Duration, complete transport.Completion) ([]byte, error) {
	if err := s.Write(ctx, command, cmd); err != nil {
		return nil, err
	}
	return s.Read(ctx, command, window, complete)
}

// Write sends one command line.
func (s *Session) Write(ctx context.Context, command string, cmd []byte) error {
	s.data(trace.DirectionOut, command, cmd)
	if err := s.conn.Write(ctx, cmd); err != nil {
		s.fail(trace.LayerTransport, "write "+command, err)
		return err
	}
	return nil
}

// Read collects the answer to command within window.
func (s *Session) Read(ctx context.Context, command string, window time.Duration, complete transport.Completion) ([]byte, error) {
	raw, err := s.conn.ReadAvailable(ctx, window, complete)
	s.data(trace.DirectionIn, command, raw)
	if err != nil {
		s.fail(trace.LayerTransport, "read "+command, err)
		return raw, err
	}
	return raw, nil
}

// Close closes the connection and releases the lock. Safe to call twice.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.conn.Close()
	s.release()
	s.state("open", "closed")
	return err
}

// Trace records an event under this session.
func (s *Session) Trace(ev trace.Event) {
	ev.SessionID = s.ID
	ev.Target = s.ref.String()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.tracer.Log(ev)
}

func (s *Session) data(dir trace.Direction, command string, p []byte) {
	s.Trace(trace.Event{
		Direction: dir,
		Layer:     trace.LayerTransport,
		Category:  trace.CategoryData,
		Data:      trace.NewDataEvent(command, p),
	})
}

func (s *Session) state(from, to string) {
	s.Trace(trace.Event{
		Layer:       trace.LayerTransport,
		Category:    trace.CategoryState,
		StateChange: &trace.StateChangeEvent{Entity: trace.StateEntitySession, OldState: from, NewState: to},
	})
}

func (s *Session) fail(layer trace.Layer, what string, err error) {
	s.Trace(trace.Event{
		Layer:    layer,
		Category: trace.CategoryError,
		Error:    &trace.ErrorEventData{Layer: layer, Message: err.Error(), Context: what},
	})
}

func (x *Exchanger) traceError(id string, ref transport.Ref, what string, err error) {
	x.tracer.Log(trace.Event{
		Timestamp: time.Now(),
		SessionID: id,
		Layer:     trace.LayerTransport,
		Category:  trace.CategoryError,
		Target:    ref.String(),
		Error:     &trace.ErrorEventData{Layer: trace.LayerTransport, Message: err.Error(), Context: what},
	})
}

// Info sends GET_INFO. Only transport failures are errors; an unparseable
// answer yields default identity with ok=false.
func (x *Exchanger) Info(ctx context.Context, ref transport.Ref) (info protocol.Info, ok bool, err error) {
	s, err := x.Open(ctx, ref)
	if err != nil {
		return protocol.DefaultInfo(), false, err
	}
	defer s.Close()

	raw, err := s.Send(ctx, protocol.CmdGetInfo, protocol.EncodeGetInfo(), x.cfg.InfoWindow, protocol.HasObject)
	if err != nil && len(raw) == 0 {
		return protocol.DefaultInfo(), false, err
	}

	info, ok = protocol.DecodeInfo(raw)
	if !ok {
		x.logger.Debug("GET_INFO answer not parseable", "target", ref, "bytes", len(raw))
	}
	return info, ok, nil
}

// Fields sends GET_FIELDS. An empty answer is ErrTimeout; anything that is
// not a JSON object is protocol.ErrDecode.
func (x *Exchanger) Fields(ctx context.Context, ref transport.Ref) (protocol.Fields, error) {
	s, err := x.Open(ctx, ref)
	if err != nil {
		return protocol.Fields{}, err
	}
	defer s.Close()

	raw, err := s.Send(ctx, protocol.CmdGetFields, protocol.EncodeGetFields(), x.cfg.FieldsWindow, protocol.HasObject)
	if err != nil {
		return protocol.Fields{}, err
	}
	if len(raw) == 0 {
		return protocol.Fields{}, fmt.Errorf("%w: no answer to %s from %s", transport.ErrTimeout, protocol.CmdGetFields, ref)
	}

	fields, err := protocol.DecodeFields(raw)
	if err != nil {
		s.fail(trace.LayerProtocol, "decode "+protocol.CmdGetFields, err)
		return protocol.Fields{}, err
	}
	return fields, nil
}
