package activation

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/looplab/fsm"

	"github.com/rsas-protocol/rsas-go/pkg/exchange"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/trace"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// DefaultResponseWindow bounds the wait for a BASIC_SET answer.
const DefaultResponseWindow = 1500 * time.Millisecond

// SessionOpener leases a device for one exchange. *exchange.Exchanger
// satisfies it.
type SessionOpener interface {
	Open(ctx context.Context, ref transport.Ref) (*exchange.Session, error)
}

// Config configures a Coordinator.
type Config struct {
	Sessions SessionOpener

	// RID generates remote IDs for requests that carry none. Defaults to
	// DeterministicRID.
	RID RIDGenerator

	ResponseWindow time.Duration

	Tracer trace.Logger
	Logger log.Logger
}

// Coordinator performs activation writes. Each call runs its own state
// machine; calls against different devices proceed in parallel and calls
// against the same device are serialized by the session lock.
type Coordinator struct {
	cfg    Config
	tracer trace.Logger
	logger log.Logger
}

// NewCoordinator creates a Coordinator. Sessions is required.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.RID == nil {
		cfg.RID = DeterministicRID{}
	}
	if cfg.ResponseWindow <= 0 {
		cfg.ResponseWindow = DefaultResponseWindow
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.WithName("activation")
	}
	return &Coordinator{cfg: cfg, tracer: trace.OrNoop(cfg.Tracer), logger: logger}
}

// Activate writes the request's identifiers to its target. Errors are
// ErrValidation before any transport is touched, or the transport's
// ErrUnavailable / ErrBusy / ErrTimeout. Any answer, including none, yields
// an accepted Result.
func (c *Coordinator) Activate(ctx context.Context, req Request) (Result, error) {
	req = req.Normalize()
	a := &attempt{c: c, req: req}
	a.m = newMachine(a.entered)

	if err := req.Validate(); err != nil {
		a.fire(ctx, eventFail, err)
		return Result{}, err
	}

	rid := req.RIDID
	if rid == "" {
		rid = c.cfg.RID.Generate(req.OperatorID, req.AircraftID, req.ESN)
	}
	cmd, err := protocol.EncodeBasicSet(protocol.Settings{
		OperatorID:   req.OperatorID,
		AircraftID:   req.AircraftID,
		SerialNumber: req.ESN,
		RIDID:        rid,
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrValidation, err)
		a.fire(ctx, eventFail, err)
		return Result{}, err
	}

	a.fire(ctx, eventOpen)
	s, err := c.cfg.Sessions.Open(ctx, req.Target)
	if err != nil {
		a.fire(ctx, eventFail, err)
		return Result{}, err
	}
	defer s.Close()
	a.session = s
	a.fire(ctx, eventOpened)

	if err := s.Write(ctx, protocol.CmdBasicSet, cmd); err != nil {
		a.fire(ctx, eventFail, err)
		return Result{}, err
	}
	a.fire(ctx, eventWritten)

	raw, err := s.Read(ctx, protocol.CmdBasicSet, c.cfg.ResponseWindow, answerComplete)
	if err != nil {
		a.fire(ctx, eventFail, err)
		return Result{}, err
	}

	verdict := protocol.Classify(raw)
	a.fire(ctx, eventAnswered)

	res := Result{
		Accepted:        verdict.Accepted,
		RIDID:           rid,
		RawResponse:     strings.TrimSpace(string(raw)),
		SentCommand:     strings.TrimRight(string(cmd), "\r\n"),
		LooksSuccessful: verdict.LooksSuccessful,
	}
	c.logger.Info("activation written",
		"target", req.Target,
		"device", req.DeviceID,
		"rid", rid,
		"looks_successful", res.LooksSuccessful,
		"response_bytes", len(raw),
	)
	return res, nil
}

// answerComplete ends the response window once a full line carrying a
// success token has arrived. Other answers wait for the whole window.
func answerComplete(raw []byte) bool {
	return bytes.HasSuffix(raw, []byte("\n")) && protocol.LooksSuccessful(raw)
}

// attempt is the state of one Activate call.
type attempt struct {
	c       *Coordinator
	req     Request
	m       *fsm.FSM
	session *exchange.Session
}

func (a *attempt) fire(ctx context.Context, event string, args ...any) {
	if err := a.m.Event(ctx, event, args...); err != nil {
		a.c.logger.Warn("activation state machine rejected event", "event", event, "state", a.m.Current(), "error", err)
	}
}

func (a *attempt) entered(from, to, reason string) {
	ev := trace.Event{
		Layer:    trace.LayerActivation,
		Category: trace.CategoryState,
		DeviceID: a.req.DeviceID,
		StateChange: &trace.StateChangeEvent{
			Entity:   trace.StateEntityActivation,
			OldState: from,
			NewState: to,
			Reason:   reason,
		},
	}
	if a.session != nil {
		a.session.Trace(ev)
		return
	}
	ev.Timestamp = time.Now()
	ev.Target = a.req.Target.String()
	a.c.tracer.Log(ev)
}
