package activation

import (
	"context"

	"github.com/looplab/fsm"
)

// Activation states.
const (
	StateIdle     = "idle"
	StateOpening  = "opening"
	StateSending  = "sending"
	StateAwaiting = "awaiting"
	StateAccepted = "accepted"
	StateFailed   = "failed"
)

const (
	eventOpen     = "open"
	eventOpened   = "opened"
	eventWritten  = "written"
	eventAnswered = "answered"
	eventFail     = "fail"
)

// newMachine builds the per-attempt state machine. onEnter observes every
// transition; reason is the error that caused a transition to failed.
func newMachine(onEnter func(from, to, reason string)) *fsm.FSM {
	events := fsm.Events{
		{Name: eventOpen, Src: []string{StateIdle}, Dst: StateOpening},
		{Name: eventOpened, Src: []string{StateOpening}, Dst: StateSending},
		{Name: eventWritten, Src: []string{StateSending}, Dst: StateAwaiting},
		{Name: eventAnswered, Src: []string{StateAwaiting}, Dst: StateAccepted},

		// Validation fails from idle; everything else once the transport is involved.
		{Name: eventFail, Src: []string{StateIdle, StateOpening, StateSending, StateAwaiting}, Dst: StateFailed},
	}

	callbacks := fsm.Callbacks{
		"enter_state": func(_ context.Context, e *fsm.Event) {
			var reason string
			if len(e.Args) > 0 {
				if err, ok := e.Args[0].(error); ok && err != nil {
					reason = err.Error()
				}
			}
			onEnter(e.Src, e.Dst, reason)
		},
	}

	return fsm.NewFSM(StateIdle, events, callbacks)
}
