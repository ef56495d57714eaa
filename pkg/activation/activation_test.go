package activation_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsas-protocol/rsas-go/internal/testharness/mock"
	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/exchange"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/trace"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

type recorder struct {
	mu     sync.Mutex
	events []trace.Event
}

func (r *recorder) Log(e trace.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// states returns the activation states entered, in order.
func (r *recorder) states() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.StateChange != nil && e.StateChange.Entity == trace.StateEntityActivation {
			out = append(out, e.StateChange.NewState)
		}
	}
	return out
}

func (r *recorder) last(entity trace.StateEntity) *trace.StateChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if sc := r.events[i].StateChange; sc != nil && sc.Entity == entity {
			return sc
		}
	}
	return nil
}

var port = transport.SerialRef("/dev/ttyUSB0")

func setup(t *testing.T, dev *mock.Device) (*activation.Coordinator, *recorder) {
	t.Helper()
	opener := mock.NewOpener()
	if dev != nil {
		opener.Attach(port, dev)
	}
	rec := &recorder{}
	ex := exchange.New(exchange.Config{Opener: opener, Tracer: rec, Logger: log.NewNopLogger()})
	c := activation.NewCoordinator(activation.Config{
		Sessions:       ex,
		ResponseWindow: 60 * time.Millisecond,
		Tracer:         rec,
		Logger:         log.NewNopLogger(),
	})
	return c, rec
}

func storingDevice(answer string) *mock.Device {
	return &mock.Device{Answers: map[string]string{protocol.CmdBasicSet: answer}}
}

func TestActivateWritesBasicSet(t *testing.T) {
	dev := storingDevice("BASIC_SET received\r\n[SUCCESS] values stored\r\n")
	c, rec := setup(t, dev)

	res, err := c.Activate(context.Background(), activation.Request{
		Target:     port,
		OperatorID: " op-12345678 ",
		AircraftID: "ac-abcdefgh",
	})
	require.NoError(t, err)

	want := "BASIC_SET operator_id=op-12345678|aircraft_id=ac-abcdefgh|rid_id=RID-OP-12345-AC-ABCDE-UNKNOWN"
	assert.Equal(t, []string{want + "\n"}, dev.Received())
	assert.Equal(t, activation.Result{
		Accepted:        true,
		RIDID:           "RID-OP-12345-AC-ABCDE-UNKNOWN",
		RawResponse:     "BASIC_SET received\r\n[SUCCESS] values stored",
		SentCommand:     want,
		LooksSuccessful: true,
	}, res)

	assert.Equal(t, []string{
		activation.StateOpening,
		activation.StateSending,
		activation.StateAwaiting,
		activation.StateAccepted,
	}, rec.states())
	assert.Equal(t, "closed", rec.last(trace.StateEntitySession).NewState)
}

func TestActivateSilentModuleIsAccepted(t *testing.T) {
	c, _ := setup(t, storingDevice(""))

	res, err := c.Activate(context.Background(), activation.Request{
		Target:     port,
		OperatorID: "OP1",
		AircraftID: "AC1",
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.LooksSuccessful)
	assert.Empty(t, res.RawResponse)
}

func TestActivateUnrecognizedAnswerIsAccepted(t *testing.T) {
	c, _ := setup(t, storingDevice("ERR unknown key\r\n"))

	res, err := c.Activate(context.Background(), activation.Request{
		Target:     port,
		OperatorID: "OP1",
		AircraftID: "AC1",
	})
	require.NoError(t, err)
	assert.True(t, res.Accepted)
	assert.False(t, res.LooksSuccessful)
	assert.Equal(t, "ERR unknown key", res.RawResponse)
}

func TestActivateWithESNAndSuppliedRID(t *testing.T) {
	dev := storingDevice("STORED\n")
	c, _ := setup(t, dev)

	res, err := c.Activate(context.Background(), activation.Request{
		Target:     port,
		OperatorID: "OP1",
		AircraftID: "AC1",
		ESN:        "esn-0042",
		RIDID:      " custom-rid ",
	})
	require.NoError(t, err)
	assert.Equal(t, "custom-rid", res.RIDID)
	assert.Equal(t, []string{"BASIC_SET operator_id=OP1|aircraft_id=AC1|serial_number=esn-0042|rid_id=custom-rid\n"}, dev.Received())
}

func TestActivateRepeatedIsIdempotent(t *testing.T) {
	tests := []struct {
		name    string
		rid     string
		wantRID string
	}{
		{"supplied rid", "RID-FIXED-0001", "RID-FIXED-0001"},
		{"generated rid", "", "RID-OP1-AC1-ESN0042"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := storingDevice("[SUCCESS] stored\n")
			c, _ := setup(t, dev)
			req := activation.Request{
				Target:     port,
				OperatorID: "OP1",
				AircraftID: "AC1",
				ESN:        "esn-0042",
				RIDID:      tt.rid,
			}

			first, err := c.Activate(context.Background(), req)
			require.NoError(t, err)
			second, err := c.Activate(context.Background(), req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantRID, first.RIDID)
			assert.Equal(t, first, second)
			received := dev.Received()
			require.Len(t, received, 2)
			assert.Equal(t, received[0], received[1])
		})
	}
}

func TestActivateValidationTouchesNoTransport(t *testing.T) {
	tests := []struct {
		name string
		req  activation.Request
	}{
		{"missing operator", activation.Request{Target: port, OperatorID: "  ", AircraftID: "AC1"}},
		{"missing aircraft", activation.Request{Target: port, OperatorID: "OP1"}},
		{"missing target", activation.Request{OperatorID: "OP1", AircraftID: "AC1"}},
		{"separator in value", activation.Request{Target: port, OperatorID: "OP|1", AircraftID: "AC1"}},
		{"newline in rid", activation.Request{Target: port, OperatorID: "OP1", AircraftID: "AC1", RIDID: "a\nb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := storingDevice("SUCCESS\n")
			c, rec := setup(t, dev)

			_, err := c.Activate(context.Background(), tt.req)
			assert.ErrorIs(t, err, activation.ErrValidation)
			assert.Zero(t, dev.Opens())
			assert.Equal(t, []string{activation.StateFailed}, rec.states())
		})
	}
}

func TestActivateUnavailable(t *testing.T) {
	c, rec := setup(t, nil)

	_, err := c.Activate(context.Background(), activation.Request{
		Target:     port,
		OperatorID: "OP1",
		AircraftID: "AC1",
	})
	assert.ErrorIs(t, err, transport.ErrUnavailable)
	assert.Equal(t, []string{activation.StateOpening, activation.StateFailed}, rec.states())
	assert.NotEmpty(t, rec.last(trace.StateEntityActivation).Reason)
}

func TestActivateSameDeviceIsSerialized(t *testing.T) {
	dev := storingDevice("SUCCESS\n")
	dev.Delay = 20 * time.Millisecond
	c, _ := setup(t, dev)

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Activate(context.Background(), activation.Request{
				Target:     port,
				OperatorID: "OP1",
				AircraftID: "AC1",
			})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, dev.PeakConcurrent())
	assert.Len(t, dev.Received(), 3)
}

func TestDeterministicRID(t *testing.T) {
	g := activation.DeterministicRID{}

	tests := []struct {
		op, ac, esn string
		want        string
	}{
		{"op-12345678", "ac-abcdefgh", "", "RID-OP-12345-AC-ABCDE-UNKNOWN"},
		{"OP1", "AC1", "esn-0042", "RID-OP1-AC1-ESN0042"},
		{"", "", "ab:cd:ef:01:23:45", "RID-UNKNOWN-UNKNOWN-ABCDEF01"},
		{"op", "ac", "---", "RID-OP-AC-UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, g.Generate(tt.op, tt.ac, tt.esn))
	}

	assert.Equal(t, g.Generate("a", "b", "c"), g.Generate("a", "b", "c"))
}

func TestRandomRID(t *testing.T) {
	g := activation.RandomRID{}
	a, b := g.Generate("OP1", "AC1", ""), g.Generate("OP1", "AC1", "")

	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "RID-"))
	assert.Len(t, a, len("RID-")+36)
}

func TestNewRIDGenerator(t *testing.T) {
	g, err := activation.NewRIDGenerator("")
	require.NoError(t, err)
	assert.IsType(t, activation.DeterministicRID{}, g)

	g, err = activation.NewRIDGenerator("Random")
	require.NoError(t, err)
	assert.IsType(t, activation.RandomRID{}, g)

	_, err = activation.NewRIDGenerator("sequential")
	assert.Error(t, err)
}
