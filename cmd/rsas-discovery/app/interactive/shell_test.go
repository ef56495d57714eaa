package interactive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rsas-protocol/rsas-go/pkg/activation"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/registry"
	"github.com/rsas-protocol/rsas-go/pkg/service"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

type fakeEngine struct {
	devices    []registry.Device
	result     activation.Result
	err        error
	fields     protocol.Fields
	lastReq    activation.Request
	lastFields transport.Ref
}

func (f *fakeEngine) ListDevices(context.Context) ([]registry.Device, error) {
	return f.devices, f.err
}

func (f *fakeEngine) Resolve(_ context.Context, id string) (registry.Device, error) {
	for _, d := range f.devices {
		if d.ID == id {
			return d, nil
		}
	}
	return registry.Device{}, fmt.Errorf("%w: %s", service.ErrDeviceNotFound, id)
}

func (f *fakeEngine) Activate(_ context.Context, req activation.Request) (activation.Result, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeEngine) ReadStoredFields(_ context.Context, ref transport.Ref) (protocol.Fields, error) {
	f.lastFields = ref
	return f.fields, f.err
}

func (f *fakeEngine) HealthSnapshot(context.Context) service.Health {
	return service.Health{Running: true, DeviceCount: len(f.devices), ConnectionType: "USB Serial"}
}

func newTestShell(eng *fakeEngine) (*Shell, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Shell{engine: eng, out: &buf}, &buf
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		wantRef transport.Ref
		wantID  string
	}{
		{"/dev/ttyUSB0", transport.SerialRef("/dev/ttyUSB0"), ""},
		{"COM3", transport.SerialRef("COM3"), ""},
		{"com12", transport.SerialRef("com12"), ""},
		{"COMPASS1", transport.Ref{}, "COMPASS1"},
		{"24A160F1", transport.Ref{}, "24A160F1"},
	}
	for _, tt := range tests {
		ref, id := ParseTarget(tt.in)
		assert.Equal(t, tt.wantRef, ref, tt.in)
		assert.Equal(t, tt.wantID, id, tt.in)
	}
}

func TestShellDevices(t *testing.T) {
	s, out := newTestShell(&fakeEngine{devices: []registry.Device{
		{ID: "ESN1", Name: "RSAS-Module-ESN1", Ref: transport.SerialRef("/dev/ttyUSB0"), Status: "ready"},
	}})
	assert.False(t, s.Exec(context.Background(), "devices"))
	assert.Contains(t, out.String(), "RSAS-Module-ESN1")
	assert.Contains(t, out.String(), "/dev/ttyUSB0")

	s, out = newTestShell(&fakeEngine{})
	s.Exec(context.Background(), "ls")
	assert.Contains(t, out.String(), "No devices found.")
}

func TestShellActivate(t *testing.T) {
	eng := &fakeEngine{result: activation.Result{
		Accepted:        true,
		RIDID:           "RID-OP1-AC1-ESN9",
		SentCommand:     "BASIC_SET operator_id=OP1|aircraft_id=AC1|serial_number=ESN9|rid_id=RID-OP1-AC1-ESN9",
		RawResponse:     "OK stored",
		LooksSuccessful: true,
	}}
	s, out := newTestShell(eng)

	s.Exec(context.Background(), "activate /dev/ttyUSB0 OP1 AC1 ESN9")
	assert.Equal(t, transport.SerialRef("/dev/ttyUSB0"), eng.lastReq.Target)
	assert.Equal(t, "ESN9", eng.lastReq.ESN)
	assert.Empty(t, eng.lastReq.RIDID)
	assert.Contains(t, out.String(), "module confirmed")
	assert.Contains(t, out.String(), "RID-OP1-AC1-ESN9")

	s.Exec(context.Background(), "a 24A160F1 OP1 AC1 ESN9 MY-RID")
	assert.True(t, eng.lastReq.Target.IsZero())
	assert.Equal(t, "24A160F1", eng.lastReq.DeviceID)
	assert.Equal(t, "MY-RID", eng.lastReq.RIDID)
}

func TestShellActivateUsageAndError(t *testing.T) {
	eng := &fakeEngine{}
	s, out := newTestShell(eng)
	s.Exec(context.Background(), "activate /dev/ttyUSB0 OP1")
	assert.Contains(t, out.String(), "Usage: activate")
	assert.Empty(t, eng.lastReq.OperatorID)

	eng.err = errors.New("transport unavailable")
	s.Exec(context.Background(), "activate /dev/ttyUSB0 OP1 AC1")
	assert.Contains(t, out.String(), "Activation failed: transport unavailable")
}

func TestShellFields(t *testing.T) {
	ref := transport.NetworkRef("10.0.0.5", 80)
	eng := &fakeEngine{
		devices: []registry.Device{{ID: "ESN5", Ref: ref}},
		fields:  protocol.Fields{OperatorID: "OP1", RIDID: "RID-X"},
	}
	s, out := newTestShell(eng)

	s.Exec(context.Background(), "fields ESN5")
	assert.Equal(t, ref, eng.lastFields)
	assert.Contains(t, out.String(), "RID-X")

	s.Exec(context.Background(), "fields NOPE")
	assert.Contains(t, out.String(), "device not found")
}

func TestShellHealthAndQuit(t *testing.T) {
	s, out := newTestShell(&fakeEngine{})
	assert.False(t, s.Exec(context.Background(), "health"))
	assert.Contains(t, out.String(), "USB Serial")

	assert.False(t, s.Exec(context.Background(), "   "))
	assert.False(t, s.Exec(context.Background(), "bogus"))
	assert.Contains(t, out.String(), "Unknown command: bogus")
	assert.True(t, s.Exec(context.Background(), "QUIT"))
}
