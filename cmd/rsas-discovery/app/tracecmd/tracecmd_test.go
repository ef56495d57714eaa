package tracecmd

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsas-protocol/rsas-go/pkg/trace"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func writeTrace(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "exchange.trace")
	fl, err := trace.NewFileLogger(path)
	require.NoError(t, err)

	const session = "0f6c2d1e-aaaa-bbbb-cccc-000000000001"
	events := []trace.Event{
		{
			Timestamp: t0, SessionID: session, Layer: trace.LayerTransport, Category: trace.CategoryState,
			Target:      "/dev/ttyUSB0",
			StateChange: &trace.StateChangeEvent{Entity: trace.StateEntitySession, NewState: "open"},
		},
		{
			Timestamp: t0.Add(time.Millisecond), SessionID: session, Direction: trace.DirectionOut,
			Layer: trace.LayerTransport, Category: trace.CategoryData, Target: "/dev/ttyUSB0",
			Data: trace.NewDataEvent("BASIC_SET", []byte("BASIC_SET operator_id=OP1|aircraft_id=AC1|rid_id=R\n")),
		},
		{
			Timestamp: t0.Add(300 * time.Millisecond), SessionID: session, Direction: trace.DirectionIn,
			Layer: trace.LayerTransport, Category: trace.CategoryData, Target: "/dev/ttyUSB0",
			Data: trace.NewDataEvent("BASIC_SET", []byte("SUCCESS\n")),
		},
		{
			Timestamp: t0.Add(301 * time.Millisecond), SessionID: session, Layer: trace.LayerActivation,
			Category: trace.CategoryState, Target: "/dev/ttyUSB0",
			StateChange: &trace.StateChangeEvent{Entity: trace.StateEntityActivation, OldState: "awaiting", NewState: "accepted"},
		},
		{
			Timestamp: t0.Add(2 * time.Second), Layer: trace.LayerTransport, Category: trace.CategoryError,
			Target: "/dev/ttyUSB1",
			Error:  &trace.ErrorEventData{Layer: trace.LayerTransport, Message: "no such file", Context: "open"},
		},
	}
	for _, e := range events {
		fl.Log(e)
	}
	require.NoError(t, fl.Close())
	return path
}

func TestRunView(t *testing.T) {
	path := writeTrace(t)

	var out bytes.Buffer
	require.NoError(t, RunView(path, trace.Filter{}, &out))
	s := out.String()
	assert.Contains(t, s, "0f6c2d1e")
	assert.Contains(t, s, `"SUCCESS\n"`)
	assert.Contains(t, s, "awaiting -> accepted")
	assert.Contains(t, s, "open: no such file")
}

func TestRunViewFiltered(t *testing.T) {
	path := writeTrace(t)
	filter, err := FilterFlags{Layer: "activation"}.Filter()
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, RunView(path, filter, &out))
	assert.Contains(t, out.String(), "accepted")
	assert.NotContains(t, out.String(), "BASIC_SET operator_id")

	filter, err = FilterFlags{Target: "/dev/ttyUSB9"}.Filter()
	require.NoError(t, err)
	out.Reset()
	require.NoError(t, RunView(path, filter, &out))
	assert.Equal(t, "No matching events.\n", out.String())
}

func TestRunViewMissingFile(t *testing.T) {
	err := RunView(filepath.Join(t.TempDir(), "none"), trace.Filter{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "failed to open trace file")
}

func TestFilterFlags(t *testing.T) {
	f, err := FilterFlags{
		Direction: "OUT",
		Category:  "data",
		Since:     "2026-03-01T12:00:00Z",
	}.Filter()
	require.NoError(t, err)
	assert.Equal(t, trace.DirectionOut, *f.Direction)
	assert.Equal(t, trace.CategoryData, *f.Category)
	assert.True(t, f.TimeStart.Equal(t0))

	for _, bad := range []FilterFlags{
		{Layer: "wire"},
		{Direction: "sideways"},
		{Category: "snapshot"},
		{Until: "yesterday"},
	} {
		_, err := bad.Filter()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestCollect(t *testing.T) {
	stats, err := Collect(writeTrace(t))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.TotalEvents)
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, map[string]int{"BASIC_SET": 1}, stats.ByCommand)
	assert.Equal(t, 1, stats.ByLayer[trace.LayerActivation])
	require.Len(t, stats.Sessions, 1)
	for _, sess := range stats.Sessions {
		assert.Equal(t, "/dev/ttyUSB0", sess.Target)
		assert.Equal(t, 4, sess.Events)
		assert.Equal(t, len("SUCCESS\n"), sess.BytesIn)
	}
	assert.Equal(t, 2*time.Second, stats.End.Sub(stats.Start))

	var out bytes.Buffer
	require.NoError(t, RunStats(writeTrace(t), &out))
	assert.Contains(t, out.String(), "Events:     5")
	assert.Contains(t, out.String(), "BASIC_SET")
}
