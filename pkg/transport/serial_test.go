package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

// fakePort is an in-memory serial port. reply, when set, produces the
// module's answer to each write.
type fakePort struct {
	mu       sync.Mutex
	written  bytes.Buffer
	incoming chan []byte
	closed   chan struct{}
	timeout  time.Duration
	resets   int
	reply    func(cmd []byte) []byte
	once     sync.Once
}

func newFakePort(reply func([]byte) []byte) *fakePort {
	return &fakePort{
		incoming: make(chan []byte, 16),
		closed:   make(chan struct{}),
		timeout:  10 * time.Millisecond,
		reply:    reply,
	}
}

func (p *fakePort) Read(b []byte) (int, error) {
	select {
	case data := <-p.incoming:
		return copy(b, data), nil
	case <-p.closed:
		return 0, errors.New("port closed")
	case <-time.After(p.timeout):
		return 0, nil
	}
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.written.Write(b)
	reply := p.reply
	p.mu.Unlock()

	if reply != nil {
		if out := reply(b); out != nil {
			p.incoming <- out
		}
	}
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *fakePort) ResetInputBuffer() error {
	p.mu.Lock()
	p.resets++
	p.mu.Unlock()
	for {
		select {
		case <-p.incoming:
		default:
			return nil
		}
	}
}

func (p *fakePort) SetReadTimeout(d time.Duration) error {
	p.timeout = d
	return nil
}

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func openerFor(port *fakePort, openErr error) *SerialOpener {
	return NewSerialOpener(SerialConfig{
		SettleDelay: 20 * time.Millisecond,
		OpenPort: func(path string, mode *serial.Mode) (Port, error) {
			if openErr != nil {
				return nil, openErr
			}
			if mode.BaudRate != DefaultBaudRate || mode.DataBits != 8 {
				return nil, errors.New("unexpected mode")
			}
			return port, nil
		},
	})
}

func TestSerialExchange(t *testing.T) {
	port := newFakePort(func(cmd []byte) []byte {
		if string(cmd) == "GET_INFO\n" {
			return []byte(`{"esn":"ABC123","status":"ready"}` + "\r\n")
		}
		return nil
	})
	port.incoming <- []byte("boot noise")

	conn, err := openerFor(port, nil).Open(context.Background(), SerialRef("/dev/ttyUSB0"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(context.Background(), []byte("GET_INFO\n")))
	got, err := conn.ReadAvailable(context.Background(), 200*time.Millisecond, func(p []byte) bool {
		return bytes.Contains(p, []byte("}"))
	})
	require.NoError(t, err)

	assert.Equal(t, `{"esn":"ABC123","status":"ready"}`+"\r\n", string(got))
	assert.Equal(t, "GET_INFO\n", port.Written())
	assert.Equal(t, 1, port.resets)
	assert.Equal(t, SerialRef("/dev/ttyUSB0"), conn.Ref())
}

func TestSerialOpenFailureIsUnavailable(t *testing.T) {
	_, err := openerFor(nil, errors.New("no such file")).Open(context.Background(), SerialRef("/dev/ttyUSB9"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSerialOpenRejectsNetworkRef(t *testing.T) {
	_, err := openerFor(newFakePort(nil), nil).Open(context.Background(), NetworkRef("10.0.0.5", 80))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSerialOpenHonoursDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	o := NewSerialOpener(SerialConfig{
		OpenPort: func(string, *serial.Mode) (Port, error) {
			<-block
			return nil, errors.New("late")
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := o.Open(ctx, SerialRef("/dev/ttyUSB0"))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSerialSilentModuleReadsEmpty(t *testing.T) {
	conn, err := openerFor(newFakePort(nil), nil).Open(context.Background(), SerialRef("/dev/ttyACM0"))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(context.Background(), []byte("BASIC_SET operator_id=OP1\n")))
	got, err := conn.ReadAvailable(context.Background(), 30*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSerialUseAfterClose(t *testing.T) {
	conn, err := openerFor(newFakePort(nil), nil).Open(context.Background(), SerialRef("/dev/ttyACM0"))
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.ErrorIs(t, conn.Write(context.Background(), []byte("GET_INFO\n")), ErrClosed)
	_, err = conn.ReadAvailable(context.Background(), time.Millisecond, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDialerRoutesByKind(t *testing.T) {
	d := &Dialer{Serial: openerFor(newFakePort(nil), nil)}

	conn, err := d.Open(context.Background(), SerialRef("/dev/ttyUSB0"))
	require.NoError(t, err)
	conn.Close()

	_, err = d.Open(context.Background(), NetworkRef("10.0.0.5", 80))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRefString(t *testing.T) {
	assert.Equal(t, "/dev/ttyUSB0", SerialRef("/dev/ttyUSB0").String())
	assert.Equal(t, "10.0.0.5:80", NetworkRef("10.0.0.5", 80).String())
	assert.Equal(t, "[fe80::1]:8080", NetworkRef("fe80::1", 8080).String())
	assert.True(t, Ref{}.IsZero())
}

func TestRefJSONNamesKind(t *testing.T) {
	b, err := json.Marshal(SerialRef("/dev/ttyUSB0"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"SERIAL","path":"/dev/ttyUSB0"}`, string(b))

	b, err = json.Marshal(NetworkRef("10.0.0.5", 80))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"NETWORK","address":"10.0.0.5","port":80}`, string(b))

	var ref Ref
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"network","address":"10.0.0.6","port":8080}`), &ref))
	assert.Equal(t, NetworkRef("10.0.0.6", 8080), ref)

	assert.Error(t, json.Unmarshal([]byte(`{"kind":"bluetooth"}`), &ref))
}
