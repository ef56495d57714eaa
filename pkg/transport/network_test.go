package transport

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func refFor(t *testing.T, srv *httptest.Server) Ref {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return NetworkRef(host, port)
}

func TestNetworkExchange(t *testing.T) {
	var gotBody, gotPath, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody, gotPath, gotType = string(b), r.URL.Path, r.Header.Get("Content-Type")
		_, _ = w.Write([]byte("[SUCCESS] stored"))
	}))
	defer srv.Close()

	conn, err := NewNetworkOpener(NetworkConfig{}).Open(context.Background(), refFor(t, srv))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(context.Background(), []byte("BASIC_SET operator_id=OP1|aircraft_id=AC1|rid_id=R1\n")))

	start := time.Now()
	got, err := conn.ReadAvailable(context.Background(), 5*time.Second, nil)
	require.NoError(t, err)

	assert.Equal(t, "[SUCCESS] stored", string(got))
	assert.Less(t, time.Since(start), 5*time.Second, "a finished response ends the window")
	assert.Equal(t, "/command", gotPath)
	assert.Equal(t, "text/plain", gotType)
	assert.Equal(t, "BASIC_SET operator_id=OP1|aircraft_id=AC1|rid_id=R1\n", gotBody)
}

func TestNetworkOpenRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	ref := refFor(t, srv)
	srv.Close()

	_, err := NewNetworkOpener(NetworkConfig{}).Open(context.Background(), ref)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNetworkSlowModuleTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	o := NewNetworkOpener(NetworkConfig{Client: &http.Client{Timeout: 20 * time.Millisecond}})
	conn, err := o.Open(context.Background(), refFor(t, srv))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Write(context.Background(), []byte("GET_INFO\n")))
	_, err = conn.ReadAvailable(context.Background(), 2*time.Second, nil)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestNetworkOpenRejectsSerialRef(t *testing.T) {
	_, err := NewNetworkOpener(NetworkConfig{}).Open(context.Background(), SerialRef("/dev/ttyUSB0"))
	assert.ErrorIs(t, err, ErrUnavailable)
}
