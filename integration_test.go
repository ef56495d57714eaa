package rsas_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsas-protocol/rsas-go/cmd/rsas-discovery/app/api"
	"github.com/rsas-protocol/rsas-go/internal/testharness/mock"
	"github.com/rsas-protocol/rsas-go/pkg/discovery"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/metrics"
	"github.com/rsas-protocol/rsas-go/pkg/notify"
	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/service"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

type staticLister []discovery.PortInfo

func (l staticLister) ListPorts() ([]discovery.PortInfo, error) { return l, nil }

type announceOnce []discovery.ServiceEntry

func (b announceOnce) Browse(ctx context.Context, out chan<- discovery.ServiceEvent) error {
	for _, e := range b {
		select {
		case out <- discovery.ServiceEvent{Kind: discovery.EventAdded, Entry: e}:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

type published struct {
	topic   string
	retain  bool
	payload string
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *capturePublisher) Publish(_ context.Context, topic string, _ byte, retain bool, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{topic, retain, string(payload)})
	return nil
}

func (p *capturePublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, m := range p.msgs {
		out = append(out, m.topic)
	}
	return out
}

type stack struct {
	srv     *httptest.Server
	usb     *mock.Device
	net     *mock.Device
	pub     *capturePublisher
	engine  *service.Engine
	metrics *metrics.Metrics
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s := &stack{
		usb:     mock.NewDevice("USB0ESN"),
		net:     mock.NewDevice("NET1"),
		pub:     &capturePublisher{},
		metrics: metrics.New(),
	}
	fields := `{"operator_id":"OP1","aircraft_id":"AC1","serial_number":"","rid_id":"RID-OP1-AC1-UNKNOWN"}` + "\r\n"
	s.usb.Answers[protocol.CmdGetFields] = fields
	s.net.Answers[protocol.CmdBasicSet] = "[SUCCESS] stored\r\n"

	opener := mock.NewOpener()
	opener.Attach(transport.SerialRef("/dev/ttyUSB0"), s.usb)
	opener.Attach(transport.NetworkRef("10.0.0.5", 80), s.net)

	notifier := notify.NewPublishingNotifier(notify.PublisherConfig{
		Publisher: s.pub,
		Topics:    notify.Topics{Root: "rsas"},
		Logger:    log.NewNopLogger(),
	})
	notifier.Start(ctx)
	t.Cleanup(notifier.Stop)

	var err error
	s.engine, err = service.New(service.Config{
		Mode:           service.ModeBoth,
		Opener:         opener,
		Lister:         staticLister{{Name: "/dev/ttyUSB0", IsUSB: true, VID: 0x10C4, PID: 0xEA60}},
		Browser:        announceOnce{{Instance: "rsas-net1", Host: "rsas-net1.local.", Port: 80, Addrs: []string{"10.0.0.5"}}},
		InfoWindow:     40 * time.Millisecond,
		FieldsWindow:   40 * time.Millisecond,
		ResponseWindow: 40 * time.Millisecond,
		Notifier:       notifier,
		Metrics:        s.metrics,
		Logger:         log.NewNopLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, s.engine.Start(ctx))
	t.Cleanup(func() { _ = s.engine.Stop() })

	s.srv = httptest.NewServer(api.NewRouter(s.engine, s.metrics.Registry, log.NewNopLogger()))
	t.Cleanup(s.srv.Close)

	require.Eventually(t, func() bool { return s.engine.Registry().Len() == 1 }, time.Second, 5*time.Millisecond)
	return s
}

func (s *stack) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestDiscoverActivateAndReadBack(t *testing.T) {
	s := newStack(t)

	code, out := s.do(t, http.MethodGet, "/devices", "")
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, out["count"])
	devices := out["devices"].([]any)
	assert.Equal(t, "USB0ESN", devices[0].(map[string]any)["id"])
	assert.Equal(t, "/dev/ttyUSB0", devices[0].(map[string]any)["port"])
	assert.Equal(t, "USB", devices[0].(map[string]any)["connection_type"])
	assert.Equal(t, "NET1", devices[1].(map[string]any)["esn"])
	assert.Equal(t, "10.0.0.5:80", devices[1].(map[string]any)["port"])
	assert.Equal(t, "NETWORK", devices[1].(map[string]any)["connection_kind"])

	code, out = s.do(t, http.MethodPost, "/activate",
		`{"device_id":"NET1","aircraft_data":{"operator_id":"OP1","aircraft_id":"AC1","esn":"NET1"}}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, true, out["looks_successful"])
	assert.Equal(t, "RID-OP1-AC1-NET1", out["rid_id"])
	assert.Equal(t, "[SUCCESS] stored", out["esp32_response"])
	assert.Contains(t, s.net.Received(),
		"BASIC_SET operator_id=OP1|aircraft_id=AC1|serial_number=NET1|rid_id=RID-OP1-AC1-NET1\n")

	code, out = s.do(t, http.MethodGet, "/device-info?device_port=/dev/ttyUSB0", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "RID-OP1-AC1-UNKNOWN", out["rid_id"])

	code, out = s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", out["status"])
	assert.EqualValues(t, 2, out["devices_count"])
	assert.Equal(t, "USB Serial + Network (mDNS)", out["connection_type"])

	require.Eventually(t, func() bool {
		topics := s.pub.topics()
		return assert.ObjectsAreEqual([]string{"rsas/devices/NET1", "rsas/activations/NET1"}, topics)
	}, time.Second, 5*time.Millisecond)

	resp, err := http.Get(s.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `rsas_activations_total{result="success"} 1`)
	assert.Contains(t, string(body), "rsas_devices_known 1")
}

func TestActivationErrorsOverHTTP(t *testing.T) {
	s := newStack(t)

	code, out := s.do(t, http.MethodPost, "/activate",
		`{"device_port":"/dev/ttyUSB9","aircraft_data":{"operator_id":"OP1","aircraft_id":"AC1"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, out["success"])

	code, _ = s.do(t, http.MethodPost, "/activate",
		`{"device_port":"/dev/ttyUSB0","aircraft_data":{"operator_id":"OP|1","aircraft_id":"AC1"}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/activate",
		`{"device_id":"GHOST","aircraft_data":{"operator_id":"OP1","aircraft_id":"AC1"}}`)
	assert.Equal(t, http.StatusNotFound, code)

	for _, line := range s.usb.Received() {
		assert.False(t, strings.HasPrefix(line, protocol.CmdBasicSet), "invalid request reached the module")
	}
}
