package discovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsas-protocol/rsas-go/internal/testharness/mock"
	"github.com/rsas-protocol/rsas-go/pkg/discovery"
	"github.com/rsas-protocol/rsas-go/pkg/exchange"
	"github.com/rsas-protocol/rsas-go/pkg/log"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

type fakeLister struct {
	ports []discovery.PortInfo
	err   error
}

func (l fakeLister) ListPorts() ([]discovery.PortInfo, error) { return l.ports, l.err }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newScanner(lister discovery.PortLister, opener *mock.Opener) *discovery.SerialScanner {
	ex := exchange.New(exchange.Config{
		Opener:     opener,
		InfoWindow: 50 * time.Millisecond,
		Logger:     log.NewNopLogger(),
	})
	return discovery.NewSerialScanner(discovery.SerialConfig{
		Lister:       lister,
		Prober:       ex,
		ProbeTimeout: time.Second,
		Now:          func() time.Time { return fixedNow },
		Logger:       log.NewNopLogger(),
	})
}

func TestCandidatesFiltersByVendor(t *testing.T) {
	s := newScanner(fakeLister{ports: []discovery.PortInfo{
		{Name: "/dev/ttyS0"},
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: 0x10C4, PID: 0xEA60},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: 0x2341, PID: 0x0043},
		{Name: "/dev/ttyACM1", IsUSB: true, VID: 0x303A, PID: 0x1001},
	}}, mock.NewOpener())

	ports, err := s.Candidates()
	require.NoError(t, err)

	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyACM1"}, names)
}

func TestScan(t *testing.T) {
	opener := mock.NewOpener()
	opener.Attach(transport.SerialRef("/dev/ttyUSB0"), mock.NewDevice("ABC123"))

	silent := mock.NewDevice("")
	silent.Answers = map[string]string{}
	opener.Attach(transport.SerialRef("/dev/ttyUSB1"), silent)

	// /dev/ttyUSB2 is listed but cannot be opened.
	s := newScanner(fakeLister{ports: []discovery.PortInfo{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: 0x10C4, PID: 0xEA60, Product: "CP2102 USB to UART"},
		{Name: "/dev/ttyUSB1", IsUSB: true, VID: 0x1A86, PID: 0x7523, SerialNumber: "5A7B0012"},
		{Name: "/dev/ttyUSB2", IsUSB: true, VID: 0x303A},
	}}, opener)

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)

	t.Run("answering module", func(t *testing.T) {
		d := devices[0]
		assert.Equal(t, "ABC123", d.ID)
		assert.Equal(t, "RSAS-Module-ABC123", d.Name)
		assert.Equal(t, "ready", d.Status)
		assert.Equal(t, transport.SerialRef("/dev/ttyUSB0"), d.Ref)
		assert.Equal(t, fixedNow, d.LastSeen)
		assert.Equal(t, "0x10c4", d.Metadata["vid"])
		assert.Equal(t, "0xea60", d.Metadata["pid"])
		assert.Equal(t, "Silicon Labs", d.Metadata["manufacturer"])
		assert.Equal(t, "CP2102 USB to UART", d.Metadata["description"])
	})

	t.Run("silent module uses USB serial number", func(t *testing.T) {
		d := devices[1]
		assert.Equal(t, "5A7B0012", d.ID)
		assert.Equal(t, "ready", d.Status)
		assert.Equal(t, "QinHeng Electronics", d.Metadata["manufacturer"])
	})

	t.Run("unopenable port uses port name", func(t *testing.T) {
		d := devices[2]
		assert.Equal(t, "USB-ttyUSB2", d.ID)
		assert.Equal(t, "N/A", d.Metadata["pid"])
	})
}

func TestScanEnumerationError(t *testing.T) {
	s := newScanner(fakeLister{err: errors.New("udev unavailable")}, mock.NewOpener())

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, discovery.ErrEnumerate)
}

func TestScanNoCandidates(t *testing.T) {
	s := newScanner(fakeLister{}, mock.NewOpener())

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestFallbackESN(t *testing.T) {
	assert.Equal(t, "SN1", discovery.FallbackESN(discovery.PortInfo{Name: "/dev/ttyUSB0", SerialNumber: " SN1 "}))
	assert.Equal(t, "USB-ttyACM3", discovery.FallbackESN(discovery.PortInfo{Name: "/dev/ttyACM3"}))
	assert.Equal(t, "USB-COM4", discovery.FallbackESN(discovery.PortInfo{Name: "COM4"}))
}
