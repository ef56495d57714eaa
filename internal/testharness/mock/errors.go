package mock

import (
	"fmt"

	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// Mock package errors.
var (
	// ErrDeviceNotConnected is returned when opening a ref with no device.
	ErrDeviceNotConnected = fmt.Errorf("%w: device not connected", transport.ErrUnavailable)
)
