package trace

import "time"

// Event is one captured step of a device exchange.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID groups the events of one lease of a transport (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates data flow relative to the engine.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Target is the transport reference (port path or host:port).
	Target string `cbor:"6,keyasint,omitempty"`

	// DeviceID is the ESN, when known.
	DeviceID string `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Data        *DataEvent        `cbor:"10,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"11,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"12,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn is data received from a device.
	DirectionIn Direction = 0
	// DirectionOut is data sent to a device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which part of the engine captured the event.
type Layer uint8

const (
	// LayerTransport is the raw byte layer (serial or HTTP).
	LayerTransport Layer = 0
	// LayerProtocol is the command/response codec layer.
	LayerProtocol Layer = 1
	// LayerActivation is the activation coordinator.
	LayerActivation Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerActivation:
		return "ACTIVATION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryData indicates command or response bytes.
	CategoryData Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryData:
		return "DATA"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MaxDataSize bounds the bytes kept in a DataEvent.
const MaxDataSize = 4096

// DataEvent captures command or response bytes.
type DataEvent struct {
	// Command is the protocol verb (GET_INFO, GET_FIELDS, BASIC_SET).
	Command string `cbor:"1,keyasint,omitempty"`

	// Size is the full payload size in bytes.
	Size int `cbor:"2,keyasint"`

	// Data is the payload (truncated to MaxDataSize).
	Data []byte `cbor:"3,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"4,keyasint,omitempty"`
}

// NewDataEvent builds a DataEvent, truncating data to MaxDataSize.
func NewDataEvent(command string, data []byte) *DataEvent {
	ev := &DataEvent{Command: command, Size: len(data)}
	if len(data) > MaxDataSize {
		ev.Data = append([]byte(nil), data[:MaxDataSize]...)
		ev.Truncated = true
	} else {
		ev.Data = append([]byte(nil), data...)
	}
	return ev
}

// StateChangeEvent captures session and activation lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession is a transport lease (open/close).
	StateEntitySession StateEntity = 0
	// StateEntityActivation is the activation state machine.
	StateEntityActivation StateEntity = 1
	// StateEntityRegistry is a registry membership change.
	StateEntityRegistry StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityActivation:
		return "ACTIVATION"
	case StateEntityRegistry:
		return "REGISTRY"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
