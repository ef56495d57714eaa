package activation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rsas-protocol/rsas-go/pkg/protocol"
	"github.com/rsas-protocol/rsas-go/pkg/transport"
)

// ErrValidation is returned for requests that are rejected before any
// transport is touched.
var ErrValidation = errors.New("invalid activation request")

// Request describes one activation write.
type Request struct {
	// Target is the transport the module is reached through.
	Target transport.Ref

	// DeviceID is the ESN the caller selected, when known. It is used for
	// tracing only.
	DeviceID string

	OperatorID string
	AircraftID string

	// ESN, when set, is written as serial_number and feeds the generated RID.
	ESN string

	// RIDID, when set, is written verbatim instead of a generated one.
	RIDID string
}

// Normalize returns a copy of r with every identifier trimmed.
func (r Request) Normalize() Request {
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.OperatorID = strings.TrimSpace(r.OperatorID)
	r.AircraftID = strings.TrimSpace(r.AircraftID)
	r.ESN = strings.TrimSpace(r.ESN)
	r.RIDID = strings.TrimSpace(r.RIDID)
	return r
}

// Validate checks a normalized request.
func (r Request) Validate() error {
	var errs []error
	if r.Target.IsZero() {
		errs = append(errs, errors.New("target is required"))
	}
	if r.OperatorID == "" {
		errs = append(errs, errors.New("operator_id is required"))
	}
	if r.AircraftID == "" {
		errs = append(errs, errors.New("aircraft_id is required"))
	}
	for _, kv := range [][2]string{
		{"operator_id", r.OperatorID},
		{"aircraft_id", r.AircraftID},
		{"serial_number", r.ESN},
		{"rid_id", r.RIDID},
	} {
		if err := protocol.ValidateValue(kv[1]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", kv[0], err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrValidation, errors.Join(errs...))
}

// Result is the outcome of an activation that reached the module.
type Result struct {
	// Accepted is true whenever the command was written and the answer
	// window elapsed without a transport error.
	Accepted bool `json:"success" yaml:"success"`

	// RIDID is the remote ID that was written.
	RIDID string `json:"rid_id" yaml:"rid_id"`

	// RawResponse is what the module answered, trimmed. It may be empty.
	RawResponse string `json:"esp32_response" yaml:"esp32_response"`

	// SentCommand is the command line without its terminator.
	SentCommand string `json:"sent_command" yaml:"sent_command"`

	// LooksSuccessful reports whether RawResponse carries a success token.
	LooksSuccessful bool `json:"looks_successful" yaml:"looks_successful"`
}
