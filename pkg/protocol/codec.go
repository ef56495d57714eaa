package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Command verbs.
const (
	CmdGetInfo   = "GET_INFO"
	CmdGetFields = "GET_FIELDS"
	CmdBasicSet  = "BASIC_SET"
)

// Identity defaults for modules that answer GET_INFO partially.
const (
	UnknownESN    = "UNKNOWN"
	DefaultStatus = "ready"
)

// Codec errors.
var (
	ErrDecode       = errors.New("undecodable response")
	ErrInvalidValue = errors.New("value not representable in BASIC_SET")
)

// Info is a module's self-description.
type Info struct {
	ESN    string `json:"esn"`
	Status string `json:"status"`
}

// Fields are the identifiers a module has stored.
type Fields struct {
	OperatorID   string `json:"operator_id" yaml:"operator_id"`
	AircraftID   string `json:"aircraft_id" yaml:"aircraft_id"`
	SerialNumber string `json:"serial_number" yaml:"serial_number"`
	RIDID        string `json:"rid_id" yaml:"rid_id"`
}

// Settings is the payload of a BASIC_SET. SerialNumber is optional.
type Settings struct {
	OperatorID   string
	AircraftID   string
	SerialNumber string
	RIDID        string
}

// EncodeGetInfo returns the GET_INFO command line.
func EncodeGetInfo() []byte { return []byte(CmdGetInfo + "\n") }

// EncodeGetFields returns the GET_FIELDS command line.
func EncodeGetFields() []byte { return []byte(CmdGetFields + "\n") }

// EncodeBasicSet renders s in the fixed key order operator_id, aircraft_id,
// serial_number (only when set), rid_id.
func EncodeBasicSet(s Settings) ([]byte, error) {
	pairs := [][2]string{
		{"operator_id", s.OperatorID},
		{"aircraft_id", s.AircraftID},
	}
	if s.SerialNumber != "" {
		pairs = append(pairs, [2]string{"serial_number", s.SerialNumber})
	}
	pairs = append(pairs, [2]string{"rid_id", s.RIDID})

	var b strings.Builder
	b.WriteString(CmdBasicSet)
	b.WriteByte(' ')
	for i, kv := range pairs {
		if err := ValidateValue(kv[1]); err != nil {
			return nil, fmt.Errorf("%s: %w", kv[0], err)
		}
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(kv[0])
		b.WriteByte('=')
		b.WriteString(kv[1])
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// ValidateValue rejects characters that would break the BASIC_SET grammar.
func ValidateValue(v string) error {
	if strings.ContainsAny(v, "|=\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidValue, v)
	}
	return nil
}

// ExtractObject returns the bytes from the first '{' to the last '}'.
func ExtractObject(raw []byte) ([]byte, bool) {
	start := bytes.IndexByte(raw, '{')
	end := bytes.LastIndexByte(raw, '}')
	if start < 0 || end < start {
		return nil, false
	}
	return raw[start : end+1], true
}

// HasObject reports whether raw already holds a complete-looking object.
// It is used to end a read window early.
func HasObject(raw []byte) bool {
	_, ok := ExtractObject(raw)
	return ok
}

// DefaultInfo is the identity assumed for a module that did not describe
// itself.
func DefaultInfo() Info {
	return Info{ESN: UnknownESN, Status: DefaultStatus}
}

// DecodeInfo parses a GET_INFO answer. It never fails: ok is false when no
// object could be parsed, and missing members take their defaults.
func DecodeInfo(raw []byte) (info Info, ok bool) {
	info = DefaultInfo()

	obj, found := ExtractObject(raw)
	if !found {
		return info, false
	}

	var wire struct {
		ESN    *string `json:"esn"`
		Status *string `json:"status"`
	}
	if err := json.Unmarshal(obj, &wire); err != nil {
		return info, false
	}
	if wire.ESN != nil && strings.TrimSpace(*wire.ESN) != "" {
		info.ESN = strings.TrimSpace(*wire.ESN)
	}
	if wire.Status != nil && strings.TrimSpace(*wire.Status) != "" {
		info.Status = strings.TrimSpace(*wire.Status)
	}
	return info, true
}

// DecodeFields parses a GET_FIELDS answer. Unlike DecodeInfo it fails with
// ErrDecode when the answer holds no valid object.
func DecodeFields(raw []byte) (Fields, error) {
	obj, ok := ExtractObject(raw)
	if !ok {
		return Fields{}, fmt.Errorf("%w: no JSON object in %d bytes", ErrDecode, len(raw))
	}

	var wire map[string]any
	if err := json.Unmarshal(obj, &wire); err != nil {
		return Fields{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	return Fields{
		OperatorID:   stringField(wire, "operator_id"),
		AircraftID:   stringField(wire, "aircraft_id"),
		SerialNumber: stringField(wire, "serial_number"),
		RIDID:        stringField(wire, "rid_id"),
	}, nil
}

// stringField tolerates numbers and nulls; firmware versions differ.
func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
