// Package tracecmd implements the trace file commands.
package tracecmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/rsas-protocol/rsas-go/pkg/trace"
)

// FilterFlags are the raw --layer/--direction/... values.
type FilterFlags struct {
	Session   string
	Device    string
	Target    string
	Layer     string
	Direction string
	Category  string
	Since     string
	Until     string
}

// Filter converts the flags into a trace.Filter.
func (f FilterFlags) Filter() (trace.Filter, error) {
	out := trace.Filter{SessionID: f.Session, DeviceID: f.Device, Target: f.Target}

	if f.Layer != "" {
		l, err := parseLayer(f.Layer)
		if err != nil {
			return out, err
		}
		out.Layer = &l
	}
	if f.Direction != "" {
		d, err := parseDirection(f.Direction)
		if err != nil {
			return out, err
		}
		out.Direction = &d
	}
	if f.Category != "" {
		c, err := parseCategory(f.Category)
		if err != nil {
			return out, err
		}
		out.Category = &c
	}
	if f.Since != "" {
		t, err := time.Parse(time.RFC3339, f.Since)
		if err != nil {
			return out, fmt.Errorf("invalid --since: %w", err)
		}
		out.TimeStart = &t
	}
	if f.Until != "" {
		t, err := time.Parse(time.RFC3339, f.Until)
		if err != nil {
			return out, fmt.Errorf("invalid --until: %w", err)
		}
		out.TimeEnd = &t
	}
	return out, nil
}

func parseLayer(s string) (trace.Layer, error) {
	switch strings.ToLower(s) {
	case "transport":
		return trace.LayerTransport, nil
	case "protocol":
		return trace.LayerProtocol, nil
	case "activation":
		return trace.LayerActivation, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be transport, protocol, or activation)", s)
	}
}

func parseDirection(s string) (trace.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return trace.DirectionIn, nil
	case "out":
		return trace.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (trace.Category, error) {
	switch strings.ToLower(s) {
	case "data":
		return trace.CategoryData, nil
	case "state":
		return trace.CategoryState, nil
	case "error":
		return trace.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be data, state, or error)", s)
	}
}
