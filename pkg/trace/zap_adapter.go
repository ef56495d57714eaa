package trace

import (
	"github.com/rsas-protocol/rsas-go/pkg/log"
)

// ZapAdapter writes trace events to the operational logger at debug level.
type ZapAdapter struct {
	logger log.Logger
}

// NewZapAdapter creates an adapter over logger.
func NewZapAdapter(logger log.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger.WithName("trace")}
}

// Log writes the event as one debug line.
func (a *ZapAdapter) Log(event Event) {
	kv := []any{
		"session", event.SessionID,
		"direction", event.Direction,
		"layer", event.Layer,
		"category", event.Category,
	}
	if event.Target != "" {
		kv = append(kv, "target", event.Target)
	}
	if event.DeviceID != "" {
		kv = append(kv, "device", event.DeviceID)
	}

	switch {
	case event.Data != nil:
		kv = append(kv, "command", event.Data.Command, "size", event.Data.Size, "data", string(event.Data.Data))
		if event.Data.Truncated {
			kv = append(kv, "truncated", true)
		}
	case event.StateChange != nil:
		kv = append(kv,
			"entity", event.StateChange.Entity,
			"old_state", event.StateChange.OldState,
			"new_state", event.StateChange.NewState,
		)
		if event.StateChange.Reason != "" {
			kv = append(kv, "reason", event.StateChange.Reason)
		}
	case event.Error != nil:
		kv = append(kv,
			"error_layer", event.Error.Layer,
			"error_msg", event.Error.Message,
			"error_context", event.Error.Context,
		)
	}

	a.logger.Debug("exchange", kv...)
}

var _ Logger = (*ZapAdapter)(nil)
