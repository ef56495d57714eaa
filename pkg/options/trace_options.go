package options

import (
	"github.com/spf13/pflag"
)

var _ IOptions = (*TraceOptions)(nil)

// TraceOptions configures protocol capture.
type TraceOptions struct {
	// File receives CBOR-encoded exchange events. Empty disables capture.
	File string `json:"file" mapstructure:"file"`

	// Log mirrors exchange events to the operational log at debug level.
	Log bool `json:"log" mapstructure:"log"`
}

// NewTraceOptions creates TraceOptions with default parameters.
func NewTraceOptions() *TraceOptions {
	return &TraceOptions{}
}

// Validate has nothing to check; the file is created on start.
func (o *TraceOptions) Validate() []error { return nil }

// AddFlags adds flags for TraceOptions to fs.
func (o *TraceOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.File, "trace.file", o.File, "Capture every device exchange to this file (CBOR).")
	fs.BoolVar(&o.Log, "trace.log", o.Log, "Log every device exchange at debug level.")
}
