// Package trace captures device exchanges as machine-readable events.
//
// Trace capture is separate from operational logging (pkg/log). Every command
// written to a module, every response read back and every activation state
// transition can be recorded as an Event and replayed later with
// `rsas-discovery trace view`.
//
// # Basic Usage
//
//	// Development: events on the console through zap
//	tracer := trace.NewZapAdapter(log.Std())
//
//	// Field debugging: binary capture
//	tracer, _ := trace.NewFileLogger("/var/log/rsas/engine.rlog")
//
//	// Both
//	tracer := trace.NewMultiLogger(trace.NewZapAdapter(log.Std()), fileLogger)
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer map keys, one
// after another, conventionally named with the .rlog extension.
package trace
