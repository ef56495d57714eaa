// Package activation writes operator, aircraft and remote-ID identifiers to
// an RSAS module with a single BASIC_SET.
//
// Each Activate call walks a small state machine:
//
//	idle -> opening -> sending -> awaiting -> accepted
//	  \         \          \          \
//	   +---------+----------+----------+--> failed
//
// Validation happens in idle, so a malformed request never opens a port.
// Once the command is written, the module's answer is classified
// permissively: every answer, including silence, is accepted, and
// LooksSuccessful reports whether it carried a success token. Modules store
// the values reliably but do not reliably say so.
//
// Transitions are recorded as ACTIVATION state events on the trace logger.
//
// When the caller supplies no remote ID, one is generated. The default
// strategy is deterministic (RID-<OP>-<AC>-<ESN>), so repeating an
// activation writes the same value; RandomRID issues a UUID instead.
package activation
