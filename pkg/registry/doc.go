// Package registry keeps the set of currently visible network modules.
//
// Entries are keyed by ESN. Re-discovery refreshes an entry in place; an
// entry not refreshed within the TTL is evicted by the Sweeper, whose
// cadence is independent of discovery. Readers always get copies, so a
// snapshot never changes under its holder.
//
// Serial modules are not kept here: USB attachment is rescanned on demand.
package registry
