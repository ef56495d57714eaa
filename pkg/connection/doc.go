// Package connection paces restarts of long-lived network tasks such as the
// mDNS browse loop.
//
// Delays grow exponentially from 1s and are capped at 30s:
//
//	1s, 2s, 4s, 8s, 16s, 30s, 30s, ...
//
// Each delay gets up to 25% additive jitter so that several engines on one
// network do not hammer the multicast group in lockstep:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
//
// Reset returns to 1s after the task has run healthily for a while.
package connection
