// Package notify publishes registry changes and activation outcomes to an
// MQTT broker.
//
// Topics, under a configurable root (default "rsas"):
//
//	<root>/devices/<esn>      retained device JSON; empty payload on removal
//	<root>/activations/<esn>  one record per activation attempt
//
// Delivery is asynchronous and lossy under back-pressure: notifications are
// queued and dropped when the queue is full.
package notify
