// Package transport moves command lines to a module and collects what it
// answers, over USB serial or over HTTP on the local network.
//
// Both carriers present the same Conn: Write sends one command, ReadAvailable
// gathers whatever arrives within a time window. Modules do not frame their
// answers, so a read is "everything received until the window closes or the
// caller's completion predicate is satisfied". An empty read is not an error.
//
// # Serial
//
//	115200 baud, 8 data bits, no parity, 1 stop bit
//	settle delay after open (the module may reset when DTR toggles)
//	input buffer flushed before each write
//
// # Network
//
//	POST http://<address>:<port>/command
//	Content-Type: text/plain
//	body: the command line
//
// The response body is delivered to ReadAvailable like serial bytes.
//
// # Exclusive access
//
// Locks serializes exchanges per Ref. A second exchange against the same port
// waits for the first, or fails with ErrBusy in fail-fast mode.
package transport
