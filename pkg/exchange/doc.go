// Package exchange runs one command/response cycle against a device:
// lock the Ref, open, write, read within a window, close, unlock.
//
// Every cycle is a Session with its own ID, so trace events of concurrent
// exchanges against different devices can be told apart.
package exchange
