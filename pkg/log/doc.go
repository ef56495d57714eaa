// Package log is the engine's operational logger, a thin key/value wrapper
// around zap.
//
// Components take a Logger in their constructor and fall back to the global
// one (Std) when none is given. Commands call Init once after flag parsing.
// SetLevel adjusts verbosity at runtime, e.g. on a config file change.
package log
