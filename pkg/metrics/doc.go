// Package metrics exposes engine counters for Prometheus. Collectors live on
// their own registry so tests and embedders do not share global state.
package metrics
