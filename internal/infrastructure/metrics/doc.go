// Package metrics exposes Prometheus counters and gauges for the flow graph
// engine: published events, listener failures, rejected mutations, graph
// size and checkpoint writes. Everything is registered on Registry, which
// the server mounts at /metrics.
package metrics
