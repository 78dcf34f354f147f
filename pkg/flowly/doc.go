// Package flowly provides a minimal public façade for building and saving
// flow graphs without importing internal packages. It re-exports the core
// graph types for convenience and exposes a Runtime that pairs a Store with
// in-memory checkpoints.
package flowly
