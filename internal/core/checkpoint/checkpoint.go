// Package checkpoint defines saved flow snapshots and the Saver port that
// persists them.
package checkpoint

import (
	"time"

	"github.com/flowly/flowly/internal/core/graph"
)

// FormatVersion tags the document layout stored in a checkpoint.
const FormatVersion = "1"

// Checkpoint is a named snapshot of a flow document.
type Checkpoint struct {
	ID        string         `json:"id" msgpack:"id"`
	FlowID    string         `json:"flow_id" msgpack:"flow_id"`
	Document  graph.Document `json:"document" msgpack:"document"`
	Metadata  Metadata       `json:"metadata" msgpack:"metadata"`
	Timestamp time.Time      `json:"timestamp" msgpack:"timestamp"`
	Version   string         `json:"version" msgpack:"version"`
}

// Metadata describes where a checkpoint came from.
type Metadata struct {
	// Source is "manual", "autosave" or a caller-defined value.
	Source      string   `json:"source" msgpack:"source"`
	Label       string   `json:"label,omitempty" msgpack:"label,omitempty"`
	CreatedBy   string   `json:"created_by,omitempty" msgpack:"created_by,omitempty"`
	Tags        []string `json:"tags,omitempty" msgpack:"tags,omitempty"`
	Nodes       int      `json:"nodes" msgpack:"nodes"`
	Connections int      `json:"connections" msgpack:"connections"`
}

// Checkpoint sources written by this module.
const (
	SourceManual   = "manual"
	SourceAutosave = "autosave"
)

// Validate ensures checkpoint integrity.
func (c *Checkpoint) Validate() error {
	if c.ID == "" {
		return ErrInvalidCheckpointID
	}
	if c.FlowID == "" {
		return ErrInvalidFlowID
	}
	return c.Document.Validate()
}
