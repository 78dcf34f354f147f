package flowly

import (
	"context"
	"fmt"

	"github.com/flowly/flowly/internal/adapters/repository/memory"
	"github.com/flowly/flowly/internal/app/services"
	"github.com/flowly/flowly/internal/core/checkpoint"
	coregraph "github.com/flowly/flowly/internal/core/graph"
	"github.com/flowly/flowly/pkg/serialization"
	"github.com/flowly/flowly/pkg/validation"
)

// Re-export core graph types for convenience
type (
	Store        = coregraph.Store
	Node         = coregraph.Node
	NodeConfig   = coregraph.NodeConfig
	NodePatch    = coregraph.NodePatch
	NodeSnapshot = coregraph.NodeSnapshot
	Port         = coregraph.Port
	PortConfig   = coregraph.PortConfig
	PortPatch    = coregraph.PortPatch
	Limit        = coregraph.Limit
	Connection   = coregraph.Connection
	Connections  = coregraph.Connections
	Document     = coregraph.Document
	Event        = coregraph.Event
	Handler      = coregraph.Handler
	Option       = coregraph.Option
	Checkpoint   = checkpoint.Checkpoint
)

// Unbounded is the port limit that never refuses a connection.
const Unbounded = coregraph.Unbounded

// Store options.
var (
	WithLogger   = coregraph.WithLogger
	WithReadOnly = coregraph.WithReadOnly
)

// NewStore creates an empty flow graph.
func NewStore(opts ...Option) *Store {
	return coregraph.NewStore(opts...)
}

// Encode writes doc in format: "json", "yaml" or "msgpack".
func Encode(doc *Document, format string) ([]byte, error) {
	codec, err := serialization.CodecByName(format)
	if err != nil {
		return nil, err
	}
	return serialization.NewSerializer(serialization.Config{Codec: codec}).Serialize(doc)
}

// Decode parses data in format and validates the result.
func Decode(data []byte, format string) (*Document, error) {
	codec, err := serialization.CodecByName(format)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := serialization.NewSerializer(serialization.Config{Codec: codec}).Deserialize(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s document: %w", format, err)
	}
	if err := validation.ValidateDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks doc. With acyclic set, connection cycles are rejected too.
func Validate(doc *Document, acyclic bool) error {
	return validation.ValidateDocument(doc, validation.DocumentOptions{CheckCycles: acyclic})
}

// Runtime is a Store with in-memory checkpoints. It is suitable for local
// usage and tests.
type Runtime struct {
	Store       *Store
	checkpoints *services.CheckpointService
}

// NewRuntime constructs a runtime for flowID.
func NewRuntime(flowID string, opts ...Option) *Runtime {
	saver := memory.NewCheckpointSaver(memory.Config{})
	return &Runtime{
		Store:       coregraph.NewStore(opts...),
		checkpoints: services.NewCheckpointService(saver, flowID),
	}
}

// Checkpoint snapshots the store under label.
func (rt *Runtime) Checkpoint(ctx context.Context, label string) (*Checkpoint, error) {
	return rt.checkpoints.Create(ctx, rt.Store, checkpoint.Metadata{Label: label})
}

// Restore replaces the store's graph with checkpoint id.
func (rt *Runtime) Restore(ctx context.Context, id string) error {
	_, err := rt.checkpoints.Restore(ctx, rt.Store, id)
	return err
}

// Checkpoints lists saved checkpoints, newest first.
func (rt *Runtime) Checkpoints(ctx context.Context) ([]*Checkpoint, error) {
	return rt.checkpoints.List(ctx, checkpoint.Filter{})
}
