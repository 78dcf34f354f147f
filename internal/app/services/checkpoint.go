// Package services coordinates the flow store with persistence and metrics.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
)

// ErrForeignCheckpoint is returned when restoring a checkpoint taken from a
// different flow.
var ErrForeignCheckpoint = errors.New("checkpoint belongs to another flow")

// FlowStore is the part of graph.Store the services need.
type FlowStore interface {
	ToDocument() *graph.Document
	LoadDocument(doc *graph.Document) error
}

// CheckpointService saves and restores snapshots of one flow.
type CheckpointService struct {
	saver  checkpoint.Saver
	flowID string
	now    func() time.Time
	logger *zap.Logger
}

// CheckpointOption configures a CheckpointService.
type CheckpointOption func(*CheckpointService)

// WithCheckpointLogger sets the service logger.
func WithCheckpointLogger(logger *zap.Logger) CheckpointOption {
	return func(s *CheckpointService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) CheckpointOption {
	return func(s *CheckpointService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewCheckpointService creates a service writing checkpoints for flowID.
func NewCheckpointService(saver checkpoint.Saver, flowID string, opts ...CheckpointOption) *CheckpointService {
	s := &CheckpointService{
		saver:  saver,
		flowID: flowID,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FlowID returns the flow this service writes for.
func (s *CheckpointService) FlowID() string { return s.flowID }

// Create snapshots store and persists it. Counts in meta are filled in
// from the document; Source defaults to manual.
func (s *CheckpointService) Create(ctx context.Context, store FlowStore, meta checkpoint.Metadata) (*checkpoint.Checkpoint, error) {
	return s.Save(ctx, store.ToDocument(), meta)
}

// Save persists doc as a new checkpoint. Use it when the document was
// snapshotted earlier, for example under a lock the caller has released.
func (s *CheckpointService) Save(ctx context.Context, doc *graph.Document, meta checkpoint.Metadata) (*checkpoint.Checkpoint, error) {
	if meta.Source == "" {
		meta.Source = checkpoint.SourceManual
	}
	meta.Nodes = len(doc.Nodes)
	meta.Connections = len(doc.Connections)

	cp := &checkpoint.Checkpoint{
		ID:        uuid.NewString(),
		FlowID:    s.flowID,
		Document:  *doc,
		Metadata:  meta,
		Timestamp: s.now().UTC().Truncate(time.Millisecond),
		Version:   checkpoint.FormatVersion,
	}
	if err := s.saver.Save(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to save checkpoint: %w", err)
	}

	s.logger.Info("checkpoint saved",
		zap.String("checkpoint_id", cp.ID),
		zap.String("flow_id", cp.FlowID),
		zap.String("source", meta.Source),
		zap.Int("nodes", meta.Nodes),
		zap.Int("connections", meta.Connections),
	)
	return cp, nil
}

// Get loads a checkpoint of this flow.
func (s *CheckpointService) Get(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	cp, err := s.saver.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp.FlowID != s.flowID {
		return nil, fmt.Errorf("%w: %s", ErrForeignCheckpoint, cp.FlowID)
	}
	return cp, nil
}

// Restore loads checkpoint id into store, replacing its graph.
func (s *CheckpointService) Restore(ctx context.Context, store FlowStore, id string) (*checkpoint.Checkpoint, error) {
	cp, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := store.LoadDocument(&cp.Document); err != nil {
		return nil, fmt.Errorf("failed to restore checkpoint %s: %w", id, err)
	}
	s.logger.Info("checkpoint restored", zap.String("checkpoint_id", id), zap.String("flow_id", s.flowID))
	return cp, nil
}

// Latest returns the newest checkpoint of the flow.
func (s *CheckpointService) Latest(ctx context.Context) (*checkpoint.Checkpoint, error) {
	cps, err := s.saver.List(ctx, checkpoint.Filter{FlowID: s.flowID, Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(cps) == 0 {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return cps[0], nil
}

// List returns the flow's checkpoints, newest first. The filter's FlowID
// is always this service's flow.
func (s *CheckpointService) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	filter.FlowID = s.flowID
	cps, err := s.saver.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return cps, nil
}

// Delete removes a checkpoint of this flow.
func (s *CheckpointService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.saver.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}
