// Package memory provides a process-local checkpoint.Saver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowly/flowly/internal/core/checkpoint"
	imetrics "github.com/flowly/flowly/internal/infrastructure/metrics"
	"github.com/flowly/flowly/pkg/serialization"
)

// Backend is the metrics label for this saver.
const Backend = "memory"

// CheckpointSaver keeps serialized checkpoints in a map. Entries are stored
// encoded so callers never share state with the saver.
type CheckpointSaver struct {
	mu         sync.RWMutex
	entries    map[string]*entry
	serializer *serialization.Serializer
	ttl        time.Duration
	now        func() time.Time
}

type entry struct {
	id        string
	flowID    string
	source    string
	timestamp time.Time
	data      []byte
	expiresAt time.Time
}

// Config holds options for CheckpointSaver.
type Config struct {
	// TTL expires checkpoints after the duration; zero keeps them forever.
	TTL        time.Duration
	Serializer *serialization.Serializer
}

// NewCheckpointSaver creates an empty saver.
func NewCheckpointSaver(config Config) *CheckpointSaver {
	if config.Serializer == nil {
		config.Serializer = serialization.DefaultSerializer()
	}
	return &CheckpointSaver{
		entries:    make(map[string]*entry),
		serializer: config.Serializer,
		ttl:        config.TTL,
		now:        time.Now,
	}
}

// Save stores or replaces a checkpoint.
func (s *CheckpointSaver) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrNilCheckpoint
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint validation failed: %w", err)
	}

	data, err := s.serializer.Serialize(cp)
	if err != nil {
		return fmt.Errorf("checkpoint serialization failed: %w", err)
	}

	e := &entry{id: cp.ID, flowID: cp.FlowID, source: cp.Metadata.Source, timestamp: cp.Timestamp, data: data}
	if s.ttl > 0 {
		e.expiresAt = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.entries[cp.ID] = e
	s.mu.Unlock()

	imetrics.CheckpointSaved(Backend)
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *CheckpointSaver) Load(_ context.Context, id string) (*checkpoint.Checkpoint, error) {
	if id == "" {
		return nil, checkpoint.ErrInvalidCheckpointID
	}
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || s.expired(e) {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	return s.decode(e)
}

// List returns matching checkpoints, newest first.
func (s *CheckpointSaver) List(_ context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	s.mu.RLock()
	matched := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		if s.expired(e) {
			continue
		}
		view := checkpoint.Checkpoint{FlowID: e.flowID, Timestamp: e.timestamp}
		view.Metadata.Source = e.source
		if !filter.Matches(&view) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].timestamp.Equal(matched[j].timestamp) {
			return matched[i].timestamp.After(matched[j].timestamp)
		}
		return matched[i].id > matched[j].id
	})

	page := checkpoint.Page(matched, filter)
	out := make([]*checkpoint.Checkpoint, 0, len(page))
	for _, e := range page {
		cp, err := s.decode(e)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

// Delete removes a checkpoint by ID.
func (s *CheckpointSaver) Delete(_ context.Context, id string) error {
	if id == "" {
		return checkpoint.ErrInvalidCheckpointID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || s.expired(e) {
		delete(s.entries, id)
		return checkpoint.ErrCheckpointNotFound
	}
	delete(s.entries, id)
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (s *CheckpointSaver) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired ones included.
func (s *CheckpointSaver) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *CheckpointSaver) expired(e *entry) bool {
	return !e.expiresAt.IsZero() && s.now().After(e.expiresAt)
}

func (s *CheckpointSaver) decode(e *entry) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	if err := s.serializer.Deserialize(e.data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint deserialization failed: %w", err)
	}
	return &cp, nil
}
