package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowly/flowly/internal/adapters/repository/memory"
	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
)

func newFlow(t *testing.T) *graph.Store {
	t.Helper()
	s := graph.NewStore()
	for _, id := range []string{"a", "b"} {
		_, err := s.AddNode(graph.NodeConfig{
			ID:     id,
			Input:  &graph.PortConfig{Limit: 1},
			Output: &graph.PortConfig{},
		})
		require.NoError(t, err)
	}
	_, err := s.AddConnection("a", "a-output", "b", "b-input", "")
	require.NoError(t, err)
	return s
}

func stepClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestCheckpointService_CreateAndRestore(t *testing.T) {
	ctx := context.Background()
	saver := memory.NewCheckpointSaver(memory.Config{})
	svc := NewCheckpointService(saver, "flow-1", WithClock(stepClock(time.Unix(1000, 0))))
	store := newFlow(t)

	cp, err := svc.Create(ctx, store, checkpoint.Metadata{Label: "before"})
	require.NoError(t, err)
	assert.NotEmpty(t, cp.ID)
	assert.Equal(t, "flow-1", cp.FlowID)
	assert.Equal(t, checkpoint.SourceManual, cp.Metadata.Source)
	assert.Equal(t, 2, cp.Metadata.Nodes)
	assert.Equal(t, 1, cp.Metadata.Connections)
	assert.Equal(t, checkpoint.FormatVersion, cp.Version)

	require.NoError(t, store.RemoveNode("a"))
	assert.Equal(t, 0, store.ConnectionCount())

	restored, err := svc.Restore(ctx, store, cp.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", restored.Metadata.Label)
	assert.Equal(t, 2, store.NodeCount())
	assert.Equal(t, 1, store.ConnectionCount())
}

func TestCheckpointService_LatestAndList(t *testing.T) {
	ctx := context.Background()
	saver := memory.NewCheckpointSaver(memory.Config{})
	svc := NewCheckpointService(saver, "flow-1", WithClock(stepClock(time.Unix(1000, 0))))
	other := NewCheckpointService(saver, "flow-2", WithClock(stepClock(time.Unix(5000, 0))))
	store := newFlow(t)

	_, err := svc.Latest(ctx)
	require.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)

	first, err := svc.Create(ctx, store, checkpoint.Metadata{})
	require.NoError(t, err)
	second, err := svc.Create(ctx, store, checkpoint.Metadata{})
	require.NoError(t, err)
	_, err = other.Create(ctx, store, checkpoint.Metadata{})
	require.NoError(t, err)

	latest, err := svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)

	cps, err := svc.List(ctx, checkpoint.Filter{FlowID: "flow-2"})
	require.NoError(t, err)
	require.Len(t, cps, 2)
	assert.Equal(t, second.ID, cps[0].ID)
	assert.Equal(t, first.ID, cps[1].ID)
}

func TestCheckpointService_ForeignCheckpoint(t *testing.T) {
	ctx := context.Background()
	saver := memory.NewCheckpointSaver(memory.Config{})
	mine := NewCheckpointService(saver, "mine")
	theirs := NewCheckpointService(saver, "theirs")
	store := newFlow(t)

	cp, err := theirs.Create(ctx, store, checkpoint.Metadata{})
	require.NoError(t, err)

	got, err := theirs.Get(ctx, cp.ID)
	require.NoError(t, err)
	assert.Len(t, got.Document.Nodes, 2)

	_, err = mine.Get(ctx, cp.ID)
	assert.ErrorIs(t, err, ErrForeignCheckpoint)
	_, err = mine.Restore(ctx, store, cp.ID)
	assert.ErrorIs(t, err, ErrForeignCheckpoint)
	assert.ErrorIs(t, mine.Delete(ctx, cp.ID), ErrForeignCheckpoint)

	require.NoError(t, theirs.Delete(ctx, cp.ID))
	assert.ErrorIs(t, theirs.Delete(ctx, cp.ID), checkpoint.ErrCheckpointNotFound)
}

func TestCheckpointService_RestoreMissing(t *testing.T) {
	svc := NewCheckpointService(memory.NewCheckpointSaver(memory.Config{}), "flow")
	_, err := svc.Restore(context.Background(), graph.NewStore(), "nope")
	assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
}

func TestCheckpointService_InvalidFlowID(t *testing.T) {
	svc := NewCheckpointService(memory.NewCheckpointSaver(memory.Config{}), "")
	_, err := svc.Create(context.Background(), graph.NewStore(), checkpoint.Metadata{})
	assert.ErrorIs(t, err, checkpoint.ErrInvalidFlowID)
}
