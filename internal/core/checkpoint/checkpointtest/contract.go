// Package checkpointtest holds a reusable suite that every checkpoint.Saver
// adapter runs against itself.
package checkpointtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
)

// Sample builds a valid checkpoint for flowID holding a two-node flow.
func Sample(t *testing.T, id, flowID string, ts time.Time) *checkpoint.Checkpoint {
	t.Helper()
	s := graph.NewStore()
	a, err := s.AddNode(graph.NodeConfig{
		ID: "a", X: 10.5, Y: 20,
		Data:   map[string]any{"name": "A", "weight": 0.5},
		Output: &graph.PortConfig{ID: "out", Limit: 2},
		Theme:  map[string]string{"color": "red"},
	})
	require.NoError(t, err)
	b, err := s.AddNode(graph.NodeConfig{ID: "b", X: 200, Input: &graph.PortConfig{ID: "in"}})
	require.NoError(t, err)
	_, err = s.AddConnection(a.ID, "a-out", b.ID, "b-in", "<em>to b</em>")
	require.NoError(t, err)

	return &checkpoint.Checkpoint{
		ID:       id,
		FlowID:   flowID,
		Document: *s.ToDocument(),
		Metadata: checkpoint.Metadata{
			Source:      checkpoint.SourceManual,
			Label:       "label " + id,
			Tags:        []string{"test"},
			Nodes:       2,
			Connections: 1,
		},
		Timestamp: ts.UTC().Truncate(time.Millisecond),
		Version:   checkpoint.FormatVersion,
	}
}

// SaverContractTest verifies that saver behaves like a checkpoint.Saver.
// The saver must start empty.
func SaverContractTest(t *testing.T, saver checkpoint.Saver) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("SaveLoad", func(t *testing.T) {
		cp := Sample(t, "cp-roundtrip", "flow-rt", base)
		require.NoError(t, saver.Save(ctx, cp))

		loaded, err := saver.Load(ctx, cp.ID)
		require.NoError(t, err)
		AssertEqual(t, cp, loaded)

		require.NoError(t, saver.Delete(ctx, cp.ID))
	})

	t.Run("SaveReplaces", func(t *testing.T) {
		cp := Sample(t, "cp-replace", "flow-rp", base)
		require.NoError(t, saver.Save(ctx, cp))
		cp.Metadata.Label = "second"
		require.NoError(t, saver.Save(ctx, cp))

		loaded, err := saver.Load(ctx, cp.ID)
		require.NoError(t, err)
		assert.Equal(t, "second", loaded.Metadata.Label)

		require.NoError(t, saver.Delete(ctx, cp.ID))
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := saver.Load(ctx, "missing")
		assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
		assert.ErrorIs(t, saver.Delete(ctx, "missing"), checkpoint.ErrCheckpointNotFound)
	})

	t.Run("InvalidArguments", func(t *testing.T) {
		assert.Error(t, saver.Save(ctx, nil))
		_, err := saver.Load(ctx, "")
		assert.ErrorIs(t, err, checkpoint.ErrInvalidCheckpointID)
		assert.ErrorIs(t, saver.Delete(ctx, ""), checkpoint.ErrInvalidCheckpointID)
		_, err = saver.List(ctx, checkpoint.Filter{Limit: -1})
		assert.ErrorIs(t, err, checkpoint.ErrInvalidLimit)
	})

	t.Run("List", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			cp := Sample(t, fmt.Sprintf("cp-list-%d", i), "flow-list", base.Add(time.Duration(i)*time.Minute))
			require.NoError(t, saver.Save(ctx, cp))
		}
		require.NoError(t, saver.Save(ctx, Sample(t, "cp-other", "flow-other", base)))

		all, err := saver.List(ctx, checkpoint.Filter{FlowID: "flow-list"})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{"cp-list-3", "cp-list-2", "cp-list-1", "cp-list-0"}, ids(all))

		page, err := saver.List(ctx, checkpoint.Filter{FlowID: "flow-list", Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"cp-list-2", "cp-list-1"}, ids(page))

		since := base.Add(90 * time.Second)
		recent, err := saver.List(ctx, checkpoint.Filter{FlowID: "flow-list", Since: &since})
		require.NoError(t, err)
		assert.Equal(t, []string{"cp-list-3", "cp-list-2"}, ids(recent))

		before := base.Add(90 * time.Second)
		older, err := saver.List(ctx, checkpoint.Filter{FlowID: "flow-list", Before: &before})
		require.NoError(t, err)
		assert.Equal(t, []string{"cp-list-1", "cp-list-0"}, ids(older))

		everything, err := saver.List(ctx, checkpoint.Filter{})
		require.NoError(t, err)
		assert.Len(t, everything, 5)

		for _, id := range append(ids(all), "cp-other") {
			require.NoError(t, saver.Delete(ctx, id))
		}
		empty, err := saver.List(ctx, checkpoint.Filter{})
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ListBySource", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			cp := Sample(t, fmt.Sprintf("cp-src-%d", i), "flow-src", base.Add(time.Duration(i)*time.Minute))
			if i%2 == 1 {
				cp.Metadata.Source = checkpoint.SourceAutosave
			}
			require.NoError(t, saver.Save(ctx, cp))
		}

		auto, err := saver.List(ctx, checkpoint.Filter{FlowID: "flow-src", Source: checkpoint.SourceAutosave})
		require.NoError(t, err)
		assert.Equal(t, []string{"cp-src-3", "cp-src-1"}, ids(auto))

		manual, err := saver.List(ctx, checkpoint.Filter{Source: checkpoint.SourceManual, Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"cp-src-2"}, ids(manual))

		none, err := saver.List(ctx, checkpoint.Filter{Source: "import"})
		require.NoError(t, err)
		assert.Empty(t, none)

		for i := 0; i < 4; i++ {
			require.NoError(t, saver.Delete(ctx, fmt.Sprintf("cp-src-%d", i)))
		}
	})
}

// AssertEqual compares checkpoints, treating timestamps as instants.
func AssertEqual(t *testing.T, want, got *checkpoint.Checkpoint) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, want.Timestamp.Equal(got.Timestamp), "timestamp %v != %v", want.Timestamp, got.Timestamp)
	w, g := *want, *got
	w.Timestamp, g.Timestamp = time.Time{}, time.Time{}
	assert.Equal(t, w, g)
}

func ids(cps []*checkpoint.Checkpoint) []string {
	out := make([]string, 0, len(cps))
	for _, cp := range cps {
		out = append(out, cp.ID)
	}
	return out
}
