//go:build integration

// Package integration contains integration tests for flowly
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowly/flowly/internal/adapters/repository/sqlite"
	"github.com/flowly/flowly/internal/adapters/rest"
	"github.com/flowly/flowly/internal/adapters/websocket"
	"github.com/flowly/flowly/internal/app/services"
	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
	"github.com/flowly/flowly/pkg/serialization"
)

type stack struct {
	store *graph.Store
	saver *sqlite.CheckpointSaver
	svc   *services.CheckpointService
	auto  *services.Autosaver
	srv   *httptest.Server
}

func newStack(t *testing.T, path string) *stack {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	saver, err := sqlite.Open(ctx, path, serialization.DefaultSerializer())
	require.NoError(t, err)
	t.Cleanup(func() { _ = saver.Close() })

	store := graph.NewStore()
	svc := services.NewCheckpointService(saver, "it")

	hub := websocket.NewHub(nil)
	hub.Attach(store)
	go hub.Run(ctx)

	api := rest.NewServer(store,
		rest.WithCheckpoints(svc),
		rest.WithEvents(websocket.NewHandler(hub, nil, nil)),
	)
	auto := services.NewAutosaver(store, svc, services.WithLocker(api.Locker()))
	t.Cleanup(auto.Close)

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &stack{store: store, saver: saver, svc: svc, auto: auto, srv: srv}
}

func (s *stack) call(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestFlowLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowly.db")
	s := newStack(t, path)

	conn, _, err := gws.DefaultDialer.Dial("ws"+strings.TrimPrefix(s.srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var hello websocket.Message
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, websocket.MessageConnected, hello.Type)
	// registration races the first mutation; give the hub a moment
	time.Sleep(100 * time.Millisecond)

	for _, id := range []string{"a", "b"} {
		resp := s.call(t, http.MethodPost, "/nodes", map[string]any{
			"id": id, "x": 0, "y": 0, "input": map[string]any{}, "output": map[string]any{},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	resp := s.call(t, http.MethodPost, "/connections", map[string]any{
		"sourceNodeId": "a", "sourceOutputId": "a-output",
		"targetNodeId": "b", "targetInputId": "b-input",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var seen []string
	for len(seen) < 3 {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg websocket.Message
		require.NoError(t, conn.ReadJSON(&msg))
		seen = append(seen, msg.Type)
	}
	assert.Equal(t, []string{graph.EventNodeAdded, graph.EventNodeAdded, graph.EventConnectionAdded}, seen)

	ctx := context.Background()
	cp, err := s.auto.Flush(ctx)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, checkpoint.SourceAutosave, cp.Metadata.Source)

	// a fresh process restores the autosaved flow from the same file
	again := newStack(t, path)
	latest, err := again.svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, cp.ID, latest.ID)

	resp = again.call(t, http.MethodPost, "/checkpoints/"+latest.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, again.store.NodeCount())
	assert.Equal(t, 1, again.store.ConnectionCount())
}
