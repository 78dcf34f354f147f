package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowly/flowly/internal/core/graph"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub, nil, nil))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_StreamsStoreEvents(t *testing.T) {
	hub, srv := startHub(t)
	store := graph.NewStore()
	hub.Attach(store)

	conn := dial(t, srv)
	hello := readMessage(t, conn)
	assert.Equal(t, MessageConnected, hello.Type)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := store.AddNode(graph.NodeConfig{ID: "a", Name: "Start"})
	require.NoError(t, err)

	msg := readMessage(t, conn)
	assert.Equal(t, graph.EventNodeAdded, msg.Type)
	assert.NotZero(t, msg.Timestamp)

	var e graph.Event
	require.NoError(t, json.Unmarshal(msg.Data, &e))
	require.NotNil(t, e.Node)
	assert.Equal(t, "a", e.Node.ID)
	assert.Equal(t, "Start", e.Node.Name())
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutClients(t *testing.T) {
	hub := NewHub(nil)
	assert.NoError(t, hub.Publish("anything", map[string]int{"n": 1}))
	assert.Error(t, hub.Publish("bad", func() {}))
}
