// Package main tests for the flowly CLI application
package main

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flowly/flowly/internal/config"
	"github.com/flowly/flowly/internal/core/checkpoint"
	"github.com/flowly/flowly/internal/core/graph"
)

// captureOutput captures stdout output during test execution
func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const sampleJSON = `{
  "nodes": [
    {"id": "a", "x": 0, "y": 0, "data": {"name": "Start"}, "theme": {"color": "blue"}, "output": {"id": "output", "name": "Output", "limit": 1}},
    {"id": "b", "x": 100, "y": 0, "data": {"name": "End"}, "theme": {"color": "red"}, "input": {"id": "input", "name": "Input", "limit": null}, "readOnly": true}
  ],
  "connections": [
    {"id": "conn-1", "sourceNodeId": "a", "sourceOutputId": "a-output", "targetNodeId": "b", "targetInputId": "b-input"}
  ]
}`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestMain_VersionFlag(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		version   string
		commit    string
		buildTime string
		want      string
	}{
		{
			name:      "version with dev defaults",
			args:      []string{"flowly", "version"},
			version:   "dev",
			commit:    "unknown",
			buildTime: "unknown",
			want:      "flowly dev (commit: unknown, built: unknown)\n",
		},
		{
			name:      "version with custom values",
			args:      []string{"flowly", "version"},
			version:   "v1.0.0",
			commit:    "abc123",
			buildTime: "2024-01-01",
			want:      "flowly v1.0.0 (commit: abc123, built: 2024-01-01)\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Save original values
			oldVersion := Version
			oldCommit := Commit
			oldBuildTime := BuildTime
			oldArgs := os.Args

			// Set test values
			Version = tt.version
			Commit = tt.commit
			BuildTime = tt.buildTime
			os.Args = tt.args

			output := captureOutput(func() {
				main()
			})

			// Restore original values
			Version = oldVersion
			Commit = oldCommit
			BuildTime = oldBuildTime
			os.Args = oldArgs

			assert.Equal(t, tt.want, output)
		})
	}
}

func TestVersionVariables(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Commit)
	assert.NotEmpty(t, BuildTime)
}

func TestValidate(t *testing.T) {
	path := writeSample(t, sampleJSON)
	out, err := run(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (2 nodes, 1 connections)")
}

func TestValidate_Failures(t *testing.T) {
	dangling := strings.Replace(sampleJSON, `"targetNodeId": "b"`, `"targetNodeId": "ghost"`, 1)
	dangling = strings.Replace(dangling, `"b-input"`, `"ghost-input"`, 1)

	tests := []struct {
		name    string
		content string
		args    []string
		want    string
	}{
		{"dangling endpoint", dangling, nil, "connections[0]"},
		{"not json", "{", nil, "failed to decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSample(t, tt.content)
			out, err := run(t, append([]string{"validate", path}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, out+err.Error(), tt.want)
		})
	}
}

func TestValidate_Acyclic(t *testing.T) {
	cyclic := `{
  "nodes": [
    {"id": "a", "x": 0, "y": 0, "input": {"id": "input"}, "output": {"id": "output"}},
    {"id": "b", "x": 0, "y": 0, "input": {"id": "input"}, "output": {"id": "output"}}
  ],
  "connections": [
    {"id": "c1", "sourceNodeId": "a", "sourceOutputId": "a-output", "targetNodeId": "b", "targetInputId": "b-input"},
    {"id": "c2", "sourceNodeId": "b", "sourceOutputId": "b-output", "targetNodeId": "a", "targetInputId": "a-input"}
  ]
}`
	path := writeSample(t, cyclic)

	_, err := run(t, "validate", path)
	require.NoError(t, err)

	out, err := run(t, "validate", "--acyclic", path)
	require.Error(t, err)
	assert.Contains(t, out, "  connections: connections form a directed cycle (a -> b -> a)\n")
}

func TestValidate_Ports(t *testing.T) {
	renamed := strings.Replace(sampleJSON, `"sourceOutputId": "a-output"`, `"sourceOutputId": "a-old"`, 1)
	require.NotEqual(t, sampleJSON, renamed)
	path := writeSample(t, renamed)

	_, err := run(t, "validate", path)
	require.NoError(t, err)

	out, err := run(t, "validate", "--ports", path)
	require.Error(t, err)
	assert.Contains(t, out, "connections[0].sourceOutputId")
	assert.Contains(t, out, "(a-old)")
}

func TestValidate_UnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleJSON), 0o600))
	_, err := run(t, "validate", path)
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	path := writeSample(t, sampleJSON)
	out, err := run(t, "inspect", path)
	require.NoError(t, err)

	assert.Contains(t, out, "2 nodes, 1 connections")
	lines := strings.Split(out, "\n")
	var a, b string
	for _, l := range lines {
		switch {
		case strings.HasPrefix(l, "a "):
			a = l
		case strings.HasPrefix(l, "b "):
			b = l
		}
	}
	assert.Contains(t, a, "Start")
	assert.Contains(t, a, "-/1")
	assert.Contains(t, b, "read-only")
	assert.Contains(t, b, "∞/-")
}

func TestConvert_RoundTrip(t *testing.T) {
	in := writeSample(t, sampleJSON)
	dir := t.TempDir()

	for _, name := range []string{"flow.yaml", "flow.msgpack.zst", "flow.json.gz"} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(dir, name)
			msg, err := run(t, "convert", in, out)
			require.NoError(t, err)
			assert.Contains(t, msg, "wrote")

			original, err := readDocument(in)
			require.NoError(t, err)
			converted, err := readDocument(out)
			require.NoError(t, err)
			assert.Equal(t, original, converted)
		})
	}
}

func TestConvert_RefusesInvalid(t *testing.T) {
	selfLoop := strings.Replace(sampleJSON, `"targetNodeId": "b", "targetInputId": "b-input"`, `"targetNodeId": "a", "targetInputId": "a-input"`, 1)
	in := writeSample(t, selfLoop)
	out := filepath.Join(t.TempDir(), "out.yaml")

	_, err := run(t, "convert", in, out)
	require.Error(t, err)
	assert.NoFileExists(t, out)

	_, err = run(t, "convert", "--no-validate", in, out)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.FromEnv()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.FlowID = "test"
	cfg.Checkpoint.Store = config.StoreMemory
	cfg.Checkpoint.AutosaveInterval = time.Hour
	return cfg
}

func TestOpenSaver(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	tests := []struct {
		name  string
		setup func(*config.Config)
	}{
		{"memory", func(*config.Config) {}},
		{"sqlite", func(c *config.Config) {
			c.Checkpoint.Store = config.StoreSQLite
			c.Checkpoint.SQLitePath = filepath.Join(t.TempDir(), "flowly.db")
		}},
		{"redis", func(c *config.Config) {
			c.Checkpoint.Store = config.StoreRedis
			c.Redis.Addr = mr.Addr()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.setup(cfg)

			saver, closeSaver, err := openSaver(ctx, cfg)
			require.NoError(t, err)
			defer func() { assert.NoError(t, closeSaver()) }()

			cp := &checkpoint.Checkpoint{
				ID:        "cp-1",
				FlowID:    "test",
				Timestamp: time.Now().UTC().Truncate(time.Millisecond),
				Version:   checkpoint.FormatVersion,
				Document:  graph.Document{Nodes: []graph.Node{{ID: "a"}}},
			}
			require.NoError(t, saver.Save(ctx, cp))
			loaded, err := saver.Load(ctx, "cp-1")
			require.NoError(t, err)
			assert.Equal(t, "a", loaded.Document.Nodes[0].ID)
		})
	}
}

func TestOpenSaver_BadCodec(t *testing.T) {
	cfg := testConfig(t)
	cfg.Checkpoint.Codec = "xml"
	_, _, err := openSaver(context.Background(), cfg)
	assert.Error(t, err)
}

func TestServe_StopsOnCancel(t *testing.T) {
	path := writeSample(t, sampleJSON)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- serve(ctx, testConfig(t), zap.NewNop(), path, false) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestServe_LoadFailure(t *testing.T) {
	path := writeSample(t, "{")
	err := serve(context.Background(), testConfig(t), zap.NewNop(), path, false)
	assert.Error(t, err)
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker(nil))

	check := originChecker([]string{"https://app.example"})
	req := httptest.NewRequest("GET", "/events", nil)
	assert.True(t, check(req), "requests without Origin are not cross-site")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}
