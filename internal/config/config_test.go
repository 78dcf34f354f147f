package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "default", cfg.Server.FlowID)
	assert.Equal(t, StoreMemory, cfg.Checkpoint.Store)
	assert.Equal(t, 30*time.Second, cfg.Checkpoint.AutosaveInterval)
	assert.Equal(t, "msgpack", cfg.Checkpoint.Codec)
	assert.Equal(t, "zstd", cfg.Checkpoint.Compression)
	assert.Empty(t, cfg.Server.AllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("FLOWLY_ADDR", "127.0.0.1:9000")
	t.Setenv("FLOWLY_STORE", "Redis")
	t.Setenv("FLOWLY_REDIS_DB", "3")
	t.Setenv("FLOWLY_READ_ONLY", "true")
	t.Setenv("FLOWLY_AUTOSAVE_INTERVAL", "5s")
	t.Setenv("FLOWLY_MAX_BODY_BYTES", "not-a-number")
	t.Setenv("FLOWLY_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := FromEnv()
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, StoreRedis, cfg.Checkpoint.Store)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.True(t, cfg.Server.ReadOnly)
	assert.Equal(t, 5*time.Second, cfg.Checkpoint.AutosaveInterval)
	assert.Equal(t, int64(1<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"no addr", func(c *Config) { c.Server.Addr = "" }, "FLOWLY_ADDR"},
		{"no flow", func(c *Config) { c.Server.FlowID = "" }, "FLOWLY_FLOW_ID"},
		{"unknown store", func(c *Config) { c.Checkpoint.Store = "etcd" }, "FLOWLY_STORE"},
		{"postgres without url", func(c *Config) { c.Checkpoint.Store = StorePostgres }, "FLOWLY_POSTGRES_URL"},
		{"sqlite without path", func(c *Config) {
			c.Checkpoint.Store = StoreSQLite
			c.Checkpoint.SQLitePath = ""
		}, "FLOWLY_SQLITE_PATH"},
		{"redis without addr", func(c *Config) {
			c.Checkpoint.Store = StoreRedis
			c.Redis.Addr = ""
		}, "FLOWLY_REDIS_ADDR"},
		{"negative interval", func(c *Config) { c.Checkpoint.AutosaveInterval = -time.Second }, "FLOWLY_AUTOSAVE_INTERVAL"},
		{"negative ttl", func(c *Config) { c.Checkpoint.TTL = -time.Second }, "FLOWLY_CHECKPOINT_TTL"},
		{"bad compression", func(c *Config) { c.Checkpoint.Compression = "lz4" }, "FLOWLY_COMPRESSION"},
		{"zero body", func(c *Config) { c.Server.MaxBodyBytes = 0 }, "FLOWLY_MAX_BODY_BYTES"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := FromEnv()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FLOWLY_FLOW_ID=from-dotenv\n"), 0o600))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(wd)
		_ = os.Unsetenv("FLOWLY_FLOW_ID")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Server.FlowID)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("FLOWLY_STORE", "etcd")
	_, err := Load()
	assert.ErrorContains(t, err, "invalid configuration")
}
