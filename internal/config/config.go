// Package config loads flowly settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Checkpoint backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Config holds all configuration for the flowly server.
type Config struct {
	Server     ServerConfig
	Checkpoint CheckpointConfig
	Redis      RedisConfig
}

type ServerConfig struct {
	Addr         string
	LogLevel     string
	FlowID       string
	ReadOnly     bool
	MaxBodyBytes int64

	// AllowedOrigins enables CORS and restricts /events upgrades. Empty
	// means same-origin REST and any websocket origin.
	AllowedOrigins []string
}

type CheckpointConfig struct {
	Store            string
	SQLitePath       string
	PostgresURL      string
	AutosaveInterval time.Duration
	TTL              time.Duration
	Codec            string
	Compression      string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Load reads configuration from the environment, after loading a .env
// file if one is present.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FromEnv reads the current environment without loading .env or
// validating.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           getEnvWithDefault("FLOWLY_ADDR", ":8080"),
			LogLevel:       getEnvWithDefault("FLOWLY_LOG_LEVEL", "info"),
			FlowID:         getEnvWithDefault("FLOWLY_FLOW_ID", "default"),
			ReadOnly:       getEnvAsBool("FLOWLY_READ_ONLY", false),
			MaxBodyBytes:   int64(getEnvAsInt("FLOWLY_MAX_BODY_BYTES", 1<<20)),
			AllowedOrigins: getEnvAsList("FLOWLY_ALLOWED_ORIGINS"),
		},
		Checkpoint: CheckpointConfig{
			Store:            strings.ToLower(getEnvWithDefault("FLOWLY_STORE", StoreMemory)),
			SQLitePath:       getEnvWithDefault("FLOWLY_SQLITE_PATH", "flowly.db"),
			PostgresURL:      getEnvWithDefault("FLOWLY_POSTGRES_URL", ""),
			AutosaveInterval: getEnvAsDuration("FLOWLY_AUTOSAVE_INTERVAL", 30*time.Second),
			TTL:              getEnvAsDuration("FLOWLY_CHECKPOINT_TTL", 0),
			Codec:            getEnvWithDefault("FLOWLY_CODEC", "msgpack"),
			Compression:      getEnvWithDefault("FLOWLY_COMPRESSION", "zstd"),
		},
		Redis: RedisConfig{
			Addr:     getEnvWithDefault("FLOWLY_REDIS_ADDR", "localhost:6379"),
			Password: getEnvWithDefault("FLOWLY_REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("FLOWLY_REDIS_DB", 0),
			Prefix:   getEnvWithDefault("FLOWLY_REDIS_PREFIX", "flowly:"),
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("FLOWLY_ADDR is required")
	}
	if c.Server.FlowID == "" {
		return fmt.Errorf("FLOWLY_FLOW_ID is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("FLOWLY_MAX_BODY_BYTES must be positive")
	}

	switch c.Checkpoint.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.Checkpoint.SQLitePath == "" {
			return fmt.Errorf("FLOWLY_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if c.Checkpoint.PostgresURL == "" {
			return fmt.Errorf("FLOWLY_POSTGRES_URL is required for the postgres store")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("FLOWLY_REDIS_ADDR is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown FLOWLY_STORE %q", c.Checkpoint.Store)
	}

	if c.Checkpoint.AutosaveInterval < 0 {
		return fmt.Errorf("FLOWLY_AUTOSAVE_INTERVAL must not be negative")
	}
	if c.Checkpoint.TTL < 0 {
		return fmt.Errorf("FLOWLY_CHECKPOINT_TTL must not be negative")
	}

	switch c.Checkpoint.Compression {
	case "none", "gzip", "zstd":
	default:
		return fmt.Errorf("unknown FLOWLY_COMPRESSION %q", c.Checkpoint.Compression)
	}
	return nil
}

// Helper functions for environment variable parsing

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr := os.Getenv(key); valueStr != "" {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
