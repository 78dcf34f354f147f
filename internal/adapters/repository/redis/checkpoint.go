// Package redis stores checkpoints in Redis. Each checkpoint is one string
// key; sorted sets indexed by timestamp serve List.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/flowly/flowly/internal/core/checkpoint"
	imetrics "github.com/flowly/flowly/internal/infrastructure/metrics"
	"github.com/flowly/flowly/pkg/serialization"
)

// Backend is the metrics label for this saver.
const Backend = "redis"

// CheckpointSaver implements checkpoint.Saver using Redis.
type CheckpointSaver struct {
	client     *backend.Client
	prefix     string
	ttl        time.Duration
	serializer *serialization.Serializer
}

type Option func(*CheckpointSaver)

// WithTTL expires checkpoints after ttl. Index entries of expired
// checkpoints are pruned lazily by List.
func WithTTL(ttl time.Duration) Option {
	return func(s *CheckpointSaver) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *CheckpointSaver) {
		s.prefix = prefix
	}
}

// WithSerializer replaces the default msgpack and zstd pipeline.
func WithSerializer(serializer *serialization.Serializer) Option {
	return func(s *CheckpointSaver) {
		if serializer != nil {
			s.serializer = serializer
		}
	}
}

// New creates a saver with its own client.
func New(address, password string, db int, opts ...Option) *CheckpointSaver {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a saver from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *CheckpointSaver {
	s := &CheckpointSaver{
		client:     client,
		prefix:     "flowly:",
		serializer: serialization.DefaultSerializer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *CheckpointSaver) key(id string) string { return s.prefix + "checkpoint:" + id }

func (s *CheckpointSaver) indexKey() string { return s.prefix + "checkpoints" }

func (s *CheckpointSaver) flowIndexKey(flow string) string { return s.prefix + "flow:" + flow }

func (s *CheckpointSaver) ownersKey() string { return s.prefix + "owners" }

// Save stores or replaces a checkpoint.
func (s *CheckpointSaver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrNilCheckpoint
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint validation failed: %w", err)
	}

	data, err := s.serializer.Serialize(cp)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint: %w", err)
	}

	previous, err := s.client.HGet(ctx, s.ownersKey(), cp.ID).Result()
	if err != nil && !errors.Is(err, backend.Nil) {
		return fmt.Errorf("failed to read checkpoint owner: %w", err)
	}

	score := float64(cp.Timestamp.UnixMilli())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(cp.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: cp.ID})
	pipe.ZAdd(ctx, s.flowIndexKey(cp.FlowID), backend.Z{Score: score, Member: cp.ID})
	pipe.HSet(ctx, s.ownersKey(), cp.ID, cp.FlowID)
	if previous != "" && previous != cp.FlowID {
		pipe.ZRem(ctx, s.flowIndexKey(previous), cp.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}

	imetrics.CheckpointSaved(Backend)
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *CheckpointSaver) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	if id == "" {
		return nil, checkpoint.ErrInvalidCheckpointID
	}
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}
	return s.decode(val)
}

// List returns matching checkpoints, newest first.
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}

	index := s.indexKey()
	if filter.FlowID != "" {
		index = s.flowIndexKey(filter.FlowID)
	}
	rng := &backend.ZRangeBy{Min: "-inf", Max: "+inf"}
	if filter.Since != nil {
		rng.Min = "(" + strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}
	if filter.Before != nil {
		rng.Max = "(" + strconv.FormatInt(filter.Before.UnixMilli(), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, index, rng).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	if len(ids) == 0 {
		return []*checkpoint.Checkpoint{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkpoints: %w", err)
	}

	live := make([]string, 0, len(values))
	var expired []string
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		live = append(live, str)
	}
	if len(expired) > 0 {
		if err := s.forget(ctx, expired...); err != nil {
			return nil, err
		}
	}

	// The indexes cover flow and time; source is checked on the decoded
	// checkpoints before paging.
	matched := make([]*checkpoint.Checkpoint, 0, len(live))
	for _, raw := range live {
		cp, err := s.decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		if filter.Matches(cp) {
			matched = append(matched, cp)
		}
	}
	return checkpoint.Page(matched, filter), nil
}

// Delete removes a checkpoint by ID.
func (s *CheckpointSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return checkpoint.ErrInvalidCheckpointID
	}
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if err := s.forget(ctx, id); err != nil {
		return err
	}
	if n == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// Close closes the redis client.
func (s *CheckpointSaver) Close() error {
	return s.client.Close()
}

// forget drops ids from every index.
func (s *CheckpointSaver) forget(ctx context.Context, ids ...string) error {
	owners, err := s.client.HMGet(ctx, s.ownersKey(), ids...).Result()
	if err != nil {
		return fmt.Errorf("failed to read checkpoint owners: %w", err)
	}
	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.indexKey(), members...)
	for i, owner := range owners {
		if flow, ok := owner.(string); ok {
			pipe.ZRem(ctx, s.flowIndexKey(flow), ids[i])
		}
	}
	pipe.HDel(ctx, s.ownersKey(), ids...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update checkpoint index: %w", err)
	}
	return nil
}

func (s *CheckpointSaver) decode(data []byte) (*checkpoint.Checkpoint, error) {
	var cp checkpoint.Checkpoint
	if err := s.serializer.Deserialize(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	cp.Timestamp = cp.Timestamp.UTC()
	return &cp, nil
}
