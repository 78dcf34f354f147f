// Package postgres stores checkpoints in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowly/flowly/internal/core/checkpoint"
	imetrics "github.com/flowly/flowly/internal/infrastructure/metrics"
	"github.com/flowly/flowly/pkg/serialization"
)

// Backend is the metrics label for this saver.
const Backend = "postgres"

const columns = "id, flow_id, document, metadata, timestamp, version"

// ErrNoPool is returned when the saver has no connection pool.
var ErrNoPool = errors.New("postgres pool is not configured")

// CheckpointSaver implements checkpoint.Saver for PostgreSQL.
type CheckpointSaver struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	tableName  string
}

// NewCheckpointSaver wraps a pool. A nil serializer means the default
// msgpack and zstd pipeline.
func NewCheckpointSaver(pool *pgxpool.Pool, serializer *serialization.Serializer) *CheckpointSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &CheckpointSaver{
		pool:       pool,
		serializer: serializer,
		tableName:  "checkpoints",
	}
}

// Open connects to databaseURL, creates the schema and returns a saver
// that owns the pool.
func Open(ctx context.Context, databaseURL string, serializer *serialization.Serializer) (*CheckpointSaver, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	s := NewCheckpointSaver(pool, serializer)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Save stores or replaces a checkpoint.
func (s *CheckpointSaver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrNilCheckpoint
	}
	if err := cp.Validate(); err != nil {
		return fmt.Errorf("checkpoint validation failed: %w", err)
	}
	if s.pool == nil {
		return ErrNoPool
	}

	data, err := s.serializer.Serialize(cp.Document)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint document: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			flow_id = EXCLUDED.flow_id,
			document = EXCLUDED.document,
			metadata = EXCLUDED.metadata,
			timestamp = EXCLUDED.timestamp,
			version = EXCLUDED.version
	`, s.tableName, columns)

	_, err = s.pool.Exec(ctx, query,
		cp.ID, cp.FlowID, data, metadataJSON, cp.Timestamp, cp.Version)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	imetrics.CheckpointSaved(Backend)
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *CheckpointSaver) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	if id == "" {
		return nil, checkpoint.ErrInvalidCheckpointID
	}
	if s.pool == nil {
		return nil, ErrNoPool
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.tableName)
	cp, err := s.scan(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, checkpoint.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	return cp, nil
}

// List returns matching checkpoints, newest first.
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}
	if s.pool == nil {
		return nil, ErrNoPool
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	checkpoints := []*checkpoint.Checkpoint{}
	for rows.Next() {
		cp, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint row: %w", err)
		}
		checkpoints = append(checkpoints, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return checkpoints, nil
}

// Delete removes a checkpoint by ID.
func (s *CheckpointSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return checkpoint.ErrInvalidCheckpointID
	}
	if s.pool == nil {
		return ErrNoPool
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	if result.RowsAffected() == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// CreateTables creates the checkpoint table and its indexes.
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	if s.pool == nil {
		return ErrNoPool
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(255) PRIMARY KEY,
			flow_id VARCHAR(255) NOT NULL,
			document BYTEA NOT NULL,
			metadata JSONB,
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version VARCHAR(50) NOT NULL DEFAULT '1'
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_flow_id ON %[1]s (flow_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s (timestamp);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *CheckpointSaver) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *CheckpointSaver) scan(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var (
		cp           checkpoint.Checkpoint
		data         []byte
		metadataJSON []byte
		ts           time.Time
	)
	if err := row.Scan(&cp.ID, &cp.FlowID, &data, &metadataJSON, &ts, &cp.Version); err != nil {
		return nil, err
	}
	cp.Timestamp = ts.UTC()

	if err := s.serializer.Deserialize(data, &cp.Document); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint document: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to deserialize metadata: %w", err)
		}
	}
	return &cp, nil
}

// buildListQuery constructs the SQL query for listing checkpoints.
func (s *CheckpointSaver) buildListQuery(filter checkpoint.Filter) (string, []interface{}) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1", columns, s.tableName)
	args := make([]interface{}, 0)
	argCount := 0

	if filter.FlowID != "" {
		argCount++
		query += fmt.Sprintf(" AND flow_id = $%d", argCount)
		args = append(args, filter.FlowID)
	}
	if filter.Since != nil {
		argCount++
		query += fmt.Sprintf(" AND timestamp > $%d", argCount)
		args = append(args, *filter.Since)
	}
	if filter.Before != nil {
		argCount++
		query += fmt.Sprintf(" AND timestamp < $%d", argCount)
		args = append(args, *filter.Before)
	}
	if filter.Source != "" {
		argCount++
		query += fmt.Sprintf(" AND metadata->>'source' = $%d", argCount)
		args = append(args, filter.Source)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	if filter.Limit > 0 {
		argCount++
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	return query, args
}
