// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

const defaultTable = "aggregation_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// RunStore writes run metadata rows into Postgres. Profile data is never stored.
//
// Expected schema:
//
//	CREATE TABLE aggregation_runs (
//		id              text PRIMARY KEY,
//		started_at      timestamptz NOT NULL,
//		finished_at     timestamptz NOT NULL,
//		outcome         text NOT NULL,
//		failed_sources  jsonb NOT NULL,
//		delivery_status integer NOT NULL,
//		fallback_uri    text NOT NULL,
//		error_text      text NOT NULL
//	);
type RunStore struct {
	pool  pool
	table string
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: p, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Ping verifies the database is reachable.
func (s *RunStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordRun upserts a run row.
func (s *RunStore) RecordRun(ctx context.Context, record profile.RunRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if record.ID == "" {
		return fmt.Errorf("run id is required")
	}
	failures := record.FailedSources
	if failures == nil {
		failures = []profile.SourceFailure{}
	}
	failuresJSON, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("marshal failed sources: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	started_at,
	finished_at,
	outcome,
	failed_sources,
	delivery_status,
	fallback_uri,
	error_text
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
)
ON CONFLICT (id) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	outcome = EXCLUDED.outcome,
	failed_sources = EXCLUDED.failed_sources,
	delivery_status = EXCLUDED.delivery_status,
	fallback_uri = EXCLUDED.fallback_uri,
	error_text = EXCLUDED.error_text`, s.table)

	args := []any{
		record.ID,
		record.StartedAt,
		record.FinishedAt,
		string(record.Outcome),
		failuresJSON,
		record.DeliveryStatus,
		record.FallbackURI,
		record.ErrorText,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun loads a run row by id.
func (s *RunStore) GetRun(ctx context.Context, id string) (profile.RunRecord, error) {
	if s == nil || s.pool == nil {
		return profile.RunRecord{}, fmt.Errorf("run store is not configured")
	}
	query := fmt.Sprintf(`
SELECT id, started_at, finished_at, outcome, failed_sources, delivery_status, fallback_uri, error_text
FROM %s WHERE id = $1`, s.table)

	var (
		record       profile.RunRecord
		outcome      string
		failuresJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.StartedAt,
		&record.FinishedAt,
		&outcome,
		&failuresJSON,
		&record.DeliveryStatus,
		&record.FallbackURI,
		&record.ErrorText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.RunRecord{}, fmt.Errorf("get run %q: %w", id, profile.ErrRunNotFound)
	}
	if err != nil {
		return profile.RunRecord{}, fmt.Errorf("select run: %w", err)
	}
	record.Outcome = profile.Outcome(outcome)
	if len(failuresJSON) > 0 {
		if err := json.Unmarshal(failuresJSON, &record.FailedSources); err != nil {
			return profile.RunRecord{}, fmt.Errorf("unmarshal failed sources: %w", err)
		}
	}
	if len(record.FailedSources) == 0 {
		record.FailedSources = nil
	}
	return record, nil
}
