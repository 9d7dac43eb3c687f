package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite implementation of Store.
//
// It keeps pipeline state and checkpoints in a single-file database, which
// fits homer's local-first deployment: zero setup, one process, durable
// chat threads. WAL mode allows readers (thread listing, the HTTP API)
// while a pipeline is writing.
//
// Schema:
//   - pipeline_steps: per-run step history
//   - pipeline_checkpoints: named snapshots
type SQLiteStore[S any] struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
	path   string
}

// NewSQLiteStore opens (and if needed creates) a SQLite-backed store at
// path. Use ":memory:" for an ephemeral database.
func NewSQLiteStore[S any](path string) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite supports a single writer; keep one connection alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &SQLiteStore[S]{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore[S]) createTables(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS pipeline_steps (
	run_id     TEXT NOT NULL,
	step       INTEGER NOT NULL,
	node_id    TEXT NOT NULL,
	state      TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, step)
);
CREATE INDEX IF NOT EXISTS idx_pipeline_steps_run ON pipeline_steps(run_id, step DESC);

CREATE TABLE IF NOT EXISTS pipeline_checkpoints (
	checkpoint_id TEXT PRIMARY KEY,
	state         TEXT NOT NULL,
	step          INTEGER NOT NULL,
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore[S]) guard() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.New("store is closed")
	}
	return nil
}

// SaveStep implements Store.
func (s *SQLiteStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO pipeline_steps (run_id, step, node_id, state, created_at)
VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (run_id, step) DO UPDATE SET
	node_id = excluded.node_id,
	state = excluded.state,
	created_at = CURRENT_TIMESTAMP`,
		runID, step, nodeID, string(data))
	if err != nil {
		return fmt.Errorf("save step: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (s *SQLiteStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := s.guard(); err != nil {
		return zero, 0, err
	}

	var data string
	var step int
	err := s.db.QueryRowContext(ctx, `
SELECT state, step FROM pipeline_steps
WHERE run_id = ?
ORDER BY step DESC
LIMIT 1`, runID).Scan(&data, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, fmt.Errorf("run %q: %w", runID, ErrNotFound)
	}
	if err != nil {
		return zero, 0, fmt.Errorf("load latest: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

// SaveCheckpoint implements Store.
func (s *SQLiteStore[S]) SaveCheckpoint(ctx context.Context, cpID string, state S, step int) error {
	if err := s.guard(); err != nil {
		return err
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO pipeline_checkpoints (checkpoint_id, state, step, created_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (checkpoint_id) DO UPDATE SET
	state = excluded.state,
	step = excluded.step,
	created_at = CURRENT_TIMESTAMP`,
		cpID, string(data), step)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint implements Store.
func (s *SQLiteStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (S, int, error) {
	var zero S
	if err := s.guard(); err != nil {
		return zero, 0, err
	}

	var data string
	var step int
	err := s.db.QueryRowContext(ctx, `
SELECT state, step FROM pipeline_checkpoints WHERE checkpoint_id = ?`, cpID).Scan(&data, &step)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, fmt.Errorf("checkpoint %q: %w", cpID, ErrNotFound)
	}
	if err != nil {
		return zero, 0, fmt.Errorf("load checkpoint: %w", err)
	}

	var state S
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return zero, 0, fmt.Errorf("unmarshal state: %w", err)
	}
	return state, step, nil
}

// ListRuns implements Store.
func (s *SQLiteStore[S]) ListRuns(ctx context.Context) ([]RunInfo, error) {
	if err := s.guard(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, MAX(step), MAX(created_at)
FROM pipeline_steps
GROUP BY run_id
ORDER BY MAX(created_at) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var updated string
		if err := rows.Scan(&info.RunID, &info.LastStep, &updated); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		ts, err := parseSQLiteTime(updated)
		if err != nil {
			return nil, fmt.Errorf("run %q: %w", info.RunID, err)
		}
		info.UpdatedAt = ts
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// sqliteTimeLayout is the text form CURRENT_TIMESTAMP stores. Aggregates
// like MAX(created_at) lose the column's declared type, so the driver
// returns the raw text and parsing happens here.
const sqliteTimeLayout = "2006-01-02 15:04:05"

func parseSQLiteTime(s string) (time.Time, error) {
	if t, err := time.Parse(sqliteTimeLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

// DeleteRun implements Store.
func (s *SQLiteStore[S]) DeleteRun(ctx context.Context, runID string) error {
	if err := s.guard(); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_steps WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
