// Package history persists the outcome of every update run so operators can
// inspect recent activity via the API. The default in-memory database keeps
// history for the lifetime of the process; pointing it at a file makes it
// survive restarts.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one finished update run.
type Record struct {
	ID          int64     `json:"-"`
	UpdateID    string    `json:"updateId"`
	Source      string    `json:"source"`
	Commit      string    `json:"commit,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	DurationMS  int64     `json:"durationMs"`
}

// Outcome values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeUnchanged = "unchanged"
	OutcomeFailed    = "failed"
)

// Store records update runs in SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (or creates) the history database. Use ":memory:" for a
// process-lifetime store.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS updates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		update_id TEXT NOT NULL,
		source TEXT NOT NULL,
		commit_hash TEXT,
		fingerprint TEXT,
		outcome TEXT NOT NULL,
		error TEXT,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_updates_finished_at ON updates(finished_at);
	CREATE INDEX IF NOT EXISTS idx_updates_outcome ON updates(outcome);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores one finished run.
func (s *Store) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO updates (update_id, source, commit_hash, fingerprint, outcome, error, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.UpdateID, r.Source, r.Commit, r.Fingerprint, r.Outcome, r.Error,
		r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli(), r.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert update record: %w", err)
	}
	return nil
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, update_id, source, commit_hash, fingerprint, outcome, error, started_at, finished_at, duration_ms
		 FROM updates ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query update records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// FailureCount returns the number of failed runs since a point in time.
func (s *Store) FailureCount(ctx context.Context, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM updates WHERE outcome = ? AND finished_at >= ?`,
		OutcomeFailed, since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count failed updates: %w", err)
	}
	return n, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var startedMS, finishedMS int64

		err := rows.Scan(&r.ID, &r.UpdateID, &r.Source, &r.Commit, &r.Fingerprint,
			&r.Outcome, &r.Error, &startedMS, &finishedMS, &r.DurationMS)
		if err != nil {
			return nil, fmt.Errorf("scan update record: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMS).UTC()
		r.FinishedAt = time.UnixMilli(finishedMS).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
