// Package history persists completed run records so past rollouts can
// be inspected from the CLI. Storage is a local SQLite file.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/rollout/rollout/internal/result"
)

// Store manages run history persistence using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Record is a persisted run.
type Record struct {
	RunID     string
	StartedAt time.Time
	EndedAt   time.Time
	DryRun    bool
	Summary   result.Summary
	Results   []result.InstallResult
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &Store{db: db}, nil
}

// createTables creates the required database tables.
func createTables(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			dry_run INTEGER NOT NULL DEFAULT 0,
			summary_json TEXT NOT NULL,
			results_json TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`

	_, err := db.Exec(schema)
	return err
}

// Save persists a completed run.
func (s *Store) Save(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaryJSON, err := json.Marshal(rec.Summary)
	if err != nil {
		return fmt.Errorf("failed to serialize summary: %w", err)
	}
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to serialize results: %w", err)
	}

	query := `
		INSERT INTO runs (run_id, started_at, ended_at, dry_run, summary_json, results_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			dry_run = excluded.dry_run,
			summary_json = excluded.summary_json,
			results_json = excluded.results_json
	`

	_, err = s.db.Exec(query, rec.RunID, rec.StartedAt.UTC(), rec.EndedAt.UTC(),
		rec.DryRun, string(summaryJSON), string(resultsJSON))
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID. Returns nil when no such run exists.
func (s *Store) Get(runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT run_id, started_at, ended_at, dry_run, summary_json, results_json
		FROM runs
		WHERE run_id = ?
	`

	rec, err := scanRecord(s.db.QueryRow(query, runID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// List returns the most recent runs, newest first.
func (s *Store) List(limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT run_id, started_at, ended_at, dry_run, summary_json, results_json
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// Prune removes runs that ended before the retention window.
func (s *Store) Prune(maxAge time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UTC()
	_, err := s.db.Exec("DELETE FROM runs WHERE ended_at < ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune old runs: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var rec Record
	var summaryJSON, resultsJSON string

	if err := row.Scan(&rec.RunID, &rec.StartedAt, &rec.EndedAt, &rec.DryRun,
		&summaryJSON, &resultsJSON); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(summaryJSON), &rec.Summary); err != nil {
		return nil, fmt.Errorf("failed to deserialize summary: %w", err)
	}
	if err := json.Unmarshal([]byte(resultsJSON), &rec.Results); err != nil {
		return nil, fmt.Errorf("failed to deserialize results: %w", err)
	}

	return &rec, nil
}
