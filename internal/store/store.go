// Package store keeps the run history in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/snapbot/internal/types"
)

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Concurrent bot runs finish at the same time; serialise writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		site TEXT NOT NULL,
		account TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error TEXT,
		state TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS captures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		task TEXT NOT NULL,
		path TEXT,
		error TEXT,
		duration_ms INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_runs_site_account ON runs(site, account);
	CREATE INDEX IF NOT EXISTS idx_captures_run ON captures(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun records a run and its task outcomes and returns the run ID.
func (s *Store) SaveRun(ctx context.Context, r *types.RunResult) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (site, account, success, error, state, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.Site, r.Account, r.Success, r.Error, r.State.String(), r.StartedAt.UTC(), r.FinishedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, t := range r.Tasks {
		paths := t.Files
		if len(paths) == 0 {
			paths = []string{""}
		}
		for _, p := range paths {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO captures (run_id, task, path, error, duration_ms)
				VALUES (?, ?, ?, ?, ?)
			`, id, t.Name, p, t.Err, t.Duration.Milliseconds())
			if err != nil {
				return 0, fmt.Errorf("failed to insert capture: %w", err)
			}
		}
	}

	return id, tx.Commit()
}

// RecentRuns returns the latest runs, newest first. An empty site matches
// every site.
func (s *Store) RecentRuns(ctx context.Context, site string, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.site, r.account, r.success, COALESCE(r.error, ''), r.state,
			r.started_at, r.finished_at,
			(SELECT COUNT(*) FROM captures c WHERE c.run_id = r.id AND c.path != '')
		FROM runs r
		WHERE ? = '' OR r.site = ?
		ORDER BY r.started_at DESC, r.id DESC
		LIMIT ?
	`, site, site, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Site, &r.Account, &r.Success, &r.Error, &r.State,
			&r.StartedAt, &r.FinishedAt, &r.Files); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Captures returns the task outcomes of a run in the order they ran.
func (s *Store) Captures(ctx context.Context, runID int64) ([]Capture, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task, COALESCE(path, ''), COALESCE(error, ''), duration_ms
		FROM captures
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Capture
	for rows.Next() {
		var c Capture
		var ms int64
		if err := rows.Scan(&c.RunID, &c.Task, &c.Path, &c.Error, &ms); err != nil {
			return nil, err
		}
		c.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, c)
	}
	return out, rows.Err()
}

// LastSuccess returns when the account was last captured successfully.
func (s *Store) LastSuccess(ctx context.Context, site, account string) (time.Time, bool, error) {
	var t time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT finished_at FROM runs
		WHERE site = ? AND account = ? AND success
		ORDER BY finished_at DESC
		LIMIT 1
	`, site, account).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// Prune deletes runs that finished before cutoff and returns how many went.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM captures WHERE run_id IN (SELECT id FROM runs WHERE finished_at < ?)
	`, cutoff.UTC()); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE finished_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
