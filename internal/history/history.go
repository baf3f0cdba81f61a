// Package history keeps a local record of build and test runs in an
// embedded SQLite database (.lvjb/history.db).
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// FileName is the database file inside the state directory.
const FileName = "history.db"

// timeLayout is fixed-width so that started_at sorts chronologically as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	compiled    INTEGER NOT NULL,
	passed      INTEGER NOT NULL,
	total       INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS runs_started_at ON runs(started_at);
`

// Run is one recorded command invocation.
type Run struct {
	ID        string
	Command   string
	StartedAt time.Time
	Duration  time.Duration

	// Compiled is the number of files handed to the compiler.
	Compiled int

	// Passed and Total are set for test runs.
	Passed int
	Total  int

	OK    bool
	Error string
}

// NewRun starts a record for command with a fresh id.
func NewRun(command string) *Run {
	return &Run{ID: uuid.NewString(), Command: command, StartedAt: time.Now().UTC()}
}

// Finish stamps the duration and outcome.
func (r *Run) Finish(err error) {
	r.Duration = time.Since(r.StartedAt)
	r.OK = err == nil
	if err != nil {
		r.Error = err.Error()
	}
}

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database under stateDir.
func Open(ctx context.Context, stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure state dir: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(stateDir, FileName))
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts r.
func (s *Store) Record(ctx context.Context, r *Run) error {
	if r == nil || r.ID == "" {
		return errors.New("history: run id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, started_at, duration_ms, compiled, passed, total, ok, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Command, r.StartedAt.UTC().Format(timeLayout), r.Duration.Milliseconds(),
		r.Compiled, r.Passed, r.Total, boolInt(r.OK), r.Error,
	)
	if err != nil {
		return fmt.Errorf("history: record %s: %w", r.ID, err)
	}
	return nil
}

// List returns up to limit runs, newest first. A limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, started_at, duration_ms, compiled, passed, total, ok, error
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started string
			ms      int64
			ok      int
		)
		if err := rows.Scan(&r.ID, &r.Command, &started, &ms, &r.Compiled, &r.Passed, &r.Total, &ok, &r.Error); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		r.StartedAt, err = time.Parse(timeLayout, started)
		if err != nil {
			return nil, fmt.Errorf("history: run %s: bad timestamp: %w", r.ID, err)
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		r.OK = ok != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
