// Package journal records completed and failed runs in a local SQLite
// database. The journal is an audit trail, not a dependency: every write is
// best-effort and callers carry on when it fails.
package journal

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

// Run statuses.
const (
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Run kinds.
const (
	KindSync    = "sync"
	KindIngest  = "ingest"
	KindVerify  = "verify"
	KindPackage = "package"
)

// timeLayout keeps fractional seconds fixed-width so lexical order on the
// stored strings is chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Run is one recorded operation.
type Run struct {
	ID         string
	Kind       string
	User       string
	Detail     string
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database and applies
// migrations. The parent directory is created when missing.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("journal path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Begin records the start of a run and returns its identifier.
func (s *Store) Begin(ctx context.Context, kind, user, detail string) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (id, kind, user, detail, status, error_message, started_at, finished_at)
         VALUES (?, ?, ?, ?, ?, '', ?, NULL)`,
		id, kind, user, detail, StatusRunning, now,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Finish closes out a run. A nil runErr marks it done, anything else failed
// with the message preserved.
func (s *Store) Finish(ctx context.Context, id string, runErr error) error {
	status := StatusDone
	message := ""
	if runErr != nil {
		status = StatusFailed
		message = runErr.Error()
	}
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`,
		status, message, now, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// Recent returns the newest runs first, at most limit of them.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, kind, user, detail, status, error_message, started_at, finished_at
         FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var run Run
	var started string
	var finished sql.NullString
	if err := rows.Scan(&run.ID, &run.Kind, &run.User, &run.Detail, &run.Status, &run.Error, &started, &finished); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, started); err == nil {
		run.StartedAt = ts
	}
	if finished.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, finished.String); err == nil {
			run.FinishedAt = ts
		}
	}
	return run, nil
}
