// Package history records a summary of every lf run in a local SQLite database
// so past runs and their failures can be listed later.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/harrison/lf/internal/models"
)

// ErrNotFound is returned by Get when no run has the requested ID.
var ErrNotFound = errors.New("run not found")

// ErrSchemaTooNew is returned by NewStore for a database migrated by a newer lf.
var ErrSchemaTooNew = errors.New("history database schema is newer than this lf supports")

// FailureRecord is one failed file of a recorded run.
type FailureRecord struct {
	Path  string
	Error string
}

// Run is the stored summary of one lf invocation.
type Run struct {
	ID                string
	Root              string
	StartedAt         time.Time
	Duration          time.Duration
	Converted         int
	AlreadyNormalized int
	Skipped           int
	Failed            int
	Warnings          int
	Abandoned         int
	Interrupted       bool
	DryRun            bool
	Failures          []FailureRecord
}

// NewRunID returns a fresh random run identifier.
func NewRunID() string {
	return uuid.New().String()
}

// NewRun builds a Run from an aggregate result.
func NewRun(id string, startedAt time.Time, result *models.AggregateResult) Run {
	run := Run{
		ID:                id,
		Root:              result.Root,
		StartedAt:         startedAt.UTC(),
		Duration:          result.Duration,
		Converted:         result.Converted,
		AlreadyNormalized: result.AlreadyNormalized,
		Skipped:           result.Skipped,
		Failed:            result.Failed,
		Warnings:          len(result.Warnings),
		Abandoned:         result.Abandoned,
		Interrupted:       result.Interrupted,
		DryRun:            result.DryRun,
	}
	for _, f := range result.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		run.Failures = append(run.Failures, FailureRecord{Path: f.Path, Error: msg})
	}
	return run
}

// Store manages the SQLite run history database
type Store struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new Store instance and initializes the database
func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	// Set busy_timeout FIRST so subsequent operations wait on locks.
	pragmas := []string{
		"PRAGMA busy_timeout=5000", // Must be first
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := execWithRetry(db, pragma, 5, 10*time.Millisecond); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	store := &Store{db: db, dbPath: dbPath}
	if err := store.ApplyMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	version, err := store.GetLatestVersion()
	if err != nil {
		db.Close()
		return nil, err
	}
	if supported := migrations[len(migrations)-1].Version; version > supported {
		db.Close()
		return nil, fmt.Errorf("%s at version %d, supported %d: %w", dbPath, version, supported, ErrSchemaTooNew)
	}
	return store, nil
}

// execWithRetry executes a SQL statement with exponential backoff retry on lock errors.
func execWithRetry(db *sql.DB, stmt string, maxRetries int, baseDelay time.Duration) error {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		_, err := db.Exec(stmt)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "database is locked") {
			return err
		}
		lastErr = err
		time.Sleep(baseDelay * time.Duration(1<<attempt))
	}
	return lastErr
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.dbPath
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record stores a run and its failures in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs
		(id, root, started_at, duration_ms, converted, already_normalized, skipped, failed, warnings, abandoned, interrupted, dry_run)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Root,
		run.StartedAt.UTC(),
		run.Duration.Milliseconds(),
		run.Converted,
		run.AlreadyNormalized,
		run.Skipped,
		run.Failed,
		run.Warnings,
		run.Abandoned,
		run.Interrupted,
		run.DryRun,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, f := range run.Failures {
		if _, err := tx.ExecContext(ctx, `INSERT INTO failures (run_id, path, error) VALUES (?, ?, ?)`,
			run.ID, f.Path, f.Error); err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `id, root, started_at, duration_ms, converted, already_normalized, skipped, failed, warnings, abandoned, interrupted, dry_run`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var run Run
	var durationMs int64
	err := row.Scan(
		&run.ID,
		&run.Root,
		&run.StartedAt,
		&durationMs,
		&run.Converted,
		&run.AlreadyNormalized,
		&run.Skipped,
		&run.Failed,
		&run.Warnings,
		&run.Abandoned,
		&run.Interrupted,
		&run.DryRun,
	)
	if err != nil {
		return Run{}, err
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond
	return run, nil
}

// Recent returns up to limit runs, most recent first. Failures are not loaded;
// use Get for a single run with its failures.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Get returns one run with its failures.
func (s *Store) Get(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT path, error FROM failures WHERE run_id = ? ORDER BY id`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query failures: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f FailureRecord
		if err := rows.Scan(&f.Path, &f.Error); err != nil {
			return Run{}, fmt.Errorf("scan failure row: %w", err)
		}
		run.Failures = append(run.Failures, f)
	}
	if err := rows.Err(); err != nil {
		return Run{}, fmt.Errorf("iterate failures: %w", err)
	}
	return run, nil
}

// Prune deletes runs older than the given time and returns how many were removed.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	cutoff := before.UTC()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM failures WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("prune failures: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return n, nil
}
