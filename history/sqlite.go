// Package history records suite runs in a SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ethereum-optimism/infra/op-suite/reporting"
	"github.com/ethereum-optimism/infra/op-suite/types"
)

const createSuiteRunsTable = `
CREATE TABLE IF NOT EXISTS suite_runs (
    run_id        TEXT PRIMARY KEY,
    batch_id      TEXT NOT NULL,
    suite         TEXT NOT NULL,
    mode          TEXT NOT NULL,
    status        TEXT NOT NULL,
    total         INTEGER NOT NULL,
    passed        INTEGER NOT NULL,
    failed        INTEGER NOT NULL,
    after_all_ran INTEGER NOT NULL,
    error         TEXT,
    started_at_ms INTEGER NOT NULL,
    duration_ms   INTEGER NOT NULL
)`

const createTestResultsTable = `
CREATE TABLE IF NOT EXISTS test_results (
    run_id      TEXT NOT NULL REFERENCES suite_runs(run_id),
    idx         INTEGER NOT NULL,
    name        TEXT NOT NULL,
    status      TEXT NOT NULL,
    phase       TEXT,
    error       TEXT,
    cleanup     TEXT,
    duration_ms INTEGER NOT NULL,
    PRIMARY KEY (run_id, idx)
)`

const createSuiteIndex = `CREATE INDEX IF NOT EXISTS suite_runs_suite ON suite_runs (suite, started_at_ms)`

// ErrNotFound is returned when a run is not found.
var ErrNotFound = errors.New("run not found")

var _ reporting.Sink = (*SQLiteStore)(nil)

// Run is a recorded suite run
type Run struct {
	RunID       string
	BatchID     string
	Suite       string
	Mode        string
	Status      types.TestStatus
	Total       int
	Passed      int
	Failed      int
	AfterAllRan bool
	Error       string
	StartedAt   time.Time
	Duration    time.Duration
	Tests       []Test
}

// Test is a recorded test result
type Test struct {
	Index    int
	Name     string
	Status   types.TestStatus
	Phase    string
	Error    string
	Cleanup  string
	Duration time.Duration
}

// SQLiteStore implements reporting.Sink on top of SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	pending []*types.SuiteResult
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	for _, stmt := range []struct {
		name string
		sql  string
	}{
		{"set WAL mode", "PRAGMA journal_mode=WAL"},
		{"set busy timeout", "PRAGMA busy_timeout = 5000"},
		{"create suite_runs table", createSuiteRunsTable},
		{"create test_results table", createTestResultsTable},
		{"create suite index", createSuiteIndex},
	} {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", stmt.name, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Consume queues a result until the batch completes.
func (s *SQLiteStore) Consume(result *types.SuiteResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, result)
	return nil
}

// Complete records every queued result under batchID.
func (s *SQLiteStore) Complete(batchID string) error {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, r := range pending {
		if err := s.RecordRun(context.Background(), batchID, r); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun inserts a suite run and its test results in one transaction.
func (s *SQLiteStore) RecordRun(ctx context.Context, batchID string, r *types.SuiteResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO suite_runs (
			run_id, batch_id, suite, mode, status, total, passed, failed,
			after_all_ran, error, started_at_ms, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, batchID, r.Suite, r.Mode.String(), string(r.Status),
		r.Stats.Total, r.Stats.Passed, r.Stats.Failed,
		r.AfterAllRan, errString(r.Error),
		r.Stats.StartTime.UnixMilli(), r.Stats.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert suite run: %w", err)
	}

	for _, t := range r.Tests {
		if t == nil {
			continue
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO test_results (
				run_id, idx, name, status, phase, error, cleanup, duration_ms
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.RunID, t.Index, t.Name, string(t.Status), string(t.Phase),
			errString(t.Error), errString(t.Cleanup), t.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("insert test result %s: %w", t.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

// GetRun retrieves a run and its test results by run id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, name, status, phase, error, cleanup, duration_ms
		FROM test_results WHERE run_id = ? ORDER BY idx`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t          Test
			status     string
			durationMS int64
		)
		if err := rows.Scan(&t.Index, &t.Name, &status, &t.Phase, &t.Error, &t.Cleanup, &durationMS); err != nil {
			return nil, fmt.Errorf("scan test result: %w", err)
		}
		t.Status = types.TestStatus(status)
		t.Duration = time.Duration(durationMS) * time.Millisecond
		run.Tests = append(run.Tests, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test results: %w", err)
	}
	return run, nil
}

// ListRuns returns the latest runs of a suite, newest first. An empty suite
// lists runs of every suite. Test results are not loaded.
func (s *SQLiteStore) ListRuns(ctx context.Context, suite string, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		selectRuns+` WHERE (? = '' OR suite = ?) ORDER BY started_at_ms DESC, rowid DESC LIMIT ?`,
		suite, suite, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// PassRate returns the fraction of passing runs among the latest limit runs of a suite.
func (s *SQLiteStore) PassRate(ctx context.Context, suite string, limit int) (float64, error) {
	var total, passed int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(status = ?), 0) FROM (
			SELECT status FROM suite_runs WHERE suite = ? ORDER BY started_at_ms DESC LIMIT ?
		)`, string(types.TestStatusPass), suite, limit,
	).Scan(&total, &passed)
	if err != nil {
		return 0, fmt.Errorf("pass rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(passed) / float64(total), nil
}

const selectRuns = `SELECT run_id, batch_id, suite, mode, status, total, passed, failed,
	after_all_ran, error, started_at_ms, duration_ms FROM suite_runs`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run        Run
		status     string
		startedMS  int64
		durationMS int64
	)
	if err := row.Scan(
		&run.RunID, &run.BatchID, &run.Suite, &run.Mode, &status,
		&run.Total, &run.Passed, &run.Failed, &run.AfterAllRan, &run.Error,
		&startedMS, &durationMS,
	); err != nil {
		return nil, err
	}
	run.Status = types.TestStatus(status)
	run.StartedAt = time.UnixMilli(startedMS)
	run.Duration = time.Duration(durationMS) * time.Millisecond
	return &run, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
