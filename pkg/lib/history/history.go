// Package history keeps a summary of every finished crawl run in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/SanjoDeundiak/crawl-runner/pkg/lib"
)

// FileName is the database file created inside the history directory.
const FileName = "history.db"

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned by GetRun for an unknown run ID.
var ErrNotFound = errors.New("run not found")

// Store is the run history database.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the history database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	dbPath := filepath.Join(dir, FileName)

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// One writer; the supervisor records runs one at a time anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &Store{db: db, dbPath: dbPath}
	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if err := st.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return st, nil
}

func (st *Store) Close() error {
	return st.db.Close()
}

// Path is the database file location.
func (st *Store) Path() string {
	return st.dbPath
}

func (st *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		start_url TEXT NOT NULL,
		run_dir TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		finished_pages INTEGER NOT NULL DEFAULT 0,
		total_pages INTEGER NOT NULL DEFAULT 0,
		status TEXT,
		failure_json TEXT,
		config_json TEXT NOT NULL,
		statistics_json TEXT,
		started_at TEXT NOT NULL,
		ended_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := st.db.ExecContext(context.Background(), schema)
	return err
}

// RecordRun inserts snap, replacing an earlier record of the same run.
func (st *Store) RecordRun(ctx context.Context, snap lib.RunSnapshot) error {
	if snap.RunID == "" {
		return errors.New("snapshot has no run id")
	}
	var cfg lib.CrawlConfig
	if snap.Config != nil {
		cfg = *snap.Config
	}
	configJSON, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	failureJSON, err := nullableJSON(snap.Failure)
	if err != nil {
		return fmt.Errorf("failed to serialize failure: %w", err)
	}
	statsJSON, err := nullableJSON(snap.Statistics)
	if err != nil {
		return fmt.Errorf("failed to serialize statistics: %w", err)
	}
	var endedAt sql.NullString
	if snap.EndedAt != nil {
		endedAt = sql.NullString{String: snap.EndedAt.UTC().Format(timeLayout), Valid: true}
	}

	query := `
	INSERT INTO runs (run_id, state, start_url, run_dir, attempts, finished_pages, total_pages,
		status, failure_json, config_json, statistics_json, started_at, ended_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET
		state = excluded.state,
		run_dir = excluded.run_dir,
		attempts = excluded.attempts,
		finished_pages = excluded.finished_pages,
		total_pages = excluded.total_pages,
		status = excluded.status,
		failure_json = excluded.failure_json,
		statistics_json = excluded.statistics_json,
		ended_at = excluded.ended_at
	`
	_, err = st.db.ExecContext(ctx, query,
		snap.RunID, snap.State.String(), cfg.StartURL, snap.RunDir, snap.Attempt,
		snap.Progress.Finished, snap.Progress.Total, snap.Status,
		failureJSON, string(configJSON), statsJSON,
		snap.StartedAt.UTC().Format(timeLayout), endedAt)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", snap.RunID, err)
	}
	return nil
}

const selectRuns = `
	SELECT run_id, state, run_dir, attempts, finished_pages, total_pages, status,
		failure_json, config_json, statistics_json, started_at, ended_at
	FROM runs`

// ListRuns returns the most recent runs first. A limit of zero or less returns all runs.
func (st *Store) ListRuns(ctx context.Context, limit int) ([]lib.RunSnapshot, error) {
	query := selectRuns + " ORDER BY started_at DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := st.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []lib.RunSnapshot
	for rows.Next() {
		snap, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, snap)
	}
	return runs, rows.Err()
}

// GetRun returns one run, or ErrNotFound.
func (st *Store) GetRun(ctx context.Context, runID string) (lib.RunSnapshot, error) {
	row := st.db.QueryRowContext(ctx, selectRuns+" WHERE run_id = ?", runID)
	snap, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return lib.RunSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	return snap, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (lib.RunSnapshot, error) {
	var (
		snap                          lib.RunSnapshot
		state, startedAt              string
		runDir, status                sql.NullString
		failureJSON, statsJSON, ended sql.NullString
		configJSON                    string
	)
	err := row.Scan(&snap.RunID, &state, &runDir, &snap.Attempt, &snap.Progress.Finished, &snap.Progress.Total,
		&status, &failureJSON, &configJSON, &statsJSON, &startedAt, &ended)
	if err != nil {
		return snap, err
	}
	snap.RunDir = runDir.String
	snap.Status = status.String

	if snap.State, err = lib.ParseRunState(state); err != nil {
		return snap, err
	}
	var cfg lib.CrawlConfig
	if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
		return snap, fmt.Errorf("corrupt config for run %s: %w", snap.RunID, err)
	}
	snap.Config = &cfg
	if failureJSON.Valid {
		snap.Failure = &lib.Failure{}
		if err := json.Unmarshal([]byte(failureJSON.String), snap.Failure); err != nil {
			return snap, fmt.Errorf("corrupt failure for run %s: %w", snap.RunID, err)
		}
	}
	if statsJSON.Valid {
		snap.Statistics = &lib.CrawlStatistics{}
		if err := json.Unmarshal([]byte(statsJSON.String), snap.Statistics); err != nil {
			return snap, fmt.Errorf("corrupt statistics for run %s: %w", snap.RunID, err)
		}
	}
	if snap.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
		return snap, err
	}
	if ended.Valid {
		t, err := time.Parse(timeLayout, ended.String)
		if err != nil {
			return snap, err
		}
		snap.EndedAt = &t
	}
	return snap, nil
}

func nullableJSON[T any](v *T) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
