package runindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a derived, advisory run-history index. It is rebuilt from
// tracking logs on every run and only feeds the history and repair
// listings; batch status decisions never read it.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the index database.
func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open run index: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	migration := `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    group_name TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    logs_scanned INTEGER NOT NULL DEFAULT 0,
    logs_completed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_group ON runs(group_name);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);

CREATE TABLE IF NOT EXISTS batch_statuses (
    run_id TEXT NOT NULL,
    batch_id TEXT NOT NULL,
    log_path TEXT NOT NULL,
    status TEXT NOT NULL,
    completed INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    observed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (run_id, batch_id, log_path),
    FOREIGN KEY (run_id) REFERENCES runs(id)
);
CREATE INDEX IF NOT EXISTS idx_batch_statuses_batch ON batch_statuses(batch_id);
`
	if _, err := s.db.Exec(migration); err != nil {
		return fmt.Errorf("failed to run index migrations: %w", err)
	}
	return nil
}

// StartRun records the beginning of a check/repair run for a group.
func (s *Store) StartRun(ctx context.Context, runID, group string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, group_name, started_at) VALUES (?, ?, ?)`,
		runID, group, startedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun closes out a run with its scan totals.
func (s *Store) FinishRun(ctx context.Context, runID string, logsScanned, logsCompleted int, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, logs_scanned = ?, logs_completed = ? WHERE id = ?`,
		finishedAt.UTC(), logsScanned, logsCompleted, runID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// RecordBatch upserts one observed batch status for a run.
func (s *Store) RecordBatch(ctx context.Context, runID, batchID, logPath, status string, completed, failed, total int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batch_statuses (run_id, batch_id, log_path, status, completed, failed, total, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, batch_id, log_path) DO UPDATE SET
		   status = excluded.status,
		   completed = excluded.completed,
		   failed = excluded.failed,
		   total = excluded.total,
		   observed_at = excluded.observed_at`,
		runID, batchID, logPath, status, completed, failed, total, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record batch status: %w", err)
	}
	return nil
}

// RunSummary is one row of the history listing.
type RunSummary struct {
	ID            string
	Group         string
	StartedAt     time.Time
	FinishedAt    *time.Time
	LogsScanned   int
	LogsCompleted int
}

// RecentRuns lists the most recent runs, optionally filtered by group.
func (s *Store) RecentRuns(ctx context.Context, group string, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, group_name, started_at, finished_at, logs_scanned, logs_completed
	          FROM runs`
	args := []any{}
	if group != "" {
		query += ` WHERE group_name = ?`
		args = append(args, group)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.Group, &r.StartedAt, &finished, &r.LogsScanned, &r.LogsCompleted); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
