// internal/store/store.go
// Package store persists run history to a local SQLite database so past
// tasks can be inspected after the fact.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/quantumagi/agi-sdk-go/internal/action"
)

// RunRecord is one completed or in-flight task run.
type RunRecord struct {
	ID         string
	SessionID  string
	Task       string
	Status     string
	Message    string
	StepsTaken int
	StartedAt  time.Time
	FinishedAt *time.Time
}

// StepRecord is one executed step of a run.
type StepRecord struct {
	RunID      string
	StepNumber int
	ActionType string
	ActionJSON string
	Reasoning  string
	CreatedAt  time.Time
}

// Store provides the SQLite-backed run history.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	task        TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	steps_taken INTEGER NOT NULL DEFAULT 0,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS steps (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	step_number INTEGER NOT NULL,
	action_type TEXT NOT NULL,
	action_json TEXT NOT NULL,
	reasoning   TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMP NOT NULL,
	PRIMARY KEY (run_id, step_number)
);
`

// Open opens (creating if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, log: logger.Named("store")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records the beginning of a run.
func (s *Store) StartRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session_id, task, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.SessionID, run.Task, run.Status, run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// RecordStep appends one executed step to a run.
func (s *Store) RecordStep(ctx context.Context, runID string, step int, act action.Action, reasoning string) error {
	encoded, err := act.Encode()
	if err != nil {
		return fmt.Errorf("encoding action: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO steps (run_id, step_number, action_type, action_json, reasoning, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, step, string(act.Type), string(encoded), reasoning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("inserting step: %w", err)
	}
	return nil
}

// FinishRun records the terminal outcome of a run.
func (s *Store) FinishRun(ctx context.Context, runID, status, message string, stepsTaken int) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, message = ?, steps_taken = ?, finished_at = ? WHERE id = ?`,
		status, message, stepsTaken, now, runID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, task, status, message, steps_taken, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var finished sql.NullTime
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Task, &r.Status, &r.Message,
			&r.StepsTaken, &r.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}

// RunSteps returns the steps of a run in execution order.
func (s *Store) RunSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, step_number, action_type, action_json, reasoning, created_at
		 FROM steps WHERE run_id = ? ORDER BY step_number ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying steps: %w", err)
	}
	defer rows.Close()

	var steps []StepRecord
	for rows.Next() {
		var st StepRecord
		if err := rows.Scan(&st.RunID, &st.StepNumber, &st.ActionType,
			&st.ActionJSON, &st.Reasoning, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning step row: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return steps, nil
}
