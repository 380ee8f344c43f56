package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Run is one recorded reconciliation.
type Run struct {
	ID         string
	Document   string
	Backend    string
	State      string
	Outcome    string
	Error      string
	Warning    string
	StartedAt  time.Time
	FinishedAt time.Time
	Failures   []RunFailure
}

// RunFailure is a table that could not be provisioned during a run.
type RunFailure struct {
	Table string
	Step  string
	Error string
}

// RecordRun stores run and its failures. An empty ID is filled in.
func (db *DB) RecordRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reconcile_runs (id, document, backend, state, outcome, error, warning, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Document, run.Backend, run.State, run.Outcome, run.Error, run.Warning,
		formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		return fmt.Errorf("failed to record run: %v", err)
	}

	for i, f := range run.Failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reconcile_failures (run_id, position, table_name, step, error)
			VALUES (?, ?, ?, ?, ?)
		`, run.ID, i, f.Table, f.Step, f.Error)
		if err != nil {
			return fmt.Errorf("failed to record failure for %s: %v", f.Table, err)
		}
	}

	return tx.Commit()
}

// LastRun returns the most recent run for document, or nil if there is none.
func (db *DB) LastRun(ctx context.Context, document string) (*Run, error) {
	var (
		run               Run
		started, finished string
	)
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, document, backend, state, outcome, error, warning, started_at, finished_at
		FROM reconcile_runs WHERE document = ?
		ORDER BY started_at DESC LIMIT 1
	`, document).Scan(&run.ID, &run.Document, &run.Backend, &run.State, &run.Outcome,
		&run.Error, &run.Warning, &started, &finished)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last run: %v", err)
	}

	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if run.FinishedAt, err = parseTime(finished); err != nil {
		return nil, err
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT table_name, step, error FROM reconcile_failures
		WHERE run_id = ? ORDER BY position
	`, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run failures: %v", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f RunFailure
		if err := rows.Scan(&f.Table, &f.Step, &f.Error); err != nil {
			return nil, err
		}
		run.Failures = append(run.Failures, f)
	}
	return &run, rows.Err()
}
