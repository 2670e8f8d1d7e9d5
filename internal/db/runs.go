package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateRun stores a run together with its per-case results in one
// transaction.
func (db *DB) CreateRun(run Run, results []RunResult) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	run.CreatedAt = time.Now().UTC()

	tx, err := db.conn.Begin()
	if err != nil {
		return Run{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, suite_id, passed, failed, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.SuiteID, run.Passed, run.Failed, run.DurationMS,
		run.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Run{}, fmt.Errorf("creating run: %w", err)
	}

	for i, res := range results {
		id := res.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.Exec(`
			INSERT INTO run_results (id, run_id, case_id, case_name, status, mock,
				actual, duration_ms, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, run.ID, res.CaseID, res.CaseName, res.Status, res.Mock,
			res.Actual, res.DurationMS, i,
		)
		if err != nil {
			return Run{}, fmt.Errorf("inserting run result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("committing run: %w", err)
	}
	return run, nil
}

func (db *DB) GetRun(id string) (Run, error) {
	row := db.conn.QueryRow(`SELECT id, suite_id, passed, failed, duration_ms, created_at
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("getting run: %w", err)
	}
	return r, nil
}

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var createdAt string
	if err := row.Scan(&r.ID, &r.SuiteID, &r.Passed, &r.Failed, &r.DurationMS, &createdAt); err != nil {
		return Run{}, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return r, nil
}

func (db *DB) ListRuns(suiteID string) ([]Run, error) {
	rows, err := db.conn.Query(`SELECT id, suite_id, passed, failed, duration_ms, created_at
		FROM runs WHERE suite_id = ? ORDER BY created_at DESC`, suiteID)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (db *DB) ListRunResults(runID string) ([]RunResult, error) {
	rows, err := db.conn.Query(`
		SELECT id, run_id, case_id, case_name, status, mock, actual, duration_ms, position
		FROM run_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing run results: %w", err)
	}
	defer rows.Close()

	var results []RunResult
	for rows.Next() {
		var res RunResult
		err := rows.Scan(&res.ID, &res.RunID, &res.CaseID, &res.CaseName, &res.Status,
			&res.Mock, &res.Actual, &res.DurationMS, &res.Position)
		if err != nil {
			return nil, fmt.Errorf("scanning run result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}
