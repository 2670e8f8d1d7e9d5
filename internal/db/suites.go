package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (db *DB) CreateSuite(suite Suite) (Suite, error) {
	if suite.ID == "" {
		suite.ID = uuid.New().String()
	}
	if suite.State == "" {
		suite.State = SuiteStatePending
	}
	now := time.Now().UTC()
	suite.CreatedAt = now
	suite.UpdatedAt = now

	_, err := db.conn.Exec(`
		INSERT INTO suites (id, repo_id, state, model, additional_prompt, error_message,
			total_tests, unit_tests, integration_tests, edge_cases, error_handling_tests,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		suite.ID, suite.RepoID, suite.State, suite.Model, suite.AdditionalPrompt,
		suite.ErrorMessage, suite.TotalTests, suite.UnitTests, suite.IntegrationTests,
		suite.EdgeCases, suite.ErrorHandlingTests,
		suite.CreatedAt.Format(time.RFC3339), suite.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Suite{}, fmt.Errorf("creating suite: %w", err)
	}
	return suite, nil
}

const suiteColumns = `id, repo_id, state, model, additional_prompt, error_message,
	total_tests, unit_tests, integration_tests, edge_cases, error_handling_tests,
	created_at, updated_at`

func scanSuite(row interface{ Scan(...any) error }) (Suite, error) {
	var s Suite
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.RepoID, &s.State, &s.Model, &s.AdditionalPrompt,
		&s.ErrorMessage, &s.TotalTests, &s.UnitTests, &s.IntegrationTests,
		&s.EdgeCases, &s.ErrorHandlingTests, &createdAt, &updatedAt)
	if err != nil {
		return Suite{}, err
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return s, nil
}

func (db *DB) GetSuite(id string) (Suite, error) {
	row := db.conn.QueryRow(`SELECT `+suiteColumns+` FROM suites WHERE id = ?`, id)
	s, err := scanSuite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Suite{}, ErrNotFound
	}
	if err != nil {
		return Suite{}, fmt.Errorf("getting suite: %w", err)
	}
	return s, nil
}

func (db *DB) ListSuites(repoID string) ([]Suite, error) {
	rows, err := db.conn.Query(`SELECT `+suiteColumns+` FROM suites
		WHERE repo_id = ? ORDER BY created_at DESC`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing suites: %w", err)
	}
	defer rows.Close()

	var suites []Suite
	for rows.Next() {
		s, err := scanSuite(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning suite: %w", err)
		}
		suites = append(suites, s)
	}
	return suites, rows.Err()
}

func (db *DB) UpdateSuite(suite Suite) error {
	suite.UpdatedAt = time.Now().UTC()
	res, err := db.conn.Exec(`
		UPDATE suites SET state = ?, model = ?, additional_prompt = ?, error_message = ?,
			total_tests = ?, unit_tests = ?, integration_tests = ?, edge_cases = ?,
			error_handling_tests = ?, updated_at = ?
		WHERE id = ?`,
		suite.State, suite.Model, suite.AdditionalPrompt, suite.ErrorMessage,
		suite.TotalTests, suite.UnitTests, suite.IntegrationTests, suite.EdgeCases,
		suite.ErrorHandlingTests, suite.UpdatedAt.Format(time.RFC3339), suite.ID,
	)
	if err != nil {
		return fmt.Errorf("updating suite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSuiteState updates just the state and error message of a suite.
func (db *DB) SetSuiteState(id, state, errorMessage string) error {
	res, err := db.conn.Exec(`
		UPDATE suites SET state = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		state, errorMessage, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("setting suite state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceTestCases replaces all test cases of a suite, preserving order via
// the position column.
func (db *DB) ReplaceTestCases(suiteID string, cases []TestCase) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM test_cases WHERE suite_id = ?`, suiteID); err != nil {
		return fmt.Errorf("clearing test cases: %w", err)
	}
	for i, tc := range cases {
		id := tc.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.Exec(`
			INSERT INTO test_cases (id, suite_id, case_id, name, description, input,
				expected, code, test_type, priority, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, suiteID, tc.CaseID, tc.Name, tc.Description, tc.Input,
			tc.Expected, tc.Code, tc.TestType, tc.Priority, i,
		)
		if err != nil {
			return fmt.Errorf("inserting test case %s: %w", tc.CaseID, err)
		}
	}
	return tx.Commit()
}

func (db *DB) ListTestCases(suiteID string) ([]TestCase, error) {
	rows, err := db.conn.Query(`
		SELECT id, suite_id, case_id, name, description, input, expected, code,
			test_type, priority, position
		FROM test_cases WHERE suite_id = ? ORDER BY position`, suiteID)
	if err != nil {
		return nil, fmt.Errorf("listing test cases: %w", err)
	}
	defer rows.Close()

	var cases []TestCase
	for rows.Next() {
		var tc TestCase
		err := rows.Scan(&tc.ID, &tc.SuiteID, &tc.CaseID, &tc.Name, &tc.Description,
			&tc.Input, &tc.Expected, &tc.Code, &tc.TestType, &tc.Priority, &tc.Position)
		if err != nil {
			return nil, fmt.Errorf("scanning test case: %w", err)
		}
		cases = append(cases, tc)
	}
	return cases, rows.Err()
}
