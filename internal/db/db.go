package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	conn *sql.DB
}

// Repo states.
const (
	RepoStatePending  = "pending"
	RepoStateFetching = "fetching"
	RepoStateReady    = "ready"
	RepoStateFailed   = "failed"
)

// Suite states.
const (
	SuiteStatePending    = "pending"
	SuiteStateGenerating = "generating"
	SuiteStateReady      = "ready"
	SuiteStateFailed     = "failed"
)

type Repo struct {
	ID            string
	Owner         string
	Name          string
	URL           string
	Source        string // "api" or "clone"
	State         string
	DefaultBranch string
	FilesCount    int
	ContextPath   string
	ContextSize   int
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type RepoFile struct {
	RepoID  string
	Path    string
	Size    int
	Content string
}

type Suite struct {
	ID                 string
	RepoID             string
	State              string
	Model              string
	AdditionalPrompt   string
	ErrorMessage       string
	TotalTests         int
	UnitTests          int
	IntegrationTests   int
	EdgeCases          int
	ErrorHandlingTests int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type TestCase struct {
	ID          string
	SuiteID     string
	CaseID      string // the model-assigned or defaulted case id
	Name        string
	Description string
	Input       string // JSON-encoded
	Expected    string // JSON-encoded
	Code        string
	TestType    string
	Priority    string
	Position    int
}

type Run struct {
	ID         string
	SuiteID    string
	Passed     int
	Failed     int
	DurationMS int
	CreatedAt  time.Time
}

type RunResult struct {
	ID         string
	RunID      string
	CaseID     string
	CaseName   string
	Status     string
	Mock       string
	Actual     string // JSON-encoded
	DurationMS int
	Position   int
}

type ActivityEntry struct {
	ID        string
	RepoID    string
	EventType string
	Detail    string
	CreatedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS repos (
	id TEXT PRIMARY KEY,
	owner TEXT NOT NULL,
	name TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT 'api',
	state TEXT NOT NULL DEFAULT 'pending',
	default_branch TEXT NOT NULL DEFAULT '',
	files_count INTEGER NOT NULL DEFAULT 0,
	context_path TEXT NOT NULL DEFAULT '',
	context_size INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS repo_files (
	repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	path TEXT NOT NULL,
	size INTEGER NOT NULL DEFAULT 0,
	content TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (repo_id, path)
);

CREATE TABLE IF NOT EXISTS suites (
	id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	state TEXT NOT NULL DEFAULT 'pending',
	model TEXT NOT NULL DEFAULT '',
	additional_prompt TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	total_tests INTEGER NOT NULL DEFAULT 0,
	unit_tests INTEGER NOT NULL DEFAULT 0,
	integration_tests INTEGER NOT NULL DEFAULT 0,
	edge_cases INTEGER NOT NULL DEFAULT 0,
	error_handling_tests INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS test_cases (
	id TEXT PRIMARY KEY,
	suite_id TEXT NOT NULL REFERENCES suites(id) ON DELETE CASCADE,
	case_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	input TEXT NOT NULL DEFAULT 'null',
	expected TEXT NOT NULL DEFAULT 'null',
	code TEXT NOT NULL DEFAULT '',
	test_type TEXT NOT NULL DEFAULT 'unit',
	priority TEXT NOT NULL DEFAULT 'medium',
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	suite_id TEXT NOT NULL REFERENCES suites(id) ON DELETE CASCADE,
	passed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_results (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	case_id TEXT NOT NULL DEFAULT '',
	case_name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT '',
	mock TEXT NOT NULL DEFAULT '',
	actual TEXT NOT NULL DEFAULT 'null',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS activity_log (
	id TEXT PRIMARY KEY,
	repo_id TEXT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
	event_type TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// DefaultPath returns the default database location under the user's home
// directory, creating the parent directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	dir := filepath.Join(home, ".testforge")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return filepath.Join(dir, "testforge.db"), nil
}

func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}
