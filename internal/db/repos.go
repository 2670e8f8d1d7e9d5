package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

func (db *DB) CreateRepo(repo Repo) (Repo, error) {
	if repo.ID == "" {
		repo.ID = uuid.New().String()
	}
	if repo.State == "" {
		repo.State = RepoStatePending
	}
	now := time.Now().UTC()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	_, err := db.conn.Exec(`
		INSERT INTO repos (id, owner, name, url, source, state, default_branch,
			files_count, context_path, context_size, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.Owner, repo.Name, repo.URL, repo.Source, repo.State,
		repo.DefaultBranch, repo.FilesCount, repo.ContextPath, repo.ContextSize,
		repo.ErrorMessage,
		repo.CreatedAt.Format(time.RFC3339), repo.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return Repo{}, fmt.Errorf("creating repo: %w", err)
	}
	return repo, nil
}

const repoColumns = `id, owner, name, url, source, state, default_branch,
	files_count, context_path, context_size, error_message, created_at, updated_at`

func scanRepo(row interface{ Scan(...any) error }) (Repo, error) {
	var r Repo
	var createdAt, updatedAt string
	err := row.Scan(&r.ID, &r.Owner, &r.Name, &r.URL, &r.Source, &r.State,
		&r.DefaultBranch, &r.FilesCount, &r.ContextPath, &r.ContextSize,
		&r.ErrorMessage, &createdAt, &updatedAt)
	if err != nil {
		return Repo{}, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return r, nil
}

func (db *DB) GetRepo(id string) (Repo, error) {
	row := db.conn.QueryRow(`SELECT `+repoColumns+` FROM repos WHERE id = ?`, id)
	r, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Repo{}, ErrNotFound
	}
	if err != nil {
		return Repo{}, fmt.Errorf("getting repo: %w", err)
	}
	return r, nil
}

// FindRepo looks up a repo by owner and name (most recent first).
func (db *DB) FindRepo(owner, name string) (Repo, error) {
	row := db.conn.QueryRow(`SELECT `+repoColumns+` FROM repos
		WHERE owner = ? AND name = ? ORDER BY created_at DESC LIMIT 1`, owner, name)
	r, err := scanRepo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Repo{}, ErrNotFound
	}
	if err != nil {
		return Repo{}, fmt.Errorf("finding repo: %w", err)
	}
	return r, nil
}

func (db *DB) ListRepos() ([]Repo, error) {
	rows, err := db.conn.Query(`SELECT ` + repoColumns + ` FROM repos ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing repos: %w", err)
	}
	defer rows.Close()

	var repos []Repo
	for rows.Next() {
		r, err := scanRepo(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning repo: %w", err)
		}
		repos = append(repos, r)
	}
	return repos, rows.Err()
}

func (db *DB) UpdateRepo(repo Repo) error {
	repo.UpdatedAt = time.Now().UTC()
	res, err := db.conn.Exec(`
		UPDATE repos SET owner = ?, name = ?, url = ?, source = ?, state = ?,
			default_branch = ?, files_count = ?, context_path = ?, context_size = ?,
			error_message = ?, updated_at = ?
		WHERE id = ?`,
		repo.Owner, repo.Name, repo.URL, repo.Source, repo.State,
		repo.DefaultBranch, repo.FilesCount, repo.ContextPath, repo.ContextSize,
		repo.ErrorMessage, repo.UpdatedAt.Format(time.RFC3339), repo.ID,
	)
	if err != nil {
		return fmt.Errorf("updating repo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRepoState updates just the state and error message of a repo.
func (db *DB) SetRepoState(id, state, errorMessage string) error {
	res, err := db.conn.Exec(`
		UPDATE repos SET state = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		state, errorMessage, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("setting repo state: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) DeleteRepo(id string) error {
	res, err := db.conn.Exec(`DELETE FROM repos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting repo: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceRepoFiles replaces the stored file set for a repo.
func (db *DB) ReplaceRepoFiles(repoID string, files []RepoFile) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM repo_files WHERE repo_id = ?`, repoID); err != nil {
		return fmt.Errorf("clearing repo files: %w", err)
	}
	for _, f := range files {
		_, err := tx.Exec(`INSERT INTO repo_files (repo_id, path, size, content) VALUES (?, ?, ?, ?)`,
			repoID, f.Path, f.Size, f.Content)
		if err != nil {
			return fmt.Errorf("inserting repo file %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

func (db *DB) ListRepoFiles(repoID string) ([]RepoFile, error) {
	rows, err := db.conn.Query(`SELECT repo_id, path, size, content FROM repo_files
		WHERE repo_id = ? ORDER BY path`, repoID)
	if err != nil {
		return nil, fmt.Errorf("listing repo files: %w", err)
	}
	defer rows.Close()

	var files []RepoFile
	for rows.Next() {
		var f RepoFile
		if err := rows.Scan(&f.RepoID, &f.Path, &f.Size, &f.Content); err != nil {
			return nil, fmt.Errorf("scanning repo file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
