package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

func (db *DB) LogActivity(repoID, eventType, detail string) error {
	id := uuid.New().String()
	_, err := db.conn.Exec(`
		INSERT INTO activity_log (id, repo_id, event_type, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, repoID, eventType, detail, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("logging activity: %w", err)
	}
	return nil
}

func (db *DB) ListActivity(repoID string, limit, offset int) ([]ActivityEntry, error) {
	rows, err := db.conn.Query(`
		SELECT id, repo_id, event_type, detail, created_at
		FROM activity_log WHERE repo_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`, repoID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var entries []ActivityEntry
	for rows.Next() {
		var e ActivityEntry
		var createdAt string
		if err := rows.Scan(&e.ID, &e.RepoID, &e.EventType, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
