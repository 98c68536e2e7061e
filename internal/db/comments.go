package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

// SaveComments caches the comment thread for an issue. Comments are
// append-only on the server, so existing rows are kept and new ones added.
// The issue must already be in the snapshot.
func SaveComments(db *sql.DB, issueID string, comments []model.Comment) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.QueryRow("SELECT EXISTS(SELECT 1 FROM issues WHERE id = ?)", issueID).Scan(&exists); err != nil {
		return fmt.Errorf("checking issue existence: %w", err)
	}
	if !exists {
		return ErrNotFound
	}

	for i, c := range comments {
		id := c.ID
		if id == "" {
			id = fmt.Sprintf("local-%d", i)
		}
		created := c.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO comments (id, issue_id, body, author, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, issueID, c.Body, c.Author, created.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("caching comment: %w", err)
		}
	}

	return tx.Commit()
}

// ListComments retrieves cached comments for an issue, oldest first.
func ListComments(db *sql.DB, issueID string) ([]model.Comment, error) {
	rows, err := db.Query(
		`SELECT id, issue_id, body, author, created_at
		 FROM comments WHERE issue_id = ? ORDER BY created_at ASC, id ASC`, issueID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying comments: %w", err)
	}
	defer rows.Close()

	comments := make([]model.Comment, 0)
	for rows.Next() {
		var c model.Comment
		var author sql.NullString
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Body, &author, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning comment row: %w", err)
		}
		c.Author = author.String
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing comment created_at: %w", err)
		}
		c.CreatedAt = t
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comment rows: %w", err)
	}

	return comments, nil
}
