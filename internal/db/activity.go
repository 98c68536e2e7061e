package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

// execer abstracts *sql.DB and *sql.Tx for executing statements.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// RecordActivity appends an entry to the journal.
func RecordActivity(ex execer, a model.Activity) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := ex.Exec(
		`INSERT INTO activity_log (issue_id, action, old_value, new_value, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		nullIfEmpty(a.IssueID), a.Action, nullIfEmpty(a.OldValue), nullIfEmpty(a.NewValue),
		nullIfEmpty(a.Source), created.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// GetActivity returns journal entries, most recent first. An empty issueID
// returns entries for every issue.
func GetActivity(db *sql.DB, issueID string, limit int) ([]model.Activity, error) {
	query := `SELECT id, issue_id, action, old_value, new_value, source, created_at
	          FROM activity_log`
	var args []any
	if issueID != "" {
		query += ` WHERE issue_id = ?`
		args = append(args, issueID)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying activity: %w", err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		var a model.Activity
		var issue, oldVal, newVal, source sql.NullString
		var createdAt string
		if err := rows.Scan(&a.ID, &issue, &a.Action, &oldVal, &newVal, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning activity row: %w", err)
		}
		a.IssueID = issue.String
		a.OldValue = oldVal.String
		a.NewValue = newVal.String
		a.Source = source.String

		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing activity created_at: %w", err)
		}
		a.CreatedAt = t

		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity rows: %w", err)
	}

	return activities, nil
}

// PruneActivity keeps only the newest keep entries.
func PruneActivity(db *sql.DB, keep int) (int64, error) {
	res, err := db.Exec(`DELETE FROM activity_log WHERE id NOT IN
		(SELECT id FROM activity_log ORDER BY created_at DESC, id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning activity: %w", err)
	}
	return res.RowsAffected()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
