package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

const (
	metaGeneration = "snapshot_generation"
	metaSyncedAt   = "snapshot_synced_at"
)

// SaveSnapshot replaces the cached issue set with issues. Rows for issues no
// longer present are removed along with their cached comments.
func SaveSnapshot(db *sql.DB, issues []*model.Issue) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var gen int64
	var genStr sql.NullString
	err = tx.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaGeneration).Scan(&genStr)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("reading snapshot generation: %w", err)
	}
	if genStr.Valid {
		gen, _ = strconv.ParseInt(genStr.String, 10, 64)
	}
	gen++

	stmt, err := tx.Prepare(`INSERT INTO issues
		(id, payload, status, category, reporter_id, generation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			status = excluded.status,
			category = excluded.category,
			reporter_id = excluded.reporter_id,
			generation = excluded.generation,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, issue := range issues {
		payload, err := json.Marshal(issue)
		if err != nil {
			return fmt.Errorf("encoding issue %s: %w", issue.ID, err)
		}
		if _, err := stmt.Exec(
			issue.ID,
			string(payload),
			string(issue.Status),
			issue.Category,
			issue.Reporter.ID,
			gen,
			issue.CreatedAt.UTC().Format(timeLayout),
			issue.UpdatedAt.UTC().Format(timeLayout),
		); err != nil {
			return fmt.Errorf("caching issue %s: %w", issue.ID, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM issues WHERE generation < ?`, gen); err != nil {
		return fmt.Errorf("pruning snapshot: %w", err)
	}
	if err := setMeta(tx, metaGeneration, strconv.FormatInt(gen, 10)); err != nil {
		return err
	}
	if err := setMeta(tx, metaSyncedAt, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	return tx.Commit()
}

// SaveIssue caches one issue outside a full snapshot, such as a freshly
// created report or a status change. An older version never overwrites a
// newer cached one. The row joins the current generation, so the next
// snapshot prunes it if the server no longer lists it.
func SaveIssue(db *sql.DB, issue *model.Issue) error {
	payload, err := json.Marshal(issue)
	if err != nil {
		return fmt.Errorf("encoding issue %s: %w", issue.ID, err)
	}
	_, err = db.Exec(`INSERT INTO issues
		(id, payload, status, category, reporter_id, generation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, COALESCE((SELECT CAST(value AS INTEGER) FROM meta WHERE key = ?), 0), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			payload = excluded.payload,
			status = excluded.status,
			category = excluded.category,
			reporter_id = excluded.reporter_id,
			updated_at = excluded.updated_at
		WHERE excluded.updated_at > issues.updated_at`,
		issue.ID,
		string(payload),
		string(issue.Status),
		issue.Category,
		issue.Reporter.ID,
		metaGeneration,
		issue.CreatedAt.UTC().Format(timeLayout),
		issue.UpdatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("caching issue %s: %w", issue.ID, err)
	}
	return nil
}

// LoadSnapshot returns the cached issues, newest first.
func LoadSnapshot(db *sql.DB) ([]*model.Issue, error) {
	rows, err := db.Query(`SELECT payload FROM issues ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	defer rows.Close()

	issues := make([]*model.Issue, 0)
	for rows.Next() {
		issue, err := scanIssueFrom(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshot rows: %w", err)
	}
	return issues, nil
}

// GetCachedIssue returns one cached issue or ErrNotFound.
func GetCachedIssue(db *sql.DB, id string) (*model.Issue, error) {
	row := db.QueryRow(`SELECT payload FROM issues WHERE id = ?`, id)
	issue, err := scanIssueFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return issue, err
}

// LastSynced returns when the snapshot was last saved. The zero time means
// the cache has never been filled.
func LastSynced(db *sql.DB) (time.Time, error) {
	val, err := getMeta(db, metaSyncedAt)
	if err != nil || val == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", metaSyncedAt, err)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIssueFrom(s scanner) (*model.Issue, error) {
	var payload string
	if err := s.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning issue row: %w", err)
	}
	var issue model.Issue
	if err := json.Unmarshal([]byte(payload), &issue); err != nil {
		return nil, fmt.Errorf("decoding cached issue: %w", err)
	}
	return &issue, nil
}
