package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ALT-F4-LLC/citywatch/internal/classify"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

// PendingQueue is a durable classify.PendingQueue backed by the
// pending_reports table.
type PendingQueue struct {
	db *sql.DB
}

var _ classify.PendingQueue = (*PendingQueue)(nil)

// NewPendingQueue returns a queue over an initialized database.
func NewPendingQueue(db *sql.DB) *PendingQueue {
	return &PendingQueue{db: db}
}

func (q *PendingQueue) Save(p model.PendingReport) error {
	if p.Report == nil || p.Report.ClientID == "" {
		return errors.New("pending report needs a client id")
	}
	payload, err := json.Marshal(p.Report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	_, err = q.db.Exec(`INSERT INTO pending_reports
		(client_id, payload, attempts, last_error, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			payload = excluded.payload,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		p.Report.ClientID, string(payload), p.Attempts, nullIfEmpty(p.LastError),
		p.Report.SubmittedAt.UTC().Format(timeLayout), updated.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving pending report: %w", err)
	}
	return nil
}

func (q *PendingQueue) Load(clientID string) (*model.PendingReport, error) {
	row := q.db.QueryRow(`SELECT payload, attempts, last_error, updated_at
		FROM pending_reports WHERE client_id = ?`, clientID)
	p, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, classify.ErrNotPending
	}
	return p, err
}

func (q *PendingQueue) List() ([]model.PendingReport, error) {
	rows, err := q.db.Query(`SELECT payload, attempts, last_error, updated_at
		FROM pending_reports ORDER BY submitted_at ASC, client_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying pending reports: %w", err)
	}
	defer rows.Close()

	out := make([]model.PendingReport, 0)
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending reports: %w", err)
	}
	return out, nil
}

func (q *PendingQueue) Delete(clientID string) error {
	res, err := q.db.Exec(`DELETE FROM pending_reports WHERE client_id = ?`, clientID)
	if err != nil {
		return fmt.Errorf("deleting pending report: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return classify.ErrNotPending
	}
	return nil
}

func scanPending(s scanner) (*model.PendingReport, error) {
	var payload, updatedAt string
	var lastErr sql.NullString
	var p model.PendingReport
	if err := s.Scan(&payload, &p.Attempts, &lastErr, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning pending report: %w", err)
	}
	var r model.Report
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("decoding pending report: %w", err)
	}
	p.Report = &r
	p.LastError = lastErr.String
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing pending updated_at: %w", err)
	}
	p.UpdatedAt = t
	return &p, nil
}
