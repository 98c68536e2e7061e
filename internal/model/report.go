package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report is a draft submission. ClientID is fixed at creation and sent as the
// idempotency key on every attempt so retries never create a second issue.
type Report struct {
	ClientID    string
	Title       string
	Description string
	Category    string
	Priority    Priority
	Location    Coordinate
	Address     string
	Media       []string
	SubmittedAt time.Time
}

// NewReport returns a draft with a fresh ClientID.
func NewReport(title, description, category string, priority Priority, loc Coordinate) *Report {
	if priority == "" {
		priority = PriorityMedium
	}
	return &Report{
		ClientID:    uuid.NewString(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Category:    strings.TrimSpace(category),
		Priority:    priority,
		Location:    loc,
		SubmittedAt: time.Now().UTC(),
	}
}

// ErrInvalidReport is returned for drafts that can never be accepted.
var ErrInvalidReport = errors.New("invalid report")

// Validate requires a title, a description and a usable coordinate.
func (r *Report) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidReport)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidReport)
	}
	if err := r.Location.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidReport, err)
	}
	if r.Priority != "" {
		if err := ValidatePriority(r.Priority); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReport, err)
		}
	}
	if _, err := uuid.Parse(r.ClientID); err != nil {
		return fmt.Errorf("%w: client id: %v", ErrInvalidReport, err)
	}
	return nil
}

// reportJSON is the JSON wire format for Report.
type reportJSON struct {
	ClientID    string   `json:"client_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Priority    string   `json:"priority"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Address     string   `json:"address,omitempty"`
	Media       []string `json:"media,omitempty"`
	SubmittedAt string   `json:"submitted_at"`
}

// MarshalJSON implements custom JSON serialization for Report.
func (r Report) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		ClientID:    r.ClientID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Priority:    string(r.Priority),
		Lat:         r.Location.Lat,
		Lng:         r.Location.Lng,
		Address:     r.Address,
		Media:       r.Media,
		SubmittedAt: formatTime(r.SubmittedAt),
	})
}

// UnmarshalJSON implements custom JSON deserialization for Report.
func (r *Report) UnmarshalJSON(data []byte) error {
	var j reportJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	r.ClientID = j.ClientID
	r.Title = j.Title
	r.Description = j.Description
	r.Category = j.Category
	r.Priority = Priority(j.Priority)
	r.Location = Coordinate{Lat: j.Lat, Lng: j.Lng}
	r.Address = j.Address
	r.Media = j.Media

	submittedAt, err := parseTime(j.SubmittedAt)
	if err != nil {
		return fmt.Errorf("parsing submitted_at: %w", err)
	}
	r.SubmittedAt = submittedAt
	return nil
}

// PendingReport is a submission awaiting a verdict from the server.
type PendingReport struct {
	Report    *Report   `json:"report"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
