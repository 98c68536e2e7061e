package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Status represents the lifecycle state of an issue.
type Status string

const (
	StatusSubmitted  Status = "submitted"
	StatusInReview   Status = "in_review"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusArchived   Status = "archived"
	StatusDuplicate  Status = "duplicate"
)

// Lifecycle is the forward-only order issues move through. Duplicate sits
// outside it: the server assigns it at submission time only.
var Lifecycle = []Status{
	StatusSubmitted,
	StatusInReview,
	StatusInProgress,
	StatusResolved,
	StatusArchived,
}

var validStatuses = append(append([]Status{}, Lifecycle...), StatusDuplicate)

// Statuses returns every recognized status, lifecycle order first.
func Statuses() []Status {
	return append([]Status{}, validStatuses...)
}

// ValidateStatus returns an error if s is not a recognized status.
func ValidateStatus(s Status) error {
	for _, v := range validStatuses {
		if s == v {
			return nil
		}
	}
	return fmt.Errorf("invalid status %q: must be one of %v", s, validStatuses)
}

// ParseStatus accepts canonical values ("in_review"), dashed forms
// ("in-review") and display labels ("In Review"), case-insensitively.
func ParseStatus(input string) (Status, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	st := Status(s)
	if err := ValidateStatus(st); err != nil {
		return "", err
	}
	return st, nil
}

// Rank returns the position of s in the lifecycle. Duplicate ranks right
// after submitted since it is only reachable from there.
func (s Status) Rank() int {
	for i, v := range Lifecycle {
		if s == v {
			return i
		}
	}
	if s == StatusDuplicate {
		return 1
	}
	return -1
}

// IsTerminal reports whether no further work is expected on the issue.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusResolved, StatusArchived, StatusDuplicate:
		return true
	default:
		return false
	}
}

// CanTransition reports whether staff may move an issue from s to next.
// Moves are strictly forward through the lifecycle; skipping ahead is
// allowed, and nothing leaves archived or duplicate.
func (s Status) CanTransition(next Status) bool {
	if s == StatusDuplicate || next == StatusDuplicate {
		return false
	}
	from, to := s.Rank(), next.Rank()
	if from < 0 || to < 0 {
		return false
	}
	return to > from
}

// Label returns the human-facing name, e.g. "In Review".
func (s Status) Label() string {
	switch s {
	case StatusSubmitted:
		return "Submitted"
	case StatusInReview:
		return "In Review"
	case StatusInProgress:
		return "In Progress"
	case StatusResolved:
		return "Resolved"
	case StatusArchived:
		return "Archived"
	case StatusDuplicate:
		return "Duplicate"
	default:
		return string(s)
	}
}

// Color returns a color name string suitable for terminal rendering.
func (s Status) Color() string {
	switch s {
	case StatusSubmitted:
		return "blue"
	case StatusInReview:
		return "yellow"
	case StatusInProgress:
		return "magenta"
	case StatusResolved:
		return "green"
	case StatusArchived:
		return "gray"
	case StatusDuplicate:
		return "red"
	default:
		return "white"
	}
}

// Icon returns a single-glyph marker for the status.
func (s Status) Icon() string {
	switch s {
	case StatusSubmitted:
		return "○"
	case StatusInReview:
		return "◔"
	case StatusInProgress:
		return "◑"
	case StatusResolved:
		return "✔"
	case StatusArchived:
		return "▣"
	case StatusDuplicate:
		return "≡"
	default:
		return "?"
	}
}

// Priority represents the urgency of an issue.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

var validPriorities = []Priority{
	PriorityLow,
	PriorityMedium,
	PriorityHigh,
}

// ValidatePriority returns an error if p is not a recognized priority.
func ValidatePriority(p Priority) error {
	for _, v := range validPriorities {
		if p == v {
			return nil
		}
	}
	return fmt.Errorf("invalid priority %q: must be one of %v", p, validPriorities)
}

// ParsePriority is case-insensitive and treats "normal" as medium.
func ParsePriority(input string) (Priority, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "normal" {
		return PriorityMedium, nil
	}
	p := Priority(s)
	if err := ValidatePriority(p); err != nil {
		return "", err
	}
	return p, nil
}

// Rank orders priorities low < medium < high.
func (p Priority) Rank() int {
	for i, v := range validPriorities {
		if p == v {
			return i
		}
	}
	return -1
}

// Color returns a color name string suitable for terminal rendering.
func (p Priority) Color() string {
	switch p {
	case PriorityHigh:
		return "red"
	case PriorityMedium:
		return "yellow"
	case PriorityLow:
		return "gray"
	default:
		return "white"
	}
}

// Icon returns a short urgency marker for the priority level.
func (p Priority) Icon() string {
	switch p {
	case PriorityHigh:
		return "!!"
	case PriorityMedium:
		return "!"
	case PriorityLow:
		return "-"
	default:
		return " "
	}
}

// Coordinate is a WGS84 position.
type Coordinate struct {
	Lat float64
	Lng float64
}

// ErrInvalidCoordinate is returned for non-finite or out-of-range positions.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Validate checks that both components are finite and within range.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lng) || math.IsInf(c.Lng, 0) {
		return fmt.Errorf("%w: latitude and longitude must be finite", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, c.Lat)
	}
	if c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, c.Lng)
	}
	return nil
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.5f, %.5f", c.Lat, c.Lng)
}

// ReporterRef points at the user who filed an issue. The user record itself
// lives with the remote service.
type ReporterRef struct {
	ID   string
	Name string
}

// Issue represents a reported civic problem.
type Issue struct {
	ID            string
	Title         string
	Description   string
	Category      string
	Priority      Priority
	Status        Status
	Location      Coordinate
	Address       string
	Reporter      ReporterRef
	Confirmations int
	PointsAwarded int
	Media         []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ErrMissingID is returned when an issue record has no identifier.
var ErrMissingID = errors.New("issue id is required")

// Validate rejects records that must never reach the issue store.
func (i *Issue) Validate() error {
	if strings.TrimSpace(i.ID) == "" {
		return ErrMissingID
	}
	if err := i.Location.Validate(); err != nil {
		return fmt.Errorf("issue %s: %w", i.ID, err)
	}
	return nil
}

// IsOpen reports whether the issue is still in a non-terminal state.
func (i *Issue) IsOpen() bool {
	return !i.Status.IsTerminal()
}

// Clone returns a deep copy of the issue.
func (i *Issue) Clone() *Issue {
	c := *i
	if i.Media != nil {
		c.Media = append([]string(nil), i.Media...)
	}
	return &c
}

// DisplayTitle falls back to the category and then the ID for untitled issues.
func (i *Issue) DisplayTitle() string {
	switch {
	case i.Title != "":
		return i.Title
	case i.Category != "":
		return i.Category
	default:
		return i.ID
	}
}

type locationJSON struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address,omitempty"`
}

type reporterJSON struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// issueJSON is the JSON wire format for Issue.
type issueJSON struct {
	ID            string        `json:"id"`
	LegacyID      string        `json:"issue_id,omitempty"`
	Title         string        `json:"title"`
	Description   string        `json:"description"`
	Category      string        `json:"category"`
	Priority      string        `json:"priority"`
	Status        string        `json:"status"`
	Location      *locationJSON `json:"location,omitempty"`
	Latitude      *float64      `json:"latitude,omitempty"`
	Longitude     *float64      `json:"longitude,omitempty"`
	Reporter      *reporterJSON `json:"reporter,omitempty"`
	Confirmations int           `json:"confirmations"`
	PointsAwarded int           `json:"pointsAwarded"`
	Media         []string      `json:"mediaUrls,omitempty"`
	CreatedAt     string        `json:"createdAt"`
	UpdatedAt     string        `json:"updatedAt"`
	LegacyCreated string        `json:"created_at,omitempty"`
	LegacyUpdated string        `json:"updated_at,omitempty"`
}

// MarshalJSON implements custom JSON serialization for Issue.
func (i Issue) MarshalJSON() ([]byte, error) {
	lat, lng := i.Location.Lat, i.Location.Lng
	j := issueJSON{
		ID:            i.ID,
		Title:         i.Title,
		Description:   i.Description,
		Category:      i.Category,
		Priority:      string(i.Priority),
		Status:        string(i.Status),
		Location:      &locationJSON{Lat: &lat, Lng: &lng, Address: i.Address},
		Confirmations: i.Confirmations,
		PointsAwarded: i.PointsAwarded,
		Media:         i.Media,
		CreatedAt:     formatTime(i.CreatedAt),
		UpdatedAt:     formatTime(i.UpdatedAt),
	}
	if i.Reporter != (ReporterRef{}) {
		j.Reporter = &reporterJSON{ID: i.Reporter.ID, Name: i.Reporter.Name}
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements custom JSON deserialization for Issue. It accepts
// both the nested location object and flat latitude/longitude keys.
func (i *Issue) UnmarshalJSON(data []byte) error {
	var j issueJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}

	i.ID = firstNonEmpty(j.ID, j.LegacyID)
	i.Title = j.Title
	i.Description = j.Description
	i.Category = j.Category
	i.Confirmations = j.Confirmations
	i.PointsAwarded = j.PointsAwarded
	i.Media = j.Media

	if j.Status != "" {
		st, err := ParseStatus(j.Status)
		if err != nil {
			return err
		}
		i.Status = st
	}
	if j.Priority != "" {
		p, err := ParsePriority(j.Priority)
		if err != nil {
			return err
		}
		i.Priority = p
	}

	var lat, lng *float64
	if j.Location != nil {
		lat, lng = j.Location.Lat, j.Location.Lng
		i.Address = j.Location.Address
	}
	if lat == nil {
		lat = j.Latitude
	}
	if lng == nil {
		lng = j.Longitude
	}
	if lat == nil || lng == nil {
		return fmt.Errorf("%w: latitude and longitude are required", ErrInvalidCoordinate)
	}
	i.Location = Coordinate{Lat: *lat, Lng: *lng}

	if j.Reporter != nil {
		i.Reporter = ReporterRef{ID: j.Reporter.ID, Name: j.Reporter.Name}
	}

	createdAt, err := parseTime(firstNonEmpty(j.CreatedAt, j.LegacyCreated))
	if err != nil {
		return fmt.Errorf("parsing createdAt: %w", err)
	}
	i.CreatedAt = createdAt

	updatedAt, err := parseTime(firstNonEmpty(j.UpdatedAt, j.LegacyUpdated))
	if err != nil {
		return fmt.Errorf("parsing updatedAt: %w", err)
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	i.UpdatedAt = updatedAt

	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// zonelessLayouts are the timestamp shapes some servers emit without an
// offset. They are read as UTC.
var zonelessLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// parseTime treats an empty string as the zero time. RFC 3339 parsing accepts
// fractional seconds, which the staleness check relies on.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	for _, layout := range zonelessLayouts {
		if zt, zerr := time.ParseInLocation(layout, s, time.UTC); zerr == nil {
			return zt, nil
		}
	}
	return time.Time{}, err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
