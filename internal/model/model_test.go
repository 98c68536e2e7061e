package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"submitted", StatusSubmitted, false},
		{"in_review", StatusInReview, false},
		{"in-review", StatusInReview, false},
		{"In Review", StatusInReview, false},
		{"IN_PROGRESS", StatusInProgress, false},
		{" resolved ", StatusResolved, false},
		{"Archived", StatusArchived, false},
		{"duplicate", StatusDuplicate, false},
		{"", "", true},
		{"done", "", true},
	}

	for _, tt := range tests {
		got, err := ParseStatus(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStatus(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		input   string
		want    Priority
		wantErr bool
	}{
		{"low", PriorityLow, false},
		{"Medium", PriorityMedium, false},
		{"normal", PriorityMedium, false},
		{"HIGH", PriorityHigh, false},
		{"critical", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePriority(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePriority(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePriority(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusSubmitted, StatusInReview, true},
		{StatusSubmitted, StatusResolved, true},
		{StatusInProgress, StatusResolved, true},
		{StatusResolved, StatusArchived, true},
		{StatusInReview, StatusSubmitted, false},
		{StatusResolved, StatusInProgress, false},
		{StatusInReview, StatusInReview, false},
		{StatusArchived, StatusResolved, false},
		{StatusSubmitted, StatusDuplicate, false},
		{StatusDuplicate, StatusInReview, false},
		{Status("bogus"), StatusResolved, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%q.CanTransition(%q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatusTerminalAndLabel(t *testing.T) {
	if StatusInProgress.IsTerminal() {
		t.Error("StatusInProgress.IsTerminal() = true, want false")
	}
	for _, s := range []Status{StatusResolved, StatusArchived, StatusDuplicate} {
		if !s.IsTerminal() {
			t.Errorf("%q.IsTerminal() = false, want true", s)
		}
	}
	if l := StatusInReview.Label(); l != "In Review" {
		t.Errorf("StatusInReview.Label() = %q, want %q", l, "In Review")
	}
	if c := StatusResolved.Color(); c != "green" {
		t.Errorf("StatusResolved.Color() = %q, want %q", c, "green")
	}
}

func TestCoordinateValidate(t *testing.T) {
	tests := []struct {
		c       Coordinate
		wantErr bool
	}{
		{Coordinate{Lat: 28.6139, Lng: 77.209}, false},
		{Coordinate{Lat: -90, Lng: 180}, false},
		{Coordinate{Lat: 90.1, Lng: 0}, true},
		{Coordinate{Lat: 0, Lng: -180.5}, true},
		{Coordinate{Lat: math.NaN(), Lng: 0}, true},
		{Coordinate{Lat: 0, Lng: math.Inf(1)}, true},
	}

	for _, tt := range tests {
		err := tt.c.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%v.Validate() error = %v, wantErr %v", tt.c, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidCoordinate) {
			t.Errorf("%v.Validate() error = %v, want ErrInvalidCoordinate", tt.c, err)
		}
	}
}

func TestIssueJSONRoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	updated := created.Add(1500 * time.Millisecond)
	issue := Issue{
		ID:            "iss-1",
		Title:         "Pothole on Main St",
		Description:   "Deep and growing",
		Category:      "Roads",
		Priority:      PriorityHigh,
		Status:        StatusInReview,
		Location:      Coordinate{Lat: 12.97, Lng: 77.59},
		Address:       "Main St",
		Reporter:      ReporterRef{ID: "u1", Name: "Asha"},
		Confirmations: 3,
		Media:         []string{"https://cdn.example/1.jpg"},
		CreatedAt:     created,
		UpdatedAt:     updated,
	}

	data, err := json.Marshal(issue)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var raw map[string]any
	json.Unmarshal(data, &raw)
	if raw["status"] != "in_review" {
		t.Errorf("JSON status = %v, want %q", raw["status"], "in_review")
	}
	if raw["updatedAt"] != "2026-03-01T09:00:01.5Z" {
		t.Errorf("JSON updatedAt = %v, want fractional seconds", raw["updatedAt"])
	}

	var issue2 Issue
	if err := json.Unmarshal(data, &issue2); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if issue2.ID != "iss-1" || issue2.Address != "Main St" || issue2.Reporter.Name != "Asha" {
		t.Errorf("Unmarshaled issue = %+v", issue2)
	}
	if !issue2.UpdatedAt.Equal(updated) {
		t.Errorf("Unmarshaled UpdatedAt = %v, want %v", issue2.UpdatedAt, updated)
	}
	if issue2.Location != issue.Location {
		t.Errorf("Unmarshaled Location = %v, want %v", issue2.Location, issue.Location)
	}
}

func TestIssueJSONFlatCoordinatesAndLabels(t *testing.T) {
	data := []byte(`{"id":"7","title":"Broken light","status":"In Progress","priority":"Normal",
		"latitude":1.5,"longitude":2.5,"createdAt":"2026-01-01T00:00:00Z"}`)

	var issue Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if issue.Status != StatusInProgress {
		t.Errorf("Status = %q, want %q", issue.Status, StatusInProgress)
	}
	if issue.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want %q", issue.Priority, PriorityMedium)
	}
	if issue.Location != (Coordinate{Lat: 1.5, Lng: 2.5}) {
		t.Errorf("Location = %v", issue.Location)
	}
	if !issue.UpdatedAt.Equal(issue.CreatedAt) {
		t.Errorf("UpdatedAt = %v, want fallback to CreatedAt", issue.UpdatedAt)
	}
}

func TestIssueJSONMissingCoordinate(t *testing.T) {
	var issue Issue
	err := json.Unmarshal([]byte(`{"id":"1","location":{"lat":1}}`), &issue)
	if !errors.Is(err, ErrInvalidCoordinate) {
		t.Errorf("Unmarshal error = %v, want ErrInvalidCoordinate", err)
	}
}

func TestIssueValidateAndClone(t *testing.T) {
	issue := &Issue{ID: "", Location: Coordinate{Lat: 1, Lng: 1}}
	if err := issue.Validate(); !errors.Is(err, ErrMissingID) {
		t.Errorf("Validate() = %v, want ErrMissingID", err)
	}

	issue.ID = "a"
	issue.Media = []string{"x"}
	c := issue.Clone()
	c.Media[0] = "y"
	c.Title = "changed"
	if issue.Media[0] != "x" || issue.Title != "" {
		t.Error("Clone() shares state with the original")
	}
}

func TestParseEvent(t *testing.T) {
	valid := `{"id":"a","location":{"lat":1,"lng":2},"updatedAt":"2026-01-01T00:00:00Z"}`
	tests := []struct {
		name     string
		input    string
		wantKind EventKind
		wantID   string
		wantErr  bool
	}{
		{"created issue", `{"type":"created","issue":` + valid + `}`, EventCreated, "a", false},
		{"updated report key", `{"type":"updated","report":` + valid + `}`, EventUpdated, "a", false},
		{"deleted issueId", `{"type":"deleted","issueId":"b"}`, EventDeleted, "b", false},
		{"deleted id", `{"type":"deleted","id":"c"}`, EventDeleted, "c", false},
		{"deleted payload", `{"type":"deleted","issue":{"id":"d"}}`, EventDeleted, "d", false},
		{"missing type", `{"issue":` + valid + `}`, "", "", true},
		{"unknown type", `{"type":"moved","issue":` + valid + `}`, "", "", true},
		{"missing payload", `{"type":"created"}`, "", "", true},
		{"invalid coordinate", `{"type":"updated","issue":{"id":"a","location":{"lat":100,"lng":0}}}`, "", "", true},
		{"missing id", `{"type":"created","issue":{"location":{"lat":1,"lng":2}}}`, "", "", true},
		{"deleted without id", `{"type":"deleted"}`, "", "", true},
		{"not json", `nope`, "", "", true},
	}

	for _, tt := range tests {
		ev, err := ParseEvent([]byte(tt.input))
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: ParseEvent error = %v, wantErr %v", tt.name, err, tt.wantErr)
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrMalformedEvent) {
				t.Errorf("%s: error = %v, want ErrMalformedEvent", tt.name, err)
			}
			continue
		}
		if ev.Kind != tt.wantKind || ev.IssueID != tt.wantID {
			t.Errorf("%s: ParseEvent = {%q %q}, want {%q %q}", tt.name, ev.Kind, ev.IssueID, tt.wantKind, tt.wantID)
		}
	}
}

func TestVerdictValidate(t *testing.T) {
	if err := (Verdict{IsDuplicate: true}).Validate(); !errors.Is(err, ErrIncompleteVerdict) {
		t.Errorf("Validate() = %v, want ErrIncompleteVerdict", err)
	}
	if err := (Verdict{IsDuplicate: true, IssueID: "x"}).Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if err := (Verdict{}).Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestReportValidate(t *testing.T) {
	r := NewReport("Streetlight out", "Dark since Monday", "Lighting", "", Coordinate{Lat: 1, Lng: 2})
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if r.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want default %q", r.Priority, PriorityMedium)
	}

	r2 := *r
	r2.Title = "  "
	if err := r2.Validate(); !errors.Is(err, ErrInvalidReport) {
		t.Errorf("Validate() blank title = %v, want ErrInvalidReport", err)
	}

	r3 := *r
	r3.Location = Coordinate{Lat: math.NaN()}
	if err := r3.Validate(); !errors.Is(err, ErrInvalidReport) {
		t.Errorf("Validate() NaN = %v, want ErrInvalidReport", err)
	}

	other := NewReport("a", "b", "", "", Coordinate{})
	if other.ClientID == r.ClientID {
		t.Error("NewReport reused a ClientID")
	}
}

func TestCommentJSONAuthorShapes(t *testing.T) {
	var c Comment
	if err := json.Unmarshal([]byte(`{"id":"1","text":"hi","author":{"id":"u","name":"Ravi"},"createdAt":"2026-01-01T00:00:00Z"}`), &c); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if c.Body != "hi" || c.Author != "Ravi" {
		t.Errorf("Comment = %+v", c)
	}

	if err := json.Unmarshal([]byte(`{"id":"2","text":"yo","author":"Mei"}`), &c); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if c.Author != "Mei" {
		t.Errorf("Author = %q, want %q", c.Author, "Mei")
	}
}

func TestIssueJSONSnakeCaseKeys(t *testing.T) {
	data := []byte(`{"issue_id":"42","title":"Flooded underpass","location":{"lat":1,"lng":2},
		"created_at":"2026-03-04T05:06:07.125","updated_at":"2026-03-04 06:00:00"}`)

	var issue Issue
	if err := json.Unmarshal(data, &issue); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if issue.ID != "42" {
		t.Errorf("ID = %q, want %q", issue.ID, "42")
	}
	wantCreated := time.Date(2026, 3, 4, 5, 6, 7, 125e6, time.UTC)
	if !issue.CreatedAt.Equal(wantCreated) {
		t.Errorf("CreatedAt = %v, want %v", issue.CreatedAt, wantCreated)
	}
	wantUpdated := time.Date(2026, 3, 4, 6, 0, 0, 0, time.UTC)
	if !issue.UpdatedAt.Equal(wantUpdated) {
		t.Errorf("UpdatedAt = %v, want %v", issue.UpdatedAt, wantUpdated)
	}
}

func TestCommentJSONSnakeCaseKeys(t *testing.T) {
	var c Comment
	data := []byte(`{"comment_id":"c9","issue_id":"42","text":"crew dispatched","created_at":"2026-03-04T05:06:07"}`)
	if err := json.Unmarshal(data, &c); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if c.ID != "c9" || c.IssueID != "42" {
		t.Errorf("Comment = %+v", c)
	}
	want := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if !c.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", c.CreatedAt, want)
	}
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"", time.Time{}, false},
		{"2026-01-02T03:04:05Z", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"2026-01-02T03:04:05+02:00", time.Date(2026, 1, 2, 1, 4, 5, 0, time.UTC), false},
		{"2026-01-02T03:04:05.5", time.Date(2026, 1, 2, 3, 4, 5, 5e8, time.UTC), false},
		{"2026-01-02T03:04:05", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"2026-01-02 03:04:05", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), false},
		{"yesterday", time.Time{}, true},
	}

	for _, tt := range tests {
		got, err := parseTime(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseTime(%q) error = nil, want error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseTime(%q) error = %v", tt.in, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseTime(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRankLeaderboard(t *testing.T) {
	entries := []LeaderboardEntry{
		{Name: "bo", Points: 10},
		{Name: "Al", Points: 30},
		{Name: "al2", Points: 10},
	}
	RankLeaderboard(entries)
	want := []string{"Al", "al2", "bo"}
	for i, w := range want {
		if entries[i].Name != w {
			t.Errorf("entries[%d].Name = %q, want %q", i, entries[i].Name, w)
		}
	}
}
