package db

import (
	"errors"
	"testing"
	"time"

	"github.com/ALT-F4-LLC/citywatch/internal/classify"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

var ts = time.Date(2026, 4, 10, 9, 30, 0, 0, time.UTC)

func cached(id string, offset time.Duration) *model.Issue {
	return &model.Issue{
		ID:        id,
		Title:     "issue " + id,
		Category:  "Roads",
		Status:    model.StatusInReview,
		Priority:  model.PriorityHigh,
		Location:  model.Coordinate{Lat: 12.97, Lng: 77.59},
		Reporter:  model.ReporterRef{ID: "u1", Name: "Asha"},
		CreatedAt: ts.Add(offset),
		UpdatedAt: ts.Add(offset + 500*time.Millisecond),
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := mustInit(t)

	when, err := LastSynced(db)
	if err != nil || !when.IsZero() {
		t.Fatalf("LastSynced on empty cache = %v, %v", when, err)
	}

	if err := SaveSnapshot(db, []*model.Issue{cached("a", 0), cached("b", time.Second)}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	issues, err := LoadSnapshot(db)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("len(issues) = %d, want 2", len(issues))
	}
	if issues[0].ID != "b" {
		t.Errorf("issues[0].ID = %q, want newest first", issues[0].ID)
	}
	if !issues[1].UpdatedAt.Equal(ts.Add(500 * time.Millisecond)) {
		t.Errorf("UpdatedAt = %v, lost sub-second precision", issues[1].UpdatedAt)
	}
	if issues[1].Reporter.Name != "Asha" {
		t.Errorf("Reporter.Name = %q, want %q", issues[1].Reporter.Name, "Asha")
	}

	when, err = LastSynced(db)
	if err != nil || when.IsZero() {
		t.Errorf("LastSynced after save = %v, %v", when, err)
	}
}

func TestSaveSnapshotPrunesAbsent(t *testing.T) {
	db := mustInit(t)

	if err := SaveSnapshot(db, []*model.Issue{cached("a", 0), cached("b", 0)}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := SaveComments(db, "b", []model.Comment{{ID: "c1", Body: "hi", CreatedAt: ts}}); err != nil {
		t.Fatalf("SaveComments: %v", err)
	}

	if err := SaveSnapshot(db, []*model.Issue{cached("a", 0)}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	if _, err := GetCachedIssue(db, "b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCachedIssue(b) error = %v, want ErrNotFound", err)
	}
	comments, err := ListComments(db, "b")
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 0 {
		t.Errorf("comments for pruned issue = %d, want 0", len(comments))
	}
	if _, err := GetCachedIssue(db, "a"); err != nil {
		t.Errorf("GetCachedIssue(a) error = %v", err)
	}
}

func TestCommentsAppendOnly(t *testing.T) {
	db := mustInit(t)
	SaveSnapshot(db, []*model.Issue{cached("a", 0)})

	first := []model.Comment{{ID: "c1", Body: "reported", Author: "Asha", CreatedAt: ts}}
	if err := SaveComments(db, "a", first); err != nil {
		t.Fatalf("SaveComments: %v", err)
	}
	second := []model.Comment{
		{ID: "c1", Body: "edited?", CreatedAt: ts},
		{ID: "c2", Body: "crew assigned", CreatedAt: ts.Add(time.Minute)},
	}
	if err := SaveComments(db, "a", second); err != nil {
		t.Fatalf("SaveComments: %v", err)
	}

	comments, err := ListComments(db, "a")
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("len(comments) = %d, want 2", len(comments))
	}
	if comments[0].Body != "reported" {
		t.Errorf("comments[0].Body = %q, cached comments must not change", comments[0].Body)
	}
	if comments[1].ID != "c2" {
		t.Errorf("comments[1].ID = %q, want c2", comments[1].ID)
	}

	if err := SaveComments(db, "missing", first); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveComments(missing) error = %v, want ErrNotFound", err)
	}
}

func TestActivityJournal(t *testing.T) {
	db := mustInit(t)

	entries := []model.Activity{
		{IssueID: "a", Action: model.ActionCreated, Source: model.SourceStream, CreatedAt: ts},
		{IssueID: "a", Action: model.ActionStatus, OldValue: "submitted", NewValue: "in_review", Source: model.SourceCLI, CreatedAt: ts.Add(time.Second)},
		{Action: model.ActionRepaired, NewValue: "fetched 3", Source: model.SourceRepair, CreatedAt: ts.Add(2 * time.Second)},
	}
	for _, a := range entries {
		if err := RecordActivity(db, a); err != nil {
			t.Fatalf("RecordActivity: %v", err)
		}
	}

	all, err := GetActivity(db, "", 0)
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if len(all) != 3 || all[0].Action != model.ActionRepaired {
		t.Errorf("GetActivity(all) = %+v", all)
	}

	forA, err := GetActivity(db, "a", 1)
	if err != nil {
		t.Fatalf("GetActivity: %v", err)
	}
	if len(forA) != 1 || forA[0].NewValue != "in_review" {
		t.Errorf("GetActivity(a, 1) = %+v", forA)
	}

	n, err := PruneActivity(db, 1)
	if err != nil {
		t.Fatalf("PruneActivity: %v", err)
	}
	if n != 2 {
		t.Errorf("PruneActivity removed %d, want 2", n)
	}
}

func TestPendingQueue(t *testing.T) {
	q := NewPendingQueue(mustInit(t))

	older := model.NewReport("Bin", "Overflowing", "Sanitation", model.PriorityLow, model.Coordinate{Lat: 1, Lng: 2})
	older.SubmittedAt = ts
	older.Media = []string{"/tmp/bin.jpg"}
	newer := model.NewReport("Light", "Out", "Lighting", "", model.Coordinate{Lat: 3, Lng: 4})
	newer.SubmittedAt = ts.Add(time.Hour)

	if err := q.Save(model.PendingReport{Report: newer, Attempts: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := q.Save(model.PendingReport{Report: older, Attempts: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := q.Save(model.PendingReport{Report: older, Attempts: 2, LastError: "timeout", UpdatedAt: ts}); err != nil {
		t.Fatalf("Save (update): %v", err)
	}

	list, err := q.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len(List) = %d, want 2", len(list))
	}
	if list[0].Report.ClientID != older.ClientID {
		t.Errorf("List()[0] = %s, want oldest first", list[0].Report.ClientID)
	}

	got, err := q.Load(older.ClientID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Attempts != 2 || got.LastError != "timeout" {
		t.Errorf("Load = attempts %d err %q, want 2 and timeout", got.Attempts, got.LastError)
	}
	if got.Report.Location != older.Location || len(got.Report.Media) != 1 {
		t.Errorf("Load report = %+v", got.Report)
	}

	if err := q.Delete(older.ClientID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := q.Delete(older.ClientID); !errors.Is(err, classify.ErrNotPending) {
		t.Errorf("second Delete error = %v, want ErrNotPending", err)
	}
	if _, err := q.Load(older.ClientID); !errors.Is(err, classify.ErrNotPending) {
		t.Errorf("Load after delete error = %v, want ErrNotPending", err)
	}
}

func TestSaveIssueKeepsNewest(t *testing.T) {
	db := mustInit(t)
	SaveSnapshot(db, []*model.Issue{cached("a", 0)})

	newer := cached("a", 0)
	newer.Status = model.StatusResolved
	newer.UpdatedAt = ts.Add(time.Hour)
	if err := SaveIssue(db, newer); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}

	older := cached("a", 0)
	older.Status = model.StatusSubmitted
	if err := SaveIssue(db, older); err != nil {
		t.Fatalf("SaveIssue: %v", err)
	}

	got, err := GetCachedIssue(db, "a")
	if err != nil {
		t.Fatalf("GetCachedIssue: %v", err)
	}
	if got.Status != model.StatusResolved {
		t.Errorf("Status = %s, older write must not win", got.Status)
	}

	if err := SaveIssue(db, cached("fresh", time.Minute)); err != nil {
		t.Fatalf("SaveIssue(fresh): %v", err)
	}
	if _, err := GetCachedIssue(db, "fresh"); err != nil {
		t.Errorf("GetCachedIssue(fresh) error = %v", err)
	}

	// The next snapshot prunes an issue the server no longer lists.
	if err := SaveSnapshot(db, []*model.Issue{cached("a", 0)}); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if _, err := GetCachedIssue(db, "fresh"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetCachedIssue(fresh) after snapshot error = %v, want ErrNotFound", err)
	}
}
