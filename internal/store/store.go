// Package store holds the locally reconciled issue collection.
package store

import (
	"sort"
	"sync"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

type entry struct {
	issue *model.Issue
	seq   uint64
}

// IssueStore is a keyed collection of issues. A record is only replaced by a
// strictly newer version, so events may arrive in any order.
type IssueStore struct {
	mu      sync.Mutex
	issues  map[string]entry
	seq     uint64
	changes chan struct{}
}

// New returns an empty store.
func New() *IssueStore {
	return &IssueStore{
		issues:  make(map[string]entry),
		changes: make(chan struct{}, 1),
	}
}

// Upsert inserts issue if absent, or replaces the stored copy when issue is
// strictly newer. It reports whether the store changed. Stale writes are
// silently ignored.
func (s *IssueStore) Upsert(issue *model.Issue) bool {
	if issue == nil || issue.ID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.upsertLocked(issue) {
		return false
	}
	s.notify()
	return true
}

func (s *IssueStore) upsertLocked(issue *model.Issue) bool {
	if cur, ok := s.issues[issue.ID]; ok && !issue.UpdatedAt.After(cur.issue.UpdatedAt) {
		return false
	}
	s.seq++
	s.issues[issue.ID] = entry{issue: issue.Clone(), seq: s.seq}
	return true
}

// Remove deletes the issue with id. Removing an absent id is a no-op.
func (s *IssueStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.issues[id]; !ok {
		return false
	}
	s.seq++
	delete(s.issues, id)
	s.notify()
	return true
}

// Get returns a copy of the issue with id.
func (s *IssueStore) Get(id string) (*model.Issue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.issues[id]
	if !ok {
		return nil, false
	}
	return e.issue.Clone(), true
}

// Len returns the number of stored issues.
func (s *IssueStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issues)
}

// Snapshot returns deep copies of every issue, newest first with ties broken
// by ID. Later mutations are never reflected in a returned snapshot.
func (s *IssueStore) Snapshot() []*model.Issue {
	s.mu.Lock()
	out := make([]*model.Issue, 0, len(s.issues))
	for _, e := range s.issues {
		out = append(out, e.issue.Clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Mark returns the current write sequence. Pass it to Sync after a full fetch
// that started once Mark had returned.
func (s *IssueStore) Mark() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// SyncResult counts what a Sync changed.
type SyncResult struct {
	Upserted int
	Removed  int
}

// Sync reconciles the store against a full fetch. Every fetched issue is
// upserted; stored issues absent from fetched are removed unless they were
// written after mark.
func (s *IssueStore) Sync(fetched []*model.Issue, mark uint64) SyncResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res SyncResult
	seen := make(map[string]struct{}, len(fetched))
	for _, issue := range fetched {
		if issue == nil || issue.ID == "" {
			continue
		}
		seen[issue.ID] = struct{}{}
		if s.upsertLocked(issue) {
			res.Upserted++
		}
	}
	for id, e := range s.issues {
		if _, ok := seen[id]; ok || e.seq > mark {
			continue
		}
		delete(s.issues, id)
		res.Removed++
	}
	if res.Removed > 0 {
		s.seq++
	}
	if res.Upserted > 0 || res.Removed > 0 {
		s.notify()
	}
	return res
}

// Changes returns a channel that receives a value after mutations. Bursts of
// writes coalesce into a single pending notification.
func (s *IssueStore) Changes() <-chan struct{} {
	return s.changes
}

func (s *IssueStore) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
