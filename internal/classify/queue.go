package classify

import (
	"errors"
	"sort"
	"sync"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

// ErrNotPending is returned when no queued report has the given ClientID.
var ErrNotPending = errors.New("no pending report with that client id")

// PendingQueue stores reports that have not received a verdict, keyed by
// ClientID.
type PendingQueue interface {
	// Save inserts or replaces the entry for p.Report.ClientID.
	Save(p model.PendingReport) error
	Load(clientID string) (*model.PendingReport, error)
	// List returns entries ordered by submission time, oldest first.
	List() ([]model.PendingReport, error)
	Delete(clientID string) error
}

// MemoryQueue is a PendingQueue that lives for the process only.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]model.PendingReport
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{entries: make(map[string]model.PendingReport)}
}

func copyPending(p model.PendingReport) model.PendingReport {
	if p.Report != nil {
		r := *p.Report
		r.Media = append([]string(nil), p.Report.Media...)
		p.Report = &r
	}
	return p
}

func (q *MemoryQueue) Save(p model.PendingReport) error {
	if p.Report == nil || p.Report.ClientID == "" {
		return errors.New("pending report needs a client id")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[p.Report.ClientID] = copyPending(p)
	return nil
}

func (q *MemoryQueue) Load(clientID string) (*model.PendingReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := q.entries[clientID]
	if !ok {
		return nil, ErrNotPending
	}
	p = copyPending(p)
	return &p, nil
}

func (q *MemoryQueue) List() ([]model.PendingReport, error) {
	q.mu.Lock()
	out := make([]model.PendingReport, 0, len(q.entries))
	for _, p := range q.entries {
		out = append(out, copyPending(p))
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Report, out[j].Report
		if !a.SubmittedAt.Equal(b.SubmittedAt) {
			return a.SubmittedAt.Before(b.SubmittedAt)
		}
		return a.ClientID < b.ClientID
	})
	return out, nil
}

func (q *MemoryQueue) Delete(clientID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.entries[clientID]; !ok {
		return ErrNotPending
	}
	delete(q.entries, clientID)
	return nil
}
