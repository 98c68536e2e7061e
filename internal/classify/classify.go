// Package classify submits new reports and interprets the remote service's
// duplicate verdicts. Similarity is decided by the server only.
package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/store"
)

// Remote submits a report for classification.
type Remote interface {
	SubmitReport(ctx context.Context, r *model.Report, candidates []string) (*api.SubmitResult, error)
}

// OutcomeKind is the verdict category of a submission.
type OutcomeKind string

const (
	OutcomeCreated   OutcomeKind = "created"
	OutcomeDuplicate OutcomeKind = "duplicate"
)

// Outcome is the interpreted result of a submission.
//
// For OutcomeCreated, Issue is the new record (nil if the server only named
// it). For OutcomeDuplicate, IssueID names the existing issue and Issue is the
// local copy when the store has one.
type Outcome struct {
	Kind     OutcomeKind  `json:"outcome"`
	ClientID string       `json:"client_id"`
	IssueID  string       `json:"issue_id"`
	Message  string       `json:"message,omitempty"`
	Issue    *model.Issue `json:"issue,omitempty"`
}

// RetryableError means the server gave no verdict. The report stays queued
// under ClientID and can be retried with the same idempotency key.
type RetryableError struct {
	ClientID string
	Err      error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("submission %s not classified, retry later: %v", e.ClientID, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// ErrNoVerdict is wrapped by RetryableError when the server answered
// successfully but without a usable issue or verdict.
var ErrNoVerdict = errors.New("response carried neither an issue nor a verdict")

// Classifier submits reports and keeps undecided ones in a pending queue.
type Classifier struct {
	store  *store.IssueStore
	remote Remote
	queue  PendingQueue
	log    *slog.Logger
	now    func() time.Time
}

// New returns a Classifier. A nil queue uses an in-memory queue.
func New(st *store.IssueStore, remote Remote, queue PendingQueue, logger *slog.Logger) *Classifier {
	if queue == nil {
		queue = NewMemoryQueue()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{store: st, remote: remote, queue: queue, log: logger, now: time.Now}
}

// Candidates returns the ids of open issues the server should compare a new
// report against.
func Candidates(snapshot []*model.Issue) []string {
	ids := make([]string, 0, len(snapshot))
	for _, i := range snapshot {
		if i.IsOpen() {
			ids = append(ids, i.ID)
		}
	}
	return ids
}

// Submit validates r, queues it and sends it for classification.
//
// Errors: validation failures wrap model.ErrInvalidReport or
// api.ErrLocalMedia and never queue; api.ErrSessionInvalid leaves the report
// queued; *api.RejectionError removes it; anything else is returned as a
// *RetryableError with the report still queued.
func (c *Classifier) Submit(ctx context.Context, r *model.Report) (*Outcome, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if r.Priority == "" {
		r.Priority = model.PriorityMedium
	}
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = c.now().UTC()
	}

	p, err := c.queue.Load(r.ClientID)
	switch {
	case errors.Is(err, ErrNotPending):
		p = &model.PendingReport{Report: r}
	case err != nil:
		return nil, fmt.Errorf("loading pending report: %w", err)
	default:
		p.Report = r
	}
	return c.attempt(ctx, p)
}

// Retry resends a queued report with its original ClientID.
func (c *Classifier) Retry(ctx context.Context, clientID string) (*Outcome, error) {
	p, err := c.queue.Load(clientID)
	if err != nil {
		return nil, err
	}
	return c.attempt(ctx, p)
}

// Discard drops a queued report without sending it.
func (c *Classifier) Discard(clientID string) error {
	return c.queue.Delete(clientID)
}

// Pending lists queued reports, oldest first.
func (c *Classifier) Pending() ([]model.PendingReport, error) {
	return c.queue.List()
}

func (c *Classifier) attempt(ctx context.Context, p *model.PendingReport) (*Outcome, error) {
	r := p.Report
	p.Attempts++
	p.UpdatedAt = c.now().UTC()
	if err := c.queue.Save(*p); err != nil {
		return nil, fmt.Errorf("queueing report: %w", err)
	}

	candidates := Candidates(c.store.Snapshot())
	c.log.Debug("submitting report", "client_id", r.ClientID, "attempt", p.Attempts, "candidates", len(candidates))

	res, err := c.remote.SubmitReport(ctx, r, candidates)
	if err != nil {
		return nil, c.fail(p, err)
	}

	out, err := c.interpret(r, res)
	if err != nil {
		return nil, c.fail(p, err)
	}
	if err := c.queue.Delete(r.ClientID); err != nil && !errors.Is(err, ErrNotPending) {
		c.log.Warn("removing classified report from queue", "client_id", r.ClientID, "error", err)
	}
	return out, nil
}

// fail records a failed attempt and maps err to what the caller sees.
func (c *Classifier) fail(p *model.PendingReport, err error) error {
	clientID := p.Report.ClientID

	var rej *api.RejectionError
	switch {
	case errors.Is(err, api.ErrLocalMedia):
		c.drop(clientID)
		return err
	case errors.As(err, &rej):
		c.drop(clientID)
		return err
	case errors.Is(err, api.ErrSessionInvalid):
		c.note(p, err)
		return err
	default:
		c.note(p, err)
		c.log.Warn("report kept pending", "client_id", clientID, "error", err)
		return &RetryableError{ClientID: clientID, Err: err}
	}
}

func (c *Classifier) note(p *model.PendingReport, err error) {
	p.LastError = err.Error()
	if serr := c.queue.Save(*p); serr != nil {
		c.log.Warn("recording submission failure", "client_id", p.Report.ClientID, "error", serr)
	}
}

func (c *Classifier) drop(clientID string) {
	if err := c.queue.Delete(clientID); err != nil && !errors.Is(err, ErrNotPending) {
		c.log.Warn("removing rejected report from queue", "client_id", clientID, "error", err)
	}
}

// interpret turns a response into an outcome. Responses that are neither a
// valid created issue nor a consistent verdict are errors, never a default
// verdict.
func (c *Classifier) interpret(r *model.Report, res *api.SubmitResult) (*Outcome, error) {
	if res == nil {
		return nil, ErrNoVerdict
	}

	if v := res.Verdict; v != nil {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", api.ErrMalformedPayload, err)
		}
		if v.IsDuplicate {
			out := &Outcome{Kind: OutcomeDuplicate, ClientID: r.ClientID, IssueID: v.IssueID, Message: v.Message}
			if existing, ok := c.store.Get(v.IssueID); ok {
				out.Issue = existing
			}
			return out, nil
		}
		if res.Issue == nil {
			if v.IssueID == "" {
				return nil, ErrNoVerdict
			}
			out := &Outcome{Kind: OutcomeCreated, ClientID: r.ClientID, IssueID: v.IssueID, Message: v.Message}
			if existing, ok := c.store.Get(v.IssueID); ok {
				out.Issue = existing
			}
			return out, nil
		}
	}

	issue := res.Issue
	if issue == nil {
		return nil, ErrNoVerdict
	}
	if err := issue.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", api.ErrMalformedPayload, err)
	}
	if issue.Status == "" {
		issue.Status = model.StatusSubmitted
	}
	c.store.Upsert(issue)

	out := &Outcome{Kind: OutcomeCreated, ClientID: r.ClientID, IssueID: issue.ID, Issue: issue.Clone()}
	if res.Verdict != nil {
		out.Message = res.Verdict.Message
	}
	return out, nil
}
