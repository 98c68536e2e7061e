// Package reconcile keeps an IssueStore consistent with the remote service by
// combining a full fetch with the push channel.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/store"
)

// Fetcher returns the full current issue list. Records the fetcher could not
// decode are left out of issues and counted in skipped.
type Fetcher interface {
	ListIssues(ctx context.Context) (issues []*model.Issue, skipped int, err error)
}

// Stream yields raw push-channel frames until it fails or is closed.
// Close must be safe to call more than once.
type Stream interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Subscriber opens a push-channel stream.
type Subscriber interface {
	Subscribe(ctx context.Context) (Stream, error)
}

// Outcome describes what happened to one event or repair.
type Outcome struct {
	Action  string
	IssueID string
	Source  string
	Detail  string
	Err     error
}

// Observer is called after every applied or dropped event and every repair.
// It runs on the reconciler's goroutine and must not block for long.
type Observer func(Outcome)

// Options configure a Reconciler. Zero durations take the defaults, except
// ResyncInterval where a negative value disables periodic resync.
type Options struct {
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	ResyncInterval    time.Duration
	Logger            *slog.Logger
	Observer          Observer

	// Fatal reports whether a connection or repair failure is permanent.
	// Run returns such errors instead of reconnecting. Nil treats every
	// failure as transient.
	Fatal func(error) bool
}

const (
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMultiplier     = 2.0
	DefaultResync         = 5 * time.Minute
)

// DefaultOptions returns the standard reconnect and resync settings.
func DefaultOptions() Options {
	return Options{
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultMultiplier,
		ResyncInterval:    DefaultResync,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = d.InitialBackoff
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = d.MaxBackoff
	}
	if o.BackoffMultiplier < 1 {
		o.BackoffMultiplier = d.BackoffMultiplier
	}
	if o.ResyncInterval == 0 {
		o.ResyncInterval = d.ResyncInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Stats is a point-in-time copy of the reconciler counters.
type Stats struct {
	Applied    int64 `json:"applied"`
	Stale      int64 `json:"stale"`
	Removed    int64 `json:"removed"`
	Malformed  int64 `json:"malformed"`
	Repairs    int64 `json:"repairs"`
	Reconnects int64 `json:"reconnects"`
}

type counters struct {
	applied, stale, removed, malformed, repairs, reconnects atomic.Int64
}

// Reconciler merges fetch results and push events into an IssueStore.
type Reconciler struct {
	store   *store.IssueStore
	fetcher Fetcher
	sub     Subscriber
	opts    Options
	log     *slog.Logger
	stats   counters
}

// New returns a Reconciler. sub may be nil for fetch-only use.
func New(st *store.IssueStore, fetcher Fetcher, sub Subscriber, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{
		store:   st,
		fetcher: fetcher,
		sub:     sub,
		opts:    opts,
		log:     opts.Logger,
	}
}

// Stats returns the current counters.
func (r *Reconciler) Stats() Stats {
	return Stats{
		Applied:    r.stats.applied.Load(),
		Stale:      r.stats.stale.Load(),
		Removed:    r.stats.removed.Load(),
		Malformed:  r.stats.malformed.Load(),
		Repairs:    r.stats.repairs.Load(),
		Reconnects: r.stats.reconnects.Load(),
	}
}

func (r *Reconciler) observe(o Outcome) {
	if r.opts.Observer != nil {
		r.opts.Observer(o)
	}
}

// Apply merges one event into the store. It reports whether the store
// changed.
func (r *Reconciler) Apply(ev model.Event) bool {
	switch ev.Kind {
	case model.EventCreated, model.EventUpdated:
		if ev.Issue == nil {
			r.drop(fmt.Errorf("%w: %s event without issue", model.ErrMalformedEvent, ev.Kind))
			return false
		}
		if err := ev.Issue.Validate(); err != nil {
			r.drop(fmt.Errorf("%w: %v", model.ErrMalformedEvent, err))
			return false
		}
		if !r.store.Upsert(ev.Issue) {
			r.stats.stale.Add(1)
			r.log.Debug("stale event ignored", "kind", ev.Kind, "issue", ev.Issue.ID)
			r.observe(Outcome{Action: model.ActionStale, IssueID: ev.Issue.ID, Source: model.SourceStream})
			return false
		}
		r.stats.applied.Add(1)
		r.observe(Outcome{Action: string(ev.Kind), IssueID: ev.Issue.ID, Source: model.SourceStream,
			Detail: string(ev.Issue.Status)})
		return true

	case model.EventDeleted:
		if ev.IssueID == "" {
			r.drop(fmt.Errorf("%w: deleted event without issue id", model.ErrMalformedEvent))
			return false
		}
		removed := r.store.Remove(ev.IssueID)
		if removed {
			r.stats.removed.Add(1)
		}
		r.stats.applied.Add(1)
		r.observe(Outcome{Action: model.ActionDeleted, IssueID: ev.IssueID, Source: model.SourceStream})
		return removed

	default:
		r.drop(fmt.Errorf("%w: unknown kind %q", model.ErrMalformedEvent, ev.Kind))
		return false
	}
}

// ApplyRaw parses a push-channel frame and applies it. Malformed frames are
// logged and discarded without touching the store.
func (r *Reconciler) ApplyRaw(data []byte) bool {
	ev, err := model.ParseEvent(data)
	if err != nil {
		r.drop(err)
		return false
	}
	return r.Apply(ev)
}

func (r *Reconciler) drop(err error) {
	r.stats.malformed.Add(1)
	r.log.Warn("discarding malformed event", "error", err)
	r.observe(Outcome{Action: model.ActionMalformed, Source: model.SourceStream, Err: err})
}

// Repair re-fetches the full list and reconciles the store against it.
// Records written while the fetch was outstanding are kept. If ctx is done
// by the time the fetch returns, the result is discarded.
func (r *Reconciler) Repair(ctx context.Context) (store.SyncResult, error) {
	mark := r.store.Mark()
	issues, skipped, err := r.fetcher.ListIssues(ctx)
	if err != nil {
		return store.SyncResult{}, fmt.Errorf("fetching issues: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return store.SyncResult{}, err
	}

	valid := issues[:0:0]
	for _, issue := range issues {
		if issue == nil {
			skipped++
			continue
		}
		if err := issue.Validate(); err != nil {
			skipped++
			r.log.Warn("skipping invalid issue from fetch", "error", err)
			continue
		}
		valid = append(valid, issue)
	}
	r.stats.malformed.Add(int64(skipped))

	res := r.store.Sync(valid, mark)
	r.stats.repairs.Add(1)
	r.log.Debug("repaired", "fetched", len(valid), "skipped", skipped, "upserted", res.Upserted, "removed", res.Removed)
	detail := fmt.Sprintf("fetched %d, upserted %d, removed %d", len(valid), res.Upserted, res.Removed)
	if skipped > 0 {
		detail += fmt.Sprintf(", skipped %d malformed", skipped)
	}
	r.observe(Outcome{
		Action: model.ActionRepaired,
		Source: model.SourceRepair,
		Detail: detail,
	})
	return res, nil
}

// ErrNoSubscriber is returned by Run when the reconciler has no push channel.
var ErrNoSubscriber = errors.New("reconciler has no subscriber")

// Run keeps the store live until ctx is done. Each connection subscribes
// first, then repairs, then applies frames as they arrive, so events that race
// the fetch are buffered and ordered by the staleness rule. Failures are
// retried with exponential backoff until ctx is done, except failures that
// Options.Fatal classifies as permanent, which Run returns.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.sub == nil {
		return ErrNoSubscriber
	}

	backoff := r.opts.InitialBackoff
	for {
		healthy, err := r.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if r.fatal(err) {
			r.log.Error("push channel stopped", "error", err)
			return err
		}
		if healthy {
			backoff = r.opts.InitialBackoff
		}
		r.stats.reconnects.Add(1)
		r.log.Warn("push channel lost, reconnecting", "error", err, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * r.opts.BackoffMultiplier)
		if backoff > r.opts.MaxBackoff {
			backoff = r.opts.MaxBackoff
		}
	}
}

func (r *Reconciler) fatal(err error) bool {
	return err != nil && r.opts.Fatal != nil && r.opts.Fatal(err)
}

// session runs one connection. healthy reports whether the connection got
// as far as a successful repair.
func (r *Reconciler) session(ctx context.Context) (healthy bool, err error) {
	stream, err := r.sub.Subscribe(ctx)
	if err != nil {
		return false, fmt.Errorf("subscribing: %w", err)
	}
	if _, err := r.Repair(ctx); err != nil {
		stream.Close()
		return false, err
	}
	r.log.Info("push channel connected")

	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan []byte)

	g.Go(func() error {
		for {
			data, err := stream.Next(gctx)
			if err != nil {
				return err
			}
			select {
			case frames <- data:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		return stream.Close()
	})

	g.Go(func() error {
		var tick <-chan time.Time
		if r.opts.ResyncInterval > 0 {
			ticker := time.NewTicker(r.opts.ResyncInterval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case data := <-frames:
				r.ApplyRaw(data)
			case <-tick:
				if _, err := r.Repair(gctx); err != nil && gctx.Err() == nil {
					if r.fatal(err) {
						return err
					}
					r.log.Warn("periodic resync failed", "error", err)
				}
			}
		}
	})

	return true, g.Wait()
}
