package cli

import (
	"database/sql"
	"time"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/reconcile"
	"github.com/ALT-F4-LLC/citywatch/internal/store"
)

// newClient builds the API client from the resolved configuration.
func newClient(cmd *cobra.Command) (*api.Client, error) {
	if isOffline(cmd) {
		return nil, cmdErr(errOffline, output.ErrValidation)
	}
	cfg := getCfg(cmd)
	client, err := api.New(api.Options{
		BaseURL:           cfg.BaseURL,
		StreamURL:         cfg.StreamURL,
		Token:             cfg.Token,
		Timeout:           cfg.Timeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            getLogger(cmd),
	})
	if err != nil {
		return nil, cmdErr(err, output.ErrValidation)
	}
	return client, nil
}

// reconcileOptions maps the configured resync interval, where zero disables
// resync, onto the reconciler's convention of a negative value.
func reconcileOptions(cmd *cobra.Command, observer reconcile.Observer) reconcile.Options {
	opts := reconcile.DefaultOptions()
	opts.ResyncInterval = getCfg(cmd).ResyncInterval
	if opts.ResyncInterval == 0 {
		opts.ResyncInterval = -1
	}
	opts.Logger = getLogger(cmd)
	opts.Observer = observer
	opts.Fatal = api.IsPermanent
	return opts
}

// seedStore fills a fresh store from the warm-start cache.
func seedStore(conn *sql.DB) (*store.IssueStore, error) {
	st := store.New()
	cached, err := db.LoadSnapshot(conn)
	if err != nil {
		return nil, err
	}
	for _, issue := range cached {
		st.Upsert(issue)
	}
	return st, nil
}

// loadStore returns the issue set for read commands: the cache, repaired
// against the server unless --offline. A server that cannot be reached
// leaves the cached copy in place with a warning.
func loadStore(cmd *cobra.Command, w *output.Writer) (*store.IssueStore, error) {
	conn := getDB(cmd)
	st, err := seedStore(conn)
	if err != nil {
		return nil, fail(err, "loading cache")
	}
	if isOffline(cmd) {
		return st, nil
	}

	client, err := newClient(cmd)
	if err != nil {
		return nil, err
	}
	rec := reconcile.New(st, client, nil, reconcileOptions(cmd, journal(cmd, conn)))
	if _, err := rec.Repair(cmd.Context()); err != nil {
		if !api.IsTransient(err) {
			return nil, fail(err, "refreshing issues")
		}
		when, _ := db.LastSynced(conn)
		w.Warn("server unreachable, showing cache from %s", syncedAgo(when))
		return st, nil
	}
	if err := db.SaveSnapshot(conn, st.Snapshot()); err != nil {
		getLogger(cmd).Warn("saving snapshot", "error", err)
	}
	return st, nil
}

// journal returns an observer that records reconciler outcomes in the
// activity log. Stale events are counted but not journaled.
func journal(cmd *cobra.Command, conn *sql.DB) reconcile.Observer {
	log := getLogger(cmd)
	return func(o reconcile.Outcome) {
		if o.Action == model.ActionStale {
			return
		}
		a := model.Activity{
			IssueID:   o.IssueID,
			Action:    o.Action,
			NewValue:  o.Detail,
			Source:    o.Source,
			CreatedAt: time.Now().UTC(),
		}
		if o.Err != nil {
			a.NewValue = o.Err.Error()
		}
		if err := db.RecordActivity(conn, a); err != nil {
			log.Warn("journaling outcome", "action", o.Action, "error", err)
		}
	}
}

// record journals a CLI-side change.
func record(cmd *cobra.Command, a model.Activity) {
	if a.Source == "" {
		a.Source = model.SourceCLI
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if err := db.RecordActivity(getDB(cmd), a); err != nil {
		getLogger(cmd).Warn("journaling change", "action", a.Action, "error", err)
	}
}
