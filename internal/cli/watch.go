package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/reconcile"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
	"github.com/ALT-F4-LLC/citywatch/internal/store"
)

const clearScreen = "\033[H\033[2J"

var watchViews = []string{"list", "board", "heatmap", "events"}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow issues live over the push channel",
	Long: `Follow issues live over the push channel.

The view redraws whenever the issue set changes. With --json, every applied
event, repair and dropped frame is written as one NDJSON line. Interrupt to
stop; the cache is saved on the way out.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		view, _ := cmd.Flags().GetString("view")
		if !validView(view) {
			return cmdErr(fmt.Errorf("invalid view %q: must be one of %v", view, watchViews), output.ErrValidation)
		}
		criteria, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}
		closed, _ := cmd.Flags().GetBool("closed")
		var hv heatmapView
		if view == "heatmap" {
			if hv, err = heatmapFromFlags(cmd); err != nil {
				return err
			}
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		st, err := seedStore(conn)
		if err != nil {
			return fail(err, "loading cache")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		observer := watchObserver(cmd, w, conn, st, view == "events")
		rec := reconcile.New(st, client, client, reconcileOptions(cmd, observer))

		// Fail fast on a bad session or URL; Run would retry forever.
		if _, err := rec.Repair(ctx); err != nil {
			return fail(err, "fetching issues")
		}

		draw := func() {
			issues := filter.Apply(st.Snapshot(), criteria.Predicate())
			var body string
			switch view {
			case "list":
				body = render.RenderTable(issues)
			case "board":
				body = render.RenderBoard(issues, render.BoardOptions{Closed: closed})
			case "heatmap":
				s, markers := hv.compute(issues)
				body = hv.render(issues, s, markers, "")
			}
			w.Raw(clearScreen + body + "\n\n" + watchFooter(rec.Stats()))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return rec.Run(gctx) })
		if view != "events" && !w.JSONMode {
			draw()
			g.Go(func() error { return redrawLoop(gctx, st, draw) })
		} else {
			w.Info("Watching %d issues; press Ctrl-C to stop", st.Len())
		}

		err = g.Wait()
		if serr := db.SaveSnapshot(conn, st.Snapshot()); serr != nil {
			getLogger(cmd).Warn("saving snapshot", "error", serr)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			return fail(err, "watching")
		}

		stats := rec.Stats()
		if w.JSONMode {
			w.Event("stopped", stats, "")
			return nil
		}
		w.Info("\nStopped. %s", watchFooter(stats))
		return nil
	},
}

// redrawLoop redraws after store changes, at most a few times per second.
func redrawLoop(ctx context.Context, st *store.IssueStore, draw func()) error {
	lim := rate.NewLimiter(rate.Every(250*time.Millisecond), 1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-st.Changes():
		}
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		draw()
	}
}

// watchObserver journals outcomes, keeps the cache current and emits events.
func watchObserver(cmd *cobra.Command, w *output.Writer, conn *sql.DB, st *store.IssueStore, humanEvents bool) reconcile.Observer {
	log := getLogger(cmd)
	journalOutcome := journal(cmd, conn)
	return func(o reconcile.Outcome) {
		journalOutcome(o)

		switch o.Action {
		case model.ActionCreated, model.ActionUpdated:
			if issue, ok := st.Get(o.IssueID); ok {
				if err := db.SaveIssue(conn, issue); err != nil {
					log.Warn("caching issue", "id", o.IssueID, "error", err)
				}
			}
		case model.ActionRepaired:
			if err := db.SaveSnapshot(conn, st.Snapshot()); err != nil {
				log.Warn("saving snapshot", "error", err)
			}
		}

		if o.Action == model.ActionStale || (!w.JSONMode && !humanEvents) {
			return
		}
		a := model.Activity{IssueID: o.IssueID, Action: o.Action, NewValue: o.Detail, Source: o.Source}
		if o.Err != nil {
			a.NewValue = o.Err.Error()
		}
		w.Event(o.Action, a, render.ActivityText(a))
	}
}

func watchFooter(s reconcile.Stats) string {
	return fmt.Sprintf("applied %d · stale %d · removed %d · malformed %d · repairs %d · reconnects %d",
		s.Applied, s.Stale, s.Removed, s.Malformed, s.Repairs, s.Reconnects)
}

func validView(v string) bool {
	for _, name := range watchViews {
		if v == name {
			return true
		}
	}
	return false
}

func init() {
	watchCmd.Flags().String("view", "list", "What to show: list, board, heatmap or events")
	watchCmd.Flags().Bool("closed", false, "Include closed columns in the board view")
	addFilterFlags(watchCmd)
	addHeatmapFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}
