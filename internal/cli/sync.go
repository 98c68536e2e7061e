package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/reconcile"
)

type syncResult struct {
	Issues   int `json:"issues"`
	Upserted int `json:"upserted"`
	Removed  int `json:"removed"`
	Pending  int `json:"pending_reports"`
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch every issue and refresh the local cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		st, err := seedStore(conn)
		if err != nil {
			return fail(err, "loading cache")
		}

		rec := reconcile.New(st, client, nil, reconcileOptions(cmd, journal(cmd, conn)))
		res, err := rec.Repair(cmd.Context())
		if err != nil {
			return fail(err, "fetching issues")
		}
		if err := db.SaveSnapshot(conn, st.Snapshot()); err != nil {
			return fail(err, "saving cache")
		}

		pending, err := db.NewPendingQueue(conn).List()
		if err != nil {
			return fail(err, "reading pending reports")
		}
		if len(pending) > 0 {
			w.Info("%d report(s) still waiting for a verdict; see 'citywatch report pending'", len(pending))
		}

		result := syncResult{Issues: st.Len(), Upserted: res.Upserted, Removed: res.Removed, Pending: len(pending)}
		w.Success(result, fmt.Sprintf("Synced %d issues (%d updated, %d removed)", result.Issues, res.Upserted, res.Removed))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
