package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

// logResult is the JSON wire format for the log command output.
type logResult struct {
	IssueID string           `json:"issue_id,omitempty"`
	Entries []model.Activity `json:"entries"`
	Total   int              `json:"total"`
	Pruned  int64            `json:"pruned,omitempty"`
}

var logCmd = &cobra.Command{
	Use:   "log [id]",
	Short: "Show the local activity journal",
	Long: `Show the local activity journal: stream events, repairs, submissions
and changes made from this machine. With an id, only that issue's entries.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		var result logResult
		if cmd.Flags().Changed("prune") {
			keep, _ := cmd.Flags().GetInt("prune")
			if keep < 0 {
				return cmdErr(fmt.Errorf("--prune must not be negative"), output.ErrValidation)
			}
			n, err := db.PruneActivity(conn, keep)
			if err != nil {
				return fail(err, "pruning activity")
			}
			result.Pruned = n
			if !w.JSONMode {
				w.Info("Pruned %d journal entries", n)
			}
		}

		if len(args) == 1 {
			result.IssueID = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := db.GetActivity(conn, result.IssueID, max(limit, 0))
		if err != nil {
			return fail(err, "reading activity")
		}
		if entries == nil {
			entries = []model.Activity{}
		}
		result.Entries = entries
		result.Total = len(entries)

		var message string
		if !w.JSONMode {
			message = render.RenderActivityLog(entries)
		}
		w.Success(result, message)
		return nil
	},
}

func init() {
	logCmd.Flags().IntP("limit", "n", 50, "Maximum entries to show (0 for all)")
	logCmd.Flags().Int("prune", 0, "Keep only the newest N entries before listing")
	rootCmd.AddCommand(logCmd)
}
