package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
)

var statusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move an issue to a new lifecycle status",
	Long: `Move an issue to a new lifecycle status.

Statuses run submitted, in_review, in_progress, resolved, archived, with
duplicate as a terminal side branch. Moving backwards is refused unless
--force is given; the server has the final say either way.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)
		id := args[0]

		next, err := model.ParseStatus(args[1])
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		var old model.Status
		if cached, err := db.GetCachedIssue(conn, id); err == nil {
			old = cached.Status
			force, _ := cmd.Flags().GetBool("force")
			if old == next {
				w.Success(cached, fmt.Sprintf("Issue %s is already %s", id, next.Label()))
				return nil
			}
			if !force && !old.CanTransition(next) {
				return cmdErr(fmt.Errorf("cannot move issue %s from %s to %s", id, old, next), output.ErrConflict)
			}
		}

		updated, err := client.UpdateStatus(cmd.Context(), id, next)
		if err != nil {
			if api.IsNotFound(err) {
				return cmdErr(fmt.Errorf("issue %s not found", id), output.ErrNotFound)
			}
			return fail(err, "updating status")
		}

		if updated == nil {
			updated = refetchIssue(cmd, client, id)
		}
		if updated == nil {
			record(cmd, model.Activity{IssueID: id, Action: model.ActionStatus, OldValue: string(old), NewValue: string(next)})
			w.Success(map[string]string{"id": id, "status": string(next)},
				fmt.Sprintf("%s %s is now %s", next.Icon(), id, next.Label()))
			return nil
		}

		if err := db.SaveIssue(conn, updated); err != nil {
			getLogger(cmd).Warn("caching issue", "id", id, "error", err)
		}
		record(cmd, model.Activity{
			IssueID:  updated.ID,
			Action:   model.ActionStatus,
			OldValue: string(old),
			NewValue: string(updated.Status),
		})

		w.Success(updated, fmt.Sprintf("%s %s is now %s", updated.Status.Icon(), updated.ID, updated.Status.Label()))
		return nil
	},
}

// refetchIssue reads back an issue after a write the server acknowledged
// without echoing the record. It returns nil if the read fails.
func refetchIssue(cmd *cobra.Command, client *api.Client, id string) *model.Issue {
	detail, err := client.GetIssue(cmd.Context(), id)
	if err != nil || detail.Issue.Validate() != nil {
		getLogger(cmd).Warn("reading back issue", "id", id, "error", err)
		return nil
	}
	return detail.Issue
}

func init() {
	statusCmd.Flags().Bool("force", false, "Skip the local lifecycle check")
	rootCmd.AddCommand(statusCmd)
}
