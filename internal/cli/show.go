package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

type showResult struct {
	Issue    *model.Issue     `json:"issue"`
	Comments []model.Comment  `json:"comments"`
	Activity []model.Activity `json:"activity"`
	Cached   bool             `json:"cached"`
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an issue with its comments and recent activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)
		id := args[0]

		issue, comments, cached, err := fetchIssue(cmd, w, id)
		if err != nil {
			return err
		}

		limit, _ := cmd.Flags().GetInt("activity")
		activity, err := db.GetActivity(conn, id, max(limit, 0))
		if err != nil {
			return fail(err, "reading activity")
		}

		result := showResult{Issue: issue, Comments: comments, Activity: activity, Cached: cached}
		if result.Comments == nil {
			result.Comments = []model.Comment{}
		}

		var message string
		if !w.JSONMode {
			message = render.RenderDetail(issue, comments, activity)
		}
		w.Success(result, message)
		return nil
	},
}

// fetchIssue loads one issue and its thread from the server and refreshes
// the cache, or reads the cache under --offline or when the server is
// unreachable.
func fetchIssue(cmd *cobra.Command, w *output.Writer, id string) (*model.Issue, []model.Comment, bool, error) {
	conn := getDB(cmd)

	if !isOffline(cmd) {
		client, err := newClient(cmd)
		if err != nil {
			return nil, nil, false, err
		}
		detail, err := client.GetIssue(cmd.Context(), id)
		switch {
		case err == nil:
			if err := db.SaveIssue(conn, detail.Issue); err != nil {
				getLogger(cmd).Warn("caching issue", "id", id, "error", err)
			} else if err := db.SaveComments(conn, detail.Issue.ID, detail.Comments); err != nil {
				getLogger(cmd).Warn("caching comments", "id", id, "error", err)
			}
			return detail.Issue, detail.Comments, false, nil
		case api.IsNotFound(err):
			return nil, nil, false, cmdErr(fmt.Errorf("issue %s not found", id), output.ErrNotFound)
		case !api.IsTransient(err):
			return nil, nil, false, fail(err, "fetching issue")
		}
		when, _ := db.LastSynced(conn)
		w.Warn("server unreachable, showing cache from %s", syncedAgo(when))
	}

	issue, err := db.GetCachedIssue(conn, id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, nil, false, cmdErr(fmt.Errorf("issue %s not in the local cache", id), output.ErrNotFound)
		}
		return nil, nil, false, fail(err, "reading cache")
	}
	comments, err := db.ListComments(conn, id)
	if err != nil {
		return nil, nil, false, fail(err, "reading cached comments")
	}
	return issue, comments, true, nil
}

func init() {
	showCmd.Flags().Int("activity", 10, "Number of journal entries to include (0 for all)")
	rootCmd.AddCommand(showCmd)
}
