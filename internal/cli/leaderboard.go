package cli

import (
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

var leaderboardCmd = &cobra.Command{
	Use:         "leaderboard",
	Short:       "Show contributor standings",
	Annotations: map[string]string{"skipDB": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		entries, err := client.Leaderboard(cmd.Context())
		if err != nil {
			return fail(err, "fetching leaderboard")
		}
		model.RankLeaderboard(entries)

		if limit, _ := cmd.Flags().GetInt("limit"); limit > 0 && len(entries) > limit {
			entries = entries[:limit]
		}
		if entries == nil {
			entries = []model.LeaderboardEntry{}
		}

		var message string
		if !w.JSONMode {
			message = render.RenderLeaderboard(entries)
		}
		w.Success(entries, message)
		return nil
	},
}

func init() {
	leaderboardCmd.Flags().IntP("limit", "n", 10, "Number of contributors to show (0 for all)")
	rootCmd.AddCommand(leaderboardCmd)
}
