package render

import (
	"fmt"

	humanize "github.com/dustin/go-humanize"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

var podiumColors = []string{"yellow", "white", "magenta"}

// RenderLeaderboard renders ranked entries. Entries must already be ordered
// with model.RankLeaderboard.
func RenderLeaderboard(entries []model.LeaderboardEntry) string {
	if len(entries) == 0 {
		return EmptyState("The leaderboard is empty.", "Points are awarded when reports are accepted.", false)
	}

	headers := []string{"#", "Name", "Points", "Reports"}
	rows := make([][]string, 0, len(entries))
	for i, e := range entries {
		name := e.Name
		if name == "" {
			name = e.UserID
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			name,
			humanize.Comma(int64(e.Points)),
			humanize.Comma(int64(e.Reports)),
		})
	}

	if !ColorsEnabled() {
		return plainTable(headers, rows)
	}
	return styledTable(headers, rows, func(row, col int) string {
		if row < len(podiumColors) && col <= 1 {
			return podiumColors[row]
		}
		return ""
	})
}
