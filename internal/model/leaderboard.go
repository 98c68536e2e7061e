package model

import (
	"sort"
	"strings"
)

// LeaderboardEntry is one contributor's standing.
type LeaderboardEntry struct {
	UserID  string `json:"userId"`
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Reports int    `json:"reports"`
}

// RankLeaderboard sorts entries by points descending, then name, in place.
func RankLeaderboard(entries []LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Points != entries[j].Points {
			return entries[i].Points > entries[j].Points
		}
		return strings.ToLower(entries[i].Name) < strings.ToLower(entries[j].Name)
	})
}
