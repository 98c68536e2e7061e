package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ALT-F4-LLC/citywatch/internal/api"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/reconcile"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

const topReporters = 3

type statsResult struct {
	Total       int                      `json:"total"`
	Open        int                      `json:"open"`
	ByStatus    map[string]int           `json:"by_status"`
	ByPriority  map[string]int           `json:"by_priority"`
	Categories  []categoryStat           `json:"categories"`
	Pending     int                      `json:"pending_reports"`
	LastSynced  time.Time                `json:"last_synced,omitzero"`
	Cached      bool                     `json:"cached"`
	Sync        reconcile.Stats          `json:"sync"`
	TopReporter []model.LeaderboardEntry `json:"top_reporters"`
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show summary statistics for the current issues",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		st, err := seedStore(conn)
		if err != nil {
			return fail(err, "loading cache")
		}

		result := statsResult{Cached: true, TopReporter: []model.LeaderboardEntry{}}
		if !isOffline(cmd) {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			rec := reconcile.New(st, client, nil, reconcileOptions(cmd, journal(cmd, conn)))

			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				_, err := rec.Repair(gctx)
				return err
			})
			g.Go(func() error {
				entries, err := client.Leaderboard(gctx)
				if err != nil {
					// Standings are optional here.
					getLogger(cmd).Warn("fetching leaderboard", "error", err)
					return nil
				}
				result.TopReporter = entries[:min(topReporters, len(entries))]
				return nil
			})

			switch err := g.Wait(); {
			case err == nil:
				result.Cached = false
				if err := db.SaveSnapshot(conn, st.Snapshot()); err != nil {
					getLogger(cmd).Warn("saving snapshot", "error", err)
				}
			case api.IsTransient(err):
				when, _ := db.LastSynced(conn)
				w.Warn("server unreachable, showing cache from %s", syncedAgo(when))
			default:
				return fail(err, "refreshing issues")
			}
			result.Sync = rec.Stats()
		}

		issues := st.Snapshot()
		result.Total = len(issues)
		result.Open = len(filter.Apply(issues, filter.Criteria{OpenOnly: true}.Predicate()))
		result.ByStatus = statusCounts(issues)
		result.ByPriority = make(map[string]int)
		for p, n := range filter.CountByPriority(issues) {
			result.ByPriority[string(p)] = n
		}
		counts := filter.CountByCategory(issues)
		for _, name := range filter.Categories(issues) {
			result.Categories = append(result.Categories, categoryStat{Name: name, Count: counts[name]})
		}
		if result.Categories == nil {
			result.Categories = []categoryStat{}
		}

		pending, err := db.NewPendingQueue(conn).List()
		if err != nil {
			return fail(err, "reading pending reports")
		}
		result.Pending = len(pending)
		if result.LastSynced, err = db.LastSynced(conn); err != nil {
			return fail(err, "reading sync time")
		}

		var message string
		if !w.JSONMode {
			message = renderStats(result)
		}
		w.Success(result, message)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

type statLine struct {
	label string
	value string
	color string
}

// renderStats renders the stats result as a styled human-readable string.
func renderStats(s statsResult) string {
	sections := [][]statLine{
		{
			{label: "Total issues", value: humanize.Comma(int64(s.Total))},
			{label: "Open", value: humanize.Comma(int64(s.Open))},
			{label: "Pending reports", value: fmt.Sprintf("%d", s.Pending)},
			{label: "Last synced", value: syncedAgo(s.LastSynced)},
		},
	}
	titles := []string{"Overview"}

	var byStatus []statLine
	for _, status := range model.Statuses() {
		byStatus = append(byStatus, statLine{
			label: status.Label(),
			value: fmt.Sprintf("%d", s.ByStatus[string(status)]),
			color: status.Color(),
		})
	}
	sections = append(sections, byStatus)
	titles = append(titles, "By Status")

	var byPriority []statLine
	for _, p := range render.PriorityOrder {
		byPriority = append(byPriority, statLine{
			label: string(p),
			value: fmt.Sprintf("%d", s.ByPriority[string(p)]),
			color: p.Color(),
		})
	}
	sections = append(sections, byPriority)
	titles = append(titles, "By Priority")

	var cats []statLine
	for _, c := range s.Categories {
		cats = append(cats, statLine{label: c.Name, value: fmt.Sprintf("%d", c.Count)})
	}
	sections = append(sections, cats)
	titles = append(titles, "Categories")

	if len(s.TopReporter) > 0 {
		var top []statLine
		for i, e := range s.TopReporter {
			name := e.Name
			if name == "" {
				name = e.UserID
			}
			top = append(top, statLine{label: fmt.Sprintf("%d. %s", i+1, name), value: humanize.Comma(int64(e.Points)) + " pts"})
		}
		sections = append(sections, top)
		titles = append(titles, "Top Reporters")
	}

	if !s.Cached {
		sections = append(sections, []statLine{
			{label: "Repairs", value: fmt.Sprintf("%d", s.Sync.Repairs)},
			{label: "Malformed skipped", value: fmt.Sprintf("%d", s.Sync.Malformed)},
		})
		titles = append(titles, "Sync")
	}

	color := render.ColorsEnabled()
	sectionStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	out := make([]string, 0, len(sections))
	for i, lines := range sections {
		var b strings.Builder
		if color {
			b.WriteString(sectionStyle.Render(titles[i]))
		} else {
			b.WriteString(titles[i])
		}
		if len(lines) == 0 {
			b.WriteString("\n  (none)")
		}
		for _, l := range lines {
			label := fmt.Sprintf("%-20s", l.label+":")
			if !color {
				fmt.Fprintf(&b, "\n  %s %s", label, l.value)
				continue
			}
			valueStyle := lipgloss.NewStyle().Bold(true)
			if l.color != "" {
				valueStyle = valueStyle.Foreground(render.ColorFromName(l.color))
			}
			fmt.Fprintf(&b, "\n  %s %s", labelStyle.Render(label), valueStyle.Render(l.value))
		}
		out = append(out, b.String())
	}
	return strings.Join(out, "\n\n")
}
