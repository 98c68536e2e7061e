package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

type listResult struct {
	Issues   []*model.Issue `json:"issues"`
	Total    int            `json:"total"`
	Matched  int            `json:"matched"`
	ByStatus map[string]int `json:"by_status"`
}

var listCmd = &cobra.Command{
	Use:     "list",
	Short:   "List issues",
	Aliases: []string{"ls"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)

		criteria, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}
		sortBy, _ := cmd.Flags().GetString("sort")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := loadStore(cmd, w)
		if err != nil {
			return err
		}
		all := st.Snapshot()
		issues := filter.Apply(all, criteria.Predicate())
		if err := sortIssues(issues, sortBy); err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		counts := filter.CountByStatus(issues)
		byStatus := statusCounts(issues)
		matched := len(issues)
		if limit > 0 && len(issues) > limit {
			issues = issues[:limit]
		}

		result := listResult{
			Issues:   issues,
			Total:    len(all),
			Matched:  matched,
			ByStatus: byStatus,
		}

		var message string
		if !w.JSONMode {
			message = render.RenderTable(issues)
			if len(issues) > 0 {
				message += "\n" + statusRow(counts)
			}
			if matched > len(issues) {
				message += fmt.Sprintf("\nShowing %d of %d matching issues", len(issues), matched)
			}
		}
		w.Success(result, message)
		return nil
	},
}

// addFilterFlags registers the shared issue filter flags on cmd.
func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceP("status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringSliceP("priority", "p", nil, "Filter by priority (repeatable)")
	cmd.Flags().StringP("category", "c", "", "Filter by category")
	cmd.Flags().StringP("query", "Q", "", "Free-text search over title, description, category, address and reporter")
	cmd.Flags().Bool("open", false, "Only issues that are not resolved, archived or duplicate")
	cmd.Flags().Bool("mine", false, "Only issues filed by the configured reporter_id")
}

// criteriaFromFlags validates the filter flags and builds the criteria.
func criteriaFromFlags(cmd *cobra.Command) (filter.Criteria, error) {
	var c filter.Criteria

	statuses, _ := cmd.Flags().GetStringSlice("status")
	for _, s := range statuses {
		st, err := model.ParseStatus(s)
		if err != nil {
			return c, cmdErr(err, output.ErrValidation)
		}
		c.Status = append(c.Status, st)
	}
	priorities, _ := cmd.Flags().GetStringSlice("priority")
	for _, p := range priorities {
		pr, err := model.ParsePriority(p)
		if err != nil {
			return c, cmdErr(err, output.ErrValidation)
		}
		c.Priority = append(c.Priority, pr)
	}
	c.Category, _ = cmd.Flags().GetString("category")
	c.Query, _ = cmd.Flags().GetString("query")
	c.OpenOnly, _ = cmd.Flags().GetBool("open")

	if mine, _ := cmd.Flags().GetBool("mine"); mine {
		c.ReporterID = getCfg(cmd).ReporterID
		if c.ReporterID == "" {
			return c, cmdErr(fmt.Errorf("--mine needs reporter_id; set it with 'citywatch config set reporter_id <id>'"), output.ErrValidation)
		}
	}
	return c, nil
}

// sortIssues reorders issues in place. The default keeps the store's
// newest-first order.
func sortIssues(issues []*model.Issue, by string) error {
	switch by {
	case "", "created":
		return nil
	case "updated":
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].UpdatedAt.After(issues[j].UpdatedAt) })
	case "priority":
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Priority.Rank() > issues[j].Priority.Rank() })
	case "status":
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Status.Rank() < issues[j].Status.Rank() })
	case "confirmations":
		sort.SliceStable(issues, func(i, j int) bool { return issues[i].Confirmations > issues[j].Confirmations })
	default:
		return fmt.Errorf("invalid sort %q: must be one of created, updated, priority, status, confirmations", by)
	}
	return nil
}

func statusCounts(issues []*model.Issue) map[string]int {
	out := make(map[string]int)
	for s, n := range filter.CountByStatus(issues) {
		out[string(s)] = n
	}
	return out
}

// statusRow is the one-line count per status shown under lists.
func statusRow(counts map[model.Status]int) string {
	parts := make([]string, 0, len(counts))
	for _, s := range model.Statuses() {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %s %d", s.Icon(), s.Label(), n))
		}
	}
	return strings.Join(parts, "  ")
}

func init() {
	addFilterFlags(listCmd)
	listCmd.Flags().String("sort", "created", "Sort by created, updated, priority, status or confirmations")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of issues to show (0 for all)")
	rootCmd.AddCommand(listCmd)
}
