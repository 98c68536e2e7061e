package render

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

const (
	maxCardsPerColumn = 10
	minColumnWidth    = 20
	defaultTermWidth  = 100
	cardPadding       = 2
)

// PriorityOrder defines the display order for priorities (highest first).
var PriorityOrder = []model.Priority{
	model.PriorityHigh,
	model.PriorityMedium,
	model.PriorityLow,
}

// BoardOptions configures board rendering behavior.
type BoardOptions struct {
	// Closed includes resolved, archived and duplicate columns.
	Closed bool
}

// BoardColumns returns the statuses shown on the board, in lifecycle order.
func BoardColumns(opts BoardOptions) []model.Status {
	var cols []model.Status
	for _, s := range model.Statuses() {
		if !opts.Closed && s.IsTerminal() {
			continue
		}
		cols = append(cols, s)
	}
	return cols
}

// RenderBoard renders issues as a lifecycle board with one column per status.
func RenderBoard(issues []*model.Issue, opts BoardOptions) string {
	groups := groupByStatus(issues)

	var active []model.Status
	for _, s := range BoardColumns(opts) {
		if len(groups[s]) > 0 {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		return EmptyState("No issues on the board.", "Report one with: citywatch report", false)
	}

	if !ColorsEnabled() {
		return renderPlainBoard(active, groups)
	}
	return renderColorBoard(active, groups)
}

// TerminalWidth returns the width of stdout, falling back to a default.
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultTermWidth
	}
	return w
}

func groupByStatus(issues []*model.Issue) map[model.Status][]*model.Issue {
	groups := make(map[model.Status][]*model.Issue)
	for _, issue := range issues {
		groups[issue.Status] = append(groups[issue.Status], issue)
	}
	return groups
}

func splitOverflow(issues []*model.Issue) ([]*model.Issue, int) {
	if len(issues) > maxCardsPerColumn {
		return issues[:maxCardsPerColumn], len(issues) - maxCardsPerColumn
	}
	return issues, 0
}

func renderColorBoard(active []model.Status, groups map[model.Status][]*model.Issue) string {
	tw := TerminalWidth()
	gaps := len(active) - 1
	colWidth := max((tw-gaps)/len(active), minColumnWidth)
	contentWidth := max(colWidth-cardPadding-2, 5)

	columns := make([]string, 0, len(active))
	for _, status := range active {
		columns = append(columns, renderColorColumn(status, groups[status], colWidth, contentWidth))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columns...)
}

func renderColorColumn(status model.Status, issues []*model.Issue, colWidth, contentWidth int) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorFromName(status.Color())).
		Width(colWidth).
		Align(lipgloss.Center).
		Render(fmt.Sprintf("%s %s (%d)", status.Icon(), strings.ToUpper(status.Label()), len(issues)))

	visible, overflow := splitOverflow(issues)
	cards := make([]string, 0, len(visible)+2)
	cards = append(cards, header)
	for _, issue := range visible {
		cards = append(cards, renderColorCard(issue, colWidth, contentWidth))
	}
	if overflow > 0 {
		more := lipgloss.NewStyle().
			Width(colWidth).
			Align(lipgloss.Center).
			Foreground(lipgloss.Color("8"))
		cards = append(cards, more.Render(fmt.Sprintf("+%d more", overflow)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func renderColorCard(issue *model.Issue, colWidth, contentWidth int) string {
	pri := lipgloss.NewStyle().
		Foreground(ColorFromName(issue.Priority.Color())).
		Render(issue.Priority.Icon())
	lines := []string{
		fmt.Sprintf("%s %s", pri, truncate(issue.ID, contentWidth-3)),
		truncate(issue.DisplayTitle(), contentWidth),
	}
	if meta := cardMeta(issue); meta != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(truncate(meta, contentWidth)))
	}

	return lipgloss.NewStyle().
		Width(colWidth-2).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorFromName(issue.Status.Color())).
		Render(strings.Join(lines, "\n"))
}

// cardMeta is the category plus a confirmation count when others have
// seconded the report.
func cardMeta(issue *model.Issue) string {
	parts := make([]string, 0, 2)
	if issue.Category != "" {
		parts = append(parts, issue.Category)
	}
	if issue.Confirmations > 0 {
		parts = append(parts, fmt.Sprintf("+%d", issue.Confirmations))
	}
	return strings.Join(parts, " · ")
}

func renderPlainBoard(active []model.Status, groups map[model.Status][]*model.Issue) string {
	var b strings.Builder
	for i, status := range active {
		if i > 0 {
			b.WriteString("\n")
		}
		issues := groups[status]
		fmt.Fprintf(&b, "=== %s %s (%d) ===\n", status.Icon(), strings.ToUpper(status.Label()), len(issues))

		visible, overflow := splitOverflow(issues)
		for _, issue := range visible {
			fmt.Fprintf(&b, "  %s [%s]\n", issue.ID, issue.Priority)
			fmt.Fprintf(&b, "  %s\n", truncate(issue.DisplayTitle(), maxTitleWidth))
			if meta := cardMeta(issue); meta != "" {
				fmt.Fprintf(&b, "  %s\n", meta)
			}
			b.WriteString("\n")
		}
		if overflow > 0 {
			fmt.Fprintf(&b, "  +%d more\n", overflow)
		}
	}
	return b.String()
}
