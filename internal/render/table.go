package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

const (
	maxTitleWidth   = 40
	maxAddressWidth = 28
	maxIDWidth      = 12
)

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// ColorFromName maps model color name strings to lipgloss colors.
func ColorFromName(name string) lipgloss.Color {
	switch name {
	case "red":
		return lipgloss.Color("9")
	case "yellow":
		return lipgloss.Color("11")
	case "blue":
		return lipgloss.Color("12")
	case "green":
		return lipgloss.Color("10")
	case "magenta":
		return lipgloss.Color("13")
	case "gray":
		return lipgloss.Color("8")
	default:
		return lipgloss.Color("15")
	}
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func statusLabel(s model.Status) string {
	return s.Icon() + " " + s.Label()
}

func priorityLabel(p model.Priority) string {
	if p == "" {
		return "-"
	}
	return p.Icon() + " " + string(p)
}

// where prefers the street address and falls back to coordinates.
func where(i *model.Issue) string {
	if i.Address != "" {
		return truncate(i.Address, maxAddressWidth)
	}
	return i.Location.String()
}

// EmptyState renders a styled empty-state message with an optional contextual hint.
// When quiet is true the hint is suppressed.
func EmptyState(message, hint string, quiet bool) string {
	if !ColorsEnabled() {
		if quiet || hint == "" {
			return message
		}
		return message + "\n" + hint
	}

	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	result := dimStyle.Render(message)
	if !quiet && hint != "" {
		result += "\n" + dimStyle.Italic(true).Render(hint)
	}
	return result
}

// styledTable builds a bordered lipgloss table. colColor returns the
// foreground for a body cell, or "" for the default.
func styledTable(headers []string, rows [][]string, colColor func(row, col int) string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if row < 0 || row >= len(rows) || colColor == nil {
				return s
			}
			if c := colColor(row, col); c != "" {
				return s.Foreground(ColorFromName(c))
			}
			return s
		})
	return t.Render()
}

// plainTable lays rows out in padded columns under a dashed rule.
func plainTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, r := range rows {
		for i, cell := range r {
			if n := utf8.RuneCountInString(cell); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i == len(cells)-1 {
				b.WriteString(cell)
				break
			}
			b.WriteString(cell)
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)+2))
		}
		b.WriteString("\n")
	}

	writeRow(headers)
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	b.WriteString(strings.Repeat("-", total-2))
	b.WriteString("\n")
	for _, r := range rows {
		writeRow(r)
	}
	return b.String()
}

// RenderTable renders a list of issues as a formatted table.
func RenderTable(issues []*model.Issue) string {
	if len(issues) == 0 {
		return EmptyState("No issues found.", "Fetch the latest with: citywatch sync", false)
	}

	headers := []string{"ID", "Status", "Priority", "Category", "Title", "Where", "Updated"}
	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, []string{
			truncate(issue.ID, maxIDWidth),
			statusLabel(issue.Status),
			priorityLabel(issue.Priority),
			issue.Category,
			truncate(issue.DisplayTitle(), maxTitleWidth),
			where(issue),
			humanize.Time(issue.UpdatedAt),
		})
	}

	if !ColorsEnabled() {
		return plainTable(headers, rows)
	}

	return styledTable(headers, rows, func(row, col int) string {
		switch col {
		case 1:
			return issues[row].Status.Color()
		case 2:
			return issues[row].Priority.Color()
		case 6:
			return "gray"
		default:
			return ""
		}
	})
}

// RenderPending renders the queue of reports awaiting a verdict.
func RenderPending(pending []model.PendingReport) string {
	if len(pending) == 0 {
		return EmptyState("No reports are waiting for a verdict.", "", false)
	}

	headers := []string{"Client ID", "Title", "Category", "Attempts", "Last error", "Queued"}
	rows := make([][]string, 0, len(pending))
	for _, p := range pending {
		rows = append(rows, []string{
			p.Report.ClientID,
			truncate(p.Report.Title, maxTitleWidth),
			p.Report.Category,
			fmt.Sprintf("%d", p.Attempts),
			truncate(p.LastError, maxTitleWidth),
			humanize.Time(p.Report.SubmittedAt),
		})
	}

	if !ColorsEnabled() {
		return plainTable(headers, rows)
	}
	return styledTable(headers, rows, func(row, col int) string {
		if col == 4 {
			return "red"
		}
		return ""
	})
}

// RenderCategories renders category names with their issue counts.
func RenderCategories(names []string, counts map[string]int) string {
	if len(names) == 0 {
		return EmptyState("No categories yet.", "", false)
	}

	rows := make([][]string, 0, len(names))
	for _, n := range names {
		rows = append(rows, []string{n, humanize.Comma(int64(counts[n]))})
	}
	headers := []string{"Category", "Issues"}
	if !ColorsEnabled() {
		return plainTable(headers, rows)
	}
	return styledTable(headers, rows, nil)
}
