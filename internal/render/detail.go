package render

import (
	"fmt"
	"strings"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderDetail renders a full issue view: header, metadata, lifecycle
// progress, description, comments and recent journal entries.
func RenderDetail(issue *model.Issue, comments []model.Comment, activity []model.Activity) string {
	if !ColorsEnabled() {
		return renderPlainDetail(issue, comments, activity)
	}

	sections := []string{
		renderHeader(issue),
		renderMetadata(issue),
		renderProgress(issue.Status),
	}
	if issue.Description != "" {
		sections = append(sections, renderDescription(issue.Description))
	}
	if len(issue.Media) > 0 {
		sections = append(sections, renderMedia(issue.Media))
	}
	if len(comments) > 0 {
		sections = append(sections, RenderComments(comments))
	}
	if len(activity) > 0 {
		sections = append(sections, sectionStyle.Render("Activity")+"\n"+RenderActivityLog(activity))
	}
	return strings.Join(sections, "\n\n")
}

func renderHeader(issue *model.Issue) string {
	statusStyle := lipgloss.NewStyle().Foreground(ColorFromName(issue.Status.Color())).Bold(true)
	priorityStyle := lipgloss.NewStyle().Foreground(ColorFromName(issue.Priority.Color())).Bold(true)

	return fmt.Sprintf("%s  %s\n%s  %s",
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Render(issue.ID),
		lipgloss.NewStyle().Bold(true).Render(issue.DisplayTitle()),
		statusStyle.Render(statusLabel(issue.Status)),
		priorityStyle.Render(priorityLabel(issue.Priority)),
	)
}

func metadataLines(issue *model.Issue) [][2]string {
	lines := [][2]string{}
	if issue.Category != "" {
		lines = append(lines, [2]string{"Category:", issue.Category})
	}
	if issue.Address != "" {
		lines = append(lines, [2]string{"Address:", issue.Address})
	}
	lines = append(lines, [2]string{"Location:", issue.Location.String()})
	if issue.Reporter.Name != "" || issue.Reporter.ID != "" {
		name := issue.Reporter.Name
		if name == "" {
			name = issue.Reporter.ID
		}
		lines = append(lines, [2]string{"Reporter:", name})
	}
	if issue.Confirmations > 0 {
		lines = append(lines, [2]string{"Confirmed:", humanize.Comma(int64(issue.Confirmations)) + " times"})
	}
	if issue.PointsAwarded > 0 {
		lines = append(lines, [2]string{"Points:", humanize.Comma(int64(issue.PointsAwarded))})
	}
	lines = append(lines,
		[2]string{"Created:", humanize.Time(issue.CreatedAt)},
		[2]string{"Updated:", humanize.Time(issue.UpdatedAt)},
	)
	return lines
}

func renderMetadata(issue *model.Issue) string {
	var out []string
	for _, kv := range metadataLines(issue) {
		out = append(out, dimStyle.Render(kv[0])+" "+kv[1])
	}
	return strings.Join(out, "\n")
}

// renderProgress draws the lifecycle as a tree with reached stages checked.
func renderProgress(current model.Status) string {
	t := tree.New().Root(sectionStyle.Render("Progress"))
	if current == model.StatusDuplicate {
		t.Child(lipgloss.NewStyle().Foreground(ColorFromName(current.Color())).Render(statusLabel(current)))
		return t.String()
	}
	for _, s := range model.Lifecycle {
		label := s.Label()
		switch {
		case s == current:
			label = lipgloss.NewStyle().Bold(true).Foreground(ColorFromName(s.Color())).Render("● " + label)
		case s.Rank() < current.Rank():
			label = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("✔ " + label)
		default:
			label = dimStyle.Render("○ " + label)
		}
		t.Child(label)
	}
	return t.String()
}

func renderDescription(description string) string {
	rendered, err := RenderMarkdown(description)
	if err != nil {
		rendered = description
	}
	return sectionStyle.Render("Description") + "\n" + rendered
}

func renderMedia(media []string) string {
	lines := make([]string, 0, len(media))
	for _, m := range media {
		lines = append(lines, "  "+dimStyle.Render("▸ "+m))
	}
	return sectionStyle.Render("Media") + "\n" + strings.Join(lines, "\n")
}

// RenderComments renders a comment thread oldest first.
func RenderComments(comments []model.Comment) string {
	if !ColorsEnabled() {
		var b strings.Builder
		b.WriteString("Comments\n")
		writePlainComments(&b, comments)
		return strings.TrimRight(b.String(), "\n")
	}

	authorStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	parts := make([]string, 0, len(comments))
	for _, c := range comments {
		body, err := RenderMarkdown(c.Body)
		if err != nil {
			body = c.Body
		}
		head := fmt.Sprintf("%s  %s", authorStyle.Render(c.AuthorOrAnonymous()), dimStyle.Render(humanize.Time(c.CreatedAt)))
		parts = append(parts, head+"\n"+body)
	}
	return sectionStyle.Render("Comments") + "\n" + strings.Join(parts, "\n\n")
}

func writePlainComments(b *strings.Builder, comments []model.Comment) {
	for _, c := range comments {
		fmt.Fprintf(b, "  %s  %s\n  %s\n\n", c.AuthorOrAnonymous(), humanize.Time(c.CreatedAt), c.Body)
	}
}

func activityIcon(a model.Activity) string {
	switch a.Action {
	case model.ActionCreated, model.ActionSubmitted:
		return "✨"
	case model.ActionStatus:
		if a.NewValue != "" {
			return model.Status(a.NewValue).Icon()
		}
		return "○"
	case model.ActionDeleted, model.ActionDiscarded:
		return "✘"
	case model.ActionDuplicate:
		return model.StatusDuplicate.Icon()
	case model.ActionStale, model.ActionMalformed:
		return "⚠"
	case model.ActionRepaired:
		return "↻"
	case model.ActionComment:
		return "✉"
	case model.ActionPending:
		return "…"
	default:
		return "✎"
	}
}

// ActivityText describes a journal entry in words.
func ActivityText(a model.Activity) string {
	subject := a.IssueID
	if subject == "" {
		subject = "cache"
	}
	switch a.Action {
	case model.ActionStatus:
		return fmt.Sprintf("%s moved %s -> %s", subject, a.OldValue, a.NewValue)
	case model.ActionDuplicate:
		return fmt.Sprintf("report %s matched existing issue %s", a.OldValue, subject)
	case model.ActionSubmitted:
		return fmt.Sprintf("report %s created issue %s", a.OldValue, subject)
	case model.ActionPending, model.ActionDiscarded:
		msg := fmt.Sprintf("report %s %s", subject, a.Action)
		if a.NewValue != "" {
			msg += ": " + a.NewValue
		}
		return msg
	case model.ActionRepaired, model.ActionMalformed:
		if a.NewValue != "" {
			return fmt.Sprintf("%s %s: %s", subject, a.Action, a.NewValue)
		}
	}
	return fmt.Sprintf("%s %s", subject, a.Action)
}

// RenderActivityLog renders journal entries newest first.
func RenderActivityLog(activity []model.Activity) string {
	if len(activity) == 0 {
		return EmptyState("No activity recorded.", "Entries appear after sync, watch and report.", false)
	}

	var lines []string
	for _, a := range activity {
		when := humanize.Time(a.CreatedAt)
		if !ColorsEnabled() {
			lines = append(lines, fmt.Sprintf("  %s %s  [%s] %s", activityIcon(a), ActivityText(a), a.Source, when))
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s %s  %s",
			activityIcon(a),
			ActivityText(a),
			dimStyle.Render("["+a.Source+"] "+when),
		))
	}
	return strings.Join(lines, "\n")
}

func renderPlainDetail(issue *model.Issue, comments []model.Comment, activity []model.Activity) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", issue.ID, issue.DisplayTitle())
	fmt.Fprintf(&b, "%s  %s\n\n", statusLabel(issue.Status), priorityLabel(issue.Priority))
	for _, kv := range metadataLines(issue) {
		fmt.Fprintf(&b, "%s %s\n", kv[0], kv[1])
	}

	b.WriteString("\nProgress\n")
	if issue.Status == model.StatusDuplicate {
		fmt.Fprintf(&b, "  %s\n", statusLabel(issue.Status))
	} else {
		for _, s := range model.Lifecycle {
			mark := "[ ]"
			if s.Rank() <= issue.Status.Rank() {
				mark = "[x]"
			}
			fmt.Fprintf(&b, "  %s %s\n", mark, s.Label())
		}
	}

	if issue.Description != "" {
		fmt.Fprintf(&b, "\nDescription\n%s\n", issue.Description)
	}
	if len(issue.Media) > 0 {
		b.WriteString("\nMedia\n")
		for _, m := range issue.Media {
			fmt.Fprintf(&b, "  > %s\n", m)
		}
	}
	if len(comments) > 0 {
		b.WriteString("\nComments\n")
		writePlainComments(&b, comments)
	}
	if len(activity) > 0 {
		b.WriteString("\nActivity\n")
		b.WriteString(RenderActivityLog(activity))
		b.WriteString("\n")
	}
	return b.String()
}
