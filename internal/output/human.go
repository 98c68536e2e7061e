package output

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

// writeHumanSuccess prints single-line messages with a checkmark; multi-line
// content such as tables, boards and heatmaps is printed as-is.
func writeHumanSuccess(w io.Writer, message string) {
	if message == "" {
		return
	}
	if strings.Contains(message, "\n") {
		fmt.Fprintln(w, message)
		return
	}
	if render.ColorsEnabled() {
		icon := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Render("✔")
		fmt.Fprintf(w, "%s %s\n", icon, message)
	} else {
		fmt.Fprintln(w, message)
	}
}

func writeHumanError(w io.Writer, err error, code ErrorCode) {
	hint := hintFor(code)
	if render.ColorsEnabled() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
		fmt.Fprintf(w, "%s %s %s\n", style.Render("✘"), style.Render("Error:"), err)
		if hint != "" {
			fmt.Fprintln(w, lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true).Render(hint))
		}
		return
	}
	fmt.Fprintf(w, "Error: %s\n", err)
	if hint != "" {
		fmt.Fprintln(w, hint)
	}
}

func hintFor(code ErrorCode) string {
	switch code {
	case ErrSessionInvalid:
		return "Sign in again and update CITYWATCH_TOKEN or the token in config.yaml."
	case ErrRetryable:
		return "The report is queued. Resend it with: citywatch report retry"
	default:
		return ""
	}
}

// writeHumanEvent prints a timestamped line for long-running commands.
func writeHumanEvent(w io.Writer, event string, at time.Time, message string) {
	stamp := at.Local().Format("15:04:05")
	if render.ColorsEnabled() {
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		tag := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
		fmt.Fprintf(w, "%s %s %s\n", dim.Render(stamp), tag.Render(event), message)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", stamp, event, message)
}
