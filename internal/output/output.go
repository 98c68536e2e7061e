// Package output writes command results either as lipgloss-styled text or as
// JSON envelopes.
package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

// Writer handles output for a command, dispatching between JSON and
// human-readable formats based on mode flags. It is safe for concurrent use.
type Writer struct {
	JSONMode  bool
	QuietMode bool
	Stdout    io.Writer
	Stderr    io.Writer

	mu sync.Mutex
}

// New creates a Writer configured by the given mode flags.
// Data output goes to os.Stdout; diagnostics go to os.Stderr.
func New(jsonMode, quietMode bool) *Writer {
	return &Writer{
		JSONMode:  jsonMode,
		QuietMode: quietMode,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
	}
}

// Success renders a successful result. In JSON mode the data is wrapped in a
// success envelope written to Stdout. In human mode the message is printed to
// Stdout.
func (w *Writer) Success(data any, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.JSONMode {
		writeJSONSuccess(w.Stdout, data, message)
		return
	}
	writeHumanSuccess(w.Stdout, message)
}

// Error renders an error and returns the exit code for its classification.
// JSON mode writes the error envelope to Stdout; human mode writes to Stderr
// with a hint for codes the user can act on.
func (w *Writer) Error(err error, code ErrorCode) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.JSONMode {
		writeJSONError(w.Stdout, err, code)
	} else {
		writeHumanError(w.Stderr, err, code)
	}
	return ExitCodeForError(code)
}

// Event emits one entry of a long-running command's feed. JSON mode writes an
// NDJSON line with data; human mode prints message with a timestamp. Quiet
// mode suppresses human events only.
func (w *Writer) Event(event string, data any, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	if w.JSONMode {
		writeJSONEvent(w.Stdout, event, now, data)
		return
	}
	if w.QuietMode {
		return
	}
	writeHumanEvent(w.Stdout, event, now, message)
}

// Raw writes preformatted text to Stdout in human mode. It is used to redraw
// live views and is a no-op in JSON mode.
func (w *Writer) Raw(text string) {
	if w.JSONMode {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprint(w.Stdout, text)
}

// Info writes an informational message to Stderr. In quiet mode or JSON mode,
// Info is a no-op.
func (w *Writer) Info(format string, args ...any) {
	if w.QuietMode || w.JSONMode {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if render.ColorsEnabled() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		fmt.Fprintf(w.Stderr, "%s %s\n", style.Render("ℹ"), style.Render(msg))
	} else {
		fmt.Fprintln(w.Stderr, msg)
	}
}

// Warn writes a warning to Stderr. Warnings are emitted in human mode even
// when quiet, and suppressed in JSON mode.
func (w *Writer) Warn(format string, args ...any) {
	if w.JSONMode {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	msg := fmt.Sprintf(format, args...)
	if render.ColorsEnabled() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true)
		fmt.Fprintf(w.Stderr, "%s %s %s\n", style.Render("⚠"), style.Render("Warning:"), msg)
	} else {
		fmt.Fprintf(w.Stderr, "Warning: %s\n", msg)
	}
}
