package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
)

// ColorsEnabled returns whether terminal colors should be used.
// It returns false if the NO_COLOR environment variable is set (any value)
// or if TERM is set to "dumb".
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// RenderMarkdown renders issue descriptions and comment bodies for the
// terminal, wrapped to the terminal width. When colors are disabled the text
// is returned unmodified.
func RenderMarkdown(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", nil
	}
	if !ColorsEnabled() {
		return content, nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(min(TerminalWidth()-4, 100)),
	)
	if err != nil {
		return content, err
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return strings.TrimSpace(rendered), nil
}
