package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/citywatch/internal/spatial"
)

// Density ramps, lightest first. The plain ramp is pure ASCII.
var (
	plainRamp = []rune(" .:-=+*#%@")
	colorRamp = []rune(" ·░▒▓█")
	heatColor = []lipgloss.Color{"0", "8", "3", "11", "208", "9"}
)

const markerGlyph = '●'

// HeatmapOptions configures heatmap rendering.
type HeatmapOptions struct {
	// Markers are drawn over the density. MarkerColors maps an issue ID to
	// a color name for its pin.
	Markers      []spatial.Marker
	MarkerColors map[string]string
	Title        string
}

// shade maps a normalized density to a ramp index. Any nonzero density
// gets at least the first visible glyph.
func shade(v float64, levels int) int {
	if v <= 0 {
		return 0
	}
	i := int(math.Ceil(v * float64(levels-1)))
	return min(max(i, 1), levels-1)
}

// markerCell converts a marker's normalized position to a grid cell.
func markerCell(m spatial.Marker, width, height int) (col, row int) {
	col = int(math.Round(m.X * float64(width-1)))
	row = int(math.Round(m.Y * float64(height-1)))
	return min(max(col, 0), width-1), min(max(row, 0), height-1)
}

// RenderHeatmap draws a density surface as a character grid framed by its
// geographic bounds.
func RenderHeatmap(s *spatial.Surface, opts HeatmapOptions) string {
	if s == nil || s.Points == 0 {
		return EmptyState("No issues with a usable location.", "", false)
	}

	color := ColorsEnabled()
	ramp := plainRamp
	if color {
		ramp = colorRamp
	}

	pins := make(map[[2]int]spatial.Marker, len(opts.Markers))
	for _, m := range opts.Markers {
		col, row := markerCell(m, s.Width, s.Height)
		pins[[2]int{col, row}] = m
	}

	var b strings.Builder
	if opts.Title != "" {
		b.WriteString(StyledText(opts.Title, sectionStyle))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%s\n", StyledText(fmt.Sprintf("N %.4f", s.Bounds.MaxLat), dimStyle))

	border := "+" + strings.Repeat("-", s.Width) + "+"
	b.WriteString(border + "\n")
	for row := range s.Height {
		b.WriteString("|")
		for col := range s.Width {
			if m, ok := pins[[2]int{col, row}]; ok {
				b.WriteString(pinGlyph(m, opts.MarkerColors, color))
				continue
			}
			i := shade(s.Normalized(col, row), len(ramp))
			if color {
				b.WriteString(lipgloss.NewStyle().Foreground(heatColor[i*(len(heatColor)-1)/(len(ramp)-1)]).Render(string(ramp[i])))
			} else {
				b.WriteRune(ramp[i])
			}
		}
		b.WriteString("|\n")
	}
	b.WriteString(border + "\n")

	footer := fmt.Sprintf("S %.4f   W %.4f  E %.4f   %d points", s.Bounds.MinLat, s.Bounds.MinLng, s.Bounds.MaxLng, s.Points)
	if len(opts.Markers) > 0 {
		footer += fmt.Sprintf(", %d pins", len(opts.Markers))
	}
	b.WriteString(StyledText(footer, dimStyle))
	return b.String()
}

func pinGlyph(m spatial.Marker, colors map[string]string, color bool) string {
	if !color {
		return "o"
	}
	name := colors[m.ID]
	if name == "" {
		name = "white"
	}
	return lipgloss.NewStyle().Bold(true).Foreground(ColorFromName(name)).Render(string(markerGlyph))
}
