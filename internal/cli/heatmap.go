package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
	"github.com/ALT-F4-LLC/citywatch/internal/spatial"
)

type heatmapResult struct {
	Bounds  spatial.Bounds  `json:"bounds"`
	Width   int             `json:"width"`
	Height  int             `json:"height"`
	Points  int             `json:"points"`
	Max     float64         `json:"max"`
	Cells   []float64       `json:"cells"`
	Markers []heatmapMarker `json:"markers"`
}

type heatmapMarker struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
}

// heatmapView holds what one heatmap render needs; watch reuses it.
type heatmapView struct {
	agg      spatial.Aggregator
	markers  bool
	weighted bool
}

var heatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Draw a density map of issue locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)

		criteria, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}
		view, err := heatmapFromFlags(cmd)
		if err != nil {
			return err
		}
		st, err := loadStore(cmd, w)
		if err != nil {
			return err
		}
		issues := filter.Apply(st.Snapshot(), criteria.Predicate())

		surface, markers := view.compute(issues)
		if w.JSONMode {
			w.Success(heatmapJSON(surface, markers), "")
			return nil
		}
		w.Success(nil, view.render(issues, surface, markers, ""))
		return nil
	},
}

func heatmapFromFlags(cmd *cobra.Command) (heatmapView, error) {
	cfg := getCfg(cmd)
	width, _ := cmd.Flags().GetInt("width")
	height, _ := cmd.Flags().GetInt("height")
	radius, _ := cmd.Flags().GetFloat64("radius")
	blur, _ := cmd.Flags().GetFloat64("blur")
	markers, _ := cmd.Flags().GetBool("markers")
	weighted, _ := cmd.Flags().GetBool("weighted")

	if width == 0 {
		// Leave room for the frame.
		width = max(render.TerminalWidth()-4, 10)
	}
	if height == 0 {
		height = max(width/3, 5)
	}
	if !cmd.Flags().Changed("radius") {
		radius = cfg.HeatRadius
	}
	if !cmd.Flags().Changed("blur") {
		blur = cfg.HeatBlur
	}

	agg := spatial.Aggregator{Width: width, Height: height, Radius: radius, Blur: blur}
	if err := agg.Validate(); err != nil {
		return heatmapView{}, cmdErr(err, output.ErrValidation)
	}
	return heatmapView{agg: agg, markers: markers, weighted: weighted}, nil
}

func (v heatmapView) compute(issues []*model.Issue) (*spatial.Surface, []spatial.Marker) {
	var weight func(*model.Issue) float64
	if v.weighted {
		weight = spatial.WeightByPriority
	}
	points := spatial.PointsFromIssues(issues, weight)
	surface := v.agg.Density(points)
	var markers []spatial.Marker
	if v.markers {
		markers = v.agg.Markers(points)
	}
	return surface, markers
}

func (v heatmapView) render(issues []*model.Issue, s *spatial.Surface, markers []spatial.Marker, title string) string {
	colors := make(map[string]string, len(issues))
	for _, i := range issues {
		colors[i.ID] = i.Priority.Color()
	}
	if title == "" {
		title = fmt.Sprintf("%d issues", len(issues))
	}
	return render.RenderHeatmap(s, render.HeatmapOptions{
		Markers:      markers,
		MarkerColors: colors,
		Title:        title,
	})
}

func heatmapJSON(s *spatial.Surface, markers []spatial.Marker) heatmapResult {
	out := heatmapResult{
		Bounds:  s.Bounds,
		Width:   s.Width,
		Height:  s.Height,
		Points:  s.Points,
		Max:     s.Max,
		Cells:   s.Cells,
		Markers: make([]heatmapMarker, 0, len(markers)),
	}
	for _, m := range markers {
		out.Markers = append(out.Markers, heatmapMarker{ID: m.ID, Lat: m.Lat, Lng: m.Lng, X: m.X, Y: m.Y})
	}
	return out
}

func addHeatmapFlags(cmd *cobra.Command) {
	cmd.Flags().Int("width", 0, "Grid width in cells (default: terminal width)")
	cmd.Flags().Int("height", 0, "Grid height in cells (default: a third of the width)")
	cmd.Flags().Float64("radius", spatial.DefaultRadius, "Kernel radius in cells (default from config)")
	cmd.Flags().Float64("blur", spatial.DefaultBlur, "Fraction of the radius that fades out, 0 to 1 (default from config)")
	cmd.Flags().Bool("markers", false, "Pin individual issues over the density")
	cmd.Flags().Bool("weighted", false, "Weight issues by priority")
}

func init() {
	addFilterFlags(heatmapCmd)
	addHeatmapFlags(heatmapCmd)
	rootCmd.AddCommand(heatmapCmd)
}
