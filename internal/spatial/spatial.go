// Package spatial turns issue coordinates into marker positions and density
// surfaces for terminal maps. It is independent of any mapping library.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

const (
	DefaultPadding     = 0.2
	DefaultMinSpan     = 0.01
	DefaultWeight      = 0.5
	DefaultMarkerLimit = 100
	DefaultWidth       = 60
	DefaultHeight      = 20
	DefaultRadius      = 3.0
	DefaultBlur        = 0.5
)

// Point is a weighted position. A non-positive weight means DefaultWeight.
type Point struct {
	Lat    float64
	Lng    float64
	Weight float64
	ID     string
}

func (p Point) finite() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) && !math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

func (p Point) weight() float64 {
	if p.Weight > 0 && !math.IsInf(p.Weight, 0) {
		return p.Weight
	}
	return DefaultWeight
}

// Bounds is a latitude/longitude box.
type Bounds struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// ComputeBounds returns the box enclosing points, grown by padding times the
// span on each side. A zero span is replaced by minSpan before padding.
// Non-finite points are ignored; ok is false when none remain.
func ComputeBounds(points []Point, padding, minSpan float64) (b Bounds, ok bool) {
	b = Bounds{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLng: math.Inf(1), MaxLng: math.Inf(-1),
	}
	for _, p := range points {
		if !p.finite() {
			continue
		}
		ok = true
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLng = math.Min(b.MinLng, p.Lng)
		b.MaxLng = math.Max(b.MaxLng, p.Lng)
	}
	if !ok {
		return Bounds{}, false
	}

	latSpan := b.MaxLat - b.MinLat
	if latSpan == 0 {
		latSpan = minSpan
	}
	lngSpan := b.MaxLng - b.MinLng
	if lngSpan == 0 {
		lngSpan = minSpan
	}
	padLat, padLng := latSpan*padding, lngSpan*padding
	b.MinLat -= padLat
	b.MaxLat += padLat
	b.MinLng -= padLng
	b.MaxLng += padLng
	return b, true
}

// Project maps a coordinate to normalized (x, y) in [0, 1] for points inside
// the box. y grows southward to match screen orientation. The mapping is a
// plain linear interpolation with no geodesic correction.
func (b Bounds) Project(lat, lng float64) (x, y float64) {
	lngSpan := b.MaxLng - b.MinLng
	if lngSpan == 0 {
		lngSpan = 1
	}
	latSpan := b.MaxLat - b.MinLat
	if latSpan == 0 {
		latSpan = 1
	}
	x = (lng - b.MinLng) / lngSpan
	y = 1 - (lat-b.MinLat)/latSpan
	return x, y
}

// Contains reports whether the coordinate lies inside the box.
func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Marker is a point placed in normalized screen space.
type Marker struct {
	Point
	X, Y float64
}

// Surface is an accumulated density grid in row-major order. Row 0 is the
// northern edge.
type Surface struct {
	Width, Height int
	Cells         []float64
	Max           float64
	Bounds        Bounds
	Points        int
}

// At returns the raw density of cell (col, row).
func (s *Surface) At(col, row int) float64 {
	if col < 0 || row < 0 || col >= s.Width || row >= s.Height {
		return 0
	}
	return s.Cells[row*s.Width+col]
}

// Normalized returns the density of cell (col, row) scaled to [0, 1].
func (s *Surface) Normalized(col, row int) float64 {
	if s.Max == 0 {
		return 0
	}
	return s.At(col, row) / s.Max
}

// Aggregator holds the rendering parameters. Zero fields take the package
// defaults. An Aggregator carries no state between calls.
type Aggregator struct {
	Width       int
	Height      int
	Radius      float64
	Blur        float64
	MarkerLimit int
	Padding     float64
	MinSpan     float64
}

// ErrInvalidParams is returned by Validate for unusable parameters.
var ErrInvalidParams = errors.New("invalid aggregator parameters")

// Validate checks parameters after defaults are applied.
func (a Aggregator) Validate() error {
	c := a.withDefaults()
	switch {
	case c.Width < 1 || c.Height < 1:
		return fmt.Errorf("%w: grid must be at least 1x1", ErrInvalidParams)
	case c.Radius <= 0 || math.IsInf(c.Radius, 0) || math.IsNaN(c.Radius):
		return fmt.Errorf("%w: radius must be positive", ErrInvalidParams)
	case c.Blur < 0 || c.Blur > 1 || math.IsNaN(c.Blur):
		return fmt.Errorf("%w: blur must be within [0, 1]", ErrInvalidParams)
	case c.MarkerLimit < 1:
		return fmt.Errorf("%w: marker limit must be positive", ErrInvalidParams)
	}
	return nil
}

func (a Aggregator) withDefaults() Aggregator {
	if a.Width == 0 {
		a.Width = DefaultWidth
	}
	if a.Height == 0 {
		a.Height = DefaultHeight
	}
	if a.Radius == 0 {
		a.Radius = DefaultRadius
	}
	if a.MarkerLimit == 0 {
		a.MarkerLimit = DefaultMarkerLimit
	}
	if a.Padding == 0 {
		a.Padding = DefaultPadding
	}
	if a.MinSpan == 0 {
		a.MinSpan = DefaultMinSpan
	}
	return a
}

// Bounds computes the padded box for points with the aggregator's settings.
func (a Aggregator) Bounds(points []Point) (Bounds, bool) {
	c := a.withDefaults()
	return ComputeBounds(points, c.Padding, c.MinSpan)
}

// Markers places at most MarkerLimit points, taking the first ones in input
// order. Non-finite points are skipped and do not count toward the limit.
func (a Aggregator) Markers(points []Point) []Marker {
	c := a.withDefaults()
	b, ok := ComputeBounds(points, c.Padding, c.MinSpan)
	if !ok {
		return nil
	}
	out := make([]Marker, 0, min(len(points), c.MarkerLimit))
	for _, p := range points {
		if len(out) == c.MarkerLimit {
			break
		}
		if !p.finite() {
			continue
		}
		x, y := b.Project(p.Lat, p.Lng)
		out = append(out, Marker{Point: p, X: x, Y: y})
	}
	return out
}

// Density accumulates weighted kernels onto a Width x Height grid. Each point
// contributes weight x kernel(d) to every cell within Radius cells, where the
// kernel is 1 inside Radius*(1-Blur) and falls linearly to 0 at Radius.
func (a Aggregator) Density(points []Point) *Surface {
	c := a.withDefaults()
	s := &Surface{
		Width:  c.Width,
		Height: c.Height,
		Cells:  make([]float64, c.Width*c.Height),
	}
	b, ok := ComputeBounds(points, c.Padding, c.MinSpan)
	if !ok {
		return s
	}
	s.Bounds = b

	inner := c.Radius * (1 - c.Blur)
	reach := int(math.Ceil(c.Radius))
	for _, p := range points {
		if !p.finite() {
			continue
		}
		s.Points++
		x, y := b.Project(p.Lat, p.Lng)
		px := x * float64(c.Width-1)
		py := y * float64(c.Height-1)
		w := p.weight()

		col0, row0 := int(math.Round(px)), int(math.Round(py))
		for row := max(0, row0-reach); row <= min(c.Height-1, row0+reach); row++ {
			for col := max(0, col0-reach); col <= min(c.Width-1, col0+reach); col++ {
				d := math.Hypot(float64(col)-px, float64(row)-py)
				k := kernel(d, inner, c.Radius)
				if k == 0 {
					continue
				}
				s.Cells[row*c.Width+col] += w * k
			}
		}
	}
	for _, v := range s.Cells {
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}

func kernel(d, inner, radius float64) float64 {
	switch {
	case d <= inner:
		return 1
	case d >= radius:
		return 0
	default:
		return (radius - d) / (radius - inner)
	}
}

// PointsFromIssues converts issues to points. A nil weightFn leaves every
// point at the default weight.
func PointsFromIssues(issues []*model.Issue, weightFn func(*model.Issue) float64) []Point {
	out := make([]Point, 0, len(issues))
	for _, i := range issues {
		p := Point{Lat: i.Location.Lat, Lng: i.Location.Lng, ID: i.ID}
		if weightFn != nil {
			p.Weight = weightFn(i)
		}
		out = append(out, p)
	}
	return out
}

// WeightByPriority weights urgent issues more heavily.
func WeightByPriority(i *model.Issue) float64 {
	switch i.Priority {
	case model.PriorityHigh:
		return 1.0
	case model.PriorityLow:
		return 0.25
	default:
		return DefaultWeight
	}
}
