package cli

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ALT-F4-LLC/citywatch/internal/model"
)

func exportFixture() []*model.Issue {
	ts := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return []*model.Issue{
		{
			ID: "i1", Title: "Pothole, *deep*", Description: "Near the [bus] stop", Category: "Roads",
			Status: model.StatusInReview, Priority: model.PriorityHigh,
			Location: model.Coordinate{Lat: 12.97, Lng: 77.59}, Address: "MG Road",
			Reporter: model.ReporterRef{ID: "u1", Name: "Asha"}, Confirmations: 4,
			Media:     []string{"https://cdn.example/a.jpg", "https://cdn.example/b.jpg"},
			CreatedAt: ts, UpdatedAt: ts.Add(time.Hour),
		},
		{
			ID: "i2", Title: "Streetlight out", Category: "Lighting",
			Status: model.StatusResolved, Priority: model.PriorityLow,
			Location:  model.Coordinate{Lat: 12.95, Lng: 77.61},
			CreatedAt: ts, UpdatedAt: ts,
		},
	}
}

func TestRenderExportCSV(t *testing.T) {
	raw, err := renderExportCSV(exportFixture())
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "id", records[0][0])
	assert.Equal(t, "Pothole, *deep*", records[1][1])
	assert.Equal(t, "12.97", records[1][6])
	assert.Equal(t, "https://cdn.example/a.jpg;https://cdn.example/b.jpg", records[1][11])
}

func TestRenderExportMarkdown(t *testing.T) {
	comments := map[string][]model.Comment{
		"i1": {{ID: "c1", Body: "crew_assigned", Author: "Ward 7", CreatedAt: time.Now()}},
	}
	md := renderExportMarkdown(exportFixture(), comments)

	assert.Contains(t, md, "### i1: Pothole, \\*deep\\*")
	assert.Contains(t, md, "Near the \\[bus\\] stop")
	assert.Contains(t, md, "crew\\_assigned")
	assert.Less(t, strings.Index(md, model.StatusInReview.Label()), strings.Index(md, model.StatusResolved.Label()),
		"sections follow the lifecycle")
}

func TestRenderExportGeoJSON(t *testing.T) {
	raw, err := renderExportGeoJSON(exportFixture())
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 2)
	assert.Equal(t, []float64{77.59, 12.97}, doc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "i1", doc.Features[0].Properties["id"])
}

func TestValidFormat(t *testing.T) {
	assert.True(t, validFormat("geojson"))
	assert.False(t, validFormat("xml"))
}
