package cli

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/filter"
	"github.com/ALT-F4-LLC/citywatch/internal/model"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
)

var exportFormats = []string{"json", "csv", "markdown", "geojson"}

// exportData is the JSON export document.
type exportData struct {
	Version    int                        `json:"version"`
	ExportedAt string                     `json:"exported_at"`
	Issues     []*model.Issue             `json:"issues"`
	Comments   map[string][]model.Comment `json:"comments"`
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues to JSON, CSV, Markdown or GeoJSON",
	Long: `Export the current issues, optionally filtered. Comment threads are
included from the local cache for json and markdown; run 'citywatch show'
on an issue to cache its thread.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		conn := getDB(cmd)

		format, _ := cmd.Flags().GetString("format")
		filePath, _ := cmd.Flags().GetString("file")
		if !validFormat(format) {
			return cmdErr(
				fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(exportFormats, ", ")),
				output.ErrValidation,
			)
		}
		criteria, err := criteriaFromFlags(cmd)
		if err != nil {
			return err
		}

		st, err := loadStore(cmd, w)
		if err != nil {
			return err
		}
		issues := filter.Apply(st.Snapshot(), criteria.Predicate())

		comments := make(map[string][]model.Comment)
		if format == "json" || format == "markdown" {
			for _, issue := range issues {
				thread, err := db.ListComments(conn, issue.ID)
				if err != nil {
					return fail(err, "reading cached comments")
				}
				if len(thread) > 0 {
					comments[issue.ID] = thread
				}
			}
		}

		var raw string
		switch format {
		case "json":
			raw, err = renderExportJSON(exportData{
				Version:    1,
				ExportedAt: time.Now().UTC().Format(time.RFC3339),
				Issues:     issues,
				Comments:   comments,
			})
		case "csv":
			raw, err = renderExportCSV(issues)
		case "markdown":
			raw = renderExportMarkdown(issues, comments)
		case "geojson":
			raw, err = renderExportGeoJSON(issues)
		}
		if err != nil {
			return cmdErr(fmt.Errorf("rendering export: %w", err), output.ErrGeneral)
		}

		if filePath != "" {
			if err := os.WriteFile(filePath, []byte(raw), 0o644); err != nil {
				return cmdErr(fmt.Errorf("writing file: %w", err), output.ErrGeneral)
			}
			w.Info("Exported %d issues to %s", len(issues), filePath)
			return nil
		}

		fmt.Fprint(cmd.OutOrStdout(), raw)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "o", "json", "Export format: json, csv, markdown, geojson")
	exportCmd.Flags().StringP("file", "f", "", "Output file path (default: stdout)")
	addFilterFlags(exportCmd)
	rootCmd.AddCommand(exportCmd)
}

func validFormat(f string) bool {
	for _, v := range exportFormats {
		if f == v {
			return true
		}
	}
	return false
}

// renderExportJSON produces a pretty-printed JSON string of the export data.
func renderExportJSON(data exportData) (string, error) {
	if data.Issues == nil {
		data.Issues = []*model.Issue{}
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}

// renderExportCSV produces a CSV string with a header row and one row per issue.
func renderExportCSV(issues []*model.Issue) (string, error) {
	var buf strings.Builder
	cw := csv.NewWriter(&buf)

	header := []string{"id", "title", "description", "category", "status", "priority", "lat", "lng",
		"address", "reporter", "confirmations", "media", "created_at", "updated_at"}
	if err := cw.Write(header); err != nil {
		return "", err
	}

	for _, issue := range issues {
		row := []string{
			issue.ID,
			issue.Title,
			issue.Description,
			issue.Category,
			string(issue.Status),
			string(issue.Priority),
			strconv.FormatFloat(issue.Location.Lat, 'f', -1, 64),
			strconv.FormatFloat(issue.Location.Lng, 'f', -1, 64),
			issue.Address,
			issue.Reporter.Name,
			strconv.Itoa(issue.Confirmations),
			// URLs may contain commas.
			strings.Join(issue.Media, ";"),
			issue.CreatedAt.UTC().Format(time.RFC3339),
			issue.UpdatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// escapeMarkdown replaces characters that have special meaning in Markdown so
// that arbitrary user text can be safely embedded in headings and inline spans.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`#`, `\#`,
		`*`, `\*`,
		`_`, `\_`,
		`[`, `\[`,
		`]`, `\]`,
		`<`, `\<`,
		`>`, `\>`,
		"`", "\\`",
		`|`, `\|`,
	)
	return r.Replace(s)
}

// renderExportMarkdown groups issues by status in lifecycle order.
func renderExportMarkdown(issues []*model.Issue, comments map[string][]model.Comment) string {
	grouped := make(map[model.Status][]*model.Issue)
	for _, issue := range issues {
		grouped[issue.Status] = append(grouped[issue.Status], issue)
	}

	var buf strings.Builder
	buf.WriteString("# CityWatch Export\n\n")

	for _, status := range model.Statuses() {
		group := grouped[status]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "## %s (%d)\n\n", status.Label(), len(group))

		for _, issue := range group {
			fmt.Fprintf(&buf, "### %s: %s\n\n", issue.ID, escapeMarkdown(issue.DisplayTitle()))

			fmt.Fprintf(&buf, "- **Priority:** %s\n", escapeMarkdown(string(issue.Priority)))
			if issue.Category != "" {
				fmt.Fprintf(&buf, "- **Category:** %s\n", escapeMarkdown(issue.Category))
			}
			fmt.Fprintf(&buf, "- **Location:** %s\n", issue.Location)
			if issue.Address != "" {
				fmt.Fprintf(&buf, "- **Address:** %s\n", escapeMarkdown(issue.Address))
			}
			if issue.Reporter.Name != "" {
				fmt.Fprintf(&buf, "- **Reported by:** %s\n", escapeMarkdown(issue.Reporter.Name))
			}
			if issue.Confirmations > 0 {
				fmt.Fprintf(&buf, "- **Confirmations:** %d\n", issue.Confirmations)
			}
			buf.WriteString("\n")

			if issue.Description != "" {
				buf.WriteString(escapeMarkdown(issue.Description) + "\n\n")
			}

			if thread := comments[issue.ID]; len(thread) > 0 {
				buf.WriteString("**Comments:**\n\n")
				for _, c := range thread {
					fmt.Fprintf(&buf, "> **%s** (%s):\n> %s\n\n",
						escapeMarkdown(c.AuthorOrAnonymous()),
						c.CreatedAt.UTC().Format(time.RFC3339),
						escapeMarkdown(c.Body),
					)
				}
			}
		}
	}
	return buf.String()
}

type geoFeature struct {
	Type     string         `json:"type"`
	Geometry geoPoint       `json:"geometry"`
	Props    map[string]any `json:"properties"`
}

type geoPoint struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// renderExportGeoJSON writes a FeatureCollection of points. GeoJSON orders
// coordinates longitude first.
func renderExportGeoJSON(issues []*model.Issue) (string, error) {
	features := make([]geoFeature, 0, len(issues))
	for _, issue := range issues {
		features = append(features, geoFeature{
			Type:     "Feature",
			Geometry: geoPoint{Type: "Point", Coordinates: [2]float64{issue.Location.Lng, issue.Location.Lat}},
			Props: map[string]any{
				"id":            issue.ID,
				"title":         issue.Title,
				"category":      issue.Category,
				"status":        issue.Status,
				"priority":      issue.Priority,
				"confirmations": issue.Confirmations,
				"updated_at":    issue.UpdatedAt.UTC().Format(time.RFC3339),
			},
		})
	}
	b, err := json.MarshalIndent(map[string]any{
		"type":     "FeatureCollection",
		"features": features,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b) + "\n", nil
}
