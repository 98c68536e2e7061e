package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/citywatch/internal/config"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"
	"github.com/spf13/cobra"
)

type configInfo struct {
	Dir            string    `json:"dir"`
	DirFromEnv     bool      `json:"dir_from_env"`
	ConfigPath     string    `json:"config_path"`
	DBPath         string    `json:"db_path"`
	DBFound        bool      `json:"db_found"`
	DBSizeBytes    int64     `json:"db_size_bytes"`
	SchemaVersion  int       `json:"schema_version"`
	LastSynced     time.Time `json:"last_synced,omitzero"`
	BaseURL        string    `json:"base_url"`
	StreamURL      string    `json:"stream_url"`
	Token          string    `json:"token,omitempty"`
	TokenSource    string    `json:"token_source,omitempty"`
	ReporterID     string    `json:"reporter_id,omitempty"`
	Timeout        string    `json:"timeout"`
	ResyncInterval string    `json:"resync_interval"`
	RequestRate    float64   `json:"request_rate"`
	HeatRadius     float64   `json:"heatmap_radius"`
	HeatBlur       float64   `json:"heatmap_blur"`
}

var configCmd = &cobra.Command{
	Use:         "config",
	Short:       "Display the resolved citywatch configuration",
	Annotations: map[string]string{"skipDB": "true", "lenientConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		info := configInfo{
			Dir:            cfg.Dir,
			DirFromEnv:     cfg.EnvVarSet,
			ConfigPath:     cfg.ConfigPath,
			DBPath:         cfg.DBPath,
			BaseURL:        cfg.BaseURL,
			StreamURL:      cfg.StreamURL,
			Token:          cfg.MaskedToken(),
			TokenSource:    cfg.TokenSource,
			ReporterID:     cfg.ReporterID,
			Timeout:        cfg.Timeout.String(),
			ResyncInterval: cfg.ResyncInterval.String(),
			RequestRate:    cfg.RequestsPerSecond,
			HeatRadius:     cfg.HeatRadius,
			HeatBlur:       cfg.HeatBlur,
		}
		if cfg.ResyncInterval == 0 {
			info.ResyncInterval = "off"
		}

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking cache: %w", err), output.ErrGeneral)
		}
		if exists {
			conn, err := db.Open(cfg.DBPath)
			if err != nil {
				return cmdErr(fmt.Errorf("opening cache: %w", err), output.ErrGeneral)
			}
			defer conn.Close()

			if info.SchemaVersion, err = db.SchemaVersion(conn); err != nil {
				return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
			}
			info.LastSynced, _ = db.LastSynced(conn)
			if stat, err := os.Stat(cfg.DBPath); err == nil {
				info.DBSizeBytes = stat.Size()
			}
			info.DBFound = true
		} else {
			w.Warn("No citywatch cache found. Run 'citywatch init' to create one.")
		}

		w.Success(info, formatConfig(info))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:         "set <key> <value>",
	Short:       "Set a key in config.yaml",
	Long:        "Keys: " + strings.Join(configKeys, ", "),
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{"skipDB": "true", "lenientConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)

		f, err := config.ReadFile(cfg.ConfigPath)
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		if f == nil {
			f = &config.File{}
		}
		if err := setConfigKey(f, args[0], args[1]); err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return cmdErr(fmt.Errorf("creating directory: %w", err), output.ErrGeneral)
		}
		if err := config.WriteFile(cfg.ConfigPath, f); err != nil {
			return cmdErr(err, output.ErrGeneral)
		}

		shown := args[1]
		if args[0] == "token" {
			shown = "(hidden)"
		}
		w.Success(map[string]string{"key": args[0], "path": cfg.ConfigPath}, fmt.Sprintf("Set %s = %s", args[0], shown))
		return nil
	},
}

var configKeys = []string{
	"base_url", "stream_url", "token", "token_file", "reporter_id",
	"timeout", "resync_interval", "request_rate", "heatmap.radius", "heatmap.blur",
}

// setConfigKey parses value for key and stores it in f.
func setConfigKey(f *config.File, key, value string) error {
	parseFloat := func() (float64, error) {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, value)
		}
		return v, nil
	}
	parseDuration := func() error {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		return nil
	}

	switch key {
	case "base_url":
		f.BaseURL = value
	case "stream_url":
		f.StreamURL = value
	case "token":
		f.Token = value
	case "token_file":
		f.TokenFile = value
	case "reporter_id":
		f.ReporterID = value
	case "timeout":
		if err := parseDuration(); err != nil {
			return err
		}
		f.Timeout = value
	case "resync_interval":
		if err := parseDuration(); err != nil {
			return err
		}
		f.ResyncInterval = value
	case "request_rate":
		v, err := parseFloat()
		if err != nil {
			return err
		}
		f.RequestRate = v
	case "heatmap.radius":
		v, err := parseFloat()
		if err != nil {
			return err
		}
		f.Heatmap.Radius = v
	case "heatmap.blur":
		v, err := parseFloat()
		if err != nil {
			return err
		}
		f.Heatmap.Blur = &v
	default:
		return fmt.Errorf("unknown key %q (valid: %s)", key, strings.Join(configKeys, ", "))
	}
	return nil
}

func orNotSet(val string) string {
	if val == "" {
		return "(not set)"
	}
	return val
}

// syncedAgo describes the last snapshot time.
func syncedAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}

func formatConfig(info configInfo) string {
	dbLine := info.DBPath
	if !info.DBFound {
		dbLine += " (not found)"
	}
	streamURL := info.StreamURL
	if streamURL == "" {
		streamURL = "(derived from base URL)"
	}
	token := orNotSet(info.Token)
	if info.TokenSource != "" {
		token += " from " + info.TokenSource
	}

	rows := [][2]string{
		{"Data directory:", info.Dir},
		{"Config file:", info.ConfigPath},
		{"Cache:", dbLine},
	}
	if info.DBFound {
		rows = append(rows,
			[2]string{"Cache size:", humanize.Bytes(uint64(info.DBSizeBytes))},
			[2]string{"Schema version:", strconv.Itoa(info.SchemaVersion)},
			[2]string{"Last synced:", syncedAgo(info.LastSynced)},
		)
	}
	rows = append(rows,
		[2]string{"Server:", info.BaseURL},
		[2]string{"Stream:", streamURL},
		[2]string{"Token:", token},
		[2]string{"Reporter ID:", orNotSet(info.ReporterID)},
		[2]string{"Timeout:", info.Timeout},
		[2]string{"Resync:", info.ResyncInterval},
		[2]string{"Request rate:", fmt.Sprintf("%g/s", info.RequestRate)},
		[2]string{"Heatmap:", fmt.Sprintf("radius %g, blur %g", info.HeatRadius, info.HeatBlur)},
		[2]string{config.EnvPath + ":", orNotSet(os.Getenv(config.EnvPath))},
	)

	if !render.ColorsEnabled() {
		var b strings.Builder
		for _, r := range rows {
			fmt.Fprintf(&b, "%-16s %s\n", r[0], r[1])
		}
		return strings.TrimRight(b.String(), "\n")
	}

	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	keyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	valStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))

	lines := []string{headerStyle.Render("citywatch configuration"), ""}
	for _, r := range rows {
		val := valStyle.Render(r[1])
		if r[0] == "Cache:" {
			dot := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render("●")
			if !info.DBFound {
				dot = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("●")
			}
			val = dot + " " + val
		}
		lines = append(lines, fmt.Sprintf("  %s %s", keyStyle.Render(fmt.Sprintf("%-16s", r[0])), val))
	}
	return strings.Join(lines, "\n")
}

func init() {
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
