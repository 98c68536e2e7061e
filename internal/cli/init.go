package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/citywatch/internal/config"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
	"github.com/ALT-F4-LLC/citywatch/internal/render"

	"github.com/spf13/cobra"
)

type initResult struct {
	Path          string `json:"path"`
	DBPath        string `json:"db_path"`
	ConfigPath    string `json:"config_path"`
	SchemaVersion int    `json:"schema_version"`
	Created       bool   `json:"created"`
}

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create the local cache and a starter config.yaml",
	Annotations: map[string]string{"skipDB": "true", "lenientConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		w := getWriter(cmd)
		cfg := getCfg(cmd)
		serverURL, _ := cmd.Flags().GetString("url")

		exists, err := cfg.Exists()
		if err != nil {
			return cmdErr(fmt.Errorf("checking cache: %w", err), output.ErrGeneral)
		}
		if exists {
			w.Warn("Cache already exists at %s", cfg.DBPath)
		}

		conn, err := db.OpenDir(cfg.Dir)
		if err != nil {
			return cmdErr(fmt.Errorf("initializing cache: %w", err), output.ErrGeneral)
		}
		defer conn.Close()

		schemaVersion, err := db.SchemaVersion(conn)
		if err != nil {
			return cmdErr(fmt.Errorf("reading schema version: %w", err), output.ErrGeneral)
		}

		if _, err := os.Stat(cfg.ConfigPath); os.IsNotExist(err) {
			starter := &config.File{
				BaseURL:        cfg.BaseURL,
				ResyncInterval: config.DefaultResyncInterval.String(),
			}
			if serverURL != "" {
				starter.BaseURL = serverURL
			}
			if err := config.WriteFile(cfg.ConfigPath, starter); err != nil {
				return cmdErr(err, output.ErrGeneral)
			}
			w.Info("Wrote %s", cfg.ConfigPath)
		} else if serverURL != "" {
			w.Warn("%s exists; use 'citywatch config set base_url' to change the server", cfg.ConfigPath)
		}

		result := initResult{
			Path:          cfg.Dir,
			DBPath:        cfg.DBPath,
			ConfigPath:    cfg.ConfigPath,
			SchemaVersion: schemaVersion,
			Created:       !exists,
		}
		if exists {
			w.Success(result, render.StyledText("Cache already initialized", lipgloss.NewStyle().Foreground(lipgloss.Color("3"))))
			return nil
		}

		w.Success(result, render.StyledText("Initialized citywatch cache", lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))))
		w.Info("Set a token with CITYWATCH_TOKEN or 'citywatch config set token_file <path>'")
		w.Info("Consider adding .citywatch/ to your .gitignore")
		return nil
	},
}

func init() {
	initCmd.Flags().String("url", "", "Server base URL to write into config.yaml")
	rootCmd.AddCommand(initCmd)
}
