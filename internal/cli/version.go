package cli

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/render"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Server    string `json:"server,omitempty"`
}

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print citywatch version information",
	Annotations: map[string]string{"skipDB": "true", "lenientConfig": "true"},
	Run: func(cmd *cobra.Command, args []string) {
		w := getWriter(cmd)

		info := versionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		}
		if cfg := getCfg(cmd); cfg != nil {
			info.Server = cfg.BaseURL
		}

		bold := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
		dim := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
		msg := fmt.Sprintf("citywatch %s %s",
			render.StyledText(info.Version, bold),
			render.StyledText(fmt.Sprintf("(commit: %s, built: %s, %s %s)",
				info.Commit, info.BuildDate, info.GoVersion, info.Platform), dim),
		)
		if info.Server != "" {
			msg += "\n" + render.StyledText("server: "+info.Server, dim)
		}
		w.Success(info, msg)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
