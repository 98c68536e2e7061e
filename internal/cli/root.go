// Package cli implements the citywatch command tree.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ALT-F4-LLC/citywatch/internal/config"
	"github.com/ALT-F4-LLC/citywatch/internal/db"
	"github.com/ALT-F4-LLC/citywatch/internal/output"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type contextKey string

const (
	dbKey     contextKey = "db"
	cfgKey    contextKey = "cfg"
	loggerKey contextKey = "logger"
)

// CmdError wraps an error with a machine-readable error code for structured output.
type CmdError struct {
	Err  error
	Code output.ErrorCode
}

func (e *CmdError) Error() string { return e.Err.Error() }

func (e *CmdError) Unwrap() error { return e.Err }

func cmdErr(err error, code output.ErrorCode) *CmdError {
	return &CmdError{Err: err, Code: code}
}

var rootCmd = &cobra.Command{
	Use:     "citywatch",
	Short:   "Follow, report and map civic issues from the terminal",
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cmd)
		slog.SetDefault(logger)

		cfg, err := config.Resolve()
		if err != nil {
			return cmdErr(err, output.ErrValidation)
		}
		if err := cfg.Validate(); err != nil {
			// Commands that inspect or repair configuration still run.
			if _, ok := cmd.Annotations["lenientConfig"]; !ok {
				return cmdErr(fmt.Errorf("invalid configuration: %w", err), output.ErrValidation)
			}
			getWriter(cmd).Warn("invalid configuration: %v", err)
		}

		ctx := context.WithValue(cmd.Context(), cfgKey, cfg)
		ctx = context.WithValue(ctx, loggerKey, logger)

		if _, ok := cmd.Annotations["skipDB"]; ok {
			cmd.SetContext(ctx)
			return nil
		}

		if _, err := os.Stat(cfg.DBPath); os.IsNotExist(err) {
			return cmdErr(
				fmt.Errorf("no citywatch cache found, run 'citywatch init' to create one"),
				output.ErrNotFound,
			)
		}

		conn, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Migrate(conn); err != nil {
			conn.Close()
			return fmt.Errorf("migrating database: %w", err)
		}

		cmd.SetContext(context.WithValue(ctx, dbKey, conn))
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		conn, ok := cmd.Context().Value(dbKey).(*sql.DB)
		if ok && conn != nil {
			return conn.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress non-essential output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log diagnostics to stderr")
	rootCmd.PersistentFlags().Bool("offline", false, "Use the local cache only; never contact the server")
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
}

// newLogger builds the diagnostic logger. Diagnostics always go to stderr so
// they never mix with command output.
func newLogger(cmd *cobra.Command) *slog.Logger {
	jsonMode, _ := cmd.Flags().GetBool("json")
	verbose, _ := cmd.Flags().GetBool("verbose")

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonMode {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getWriter(cmd *cobra.Command) *output.Writer {
	jsonMode, _ := cmd.Flags().GetBool("json")
	quietMode, _ := cmd.Flags().GetBool("quiet")
	w := output.New(jsonMode, quietMode)
	w.Stdout = cmd.OutOrStdout()
	w.Stderr = cmd.ErrOrStderr()
	return w
}

func getCfg(cmd *cobra.Command) *config.Config {
	cfg, _ := cmd.Context().Value(cfgKey).(*config.Config)
	return cfg
}

func getDB(cmd *cobra.Command) *sql.DB {
	conn, _ := cmd.Context().Value(dbKey).(*sql.DB)
	return conn
}

func getLogger(cmd *cobra.Command) *slog.Logger {
	if l, ok := cmd.Context().Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

func isOffline(cmd *cobra.Command) bool {
	offline, _ := cmd.Flags().GetBool("offline")
	return offline
}

// Execute runs the root command and returns an exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		jsonMode, _ := rootCmd.PersistentFlags().GetBool("json")
		quietMode, _ := rootCmd.PersistentFlags().GetBool("quiet")
		w := output.New(jsonMode, quietMode)
		w.Stdout = rootCmd.OutOrStdout()
		w.Stderr = rootCmd.ErrOrStderr()

		var ce *CmdError
		if errors.As(err, &ce) {
			return w.Error(ce.Err, ce.Code)
		}
		return w.Error(err, codeFor(err))
	}
	return 0
}
