// Package cli implements the weft command line interface.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/weft/internal/logging"
)

var (
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
)

// defaultTraceDB returns the default trace database path, checking the
// WEFT_DB env var first. Empty means tracing is disabled.
func defaultTraceDB() string {
	return os.Getenv("WEFT_DB")
}

// NewRootCmd creates the root cobra command for the weft CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "weft",
		Short: "weft — suspendable task-DAG scheduler for CPU/GPU pipelines",
		Long:  "weft runs declarative pipelines on a work-stealing scheduler that suspends tasks while device kernels are in flight.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "Log format (text, json, auto)")

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newRunsCmd(),
	)

	return root
}
