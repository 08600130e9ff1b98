// Package cmd provides the CLI commands for contextd.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/databao-dev/contextd/internal/contexterr"
	"github.com/databao-dev/contextd/internal/logging"
	"github.com/databao-dev/contextd/pkg/version"
)

var (
	projectDir string
	debugMode  bool
)

// NewRootCmd creates the root command for the contextd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "contextd",
		Short:         "Context indexing and retrieval engine",
		Long:          `contextd builds a searchable index over heterogeneous project datasources (databases, files, and custom plugin sources) and answers hybrid keyword/vector retrieval queries against it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("contextd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&projectDir, "project", ".", "Project directory (defaults to the current directory)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.contextd/logs/")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newRunSQLCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupLogging configures the default slog logger for this invocation,
// mirroring the teacher's --debug flag: file logging only when requested,
// otherwise minimal stderr output.
func setupLogging() func() {
	cfg := logging.DefaultConfig()
	if !debugMode {
		cfg.WriteToStderr = true
		cfg.FilePath = ""
	} else {
		cfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return func() {}
	}
	slog.SetDefault(logger)
	return cleanup
}

// Execute runs the root command and returns the process exit code (spec
// §6: "CLI exit codes: 0 success, 1 user error, 2 system error").
func Execute() int {
	cleanup := setupLogging()
	defer cleanup()

	err := NewRootCmd().Execute()
	return exitCode(err)
}

// exitCode maps an error into the spec's three-value exit code contract,
// grounded on contexterr.Kind: kinds describing a caller mistake (bad
// input, denied scope, an unsupported operation) are user errors; kinds
// describing a broken invariant, a storage failure, or an upstream
// provider failure are system errors, as is any error this module did not
// itself classify.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case contexterr.IsKind(err, contexterr.KindValue),
		contexterr.IsKind(err, contexterr.KindPermission),
		contexterr.IsKind(err, contexterr.KindNotSupported):
		return 1
	default:
		return 2
	}
}
