package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/databao-dev/contextd/internal/contexterr"
	"github.com/databao-dev/contextd/internal/datasource"
	"github.com/databao-dev/contextd/internal/introspect"
)

// newRunSQLCmd creates the run-sql command: executes read/write SQL
// directly against one named datasource's connection (spec §4.7 "Run-SQL
// contract"), bypassing the plugin registry since a SQLRunner call needs a
// specific datasource's connection config, not a full_type-keyed one.
func newRunSQLCmd() *cobra.Command {
	var (
		datasourceName string
		readOnly       bool
		jsonOutput     bool
	)

	cmd := &cobra.Command{
		Use:   "run-sql <sql>",
		Short: "Run a SQL statement against a named database datasource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunSQL(cmd, datasourceName, args[0], readOnly, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&datasourceName, "datasource", "", "Name of the database datasource to run against (required)")
	cmd.Flags().BoolVar(&readOnly, "read-only", true, "Reject statements that mutate data")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	_ = cmd.MarkFlagRequired("datasource")

	return cmd
}

func runRunSQL(cmd *cobra.Command, datasourceName, sqlText string, readOnly, jsonOutput bool) error {
	srcDir := filepath.Join(projectDir, "src")
	discovered, err := datasource.Discover(srcDir, slog.Default())
	if err != nil {
		return err
	}

	var match *datasource.Discovered
	for i := range discovered {
		if discovered[i].Config.Name == datasourceName {
			match = &discovered[i]
			break
		}
	}
	if match == nil {
		return contexterr.Valuef("no datasource named %q under %s", datasourceName, srcDir)
	}

	var newDialect func(map[string]any) (introspect.Dialect, error)
	switch match.Config.Type {
	case "databases/sqlite":
		newDialect = introspect.NewSQLiteDialectFromConfig
	case "databases/postgres":
		newDialect = introspect.NewPostgresDialectFromConfig
	default:
		return contexterr.NotSupportedf("run-sql does not support full_type %q", match.Config.Type)
	}

	dialect, err := newDialect(match.Config.Connection)
	if err != nil {
		return err
	}
	in := introspect.NewIntrospector(dialect, slog.Default())

	result, err := in.RunSQL(cmd.Context(), sqlText, nil, readOnly)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.Columns)
	for _, row := range result.Rows {
		fmt.Fprintln(cmd.OutOrStdout(), row)
	}
	return nil
}
