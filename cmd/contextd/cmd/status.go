package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// newStatusCmd creates the status command: reports a Run and its
// DatasourceRuns from the store (spec §3: Run, DatasourceRun).
func newStatusCmd() *cobra.Command {
	var runID int64

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the status of a build run",
		Long:  "status reports a Run's lifecycle state and the DatasourceRuns it produced. With no --run, it reports the most recent run.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, runID)
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to report on (defaults to the most recent run)")
	return cmd
}

func runStatus(cmd *cobra.Command, runID int64) error {
	_, st, err := openStore(projectDir)
	if err != nil {
		return err
	}
	defer st.Close()

	if runID == 0 {
		runID, err = st.LatestRunID(cmd.Context())
		if err != nil {
			return err
		}
		if runID == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded yet")
			return nil
		}
	}

	run, err := st.GetRun(cmd.Context(), runID)
	if err != nil {
		return err
	}

	ended := "running"
	if run.EndedAt != nil {
		ended = run.EndedAt.Format("2006-01-02T15:04:05Z")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %d: %s (project=%s engine=%s started=%s ended=%s)\n",
		run.RunID, run.Status, run.ProjectID, run.EngineVersion, run.StartedAt.Format("2006-01-02T15:04:05Z"), ended)

	datasourceRuns, err := st.ListDatasourceRunsForRun(cmd.Context(), run.RunID)
	if err != nil {
		return err
	}
	for _, dr := range datasourceRuns {
		n, err := st.CountChunks(cmd.Context(), dr.DatasourceRunID)
		if err != nil {
			return contexterr.Wrap(contexterr.KindIntegrity, err, "count chunks for datasource_run %d", dr.DatasourceRunID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %s (%s): %d chunks\n", dr.SourceID, dr.FullType, n)
	}
	return nil
}
