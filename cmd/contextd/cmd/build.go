package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/databao-dev/contextd/internal/build"
	"github.com/databao-dev/contextd/internal/introspect"
	"github.com/databao-dev/contextd/internal/plugin"
	"github.com/databao-dev/contextd/internal/store"
	"github.com/databao-dev/contextd/pkg/version"
)

// newBuildCmd creates the build command: runs the Build Orchestrator over
// the project's discovered datasources (spec §4.4).
func newBuildCmd() *cobra.Command {
	var (
		offline    bool
		noEmbed    bool
		embedMode  string
		runName    string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run a build over the project's datasources",
		Long: `build discovers every datasource under <project>/src, runs its plugin,
divides the result into embeddable chunks, optionally embeds and indexes
them, and writes a rendered context artifact under <project>/output/<run_name>/.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, offline, noEmbed, embedMode, runName)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use the static embedding provider instead of Ollama")
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "Skip embedding generation; only write context artifacts")
	cmd.Flags().StringVar(&embedMode, "chunk-embedding-mode", string(build.ChunkEmbeddingModeAll), `Chunk embedding mode: "all" or "none"`)
	cmd.Flags().StringVar(&runName, "run-name", "", "Name for this run's output subdirectory (defaults to a UTC timestamp)")

	return cmd
}

func runBuild(cmd *cobra.Command, offline, noEmbed bool, embedMode, runName string) error {
	cfg, st, err := openStore(projectDir)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := newPluginRegistry()

	var embedSvc *build.ChunkEmbeddingService
	if !noEmbed {
		provider := resolveProvider(cfg, offline)
		embedSvc = build.NewChunkEmbeddingService(st, store.NewShardRegistry(st), provider, nil)
	}

	orch := build.NewOrchestrator(st, registry, embedSvc, build.NewArtifactWriter(), slog.Default())

	if runName == "" {
		runName = time.Now().UTC().Format("20060102T150405Z")
	}

	result, err := orch.Build(cmd.Context(), build.Config{
		ProjectDir:         projectDir,
		ProjectID:          cfg.Project.ID,
		EngineVersion:      version.Version,
		RunName:            runName,
		ChunkEmbeddingMode: build.ChunkEmbeddingMode(embedMode),
		GenerateEmbeddings: !noEmbed,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Run %d: %s (%d datasources run, %d skipped, %d chunks embedded)\n",
		result.RunID, result.Status, result.DatasourcesRun, result.DatasourcesSkipped, result.ChunksEmbedded)
	for _, e := range result.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s [%s]: %v\n", e.DatasourcePath, e.Stage, e.Err)
	}
	return nil
}

// newPluginRegistry builds the Registry shared by build and watch: the
// database full_types resolved through the Introspection Framework, plus a
// default plugin for every other recognized full_type family (spec §4.8).
func newPluginRegistry() *plugin.Registry {
	registry := plugin.NewRegistry()
	registry.Register(&introspect.DatabasePlugin{FullType: "databases/sqlite", NewDialect: introspect.NewSQLiteDialectFromConfig, Logger: slog.Default()})
	registry.Register(&introspect.DatabasePlugin{FullType: "databases/postgres", NewDialect: introspect.NewPostgresDialectFromConfig, Logger: slog.Default()})
	registry.Register(&plugin.DefaultPlugin{SupportedFullTypes: []string{"files/json", "files/yaml", "files/yml", "files/txt", "files/md", "files/csv"}})
	return registry
}
