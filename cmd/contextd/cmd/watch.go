package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/databao-dev/contextd/internal/build"
	"github.com/databao-dev/contextd/internal/store"
	"github.com/databao-dev/contextd/internal/watcher"
	"github.com/databao-dev/contextd/pkg/version"
)

// newWatchCmd creates the watch command: re-runs build() whenever
// <project>/src changes, using internal/watcher's fsnotify-backed
// HybridWatcher as the change source (DOMAIN STACK "Optional watch
// subcommand for incremental rebuild on src/ changes").
func newWatchCmd() *cobra.Command {
	var (
		offline   bool
		noEmbed   bool
		embedMode string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch <project>/src and re-run build on change",
		Long: `watch starts a file system watch on <project>/src and triggers a full
build() whenever a change settles, until the command is interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWatch(cmd, offline, noEmbed, embedMode)
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Use the static embedding provider instead of Ollama")
	cmd.Flags().BoolVar(&noEmbed, "no-embed", false, "Skip embedding generation; only write context artifacts")
	cmd.Flags().StringVar(&embedMode, "chunk-embedding-mode", string(build.ChunkEmbeddingModeAll), `Chunk embedding mode: "all" or "none"`)

	return cmd
}

func runWatch(cmd *cobra.Command, offline, noEmbed bool, embedMode string) error {
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

	runOnce := func() error {
		runName := time.Now().UTC().Format("20060102T150405Z")
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
		return nil
	}

	if err := runOnce(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "initial build failed: %v\n", err)
	}

	w, err := watcher.NewHybridWatcher(watcher.DefaultOptions())
	if err != nil {
		return err
	}
	defer w.Stop()

	srcDir := fmt.Sprintf("%s/src", projectDir)
	if err := w.Start(cmd.Context(), srcDir); err != nil {
		return err
	}

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			if len(batch) == 0 {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "detected %d change(s), rebuilding\n", len(batch))
			if err := runOnce(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "build failed: %v\n", err)
			}
		case err, ok := <-w.Errors():
			if !ok {
				continue
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		}
	}
}
