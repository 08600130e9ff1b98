package build

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/databao-dev/contextd/internal/contexterr"
	"github.com/databao-dev/contextd/internal/datasource"
	"github.com/databao-dev/contextd/internal/plugin"
	"github.com/databao-dev/contextd/internal/store"
)

// buildLockFile is the single-writer lock guarding concurrent builds against
// the same project directory (spec §5's single-writer discipline, extended
// from the store's own SetMaxOpenConns(1) connection up to the whole
// Build Orchestrator so two `contextd build` processes can't race to
// BeginRun against the same project).
const buildLockFile = ".contextd.lock"

// ChunkEmbeddingMode selects whether/how embeddings are generated for a
// build (spec §4.4: "build(project_dir, chunk_embedding_mode,
// generate_embeddings)").
type ChunkEmbeddingMode string

const (
	// ChunkEmbeddingModeAll embeds every chunk produced this run.
	ChunkEmbeddingModeAll ChunkEmbeddingMode = "all"
	// ChunkEmbeddingModeNone skips embedding entirely, independent of the
	// generate_embeddings flag (used by callers that only want context
	// artifacts rendered, e.g. a dry run).
	ChunkEmbeddingModeNone ChunkEmbeddingMode = "none"
)

// Config configures one build() invocation (spec §4.4).
type Config struct {
	// ProjectDir is the project root containing src/, output/ and state.db
	// (spec §6, "Project directory layout").
	ProjectDir string

	// ProjectID identifies the project for the Run row (spec §3: Run.project_id).
	ProjectID string

	// EngineVersion is recorded on the Run row.
	EngineVersion string

	// RunName names this build's output subdirectory
	// (output/<run_name>/...). Callers typically derive this from the
	// current time; it is not generated here so that Date.now()-style
	// nondeterminism stays outside the orchestrator.
	RunName string

	// ChunkEmbeddingMode selects embedding behavior (spec §4.4).
	ChunkEmbeddingMode ChunkEmbeddingMode

	// GenerateEmbeddings gates embedding generation altogether; when false
	// the orchestrator still renders context artifacts but never calls the
	// Chunk Embedding Service (spec §4.4 step 3d).
	GenerateEmbeddings bool
}

// Result summarizes one build() invocation.
type Result struct {
	RunID             int64
	Status            store.RunStatus
	DatasourcesRun    int
	DatasourcesSkipped int
	ChunksEmbedded    int
	Errors            []DatasourceError
}

// DatasourceError records a per-datasource failure that did not abort the
// Run (spec §4.4: "per-datasource failures never fail the whole Run").
type DatasourceError struct {
	DatasourcePath string
	Stage          string // "execute" | "divide_into_chunks" | "create_datasource_run" | "embed" | "write_artifact"
	Err            error
}

// Orchestrator runs the Build Orchestrator (spec §4.4), grounded on
// internal/index/runner.go's Runner: a struct holding injected
// dependencies plus a single Run method that drives the whole pipeline,
// generalized here from a fixed file-scanning pipeline to the generic
// plugin-registry/datasource model (spec §4.8, §9 "Plugin polymorphism").
type Orchestrator struct {
	store    *store.Store
	registry *plugin.Registry
	embed    *ChunkEmbeddingService
	artifact *ArtifactWriter
	logger   *slog.Logger
}

// NewOrchestrator constructs a Build Orchestrator. embed may be nil: a nil
// embed service is only valid when every call's GenerateEmbeddings is
// false.
func NewOrchestrator(st *store.Store, registry *plugin.Registry, embed *ChunkEmbeddingService, artifact *ArtifactWriter, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{store: st, registry: registry, embed: embed, artifact: artifact, logger: logger}
}

// Build runs one full build (spec §4.4 steps 1-4):
//  1. Begin Run (status RUNNING).
//  2. Discover datasources under <project_dir>/src, in path-sorted order.
//  3. For each datasource: Execute, DivideIntoChunks, create a
//     DatasourceRun, optionally embed its chunks, and write its rendered
//     context artifact. Any per-datasource failure is logged and that
//     datasource is skipped; the Run continues with the next one.
//  4. Finalize Run: SUCCESS if the loop completed, FAILED only on a
//     catastrophic framework-level error (e.g. the store itself is
//     unusable) that this method returns as its error.
func (o *Orchestrator) Build(ctx context.Context, cfg Config) (Result, error) {
	lock := flock.New(filepath.Join(cfg.ProjectDir, buildLockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return Result{}, contexterr.Wrap(contexterr.KindIntegrity, err, "acquire build lock for %s", cfg.ProjectDir)
	}
	if !locked {
		return Result{}, contexterr.Valuef("another build is already running against %s", cfg.ProjectDir)
	}
	defer func() { _ = lock.Unlock() }()

	run, err := o.store.BeginRun(ctx, cfg.ProjectID, cfg.EngineVersion)
	if err != nil {
		return Result{}, contexterr.Wrap(contexterr.KindIntegrity, err, "begin run")
	}
	result := Result{RunID: run.RunID, Status: store.RunStatusRunning}

	srcDir := filepath.Join(cfg.ProjectDir, "src")
	discovered, err := datasource.Discover(srcDir, o.logger)
	if err != nil {
		_ = o.store.FinalizeRun(ctx, run.RunID, store.RunStatusFailed)
		return result, contexterr.Wrap(contexterr.KindIntegrity, err, "discover datasources under %s", srcDir)
	}

	for _, d := range discovered {
		select {
		case <-ctx.Done():
			_ = o.store.FinalizeRun(ctx, run.RunID, store.RunStatusFailed)
			return result, ctx.Err()
		default:
		}

		ok := o.runOne(ctx, run.RunID, cfg, d, &result)
		if ok {
			result.DatasourcesRun++
		} else {
			result.DatasourcesSkipped++
		}
	}

	result.Status = store.RunStatusSuccess
	if err := o.store.FinalizeRun(ctx, run.RunID, store.RunStatusSuccess); err != nil {
		return result, contexterr.Wrap(contexterr.KindIntegrity, err, "finalize run %d", run.RunID)
	}
	return result, nil
}

// runOne runs the per-datasource portion of the pipeline (spec §4.4 step
// 3). It returns false (and appends to result.Errors) for any failure that
// is scoped to this datasource; it never returns an error itself, matching
// the spec's "per-datasource failures never fail the whole Run" contract.
func (o *Orchestrator) runOne(ctx context.Context, runID int64, cfg Config, d datasource.Discovered, result *Result) bool {
	log := o.logger.With("datasource_path", d.ID.String(), "full_type", d.Config.Type)

	p, found := o.registry.Lookup(d.Config.Type)
	if !found {
		log.Warn("skipping datasource: no plugin registered for full_type")
		return false
	}

	execResult, err := p.Execute(ctx, d.Config.Type, d.Config.Name, d.Config.Connection)
	if err != nil {
		log.Error("datasource execute failed", "error", err)
		result.Errors = append(result.Errors, DatasourceError{DatasourcePath: d.ID.String(), Stage: "execute", Err: err})
		return false
	}

	chunks, err := p.DivideIntoChunks(ctx, execResult)
	if err != nil {
		log.Error("datasource divide_into_chunks failed", "error", err)
		result.Errors = append(result.Errors, DatasourceError{DatasourcePath: d.ID.String(), Stage: "divide_into_chunks", Err: err})
		return false
	}
	if len(chunks) == 0 {
		log.Info("datasource produced no chunks, skipping")
		return false
	}

	dr, err := o.store.CreateDatasourceRun(ctx, store.DatasourceRun{
		RunID:            runID,
		Plugin:           execResult.Name,
		FullType:         d.Config.Type,
		SourceID:         d.ID.String(),
		StorageDirectory: filepath.Dir(d.ID.ConfigFilePath()),
	})
	if err != nil {
		log.Error("create datasource_run failed", "error", err)
		result.Errors = append(result.Errors, DatasourceError{DatasourcePath: d.ID.String(), Stage: "create_datasource_run", Err: err})
		return false
	}

	if cfg.GenerateEmbeddings && cfg.ChunkEmbeddingMode != ChunkEmbeddingModeNone {
		if o.embed == nil {
			log.Error("generate_embeddings requested but no embedding service configured")
			result.Errors = append(result.Errors, DatasourceError{DatasourcePath: d.ID.String(), Stage: "embed", Err: contexterr.Invariantf("no embedding service configured")})
			return false
		}
		n, err := o.embed.EmbedChunks(ctx, dr.DatasourceRunID, chunks, execResult.Description)
		if err != nil {
			log.Error("embed_chunks failed", "error", err)
			result.Errors = append(result.Errors, DatasourceError{DatasourcePath: d.ID.String(), Stage: "embed", Err: err})
			return false
		}
		result.ChunksEmbedded += n
	}

	if o.artifact != nil {
		if err := o.artifact.Write(cfg.ProjectDir, cfg.RunName, d.ID, execResult); err != nil {
			log.Error("write context artifact failed", "error", err)
			result.Errors = append(result.Errors, DatasourceError{DatasourcePath: d.ID.String(), Stage: "write_artifact", Err: err})
			return false
		}
	}

	return true
}

// defaultRunName derives a run_name from t in the same UTC timestamp
// format the CLI layer uses (spec §6: output/<run_name>/...). It takes t
// as a parameter so the name is deterministic for a given time.
func defaultRunName(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}
