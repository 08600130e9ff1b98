// Package build implements the Build Orchestrator (spec §4.4) and the
// Chunk Embedding Service it depends on (spec §4.3), grounded on the
// teacher's internal/index/runner.go pipeline: Project/Run save → scan →
// per-datasource chunk/embed/persist → stats update → structured slog
// logging at each stage.
package build

import (
	"context"

	"github.com/databao-dev/contextd/internal/contexterr"
	"github.com/databao-dev/contextd/internal/display"
	"github.com/databao-dev/contextd/internal/embedding"
	"github.com/databao-dev/contextd/internal/plugin"
	"github.com/databao-dev/contextd/internal/store"
)

// ChunkEmbeddingService turns plugin-produced EmbeddableChunks into
// persisted (Chunk, Embedding) rows (spec §4.3), grounded on
// internal/index/runner.go's generateEmbeddings batched-embedding step.
type ChunkEmbeddingService struct {
	store       *store.Store
	registry    *store.ShardRegistry
	embedder    embedding.Provider
	description embedding.DescriptionProvider // optional
}

// NewChunkEmbeddingService constructs a Chunk Embedding Service. description
// may be nil: description generation is skipped entirely in that case.
func NewChunkEmbeddingService(st *store.Store, registry *store.ShardRegistry, embedder embedding.Provider, description embedding.DescriptionProvider) *ChunkEmbeddingService {
	return &ChunkEmbeddingService{store: st, registry: registry, embedder: embedder, description: description}
}

// EmbedChunks implements embed_chunks(datasource_run_id, chunks,
// result_context) (spec §4.3 steps 1–4). On success it returns the number
// of chunks persisted.
func (s *ChunkEmbeddingService) EmbedChunks(ctx context.Context, datasourceRunID int64, chunks []plugin.EmbeddableChunk, resultContext string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	entry, err := s.registry.Resolve(ctx, s.embedder.Embedder(), s.embedder.ModelID(), s.embedder.Dim())
	if err != nil {
		return 0, err
	}

	embeddings := make([]store.ChunkEmbedding, 0, len(chunks))
	for _, c := range chunks {
		vec, err := s.embedder.Embed(ctx, c.EmbeddableText)
		if err != nil {
			// spec §4.3 step 4: "Any mid-batch embedding failure aborts
			// before persistence is called for remaining items;
			// already-embedded items in that call are discarded because
			// persistence is not invoked."
			return 0, err
		}

		displayText := display.Render(c.Content)

		keywordIndexText := displayText
		var description string
		if s.description != nil {
			description, err = s.description.Describe(ctx, displayText, resultContext)
			if err != nil {
				return 0, contexterr.Wrap(contexterr.KindTransientProvider, err, "description provider failed")
			}
		}

		embeddings = append(embeddings, store.ChunkEmbedding{
			EmbeddableText:       c.EmbeddableText,
			DisplayText:          displayText,
			KeywordIndexText:     keywordIndexText,
			GeneratedDescription: description,
			Vector:               vec,
		})
	}

	if _, err := s.store.WriteChunksAndEmbeddings(ctx, datasourceRunID, embeddings, entry.TableName, s.registry); err != nil {
		return 0, err
	}
	return len(embeddings), nil
}
