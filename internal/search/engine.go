package search

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/databao-dev/contextd/internal/contexterr"
	"github.com/databao-dev/contextd/internal/embedding"
	"github.com/databao-dev/contextd/internal/store"
)

// Engine answers retrieve() requests against the embedded store (spec
// §4.5), grounded on the teacher's Engine.Search mode dispatch and
// parallelSearch errgroup pattern, generalized from a code-search-specific
// BM25/vector/classifier/reranker pipeline to the spec's three-mode,
// unweighted-RRF contract.
type Engine struct {
	store          *store.Store
	registry       *store.ShardRegistry
	embedder       embedding.Provider
	promptProvider embedding.PromptProvider // optional; nil disables REWRITE_QUERY
	logger         *slog.Logger
}

// NewEngine constructs a Retrieval Engine. promptProvider may be nil — in
// that case rag_mode=REWRITE_QUERY always falls back to RAW_QUERY (spec
// §4.5: "on any failure fall back to RAW_QUERY and log").
func NewEngine(st *store.Store, registry *store.ShardRegistry, embedder embedding.Provider, promptProvider embedding.PromptProvider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, registry: registry, embedder: embedder, promptProvider: promptProvider, logger: logger}
}

// Retrieve answers retrieve(query_text, limit, datasource_ids?, rag_mode,
// search_mode) → SearchResult[] (spec §4.5).
func (e *Engine) Retrieve(ctx context.Context, q Query) ([]SearchResult, error) {
	limit := q.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 1 {
		return nil, contexterr.Valuef("limit must be >= 1, got %d", limit)
	}

	switch q.SearchMode {
	case SearchModeKeyword:
		return e.searchKeyword(ctx, q.Text, limit, q.DatasourceRunIDs)
	case SearchModeVector:
		return e.searchVector(ctx, q, limit)
	case SearchModeHybrid:
		return e.searchHybrid(ctx, q, limit)
	default:
		return nil, contexterr.Valuef("unknown search_mode %q", q.SearchMode)
	}
}

func (e *Engine) searchKeyword(ctx context.Context, text string, limit int, datasourceRunIDs []int64) ([]SearchResult, error) {
	hits, err := e.store.SearchKeyword(ctx, text, limit, datasourceRunIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	enriched, err := e.enrich(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		base, ok := enriched[h.ChunkID]
		if !ok {
			continue
		}
		base.Score = KeywordSearchScore(h.Score)
		out = append(out, base)
	}
	return out, nil
}

func (e *Engine) searchVector(ctx context.Context, q Query, limit int) ([]SearchResult, error) {
	vec, err := e.embedQuery(ctx, q.Text, q.RAGMode)
	if err != nil {
		return nil, err
	}
	hits, err := e.fetchVectorCandidates(ctx, vec, limit, q.DatasourceRunIDs)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	enriched, err := e.enrich(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		base, ok := enriched[h.ChunkID]
		if !ok {
			continue
		}
		base.Score = VectorSearchScore(h.Distance)
		out = append(out, base)
	}
	return out, nil
}

// searchHybrid fetches vector and BM25 candidates concurrently (spec §5
// "Parallel candidate fetch in hybrid search"), fuses them with RRF, and
// enriches the fused chunk_ids with display/datasource data, preferring
// vector-candidate data over BM25 on conflict (spec §4.5.3 step 4).
func (e *Engine) searchHybrid(ctx context.Context, q Query, limit int) ([]SearchResult, error) {
	candidateLimit := limit * 3
	if candidateLimit < limit {
		candidateLimit = limit
	}

	var vectorHits []store.VectorResult
	var bm25Hits []store.BM25Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		vec, err := e.embedQuery(gctx, q.Text, q.RAGMode)
		if err != nil {
			return err
		}
		hits, err := e.fetchVectorCandidates(gctx, vec, candidateLimit, q.DatasourceRunIDs)
		if err != nil {
			return err
		}
		vectorHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := e.store.SearchKeyword(gctx, q.Text, candidateLimit, q.DatasourceRunIDs)
		if err != nil {
			return err
		}
		bm25Hits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := RRFFuse(vectorHits, bm25Hits, limit)

	ids := make([]int64, len(fused))
	for i, f := range fused {
		ids[i] = f.chunkID
	}
	enriched, err := e.enrich(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, len(fused))
	for _, f := range fused {
		base, ok := enriched[f.chunkID]
		if !ok {
			continue
		}
		base.Score = RrfScore(f.vectorDistance, f.bm25Score, f.score)
		out = append(out, base)
	}
	return out, nil
}

// fetchVectorCandidates resolves the shard table for the engine's
// embedding provider and runs the cosine-distance search against it (spec
// §4.5.1 steps 1–2).
func (e *Engine) fetchVectorCandidates(ctx context.Context, vec []float32, limit int, datasourceRunIDs []int64) ([]store.VectorResult, error) {
	entry, err := e.registry.Lookup(ctx, e.embedder.Embedder(), e.embedder.ModelID())
	if err != nil {
		return nil, err
	}
	return e.store.SearchVector(ctx, entry.TableName, entry.Dim, vec, limit, datasourceRunIDs)
}

// embedQuery implements the rag_mode contract (spec §4.5).
func (e *Engine) embedQuery(ctx context.Context, queryText string, mode RAGMode) ([]float32, error) {
	switch mode {
	case "", RAGModeRaw:
		return e.embedder.Embed(ctx, queryText)
	case RAGModeQueryWithInstruct:
		return e.embedder.Embed(ctx, "Instruct: "+embedding.QueryWithInstructionPrefix+"\nQuery:"+queryText)
	case RAGModeRewrite:
		return e.embedRewritten(ctx, queryText)
	default:
		return nil, contexterr.Valuef("unknown rag_mode %q", mode)
	}
}

// embedRewritten calls the PromptProvider's NER extraction and embeds
// query_text + "\n" + extracted_entities; any failure degrades to
// RAW_QUERY, logged rather than surfaced (spec §4.5: "on any failure fall
// back to RAW_QUERY and log").
func (e *Engine) embedRewritten(ctx context.Context, queryText string) ([]float32, error) {
	if e.promptProvider == nil {
		e.logger.Warn("rewrite_query requested with no prompt provider configured, falling back to raw query")
		return e.embedder.Embed(ctx, queryText)
	}
	entities, err := e.promptProvider.ExtractEntities(ctx, queryText)
	if err != nil {
		e.logger.Warn("rewrite_query entity extraction failed, falling back to raw query", "error", err)
		return e.embedder.Embed(ctx, queryText)
	}
	return e.embedder.Embed(ctx, queryText+"\n"+entities)
}

// enrich loads display_text and datasource_* data for a set of chunk_ids
// (spec §4.5.3 step 4), returning a SearchResult skeleton per id with
// Score left unset. Ids that no longer exist in the chunk table (a race
// between candidate fetch and a concurrent delete) are silently dropped,
// preserving the invariant that every returned SearchResult's chunk_id
// exists at query time (spec §4.5 invariant).
func (e *Engine) enrich(ctx context.Context, ids []int64) (map[int64]SearchResult, error) {
	if len(ids) == 0 {
		return map[int64]SearchResult{}, nil
	}
	chunks, err := e.store.GetChunks(ctx, ids)
	if err != nil {
		return nil, err
	}

	runCache := make(map[int64]*store.DatasourceRun)
	out := make(map[int64]SearchResult, len(chunks))
	for id, chunk := range chunks {
		run, ok := runCache[chunk.DatasourceRunID]
		if !ok {
			run, err = e.store.GetDatasourceRun(ctx, chunk.DatasourceRunID)
			if err != nil {
				return nil, err
			}
			runCache[chunk.DatasourceRunID] = run
		}
		out[id] = SearchResult{
			ChunkID:          id,
			DisplayText:      chunk.DisplayText,
			DatasourceRunID:  chunk.DatasourceRunID,
			DatasourceSource: run.SourceID,
		}
	}
	return out, nil
}
