// Package search implements the Retrieval Engine: keyword (BM25), vector
// (cosine distance), and RRF-fused hybrid search over the embedded store,
// with rag_mode query transforms (spec §4.5).
package search

// RAGMode selects how the query text is turned into an embedding input
// (spec §4.5).
type RAGMode string

const (
	RAGModeRaw               RAGMode = "RAW_QUERY"
	RAGModeQueryWithInstruct RAGMode = "QUERY_WITH_INSTRUCTION"
	RAGModeRewrite           RAGMode = "REWRITE_QUERY"
)

// SearchMode selects which candidate source(s) the Retrieval Engine
// consults (spec §4.5).
type SearchMode string

const (
	SearchModeKeyword SearchMode = "KEYWORD_SEARCH"
	SearchModeVector  SearchMode = "VECTOR_SEARCH"
	SearchModeHybrid  SearchMode = "HYBRID_SEARCH"
)

// ScoreKind identifies which scoring function populated a Score (spec
// §4.5.1–4.5.3).
type ScoreKind string

const (
	ScoreKindVector  ScoreKind = "vector"
	ScoreKindKeyword ScoreKind = "keyword"
	ScoreKindRRF     ScoreKind = "rrf"
)

// Score is the scoring detail attached to a SearchResult. Exactly the
// fields relevant to Kind are populated; the rest are nil.
type Score struct {
	Kind ScoreKind

	// VectorDistance is set for ScoreKindVector and, when available, for
	// ScoreKindRRF (spec §4.5.3 step 4: "populate RrfScore(vector_distance?,
	// bm25_score?, rrf_score)").
	VectorDistance *float64

	// BM25Score is set for ScoreKindKeyword and, when available, for
	// ScoreKindRRF.
	BM25Score *float64

	// RRFScore is set only for ScoreKindRRF.
	RRFScore *float64
}

// VectorSearchScore builds the score for a pure vector-search hit (spec
// §4.5.1 step 3).
func VectorSearchScore(distance float64) Score {
	d := distance
	return Score{Kind: ScoreKindVector, VectorDistance: &d}
}

// KeywordSearchScore builds the score for a pure keyword-search hit (spec
// §4.5.2).
func KeywordSearchScore(bm25 float64) Score {
	b := bm25
	return Score{Kind: ScoreKindKeyword, BM25Score: &b}
}

// RrfScore builds the score for a fused hybrid-search hit (spec §4.5.3
// step 4).
func RrfScore(vectorDistance, bm25Score *float64, rrf float64) Score {
	r := rrf
	return Score{Kind: ScoreKindRRF, VectorDistance: vectorDistance, BM25Score: bm25Score, RRFScore: &r}
}

// SearchResult is one ranked hit returned by the Retrieval Engine (spec
// §4.5). ChunkID is guaranteed to reference a chunk that existed in the
// chunk table at query time (spec §4.5 invariant).
type SearchResult struct {
	ChunkID          int64
	DisplayText      string
	DatasourceRunID  int64
	DatasourceSource string // datasource_run.source_id, for datasource_* display (spec §4.5.3 step 4)
	Score            Score
}

// Query is the input contract for Engine.Retrieve (spec §4.5: "retrieve(
// query_text, limit, datasource_ids?, rag_mode, search_mode)").
type Query struct {
	Text           string
	Limit          int
	DatasourceRunIDs []int64
	RAGMode        RAGMode
	SearchMode     SearchMode
}

// DefaultLimit is applied when Query.Limit is zero (spec §4.5: "limit:
// defaults to 10 if omitted").
const DefaultLimit = 10
