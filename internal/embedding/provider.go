// Package embedding defines the EmbeddingProvider and PromptProvider
// interfaces the core depends on (spec §1: "the core depends only on an
// EmbeddingProvider and PromptProvider interface"), plus a couple of
// concrete providers for tests and offline use, adapted from the teacher
// codebase's internal/embed package.
package embedding

import "context"

// Provider generates vector embeddings for text. It is identified by an
// (Embedder, ModelID) pair, the key the Shard Resolver & Registry use to
// pick a shard table (spec §4.1, §4.3).
type Provider interface {
	// Embed returns the embedding vector for text. Errors are
	// contexterr.TransientProviderError or contexterr.PermanentProviderError.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Embedder identifies the embedding backend, e.g. "ollama", "static".
	Embedder() string

	// ModelID identifies the specific model, e.g. "nomic-embed-text:v1.5".
	ModelID() string

	// Dim returns the embedding dimension this provider produces.
	Dim() int
}

// DescriptionProvider optionally augments a chunk with a generated
// description (spec §4.3 step 3: "If operating in a mode that requires
// descriptions..."). Not every Chunk Embedding Service configuration uses
// one.
type DescriptionProvider interface {
	Describe(ctx context.Context, text string, resultContext string) (string, error)
}

// PromptProvider is the query-rewrite collaborator used by the Retrieval
// Engine's REWRITE_QUERY rag_mode (spec §4.5).
type PromptProvider interface {
	// ExtractEntities runs a fixed NER-extraction prompt over query and
	// returns the extracted entity text.
	ExtractEntities(ctx context.Context, query string) (string, error)
}

// QueryWithInstructionPrefix is the fixed task description prepended to a
// query under rag_mode=QUERY_WITH_INSTRUCTION (spec §4.5), grounded on the
// reference search engine's Qwen3QueryInstruction constant, generalized to
// this spec's generic retrieval task rather than a code-search-specific one.
const QueryWithInstructionPrefix = "Given a search query, retrieve relevant passages that answer the query"
