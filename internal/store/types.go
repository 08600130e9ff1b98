// Package store implements the embedded storage layer: the run/datasource
// run/chunk/embedding-registry relational schema, the dynamic vector shard
// tables, the BM25 full-text index, and the transactional persistence
// service that writes chunks and embeddings together.
package store

import "time"

// RunStatus is the lifecycle state of a Run (spec §3: Run.status).
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"
)

// Run is a single build invocation (spec §3: Run).
type Run struct {
	RunID         int64
	ProjectID     string
	EngineVersion string
	Status        RunStatus
	StartedAt     time.Time
	EndedAt       *time.Time
}

// DatasourceRun is one datasource processed within a Run (spec §3: DatasourceRun).
type DatasourceRun struct {
	DatasourceRunID  int64
	RunID            int64
	Plugin           string
	FullType         string
	SourceID         string
	StorageDirectory string
	CreatedAt        time.Time
}

// Chunk is an indexed unit of searchable text (spec §3: Chunk).
type Chunk struct {
	ChunkID          int64
	DatasourceRunID  int64
	EmbeddableText   string
	DisplayText      string
	KeywordIndexText string
	CreatedAt        time.Time
}

// ChunkEmbedding bundles everything the Persistence Service needs to write
// one (chunk, vector) pair in a single transaction step (spec §4.2).
type ChunkEmbedding struct {
	EmbeddableText       string
	KeywordIndexText     string
	DisplayText          string
	Vector               []float32
	GeneratedDescription string
}

// ShardEntry is one row of the EmbeddingShardRegistry (spec §3).
type ShardEntry struct {
	Embedder  string
	ModelID   string
	TableName string
	Dim       int
}

// BM25Result is one keyword-search hit (spec §4.5.2).
type BM25Result struct {
	ChunkID int64
	Score   float64
}

// VectorResult is one vector-search hit (spec §4.5.1).
type VectorResult struct {
	ChunkID  int64
	Distance float64
}
