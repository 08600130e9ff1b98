package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedRunAndDatasource(t *testing.T, s *Store) int64 {
	t.Helper()
	ctx := context.Background()
	run, err := s.BeginRun(ctx, "proj-1", "v0.0.0-test")
	require.NoError(t, err)

	dr, err := s.CreateDatasourceRun(ctx, DatasourceRun{
		RunID:            run.RunID,
		Plugin:           "default",
		FullType:         "files/markdown",
		SourceID:         "files/README.md",
		StorageDirectory: "files__README_md",
	})
	require.NoError(t, err)
	return dr.DatasourceRunID
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.BeginRun(ctx, "proj-1", "v1")
	require.NoError(t, err)
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.EndedAt)

	require.NoError(t, s.FinalizeRun(ctx, run.RunID, RunStatusSuccess))

	loaded, err := s.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusSuccess, loaded.Status)
	require.NotNil(t, loaded.EndedAt)
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), 999)
	assert.Error(t, err)
}

func TestLatestDatasourceRunForPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run, err := s.BeginRun(ctx, "proj-1", "v1")
	require.NoError(t, err)

	none, err := s.LatestDatasourceRunForPath(ctx, "files/README.md")
	require.NoError(t, err)
	assert.Nil(t, none)

	first, err := s.CreateDatasourceRun(ctx, DatasourceRun{
		RunID: run.RunID, Plugin: "default", FullType: "files/markdown",
		SourceID: "files/README.md", StorageDirectory: "d1",
	})
	require.NoError(t, err)

	second, err := s.CreateDatasourceRun(ctx, DatasourceRun{
		RunID: run.RunID, Plugin: "default", FullType: "files/markdown",
		SourceID: "files/README.md", StorageDirectory: "d2",
	})
	require.NoError(t, err)

	latest, err := s.LatestDatasourceRunForPath(ctx, "files/README.md")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.DatasourceRunID, latest.DatasourceRunID)
	assert.NotEqual(t, first.DatasourceRunID, latest.DatasourceRunID)
}

func TestLatestRunID_EmptyStoreReturnsZero(t *testing.T) {
	s := newTestStore(t)
	id, err := s.LatestRunID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestLatestRunID_ReturnsMostRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.BeginRun(ctx, "proj-1", "v1")
	require.NoError(t, err)
	second, err := s.BeginRun(ctx, "proj-1", "v1")
	require.NoError(t, err)

	latest, err := s.LatestRunID(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest)
	assert.NotEqual(t, first.RunID, latest)
}

func TestListDatasourceRunsForRun_ReturnsOnlyThatRunsRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	runA, err := s.BeginRun(ctx, "proj-1", "v1")
	require.NoError(t, err)
	runB, err := s.BeginRun(ctx, "proj-1", "v1")
	require.NoError(t, err)

	drA, err := s.CreateDatasourceRun(ctx, DatasourceRun{RunID: runA.RunID, Plugin: "default", FullType: "files/markdown", SourceID: "a", StorageDirectory: "d1"})
	require.NoError(t, err)
	_, err = s.CreateDatasourceRun(ctx, DatasourceRun{RunID: runB.RunID, Plugin: "default", FullType: "files/markdown", SourceID: "b", StorageDirectory: "d2"})
	require.NoError(t, err)

	rows, err := s.ListDatasourceRunsForRun(ctx, runA.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, drA.DatasourceRunID, rows[0].DatasourceRunID)
}

func TestShardRegistry_ResolveCreatesTableAndIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)

	entry, err := reg.Resolve(ctx, "static", "static-v1", 4)
	require.NoError(t, err)
	assert.Equal(t, "embeddings__static__static_v1__4", entry.TableName)

	again, err := reg.Resolve(ctx, "static", "static-v1", 4)
	require.NoError(t, err)
	assert.Equal(t, entry.TableName, again.TableName)

	valid, err := reg.IsValidTableName(ctx, entry.TableName)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = reg.IsValidTableName(ctx, "embeddings__bogus__bogus__4")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestShardRegistry_DimMismatchIsInvariantError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)

	_, err := reg.Resolve(ctx, "static", "static-v1", 4)
	require.NoError(t, err)

	_, err = reg.Resolve(ctx, "static", "static-v1", 8)
	require.Error(t, err)
}

func TestShardTableName_SanitizesIdentifiers(t *testing.T) {
	assert.Equal(t, "embeddings__my_embedder__model_v1_5__768", ShardTableName("My-Embedder", "model/v1.5", 768))
}

func TestWriteChunksAndEmbeddings_RejectsEmptyBatch(t *testing.T) {
	s := newTestStore(t)
	reg := NewShardRegistry(s)
	_, err := s.WriteChunksAndEmbeddings(context.Background(), 1, nil, "whatever", reg)
	assert.Error(t, err)
}

func TestWriteChunksAndEmbeddings_RejectsUnknownTable(t *testing.T) {
	s := newTestStore(t)
	reg := NewShardRegistry(s)
	drID := seedRunAndDatasource(t, s)

	_, err := s.WriteChunksAndEmbeddings(context.Background(), drID, []ChunkEmbedding{
		{EmbeddableText: "hello", KeywordIndexText: "hello", DisplayText: "hello", Vector: []float32{1, 0}},
	}, "embeddings__nope__nope__2", reg)
	assert.Error(t, err)
}

func TestWriteChunksAndEmbeddings_RollsBackOnBadDatasourceRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)

	entry, err := reg.Resolve(ctx, "static", "static-v1", 2)
	require.NoError(t, err)

	_, err = s.WriteChunksAndEmbeddings(ctx, 9999, []ChunkEmbedding{
		{EmbeddableText: "x", KeywordIndexText: "x", DisplayText: "x", Vector: []float32{1, 0}},
	}, entry.TableName, reg)
	require.Error(t, err)

	n, err := s.CountChunks(ctx, 9999)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteChunksAndEmbeddings_WritesChunkAndVectorTogether(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)
	drID := seedRunAndDatasource(t, s)

	entry, err := reg.Resolve(ctx, "static", "static-v1", 2)
	require.NoError(t, err)

	ids, err := s.WriteChunksAndEmbeddings(ctx, drID, []ChunkEmbedding{
		{EmbeddableText: "getUserById returns a user", KeywordIndexText: "getUserById", DisplayText: "getUserById", Vector: []float32{1, 0}},
		{EmbeddableText: "deleteUserById removes a user", KeywordIndexText: "deleteUserById", DisplayText: "deleteUserById", Vector: []float32{0, 1}},
	}, entry.TableName, reg)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	n, err := s.CountChunks(ctx, drID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	chunks, err := s.GetChunks(ctx, ids)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	// keyword_index_text was expanded with camelCase sub-tokens before storage.
	assert.Contains(t, chunks[ids[0]].KeywordIndexText, "get user by id")
}

func TestSearchKeyword_MatchesExpandedIdentifierTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)
	drID := seedRunAndDatasource(t, s)

	entry, err := reg.Resolve(ctx, "static", "static-v1", 2)
	require.NoError(t, err)

	ids, err := s.WriteChunksAndEmbeddings(ctx, drID, []ChunkEmbedding{
		{EmbeddableText: "getUserById", KeywordIndexText: "getUserById", DisplayText: "getUserById", Vector: []float32{1, 0}},
		{EmbeddableText: "renderWidget", KeywordIndexText: "renderWidget", DisplayText: "renderWidget", Vector: []float32{0, 1}},
	}, entry.TableName, reg)
	require.NoError(t, err)

	results, err := s.SearchKeyword(ctx, "user", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, ids[0], results[0].ChunkID)
}

func TestSearchKeyword_FiltersByDatasourceRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)
	dr1 := seedRunAndDatasource(t, s)

	run2, err := s.BeginRun(ctx, "proj-2", "v1")
	require.NoError(t, err)
	dr2row, err := s.CreateDatasourceRun(ctx, DatasourceRun{
		RunID: run2.RunID, Plugin: "default", FullType: "files/markdown",
		SourceID: "files/OTHER.md", StorageDirectory: "d-other",
	})
	require.NoError(t, err)
	dr2 := dr2row.DatasourceRunID

	entry, err := reg.Resolve(ctx, "static", "static-v1", 2)
	require.NoError(t, err)

	_, err = s.WriteChunksAndEmbeddings(ctx, dr1, []ChunkEmbedding{
		{EmbeddableText: "widget text", KeywordIndexText: "widget text", DisplayText: "widget text", Vector: []float32{1, 0}},
	}, entry.TableName, reg)
	require.NoError(t, err)

	_, err = s.WriteChunksAndEmbeddings(ctx, dr2, []ChunkEmbedding{
		{EmbeddableText: "widget text again", KeywordIndexText: "widget text again", DisplayText: "widget text again", Vector: []float32{0, 1}},
	}, entry.TableName, reg)
	require.NoError(t, err)

	results, err := s.SearchKeyword(ctx, "widget", 10, []int64{dr1})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchVector_OrdersByAscendingDistanceAndAppliesThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)
	drID := seedRunAndDatasource(t, s)

	entry, err := reg.Resolve(ctx, "static", "static-v1", 2)
	require.NoError(t, err)

	ids, err := s.WriteChunksAndEmbeddings(ctx, drID, []ChunkEmbedding{
		{EmbeddableText: "a", KeywordIndexText: "a", DisplayText: "a", Vector: []float32{1, 0}},    // identical to query
		{EmbeddableText: "b", KeywordIndexText: "b", DisplayText: "b", Vector: []float32{0.9, 0.1}}, // close
		{EmbeddableText: "c", KeywordIndexText: "c", DisplayText: "c", Vector: []float32{0, 1}},     // orthogonal: distance 1.0, above threshold
	}, entry.TableName, reg)
	require.NoError(t, err)

	results, err := s.SearchVector(ctx, entry.TableName, 2, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[0], results[0].ChunkID)
	assert.Less(t, results[0].Distance, results[1].Distance)
	for _, r := range results {
		assert.Less(t, r.Distance, DistanceThreshold)
	}
}

func TestSearchVector_RejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)

	entry, err := reg.Resolve(ctx, "static", "static-v1", 4)
	require.NoError(t, err)

	_, err = s.SearchVector(ctx, entry.TableName, 4, []float32{1, 0}, 10, nil)
	assert.Error(t, err)
}

func TestANNIndex_RebuildMatchesBruteForceWithinThreshold(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	reg := NewShardRegistry(s)
	drID := seedRunAndDatasource(t, s)

	entry, err := reg.Resolve(ctx, "static", "static-v1", 2)
	require.NoError(t, err)

	_, err = s.WriteChunksAndEmbeddings(ctx, drID, []ChunkEmbedding{
		{EmbeddableText: "a", KeywordIndexText: "a", DisplayText: "a", Vector: []float32{1, 0}},
		{EmbeddableText: "b", KeywordIndexText: "b", DisplayText: "b", Vector: []float32{0.9, 0.1}},
	}, entry.TableName, reg)
	require.NoError(t, err)

	ann := NewANNIndex(2)
	require.NoError(t, ann.Rebuild(ctx, s, entry.TableName))

	results, err := ann.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}
