package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBleveStore(t *testing.T) *Store {
	t.Helper()
	s := newTestStore(t)
	require.NoError(t, s.EnableBleveIndex(""))
	return s
}

func TestBleveKeywordIndex_IndexAndSearchRoundTrip(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.IndexChunks(ctx, 1, []int64{10, 20}, []string{
		"get user by id",
		"render widget",
	}))

	results, err := idx.Search(ctx, "user", 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(10), results[0].ChunkID)
}

func TestBleveKeywordIndex_FiltersByDatasourceRunID(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	ctx := context.Background()
	require.NoError(t, idx.IndexChunks(ctx, 1, []int64{10}, []string{"user lookup"}))
	require.NoError(t, idx.IndexChunks(ctx, 2, []int64{20}, []string{"user deletion"}))

	results, err := idx.Search(ctx, "user", 10, []int64{2})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(20), results[0].ChunkID)
}

func TestBleveKeywordIndex_EmptyBatchIsNoop(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	require.NoError(t, idx.IndexChunks(context.Background(), 1, nil, nil))
}

func TestBleveKeywordIndex_MismatchedLengthsIsInvariantError(t *testing.T) {
	idx, err := NewBleveKeywordIndex("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	err = idx.IndexChunks(context.Background(), 1, []int64{10}, []string{"a", "b"})
	assert.Error(t, err)
}

func TestStore_SearchKeyword_UsesBleveBackendWhenEnabled(t *testing.T) {
	s := newTestBleveStore(t)
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
