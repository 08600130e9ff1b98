package search

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/databao-dev/contextd/internal/store"
)

func TestRRFFuse_EqualScoresTieBreakByChunkIDDescending(t *testing.T) {
	// spec.md testable property #5: vector ranks [A, B], bm25 ranks [B, A]
	// with K=60 produce equal fused scores for A and B; the tie is broken
	// by chunk_id descending.
	vector := []store.VectorResult{{ChunkID: 1, Distance: 0.1}, {ChunkID: 2, Distance: 0.2}}
	bm25 := []store.BM25Result{{ChunkID: 2, Score: 5.0}, {ChunkID: 1, Score: 3.0}}

	fused := RRFFuse(vector, bm25, 10)

	assert.Len(t, fused, 2)
	expected := 1.0/61.0 + 1.0/62.0
	assert.InDelta(t, expected, fused[0].score, 1e-12)
	assert.InDelta(t, expected, fused[1].score, 1e-12)
	assert.Equal(t, int64(2), fused[0].chunkID)
	assert.Equal(t, int64(1), fused[1].chunkID)
}

func TestRRFFuse_ChunkOnlyInVectorListScoresOnlyVectorTerm(t *testing.T) {
	vector := []store.VectorResult{{ChunkID: 1, Distance: 0.1}}
	bm25 := []store.BM25Result{}

	fused := RRFFuse(vector, bm25, 10)

	assert.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61.0, fused[0].score, 1e-12)
	assert.NotNil(t, fused[0].vectorDistance)
	assert.Nil(t, fused[0].bm25Score)
}

func TestRRFFuse_ChunkInBothListsSumsBothTerms(t *testing.T) {
	vector := []store.VectorResult{{ChunkID: 1, Distance: 0.1}}
	bm25 := []store.BM25Result{{ChunkID: 1, Score: 9.0}}

	fused := RRFFuse(vector, bm25, 10)

	assert.Len(t, fused, 1)
	assert.InDelta(t, 2.0/61.0, fused[0].score, 1e-12)
	assert.NotNil(t, fused[0].vectorDistance)
	assert.NotNil(t, fused[0].bm25Score)
}

func TestRRFFuse_RespectsLimit(t *testing.T) {
	vector := []store.VectorResult{
		{ChunkID: 1, Distance: 0.1},
		{ChunkID: 2, Distance: 0.2},
		{ChunkID: 3, Distance: 0.3},
	}
	fused := RRFFuse(vector, nil, 2)
	assert.Len(t, fused, 2)
}

func TestRRFFuse_EmptyInputsReturnsEmpty(t *testing.T) {
	fused := RRFFuse(nil, nil, 10)
	assert.Empty(t, fused)
}

func TestRRFFuse_SortedDescendingByScore(t *testing.T) {
	vector := []store.VectorResult{
		{ChunkID: 1, Distance: 0.1},
		{ChunkID: 2, Distance: 0.2},
		{ChunkID: 3, Distance: 0.3},
	}
	fused := RRFFuse(vector, nil, 10)
	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].score, fused[i].score)
	}
}
