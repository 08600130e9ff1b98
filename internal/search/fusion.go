package search

import (
	"sort"

	"github.com/databao-dev/contextd/internal/store"
)

// RRFConstant is the fixed smoothing constant K in the RRF sum (spec
// §4.5.3 step 1: "Let K = 60"). Unlike the teacher's RRFFusion, this is not
// a configurable field — DESIGN.md's config notes keep K a fixed engine
// constant rather than a RetrievalConfig knob.
const RRFConstant = 60

// fusedCandidate accumulates the RRF score and source data for one chunk
// across the vector and BM25 candidate lists (spec §4.5.3 steps 3–4).
type fusedCandidate struct {
	chunkID        int64
	score          float64
	vectorDistance *float64
	bm25Score      *float64
}

// RRFFuse implements Reciprocal Rank Fusion over a vector-search
// candidate list and a BM25 candidate list (spec §4.5.3), grounded on the
// teacher's RRFFusion.Fuse but diverging in two ways recorded in
// SPEC_FULL §9: the sum is unweighted (spec.md has no per-source weight
// concept) and ties break by chunk_id descending rather than the teacher's
// ascending lexicographic order.
func RRFFuse(vector []store.VectorResult, bm25 []store.BM25Result, limit int) []fusedCandidate {
	candidates := make(map[int64]*fusedCandidate)

	order := func(id int64) *fusedCandidate {
		c, ok := candidates[id]
		if !ok {
			c = &fusedCandidate{chunkID: id}
			candidates[id] = c
		}
		return c
	}

	for rank, v := range vector {
		c := order(v.ChunkID)
		d := v.Distance
		c.vectorDistance = &d
		c.score += 1.0 / float64(RRFConstant+rank+1)
	}
	for rank, b := range bm25 {
		c := order(b.ChunkID)
		s := b.Score
		c.bm25Score = &s
		c.score += 1.0 / float64(RRFConstant+rank+1)
	}

	out := make([]fusedCandidate, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		// Deterministic tie-break, spec.md §5 "Ordering guarantees":
		// "Result ties are broken by chunk_id descending".
		return out[i].chunkID > out[j].chunkID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
