package store

import (
	"context"
	"sync"

	"github.com/coder/hnsw"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// ANNIndex is an optional in-memory HNSW accelerator layered in front of a
// shard table (DOMAIN STACK: coder/hnsw), for shards too large for the
// brute-force scan in vector.go to stay interactive. It is not required by
// any invariant in spec §4.5.1 — SearchVector alone satisfies the contract
// — so ANNIndex is a cache: it must be rebuildable from the shard table at
// any time and is never the system of record for a vector.
//
// Grounded on hnsw.go's graph setup (cosine distance, uint64 keys); unlike
// that file's string<->uint64 ID mapping, a shard's chunk_id is already a
// uint64-compatible integer key so no mapping table is needed.
type ANNIndex struct {
	mu    sync.RWMutex
	graph *hnsw.Graph[uint64]
	dim   int
}

// NewANNIndex builds an empty index for vectors of the given dimension.
func NewANNIndex(dim int) *ANNIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25
	return &ANNIndex{graph: graph, dim: dim}
}

// Rebuild repopulates the index from every row of the given shard table.
func (a *ANNIndex) Rebuild(ctx context.Context, s *Store, tableName string) error {
	s.mu.RLock()
	rows, err := s.db.QueryContext(ctx, "SELECT chunk_id, vec FROM "+tableName)
	if err != nil {
		s.mu.RUnlock()
		return contexterr.Wrap(contexterr.KindIntegrity, err, "load shard %s for ANN rebuild", tableName)
	}
	defer rows.Close()

	a.mu.Lock()
	defer a.mu.Unlock()

	fresh := hnsw.NewGraph[uint64]()
	fresh.Distance = hnsw.CosineDistance
	fresh.M = a.graph.M
	fresh.EfSearch = a.graph.EfSearch
	fresh.Ml = a.graph.Ml

	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			s.mu.RUnlock()
			return contexterr.Wrap(contexterr.KindIntegrity, err, "scan shard row during ANN rebuild")
		}
		vec := decodeVector(blob, a.dim)
		fresh.Add(hnsw.MakeNode(uint64(chunkID), vec))
	}
	s.mu.RUnlock()
	if err := rows.Err(); err != nil {
		return contexterr.Wrap(contexterr.KindIntegrity, err, "iterate shard rows during ANN rebuild")
	}

	a.graph = fresh
	return nil
}

// Search looks up the k nearest chunk_ids to query by cosine distance and
// returns those whose distance is below DistanceThreshold, so it may
// return fewer than k.
func (a *ANNIndex) Search(query []float32, k int) ([]VectorResult, error) {
	if len(query) != a.dim {
		return nil, contexterr.Valuef("ANN query vector length %d does not match index dimension %d", len(query), a.dim)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	neighbors := a.graph.Search(query, k)
	out := make([]VectorResult, 0, len(neighbors))
	for _, n := range neighbors {
		dist := cosineDistance(query, n.Value, norm(query), norm(n.Value))
		if dist < DistanceThreshold {
			out = append(out, VectorResult{ChunkID: int64(n.Key), Distance: dist})
		}
	}
	return out, nil
}
