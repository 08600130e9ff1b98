package store

import (
	"context"
	"math"
	"sort"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// DistanceThreshold is the maximum cosine distance for a vector-search
// candidate to be retained (spec §4.5.1).
const DistanceThreshold = 0.75

// SearchVector computes cosine distance between query and every row of the
// shard table tableName (optionally restricted to datasourceRunIDs),
// keeping candidates with distance < DistanceThreshold, ordered ascending,
// and returning at most limit (spec §4.5.1).
//
// modernc.org/sqlite has no native vector-distance operator, so the shard
// table's vec BLOBs are decoded and scored in Go; this is the brute-force
// path the DOMAIN STACK notes as the default, with coder/hnsw available as
// an optional in-memory accelerator (see ANNIndex in vector_hnsw.go) for
// large shards.
func (s *Store) SearchVector(ctx context.Context, tableName string, dim int, query []float32, limit int, datasourceRunIDs []int64) ([]VectorResult, error) {
	if limit <= 0 {
		limit = 10
	}
	if len(query) != dim {
		return nil, contexterr.Valuef("query vector length %d does not match shard dimension %d", len(query), dim)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, filterArgs := shardDatasourceFilter(datasourceRunIDs)

	sqlQuery := `
		SELECT ` + tableName + `.chunk_id, ` + tableName + `.vec
		FROM ` + tableName + `
		JOIN chunk ON chunk.chunk_id = ` + tableName + `.chunk_id` + filter

	rows, err := s.db.QueryContext(ctx, sqlQuery, filterArgs...)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "vector search against %s", tableName)
	}
	defer rows.Close()

	qNorm := norm(query)
	var candidates []VectorResult
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "scan vector row from %s", tableName)
		}
		vec := decodeVector(blob, dim)
		dist := cosineDistance(query, vec, qNorm, norm(vec))
		if dist < DistanceThreshold {
			candidates = append(candidates, VectorResult{ChunkID: chunkID, Distance: dist})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "iterate vector rows from %s", tableName)
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Distance < candidates[j].Distance })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// shardDatasourceFilter mirrors chunkDatasourceFilter but for queries that
// select from a shard table joined to the chunk table, starting the
// fragment with WHERE instead of AND.
func shardDatasourceFilter(datasourceRunIDs []int64) (string, []any) {
	if len(datasourceRunIDs) == 0 {
		return "", nil
	}
	args := make([]any, len(datasourceRunIDs))
	frag := " WHERE chunk.datasource_run_id IN ("
	for i, id := range datasourceRunIDs {
		if i > 0 {
			frag += ","
		}
		frag += "?"
		args[i] = id
	}
	frag += ")"
	return frag, args
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosineDistance returns 1 - cosine_similarity, so 0 means identical
// direction and 2 means opposite, matching the vector-search contract's
// "distance" framing (lower is better, threshold 0.75).
func cosineDistance(a, b []float32, normA, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	similarity := dot / (normA * normB)
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}
	return 1 - similarity
}
