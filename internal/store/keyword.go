package store

import (
	"context"
	"database/sql"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// SearchKeyword runs BM25 over chunk_fts (spec §4.5.2). SQLite's fts5
// bm25() function returns lower-is-better scores, so the result is negated
// to present "higher is better" ordering consistently with the other
// scoring functions; rows with a null score are dropped.
func (s *Store) SearchKeyword(ctx context.Context, query string, limit int, datasourceRunIDs []int64) ([]BM25Result, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	bleveIndex := s.bleveIndex
	s.mu.RUnlock()
	if bleveIndex != nil {
		return bleveIndex.Search(ctx, query, limit, datasourceRunIDs)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, filterArgs := chunkDatasourceFilter(datasourceRunIDs)

	sqlQuery := `
		SELECT chunk.chunk_id, -bm25(chunk_fts) AS score
		FROM chunk_fts
		JOIN chunk ON chunk.chunk_id = chunk_fts.rowid
		WHERE chunk_fts MATCH ?` + filter + `
		ORDER BY score DESC
		LIMIT ?`

	args := append([]any{query}, filterArgs...)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "keyword search for %q", query)
	}
	defer rows.Close()

	var out []BM25Result
	for rows.Next() {
		var r BM25Result
		var score sql.NullFloat64
		if err := rows.Scan(&r.ChunkID, &score); err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "scan keyword result")
		}
		if !score.Valid {
			continue
		}
		r.Score = score.Float64
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "iterate keyword results")
	}
	return out, nil
}
