package store

import (
	"context"
	"time"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// WriteChunksAndEmbeddings atomically writes a batch of (chunk, vector)
// pairs for one DatasourceRun (spec §4.2).
//
// It opens exactly one transaction. For each pair, in input order, it
// inserts the chunk row (capturing chunk_id) then the vector row into
// tableName keyed by that chunk_id. Any error at any step rolls back the
// whole transaction; a database error is returned wrapped in a contexterr
// IntegrityError that keeps it as the cause, so errors.Is/As still reach
// the original error.
//
// Grounded on sqlite_bm25.go's Index() transactional idiom, generalized
// from FTS-only rows to chunk+embedding row pairs.
func (s *Store) WriteChunksAndEmbeddings(
	ctx context.Context,
	datasourceRunID int64,
	chunkEmbeddings []ChunkEmbedding,
	tableName string,
	registry *ShardRegistry,
) ([]int64, error) {
	if len(chunkEmbeddings) == 0 {
		return nil, contexterr.Valuef("write_chunks_and_embeddings: chunk_embeddings must not be empty")
	}

	valid, err := registry.IsValidTableName(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, contexterr.Valuef("write_chunks_and_embeddings: unknown shard table %q", tableName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.getDatasourceRunLocked(ctx, datasourceRunID); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "begin persistence transaction")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	chunkIDs := make([]int64, 0, len(chunkEmbeddings))
	now := time.Now().UTC()

	insertChunk, err := tx.PrepareContext(ctx,
		`INSERT INTO chunk (datasource_run_id, embeddable_text, display_text, keyword_index_text, created_at)
		 VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "prepare chunk insert")
	}
	defer insertChunk.Close()

	insertVec, err := tx.PrepareContext(ctx,
		`INSERT INTO `+tableName+` (chunk_id, vec, created_at) VALUES (?, ?, ?)`)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "prepare embedding insert into %s", tableName)
	}
	defer insertVec.Close()

	for i, ce := range chunkEmbeddings {
		res, err := insertChunk.ExecContext(ctx, datasourceRunID, ce.EmbeddableText, ce.DisplayText, ExpandIdentifiers(ce.KeywordIndexText), now)
		if err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "insert chunk %d of batch", i)
		}
		chunkID, err := res.LastInsertId()
		if err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "read chunk_id for chunk %d of batch", i)
		}

		if _, err := insertVec.ExecContext(ctx, chunkID, encodeVector(ce.Vector), now); err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "insert embedding for chunk %d into %s", chunkID, tableName)
		}

		chunkIDs = append(chunkIDs, chunkID)
	}

	if err := tx.Commit(); err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "commit persistence transaction")
	}
	committed = true

	// The bleve backend, when enabled, lives outside chunk_fts's
	// transactional trigger lockstep (same as the teacher's BleveBM25Index,
	// which is a separate on-disk index from sqlite_bm25.go's database) —
	// indexed only after the owning transaction has committed.
	if s.bleveIndex != nil {
		texts := make([]string, len(chunkEmbeddings))
		for i, ce := range chunkEmbeddings {
			texts[i] = ExpandIdentifiers(ce.KeywordIndexText)
		}
		if err := s.bleveIndex.IndexChunks(ctx, datasourceRunID, chunkIDs, texts); err != nil {
			return nil, err
		}
	}

	return chunkIDs, nil
}

// GetChunks loads chunk rows by id into a map keyed by chunk_id, for use by
// the Retrieval Engine's result-enrichment step. Ids with no chunk row are
// absent from the map.
func (s *Store) GetChunks(ctx context.Context, ids []int64) (map[int64]Chunk, error) {
	if len(ids) == 0 {
		return map[int64]Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := make([]any, len(ids))
	query := `SELECT chunk_id, datasource_run_id, embeddable_text, display_text, keyword_index_text, created_at FROM chunk WHERE chunk_id IN (`
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	rows, err := s.db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "load chunks")
	}
	defer rows.Close()

	out := make(map[int64]Chunk, len(ids))
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ChunkID, &c.DatasourceRunID, &c.EmbeddableText, &c.DisplayText, &c.KeywordIndexText, &c.CreatedAt); err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "scan chunk row")
		}
		out[c.ChunkID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "iterate chunk rows")
	}
	return out, nil
}

// chunkDatasourceFilter, when non-empty, restricts a search query to chunks
// whose datasource_run_id is in the given set. It returns the SQL fragment
// and its bind args, or ("", nil) for no filter.
func chunkDatasourceFilter(datasourceRunIDs []int64) (string, []any) {
	if len(datasourceRunIDs) == 0 {
		return "", nil
	}
	args := make([]any, len(datasourceRunIDs))
	frag := " AND chunk.datasource_run_id IN ("
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
