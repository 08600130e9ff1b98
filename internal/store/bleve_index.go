package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// bleveDocument is the document shape fed to bleve's default analyzer;
// DatasourceRunID is a separate field so datasource_run_ids filtering
// (spec §4.5.2's optional datasource_ids parameter) can be expressed as a
// conjunction query instead of post-filtering every hit.
type bleveDocument struct {
	Content         string `json:"content"`
	DatasourceRunID int64  `json:"datasource_run_id"`
}

// BleveKeywordIndex is the optional alternative keyword-search backend
// (spec's DOMAIN STACK: "Alternative/optional BM25 backend behind the same
// KeywordIndex interface"), grounded on the teacher's
// internal/store/bm25.go BleveBM25Index, simplified to this spec's single
// analyzer-per-store need (no custom code tokenizer: spec's
// keyword_index_text is already pre-split by ExpandIdentifiers before it
// reaches here, so bleve's stock standard analyzer is sufficient).
type BleveKeywordIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	path  string
}

// NewBleveKeywordIndex opens (or creates) a bleve index at path. An empty
// path creates an in-memory index, used by tests and --offline runs with
// no durable keyword index requirement.
func NewBleveKeywordIndex(path string) (*BleveKeywordIndex, error) {
	m := bleve.NewIndexMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, mkErr, "create bleve index directory for %s", path)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "open bleve keyword index at %s", path)
	}
	return &BleveKeywordIndex{index: idx, path: path}, nil
}

// IndexChunks adds one document per chunk to the index, keyed by chunk_id.
func (b *BleveKeywordIndex) IndexChunks(ctx context.Context, datasourceRunID int64, chunkIDs []int64, keywordTexts []string) error {
	if len(chunkIDs) != len(keywordTexts) {
		return contexterr.Invariantf("bleve index: chunkIDs and keywordTexts length mismatch (%d vs %d)", len(chunkIDs), len(keywordTexts))
	}
	if len(chunkIDs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for i, id := range chunkIDs {
		doc := bleveDocument{Content: keywordTexts[i], DatasourceRunID: datasourceRunID}
		if err := batch.Index(strconv.FormatInt(id, 10), doc); err != nil {
			return contexterr.Wrap(contexterr.KindIntegrity, err, "stage bleve document for chunk %d", id)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return contexterr.Wrap(contexterr.KindIntegrity, err, "commit bleve batch for datasource_run %d", datasourceRunID)
	}
	return nil
}

// Search runs a BM25 match query over Content, optionally restricted to a
// set of datasource_run_ids via a conjunction query (spec §4.5.2).
func (b *BleveKeywordIndex) Search(ctx context.Context, query string, limit int, datasourceRunIDs []int64) ([]BM25Result, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	var q bleve.Query = matchQuery
	if len(datasourceRunIDs) > 0 {
		inclusive := true
		disjuncts := make([]bleve.Query, len(datasourceRunIDs))
		for i, id := range datasourceRunIDs {
			nq := bleve.NewNumericRangeInclusiveQuery(numPtr(float64(id)), numPtr(float64(id)), &inclusive, &inclusive)
			nq.SetField("datasource_run_id")
			disjuncts[i] = nq
		}
		q = bleve.NewConjunctionQuery(matchQuery, bleve.NewDisjunctionQuery(disjuncts...))
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	result, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "bleve search for %q", query)
	}

	out := make([]BM25Result, 0, len(result.Hits))
	for _, hit := range result.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "parse bleve hit id %q", hit.ID)
		}
		out = append(out, BM25Result{ChunkID: id, Score: hit.Score})
	}
	return out, nil
}

func (b *BleveKeywordIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.index.Close(); err != nil {
		return fmt.Errorf("close bleve keyword index: %w", err)
	}
	return nil
}

func numPtr(f float64) *float64 { return &f }
