package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/databao-dev/contextd/internal/contexterr"
)

// shardCacheSize bounds the in-process registry cache; the registry is read
// on every embed/search call and written only on first use of a new
// (embedder, model) pair (spec §4.1 Concurrency), so a small LRU avoids a
// round trip to SQLite on the hot path.
const shardCacheSize = 256

var sanitizePattern = regexp.MustCompile(`[^a-z0-9_]+`)

// ShardRegistry resolves (embedder, model_id) pairs to shard table names
// and dimensions, creating the table and registry row idempotently on
// first use (spec §4.1).
type ShardRegistry struct {
	store *Store
	mu    sync.Mutex
	cache *lru.Cache[string, ShardEntry]
}

// NewShardRegistry constructs a registry backed by store.
func NewShardRegistry(store *Store) *ShardRegistry {
	cache, _ := lru.New[string, ShardEntry](shardCacheSize)
	return &ShardRegistry{store: store, cache: cache}
}

func registryKey(embedder, modelID string) string {
	return embedder + "\x00" + modelID
}

// sanitizeIdent lowercases name and replaces every run of non [a-z0-9_]
// characters with a single underscore, per spec §4.1's deterministic
// table-name rule.
func sanitizeIdent(name string) string {
	lower := strings.ToLower(name)
	return sanitizePattern.ReplaceAllString(lower, "_")
}

// ShardTableName computes the deterministic table name for (embedder,
// model, dim): "embeddings__<sanitized_embedder>__<sanitized_model>__<dim>".
func ShardTableName(embedder, modelID string, dim int) string {
	return fmt.Sprintf("embeddings__%s__%s__%d", sanitizeIdent(embedder), sanitizeIdent(modelID), dim)
}

// Resolve returns the (table_name, dim) for (embedder, modelID), creating
// the registry row and shard table on first use. dim must be supplied by
// the caller for a first-use pair; for an existing pair dim is validated
// against the stored dimension and a mismatch fails InvariantError (spec
// §4.1, invariant 2).
func (r *ShardRegistry) Resolve(ctx context.Context, embedder, modelID string, dim int) (ShardEntry, error) {
	key := registryKey(embedder, modelID)
	if e, ok := r.cache.Get(key); ok {
		if dim > 0 && e.Dim != dim {
			return ShardEntry{}, contexterr.Invariantf(
				"registry dim mismatch for (%s, %s): registry has %d, caller supplied %d",
				embedder, modelID, e.Dim, dim)
		}
		return e, nil
	}

	// Serialize first-use creation: CREATE TABLE IF NOT EXISTS plus the
	// UNIQUE(embedder, model_id) constraint make concurrent resolves for the
	// same pair converge on one table (spec §4.1 Concurrency), but the
	// in-process mutex avoids a wasted round trip under contention.
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.cache.Get(key); ok {
		if dim > 0 && e.Dim != dim {
			return ShardEntry{}, contexterr.Invariantf(
				"registry dim mismatch for (%s, %s): registry has %d, caller supplied %d",
				embedder, modelID, e.Dim, dim)
		}
		return e, nil
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, err := r.lookupLocked(ctx, embedder, modelID)
	if err != nil {
		return ShardEntry{}, err
	}
	if existing != nil {
		if dim > 0 && existing.Dim != dim {
			return ShardEntry{}, contexterr.Invariantf(
				"registry dim mismatch for (%s, %s): registry has %d, caller supplied %d",
				embedder, modelID, existing.Dim, dim)
		}
		r.cache.Add(key, *existing)
		return *existing, nil
	}

	if dim <= 0 {
		return ShardEntry{}, contexterr.Valuef(
			"no registry entry for (%s, %s) and no dimension supplied", embedder, modelID)
	}

	entry := ShardEntry{Embedder: embedder, ModelID: modelID, TableName: ShardTableName(embedder, modelID, dim), Dim: dim}

	createSQL := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			chunk_id   INTEGER PRIMARY KEY REFERENCES chunk(chunk_id),
			vec        BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, entry.TableName)
	if _, err := r.store.db.ExecContext(ctx, createSQL); err != nil {
		return ShardEntry{}, contexterr.Wrap(contexterr.KindIntegrity, err, "create shard table %s", entry.TableName)
	}

	_, err = r.store.db.ExecContext(ctx,
		`INSERT INTO embedding_registry (embedder, model_id, table_name, dim) VALUES (?, ?, ?, ?)
		 ON CONFLICT(embedder, model_id) DO NOTHING`,
		entry.Embedder, entry.ModelID, entry.TableName, entry.Dim,
	)
	if err != nil {
		return ShardEntry{}, contexterr.Wrap(contexterr.KindIntegrity, err, "insert registry row for (%s, %s)", embedder, modelID)
	}

	// Re-read: a concurrent process may have inserted first, in which case
	// ON CONFLICT DO NOTHING left our insert a no-op and the authoritative
	// dim is whatever landed first.
	final, err := r.lookupLocked(ctx, embedder, modelID)
	if err != nil {
		return ShardEntry{}, err
	}
	if final == nil {
		return ShardEntry{}, contexterr.Invariantf("registry entry for (%s, %s) vanished after insert", embedder, modelID)
	}
	if final.Dim != dim {
		return ShardEntry{}, contexterr.Invariantf(
			"registry dim mismatch for (%s, %s): registry has %d, caller supplied %d",
			embedder, modelID, final.Dim, dim)
	}

	r.cache.Add(key, *final)
	return *final, nil
}

func (r *ShardRegistry) lookupLocked(ctx context.Context, embedder, modelID string) (*ShardEntry, error) {
	var e ShardEntry
	err := r.store.db.QueryRowContext(ctx,
		`SELECT embedder, model_id, table_name, dim FROM embedding_registry WHERE embedder = ? AND model_id = ?`,
		embedder, modelID,
	).Scan(&e.Embedder, &e.ModelID, &e.TableName, &e.Dim)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, contexterr.Wrap(contexterr.KindIntegrity, err, "lookup registry entry for (%s, %s)", embedder, modelID)
	}
	return &e, nil
}

// Lookup returns the registry entry for (embedder, modelID) without
// creating anything; it fails if the pair has never been resolved.
func (r *ShardRegistry) Lookup(ctx context.Context, embedder, modelID string) (ShardEntry, error) {
	key := registryKey(embedder, modelID)
	if e, ok := r.cache.Get(key); ok {
		return e, nil
	}
	r.store.mu.RLock()
	e, err := r.lookupLocked(ctx, embedder, modelID)
	r.store.mu.RUnlock()
	if err != nil {
		return ShardEntry{}, err
	}
	if e == nil {
		return ShardEntry{}, contexterr.Integrityf("no shard registered for (%s, %s)", embedder, modelID)
	}
	r.cache.Add(key, *e)
	return *e, nil
}

// IsValidTableName reports whether name is a table currently present in the
// registry, used by the Persistence Service to reject unknown/malformed
// table names before writing (spec §4.2).
func (r *ShardRegistry) IsValidTableName(ctx context.Context, name string) (bool, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var count int
	err := r.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embedding_registry WHERE table_name = ?`, name).Scan(&count)
	if err != nil {
		return false, contexterr.Wrap(contexterr.KindIntegrity, err, "validate shard table name %q", name)
	}
	return count > 0, nil
}
