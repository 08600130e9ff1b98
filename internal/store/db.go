package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// Store is the embedded storage layer: one SQLite database holding the
// run/datasource_run/chunk/embedding_registry tables, one dynamic shard
// table per (embedder, model_id) pair, and an FTS5 index over
// chunk.keyword_index_text.
//
// Per spec §5, the core is single-writer per Run: Store runs every read and
// write through a single connection (SetMaxOpenConns(1)), the same
// discipline sqlite_bm25.go uses. Concurrent Retrieval Engine queries share
// mu's read lock with each other, but they wait for a writer holding the
// write lock and take turns on the one connection.
type Store struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string

	// bleveIndex, when non-nil, makes SearchKeyword/WriteChunksAndEmbeddings
	// use the bleve-backed alternative BM25 backend instead of chunk_fts
	// (spec's DOMAIN STACK "Alternative/optional BM25 backend"). Enabled via
	// EnableBleveIndex; nil means "use chunk_fts", the default.
	bleveIndex *BleveKeywordIndex
}

// EnableBleveIndex switches this Store's keyword search from the built-in
// FTS5 index to a bleve-backed index at path (or in-memory if path is
// empty). Must be called before any chunks are written if historical
// chunks are to be searchable — EnableBleveIndex does not backfill.
func (s *Store) EnableBleveIndex(path string) error {
	idx, err := NewBleveKeywordIndex(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bleveIndex = idx
	return nil
}

// Open opens (creating if absent) the embedded store at path and applies
// the schema migrations. path may be ":memory:" for tests.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	// Single connection, matching sqlite_bm25.go's discipline: reads and
	// writes of this Store handle all go through it one at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema described in spec §6 ("Embedded store schema
// (logical)") if it doesn't already exist. Shard tables are created lazily
// by the ShardRegistry, not here.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS run (
			run_id         INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id     TEXT NOT NULL,
			engine_version TEXT NOT NULL,
			status         TEXT NOT NULL,
			started_at     TIMESTAMP NOT NULL,
			ended_at       TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS datasource_run (
			datasource_run_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id            INTEGER NOT NULL REFERENCES run(run_id),
			plugin            TEXT NOT NULL,
			full_type         TEXT NOT NULL,
			source_id         TEXT NOT NULL,
			storage_directory TEXT NOT NULL,
			created_at        TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_datasource_run_run_id ON datasource_run(run_id)`,
		`CREATE TABLE IF NOT EXISTS chunk (
			chunk_id           INTEGER PRIMARY KEY AUTOINCREMENT,
			datasource_run_id  INTEGER NOT NULL REFERENCES datasource_run(datasource_run_id),
			embeddable_text    TEXT NOT NULL,
			display_text       TEXT NOT NULL,
			keyword_index_text TEXT NOT NULL,
			created_at         TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunk_datasource_run_id ON chunk(datasource_run_id)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_fts USING fts5(
			keyword_index_text,
			content='chunk',
			content_rowid='chunk_id',
			tokenize='porter unicode61'
		)`,
		// Triggers keep chunk_fts in lockstep with chunk, including inside the
		// Persistence Service's transaction, so a rolled-back batch also rolls
		// back its FTS rows (spec invariant 3).
		`CREATE TRIGGER IF NOT EXISTS chunk_ai AFTER INSERT ON chunk BEGIN
			INSERT INTO chunk_fts(rowid, keyword_index_text) VALUES (new.chunk_id, new.keyword_index_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunk_ad AFTER DELETE ON chunk BEGIN
			INSERT INTO chunk_fts(chunk_fts, rowid, keyword_index_text) VALUES('delete', old.chunk_id, old.keyword_index_text);
		END`,
		`CREATE TRIGGER IF NOT EXISTS chunk_au AFTER UPDATE ON chunk BEGIN
			INSERT INTO chunk_fts(chunk_fts, rowid, keyword_index_text) VALUES('delete', old.chunk_id, old.keyword_index_text);
			INSERT INTO chunk_fts(rowid, keyword_index_text) VALUES (new.chunk_id, new.keyword_index_text);
		END`,
		`CREATE TABLE IF NOT EXISTS embedding_registry (
			embedder   TEXT NOT NULL,
			model_id   TEXT NOT NULL,
			table_name TEXT NOT NULL,
			dim        INTEGER NOT NULL,
			UNIQUE(embedder, model_id)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection, checkpointing WAL into the
// main database file first so the store is consistent on disk.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bleveIndex != nil {
		_ = s.bleveIndex.Close()
	}
	if s.path != ":memory:" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for packages (the Postgres/SQLite
// introspection dialects, in particular) that need raw SQL access to the
// store itself, e.g. for a "self" introspection target.
func (s *Store) DB() *sql.DB { return s.db }
