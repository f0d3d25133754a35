// Package store is the persistence core of the knowledge index: one SQLite
// file holding the lexical-searchable entries table, the vec0 KNN table that
// shares its row identity, and the content-addressed embedding cache.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a handle on one index file. It assumes a single process with
// exclusive write access; no additional locking is layered on top of SQLite's.
type Store struct {
	db             *sql.DB
	path           string
	dim            int
	captureLogPath string
}

// Options configures a store handle.
type Options struct {
	// Dimension is the fixed embedding width for the vec0 table.
	Dimension int

	// CaptureLogPath, when set, points at the upstream append-only capture
	// log so purge can best-effort filter deleted entries out of it.
	CaptureLogPath string
}

// Create opens (and if necessary creates) the index file at path.
func Create(path string, opts Options) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return open(path, opts)
}

// Open opens an existing index file. A missing file is a configuration error,
// never an empty index.
func Open(path string, opts Options) (*Store, error) {
	if path != ":memory:" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrStoreNotFound, path)
		}
	}
	return open(path, opts)
}

func open(path string, opts Options) (*Store, error) {
	if !runtimeInitialized() {
		return nil, ErrRuntimeNotInitialized
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", opts.Dimension)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single active writer; also keeps :memory: handles on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, path: path, dim: opts.Dimension, captureLogPath: opts.CaptureLogPath}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY,
		source TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		topic TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source);
	CREATE INDEX IF NOT EXISTS idx_entries_topic ON entries(topic);
	CREATE INDEX IF NOT EXISTS idx_entries_type ON entries(type);
	CREATE INDEX IF NOT EXISTS idx_entries_timestamp ON entries(timestamp);

	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		title,
		content,
		content='entries',
		content_rowid='id'
	);

	-- Optimization table only: keyed by content hash, not part of the
	-- searchable schema.
	CREATE TABLE IF NOT EXISTS embedding_cache (
		content_hash TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		vector BLOB NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// vec0 table: source/topic/type are partition keys so KNN queries filter
	// before the distance scan, doc_id/chunk_idx are filterable metadata for
	// join-back and deletion, timestamp rides along as an auxiliary column.
	vecSchema := fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS vec_entries USING vec0(
		doc_id INTEGER,
		chunk_idx INTEGER,
		source TEXT PARTITION KEY,
		topic TEXT PARTITION KEY,
		type TEXT PARTITION KEY,
		+timestamp TEXT,
		embedding FLOAT[%d] distance_metric=cosine
	)`, s.dim)
	if _, err := s.db.Exec(vecSchema); err != nil {
		return fmt.Errorf("create vec_entries: %w", err)
	}

	// SQLite has no IF NOT EXISTS for triggers.
	triggers := []struct {
		name string
		sql  string
	}{
		{
			name: "entries_fts_ai",
			sql: `CREATE TRIGGER entries_fts_ai AFTER INSERT ON entries BEGIN
				INSERT INTO entries_fts(rowid, title, content)
				VALUES (NEW.id, NEW.title, NEW.content);
			END`,
		},
		{
			name: "entries_fts_ad",
			sql: `CREATE TRIGGER entries_fts_ad AFTER DELETE ON entries BEGIN
				INSERT INTO entries_fts(entries_fts, rowid, title, content)
				VALUES ('delete', OLD.id, OLD.title, OLD.content);
			END`,
		},
		{
			name: "entries_fts_au",
			sql: `CREATE TRIGGER entries_fts_au AFTER UPDATE ON entries BEGIN
				INSERT INTO entries_fts(entries_fts, rowid, title, content)
				VALUES ('delete', OLD.id, OLD.title, OLD.content);
				INSERT INTO entries_fts(rowid, title, content)
				VALUES (NEW.id, NEW.title, NEW.content);
			END`,
		},
	}
	for _, t := range triggers {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='trigger' AND name=?", t.name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check trigger %s: %w", t.name, err)
		}
		if count == 0 {
			if _, err := s.db.Exec(t.sql); err != nil {
				return fmt.Errorf("create trigger %s: %w", t.name, err)
			}
		}
	}

	return nil
}

// Dimension returns the fixed embedding width this store was opened with.
func (s *Store) Dimension() int {
	return s.dim
}

// Path returns the store file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats summarizes index contents, mostly for doctor-style diagnostics.
type Stats struct {
	Entries      int            `json:"entries"`
	EntriesBySrc map[string]int `json:"entries_by_source"`
	Vectors      int            `json:"vectors"`
	CacheEntries int            `json:"cache_entries"`
}

// GetStats counts rows across the three tables.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{EntriesBySrc: make(map[string]int)}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&stats.Entries); err != nil {
		return nil, fmt.Errorf("count entries: %w", err)
	}

	rows, err := s.db.Query("SELECT source, COUNT(*) FROM entries GROUP BY source")
	if err != nil {
		return nil, fmt.Errorf("count entries by source: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, fmt.Errorf("scan source count: %w", err)
		}
		stats.EntriesBySrc[src] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM vec_entries").Scan(&stats.Vectors); err != nil {
		return nil, fmt.Errorf("count vectors: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM embedding_cache").Scan(&stats.CacheEntries); err != nil {
		return nil, fmt.Errorf("count cache entries: %w", err)
	}

	return stats, nil
}
