package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// reservedMetadataKeys are engine-owned fields. A collector setting one of
// these in entry metadata is a bug, not a policy violation, so the insert
// fails loudly instead of stripping.
var reservedMetadataKeys = map[string]bool{
	"content_hash": true,
	"doc_id":       true,
	"chunk_idx":    true,
	"vector":       true,
}

// columnDuplicateKeys shadow first-class entry columns. They are stripped with
// a warning so a sloppy collector cannot create two divergent copies of the
// same field.
var columnDuplicateKeys = map[string]bool{
	"topic":     true,
	"type":      true,
	"content":   true,
	"timestamp": true,
}

// DedupSession tracks content hashes seen during one ingestion run so the
// duplicate check costs one map lookup instead of one query per chunk.
type DedupSession struct {
	seen map[string]bool
}

// NewDedupSession returns an empty session. Pass nil to InsertEntry to fall
// back to per-chunk database checks.
func NewDedupSession() *DedupSession {
	return &DedupSession{seen: make(map[string]bool)}
}

func contentHash(source, title, content, topic string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(title))
	h.Write([]byte{0})
	h.Write([]byte(content))
	h.Write([]byte{0})
	h.Write([]byte(topic))
	return hex.EncodeToString(h.Sum(nil))
}

// sanitizeMetadata enforces the metadata guardrails and returns the cleaned
// map serialized as JSON.
func sanitizeMetadata(md map[string]string) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	clean := make(map[string]string, len(md))
	for k, v := range md {
		if reservedMetadataKeys[k] {
			return "", &ReservedKeyError{Key: k}
		}
		if columnDuplicateKeys[k] {
			slog.Warn("dropping metadata key that shadows an entry column", "key", k)
			continue
		}
		clean[k] = v
	}
	buf, err := json.Marshal(clean)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(buf), nil
}

// InsertEntry chunks, dedups and stores one entry. Content longer than the
// chunk threshold becomes multiple rows sharing the entry's source, title and
// topic. Returns the row ids actually inserted; duplicates insert nothing and
// are not an error.
func (s *Store) InsertEntry(ctx context.Context, e Entry, sess *DedupSession) ([]int64, error) {
	if err := validate.Struct(e); err != nil {
		return nil, fmt.Errorf("invalid entry: %w", err)
	}
	metaJSON, err := sanitizeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ids []int64
	for _, chunk := range SplitContent(e.Content) {
		id, inserted, err := s.insertChunk(ctx, tx, e, chunk, metaJSON, sess)
		if err != nil {
			return nil, err
		}
		if inserted {
			ids = append(ids, id)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return ids, nil
}

func (s *Store) insertChunk(ctx context.Context, tx *sql.Tx, e Entry, chunk, metaJSON string, sess *DedupSession) (int64, bool, error) {
	hash := contentHash(e.Source, e.Title, chunk, e.Topic)

	if sess != nil {
		if sess.seen[hash] {
			return 0, false, nil
		}
	}
	dup, err := s.chunkExists(ctx, tx, e, chunk)
	if err != nil {
		return 0, false, err
	}
	if dup {
		if sess != nil {
			sess.seen[hash] = true
		}
		return 0, false, nil
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (source, title, content, metadata, topic, type, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Source, e.Title, chunk, metaJSON, e.Topic, e.Type, e.Timestamp)
	if err != nil {
		return 0, false, fmt.Errorf("insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("read inserted id: %w", err)
	}
	if sess != nil {
		sess.seen[hash] = true
	}
	return id, true, nil
}

func (s *Store) chunkExists(ctx context.Context, tx *sql.Tx, e Entry, chunk string) (bool, error) {
	var n int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM entries
		WHERE source = ? AND title = ? AND content = ? AND topic = ?`,
		e.Source, e.Title, chunk, e.Topic).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return n > 0, nil
}

// InsertEmbedded stores one entry together with pre-computed chunk vectors in
// a single transaction, so a crash never leaves a searchable row without its
// vectors or vice versa. vectors must align with SplitContent(e.Content);
// chunks deduplicated away simply skip their vector. Every vector must match
// the store dimension.
func (s *Store) InsertEmbedded(ctx context.Context, e Entry, vectors [][]float32, sess *DedupSession) ([]int64, error) {
	if err := validate.Struct(e); err != nil {
		return nil, fmt.Errorf("invalid entry: %w", err)
	}
	metaJSON, err := sanitizeMetadata(e.Metadata)
	if err != nil {
		return nil, err
	}

	chunks := SplitContent(e.Content)
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	for i, v := range vectors {
		if len(v) != s.dim {
			return nil, fmt.Errorf("chunk %d: vector dimension %d, store expects %d", i, len(v), s.dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ids []int64
	for i, chunk := range chunks {
		id, inserted, err := s.insertChunk(ctx, tx, e, chunk, metaJSON, sess)
		if err != nil {
			return nil, err
		}
		if !inserted {
			continue
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO vec_entries (doc_id, chunk_idx, source, topic, type, timestamp, embedding)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, i, e.Source, e.Topic, e.Type, e.Timestamp, EncodeVector(vectors[i]))
		if err != nil {
			return nil, fmt.Errorf("insert vector for row %d: %w", id, err)
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return ids, nil
}

// InsertVector attaches an embedding to an already-stored row, used by the
// batch backfill path where records land first and vectors follow.
func (s *Store) InsertVector(ctx context.Context, rowID int64, chunkIdx int, vec []float32) error {
	if len(vec) != s.dim {
		return fmt.Errorf("vector dimension %d, store expects %d", len(vec), s.dim)
	}

	var source, topic, typ, timestamp string
	err := s.db.QueryRowContext(ctx,
		"SELECT source, topic, type, timestamp FROM entries WHERE id = ?", rowID).
		Scan(&source, &topic, &typ, &timestamp)
	if err != nil {
		return fmt.Errorf("look up row %d: %w", rowID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vec_entries (doc_id, chunk_idx, source, topic, type, timestamp, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rowID, chunkIdx, source, topic, typ, timestamp, EncodeVector(vec))
	if err != nil {
		return fmt.Errorf("insert vector for row %d: %w", rowID, err)
	}
	return nil
}
