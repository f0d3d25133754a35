package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetCachedVector looks up a document vector by content hash. A miss returns
// (nil, nil). The model column is informational; lookups are hash-only, so a
// model switch without a fresh store means stale vectors served from cache.
func (s *Store) GetCachedVector(ctx context.Context, contentHash string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT vector FROM embedding_cache WHERE content_hash = ?", contentHash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup: %w", err)
	}
	return DecodeVector(blob)
}

// PutCachedVector stores a document vector under its content hash, replacing
// any previous value.
func (s *Store) PutCachedVector(ctx context.Context, contentHash, model string, vec []float32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embedding_cache (content_hash, model, vector)
		VALUES (?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET model = excluded.model, vector = excluded.vector`,
		contentHash, model, EncodeVector(vec))
	if err != nil {
		return fmt.Errorf("cache store: %w", err)
	}
	return nil
}
