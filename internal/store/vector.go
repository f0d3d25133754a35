package store

import (
	"context"
	"fmt"
	"strings"
)

// SemanticSearch runs a cosine KNN scan over chunk vectors and joins the
// winners back to their entries rows. Filters in opts become partition
// predicates, so the scan only touches the matching shard of vec_entries.
// Multiple chunks of the same row collapse to the closest one.
func (s *Store) SemanticSearch(ctx context.Context, query []float32, opts VectorOptions) ([]VectorHit, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("query vector dimension %d, store expects %d", len(query), s.dim)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	// Over-fetch so chunk collapsing still fills the limit.
	k := limit * 4

	var sb strings.Builder
	sb.WriteString(`
		SELECT doc_id, chunk_idx, distance
		FROM vec_entries
		WHERE embedding MATCH ? AND k = ?`)
	args := []any{EncodeVector(query), k}

	if opts.Source != "" {
		sb.WriteString(" AND source = ?")
		args = append(args, opts.Source)
	}
	if opts.Topic != "" {
		sb.WriteString(" AND topic = ?")
		args = append(args, opts.Topic)
	}
	if opts.Type != "" {
		sb.WriteString(" AND type = ?")
		args = append(args, opts.Type)
	}
	sb.WriteString(" ORDER BY distance")

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("knn search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	type match struct {
		chunkIdx int
		distance float64
	}
	best := make(map[int64]match)
	var order []int64
	for rows.Next() {
		var docID int64
		var m match
		if err := rows.Scan(&docID, &m.chunkIdx, &m.distance); err != nil {
			return nil, fmt.Errorf("scan knn hit: %w", err)
		}
		if prev, ok := best[docID]; ok {
			if m.distance < prev.distance {
				best[docID] = m
			}
			continue
		}
		best[docID] = m
		order = append(order, docID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var hits []VectorHit
	for _, docID := range order {
		if len(hits) >= limit {
			break
		}
		e, err := s.GetEntry(ctx, docID)
		if err != nil {
			// Orphaned vector; the entries row is authoritative.
			continue
		}
		m := best[docID]
		hits = append(hits, VectorHit{StoredEntry: *e, ChunkIdx: m.chunkIdx, Distance: m.distance})
	}
	return hits, nil
}

// MissingVectors returns ids of entries rows with no vector yet, used by the
// backfill path to find work after an interrupted run.
func (s *Store) MissingVectors(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id FROM entries e
		WHERE NOT EXISTS (SELECT 1 FROM vec_entries v WHERE v.doc_id = e.id)
		ORDER BY e.id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("find missing vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan missing vector id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
