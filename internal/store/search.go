package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

// buildMatchQuery turns free text into an FTS5 MATCH expression. Each term is
// quoted as a phrase so user input containing FTS operators (AND, NEAR, ",
// parentheses) is matched literally instead of parsed.
func buildMatchQuery(query string) string {
	terms := strings.Fields(query)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ReplaceAll(t, `"`, `""`)
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// Search runs a BM25-ranked lexical query over titles and content. Content in
// each hit is the FTS snippet around the match, with matched terms wrapped in
// >> << markers, not the full stored chunk. Rank is the raw BM25 value:
// negative, lower is better.
func (s *Store) Search(ctx context.Context, query string, opts SearchOptions) ([]SearchHit, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return nil, fmt.Errorf("empty search query")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	var sb strings.Builder
	sb.WriteString(`
		SELECT e.id, e.source, e.title,
			snippet(entries_fts, 1, '>>', '<<', '...', 32),
			e.topic, e.type, e.timestamp, e.metadata, f.rank
		FROM entries_fts f
		JOIN entries e ON e.id = f.rowid
		WHERE entries_fts MATCH ?`)
	args := []any{match}

	if len(opts.Sources) > 0 {
		sb.WriteString(" AND e.source IN (" + placeholders(len(opts.Sources)) + ")")
		for _, src := range opts.Sources {
			args = append(args, src)
		}
	}
	if len(opts.Types) > 0 {
		sb.WriteString(" AND e.type IN (" + placeholders(len(opts.Types)) + ")")
		for _, t := range opts.Types {
			args = append(args, t)
		}
	}
	if opts.Since != "" {
		// Rows without a timestamp cannot prove recency, so they are excluded.
		sb.WriteString(" AND e.timestamp != '' AND e.timestamp >= ?")
		args = append(args, opts.Since)
	}

	sb.WriteString(" ORDER BY f.rank LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var metaJSON string
		err := rows.Scan(&h.RowID, &h.Source, &h.Title, &h.Content,
			&h.Topic, &h.Type, &h.Timestamp, &metaJSON, &h.Rank)
		if err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Metadata = decodeMetadata(h.RowID, metaJSON)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// GetEntry fetches one row by id.
func (s *Store) GetEntry(ctx context.Context, rowID int64) (*StoredEntry, error) {
	var e StoredEntry
	var metaJSON string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, source, title, content, topic, type, timestamp, metadata
		FROM entries WHERE id = ?`, rowID).
		Scan(&e.RowID, &e.Source, &e.Title, &e.Content, &e.Topic, &e.Type, &e.Timestamp, &metaJSON)
	if err != nil {
		return nil, fmt.Errorf("get entry %d: %w", rowID, err)
	}
	e.Metadata = decodeMetadata(e.RowID, metaJSON)
	return &e, nil
}

// decodeMetadata tolerates malformed rows: a bad metadata blob costs that
// row its metadata, never the whole result set.
func decodeMetadata(rowID int64, metaJSON string) map[string]string {
	if metaJSON == "" || metaJSON == "{}" {
		return nil
	}
	var md map[string]string
	if err := json.Unmarshal([]byte(metaJSON), &md); err != nil {
		slog.Warn("skipping malformed entry metadata", "row_id", rowID, "error", err)
		return nil
	}
	return md
}
