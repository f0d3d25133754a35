package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// escapeLike escapes LIKE wildcards so the purge term is matched literally.
func escapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}

// FindPurgeMatches returns rows whose title, content or topic contains term as
// a case-insensitive substring. Only purgeable sources are searched; structural
// sources stay out of reach even when opts names one.
func (s *Store) FindPurgeMatches(ctx context.Context, term string, opts PurgeOptions) ([]PurgeMatch, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("empty purge term")
	}

	sources := PurgeableSources
	if len(opts.Sources) > 0 {
		sources = nil
		for _, src := range opts.Sources {
			if IsPurgeable(src) {
				sources = append(sources, src)
			} else {
				slog.Warn("ignoring non-purgeable source in purge search", "source", src)
			}
		}
		if len(sources) == 0 {
			return nil, nil
		}
	}

	pattern := "%" + escapeLike(term) + "%"

	query := fmt.Sprintf(`
		SELECT id, source, title, content, topic, timestamp
		FROM entries
		WHERE source IN (%s)
		AND (title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' OR topic LIKE ? ESCAPE '\')
		ORDER BY id`, placeholders(len(sources)))

	args := make([]any, 0, len(sources)+3)
	for _, src := range sources {
		args = append(args, src)
	}
	args = append(args, pattern, pattern, pattern)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find purge matches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []PurgeMatch
	for rows.Next() {
		var m PurgeMatch
		if err := rows.Scan(&m.RowID, &m.Source, &m.Title, &m.Content, &m.Topic, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan purge match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteEntries removes the given rows from both the searchable table and the
// vector table in one transaction. The FTS index follows via triggers. If a
// capture log is configured, matching lines are filtered out of it afterwards;
// that cleanup is best-effort and never fails the delete.
func (s *Store) DeleteEntries(ctx context.Context, rowIDs []int64, term string) (int64, error) {
	if len(rowIDs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ph := placeholders(len(rowIDs))
	args := make([]any, len(rowIDs))
	for i, id := range rowIDs {
		args[i] = id
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM entries WHERE id IN ("+ph+")", args...)
	if err != nil {
		return 0, fmt.Errorf("delete entries: %w", err)
	}
	deleted, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, "DELETE FROM vec_entries WHERE doc_id IN ("+ph+")", args...); err != nil {
		return 0, fmt.Errorf("delete vectors: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}

	if s.captureLogPath != "" && term != "" {
		if err := filterCaptureLog(s.captureLogPath, term); err != nil {
			slog.Warn("capture log cleanup failed; index delete already committed",
				"path", s.captureLogPath, "error", err)
		}
	}
	return deleted, nil
}

// filterCaptureLog rewrites the JSONL capture log without lines containing
// term, so a purged fact does not come back on the next full reindex.
func filterCaptureLog(path, term string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	lower := strings.ToLower(term)
	var kept []string
	removed := 0
	for _, line := range strings.Split(string(data), "\n") {
		if line != "" && strings.Contains(strings.ToLower(line), lower) {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	if removed == 0 {
		return nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(kept, "\n")), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	slog.Info("filtered capture log", "path", path, "removed_lines", removed)
	return nil
}
