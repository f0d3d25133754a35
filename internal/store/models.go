package store

import (
	"errors"
	"fmt"
)

// Entry is the common ingestion contract. Every collector — batch parsers and
// the real-time indexer alike — funnels through InsertEntry with one of these.
type Entry struct {
	Source    string            `validate:"required"`
	Title     string            ``
	Content   string            `validate:"required"`
	Topic     string            ``
	Type      string            ``
	Timestamp string            `` // ISO-8601, empty if unknown
	Metadata  map[string]string ``
}

// StoredEntry is an Entry as it exists in the entries table, with its
// engine-assigned row identity.
type StoredEntry struct {
	RowID     int64             `json:"row_id"`
	Source    string            `json:"source"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Topic     string            `json:"topic"`
	Type      string            `json:"type"`
	Timestamp string            `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SearchHit is one ranked lexical search result. Rank is the raw BM25 value
// from FTS5: negative, and lower (more negative) means a better match.
type SearchHit struct {
	StoredEntry
	Rank float64 `json:"rank"`
}

// VectorHit is one KNN result. Distance is cosine distance in [0, 2];
// 0 means identical direction.
type VectorHit struct {
	StoredEntry
	ChunkIdx int     `json:"chunk_idx"`
	Distance float64 `json:"distance"`
}

// SearchOptions narrows a lexical search.
type SearchOptions struct {
	Sources []string // restrict to these source buckets
	Types   []string // restrict to these type values
	Since   string   // ISO-8601 floor; rows with empty timestamps are excluded
	Limit   int
}

// VectorOptions narrows a semantic search. Filters are applied as vec0
// partition predicates before the KNN scan, never as a post-filter.
type VectorOptions struct {
	Source string
	Topic  string
	Type   string
	Limit  int
}

// PurgeOptions narrows a purge candidate search. Sources restricts the search
// within the purgeable set; names outside it are ignored, so no option
// combination can reach a structural source.
type PurgeOptions struct {
	Sources []string
}

// PurgeMatch is a candidate row returned by FindPurgeMatches, carrying enough
// detail for a human to confirm deletion.
type PurgeMatch struct {
	RowID     int64  `json:"row_id"`
	Source    string `json:"source"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Topic     string `json:"topic"`
	Timestamp string `json:"timestamp,omitempty"`
}

// PurgeableSources are the mutable knowledge buckets whose entries may be
// deleted or superseded after capture. Structural sources (commits, session
// telemetry) are append-only ground truth and never purged.
var PurgeableSources = []string{"captures", "teachings", "observations", "notes"}

// IsPurgeable reports whether a source bucket allows post-capture deletion.
func IsPurgeable(source string) bool {
	for _, s := range PurgeableSources {
		if s == source {
			return true
		}
	}
	return false
}

// ErrStoreNotFound indicates the store file does not exist. A missing store is
// always an error, never an empty result set.
var ErrStoreNotFound = errors.New("store not found: run 'recall init' first")

// ErrRuntimeNotInitialized indicates a store handle was requested before
// InitializeRuntime ran.
var ErrRuntimeNotInitialized = errors.New("store runtime not initialized: call store.InitializeRuntime first")

// ReservedKeyError is a programmer error: a collector tried to smuggle an
// engine-owned field through entry metadata.
type ReservedKeyError struct {
	Key string
}

func (e *ReservedKeyError) Error() string {
	return fmt.Sprintf("metadata key %q is reserved by the index engine", e.Key)
}
