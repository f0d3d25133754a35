// Package search fuses lexical and semantic retrieval into one ranked list.
package search

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/josephgoksu/recall/internal/store"
)

// Default fusion weights. Semantic similarity dominates; the lexical term
// mostly breaks ties and rescues exact-keyword matches the embedder missed.
const (
	DefaultVectorWeight = 0.7
	DefaultTextWeight   = 0.3
)

// Result is one fused hit. TextScore or VectorScore is zero when the row
// appeared in only one of the underlying result sets.
type Result struct {
	store.StoredEntry
	Score       float64 `json:"score"`
	TextScore   float64 `json:"text_score"`
	VectorScore float64 `json:"vector_score"`
}

// Options tunes one hybrid query.
type Options struct {
	Sources      []string
	Types        []string
	Topic        string
	Since        string
	Limit        int
	VectorWeight float64 // both weights default together when both are zero
	TextWeight   float64
}

// QueryEmbedder is the slice of the embedding service the engine uses.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Engine runs hybrid queries against one store with one embedding service.
type Engine struct {
	store *store.Store
	embed QueryEmbedder
}

func NewEngine(st *store.Store, embed QueryEmbedder) *Engine {
	return &Engine{store: st, embed: embed}
}

// Search embeds the query and fans out to lexical and KNN retrieval
// concurrently, then merges by row id. Either branch failing fails the query;
// there is no silent degradation to single-mode results.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}
	// Both branches over-fetch so rows ranked well by only one signal still
	// survive the merge.
	fetch := limit * 2
	if fetch < 50 {
		fetch = 50
	}

	var (
		textHits []store.SearchHit
		vecHits  []store.VectorHit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.store.Search(gctx, query, store.SearchOptions{
			Sources: opts.Sources,
			Types:   opts.Types,
			Since:   opts.Since,
			Limit:   fetch,
		})
		if err != nil {
			return fmt.Errorf("lexical branch: %w", err)
		}
		textHits = hits
		return nil
	})
	g.Go(func() error {
		qvec, err := e.embed.EmbedQuery(gctx, query)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		// Single-valued filters push down as partition predicates; the
		// rest are enforced after the scan.
		vopts := store.VectorOptions{Topic: opts.Topic, Limit: fetch}
		if len(opts.Sources) == 1 {
			vopts.Source = opts.Sources[0]
		}
		if len(opts.Types) == 1 {
			vopts.Type = opts.Types[0]
		}
		hits, err := e.store.SemanticSearch(gctx, qvec, vopts)
		if err != nil {
			return fmt.Errorf("semantic branch: %w", err)
		}
		vecHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The lexical branch applies every filter in SQL; the vector branch only
	// pushes down what vec0 partitions express, so the remainder is enforced
	// here. Without this, a row outside the requested sources could enter the
	// fused output through a vector-only hit.
	vecHits = filterVectorHits(vecHits, opts)

	results := Fuse(textHits, vecHits, opts.VectorWeight, opts.TextWeight)
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// filterVectorHits drops KNN hits outside the requested source/type sets and
// below the since floor. Rows without a timestamp are excluded under a since
// filter, matching the lexical branch.
func filterVectorHits(hits []store.VectorHit, opts Options) []store.VectorHit {
	if len(opts.Sources) == 0 && len(opts.Types) == 0 && opts.Since == "" {
		return hits
	}
	kept := hits[:0]
	for _, h := range hits {
		if len(opts.Sources) > 0 && !containsString(opts.Sources, h.Source) {
			continue
		}
		if len(opts.Types) > 0 && !containsString(opts.Types, h.Type) {
			continue
		}
		if opts.Since != "" && (h.Timestamp == "" || h.Timestamp < opts.Since) {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// TextScore maps a BM25 rank onto [0, 1). FTS5 ranks are negative with larger
// magnitude meaning a better match, so more negative ranks score higher.
func TextScore(rank float64) float64 {
	return 1 - 1/(1+math.Abs(rank))
}

// VectorScore maps cosine distance onto [0, 1]: distance 0 scores 1,
// distance 2 (opposite direction) scores 0.
func VectorScore(distance float64) float64 {
	s := 1 - distance/2
	if s < 0 {
		return 0
	}
	return s
}

// Fuse merges the two result sets by row id with a weighted score sum. It is
// a pure function of its inputs: same hits and weights, same order. Rows in
// both sets keep the lexical content, which carries the match snippet.
func Fuse(textHits []store.SearchHit, vecHits []store.VectorHit, vectorWeight, textWeight float64) []Result {
	if vectorWeight == 0 && textWeight == 0 {
		vectorWeight, textWeight = DefaultVectorWeight, DefaultTextWeight
	}

	merged := make(map[int64]*Result)
	var order []int64
	for _, h := range textHits {
		r := &Result{StoredEntry: h.StoredEntry, TextScore: TextScore(h.Rank)}
		merged[h.RowID] = r
		order = append(order, h.RowID)
	}
	for _, h := range vecHits {
		if r, ok := merged[h.RowID]; ok {
			r.VectorScore = VectorScore(h.Distance)
			continue
		}
		r := &Result{StoredEntry: h.StoredEntry, VectorScore: VectorScore(h.Distance)}
		merged[h.RowID] = r
		order = append(order, h.RowID)
	}

	results := make([]Result, 0, len(order))
	for _, id := range order {
		r := merged[id]
		r.Score = vectorWeight*r.VectorScore + textWeight*r.TextScore
		results = append(results, *r)
	}

	// Stable sort with row id tiebreak keeps the ranking deterministic.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].RowID < results[j].RowID
	})
	return results
}
