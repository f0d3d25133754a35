// Package embedding wraps an Eino embedder with the index's encoding
// conventions: task prefixes on every input, a content-addressed vector
// cache for documents, and a hard dimension check on every output.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/josephgoksu/recall/internal/llm"
)

// Asymmetric task prefixes in the nomic style. Queries and documents are
// embedded into different regions of the same space; mixing the prefixes up
// silently degrades retrieval, so they are applied here and nowhere else.
const (
	queryPrefix    = "search_query: "
	documentPrefix = "search_document: "
)

// DimensionError reports an embedder returning vectors of the wrong width.
// This is a configuration mismatch between the model and the store, never a
// transient failure.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: model returned %d, store expects %d", e.Got, e.Want)
}

// VectorCache is the slice of the store the service needs: hash-keyed
// document vectors.
type VectorCache interface {
	GetCachedVector(ctx context.Context, contentHash string) ([]float32, error)
	PutCachedVector(ctx context.Context, contentHash, model string, vec []float32) error
}

// Hook for tests to substitute a fake embedder.
var embeddingModelFactory = llm.NewEmbeddingModel

// Service embeds queries and documents at a fixed dimension. The underlying
// model client is created lazily on first use so commands that never embed
// (purge, stats) pay nothing for it.
type Service struct {
	cfg   llm.Config
	dim   int
	cache VectorCache

	mu       sync.Mutex
	embedder embedding.Embedder
	closed   bool
}

// NewService returns an unconnected service. cache may be nil, in which case
// every document embedding hits the model.
func NewService(cfg llm.Config, dim int, cache VectorCache) *Service {
	return &Service{cfg: cfg, dim: dim, cache: cache}
}

// Dimension returns the vector width this service enforces.
func (s *Service) Dimension() int {
	return s.dim
}

// client returns the lazily-created embedder. Concurrent first calls race to
// the lock; exactly one creates the client.
func (s *Service) client(ctx context.Context) (embedding.Embedder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("embedding service is closed")
	}
	if s.embedder == nil {
		e, err := embeddingModelFactory(ctx, s.cfg)
		if err != nil {
			return nil, fmt.Errorf("create embedding model: %w", err)
		}
		s.embedder = e
	}
	return s.embedder, nil
}

// WarmUp forces client creation and embeds a probe string, verifying both
// connectivity and the configured dimension before a long ingestion run
// starts.
func (s *Service) WarmUp(ctx context.Context) error {
	_, err := s.EmbedQuery(ctx, "warmup")
	return err
}

// Close releases the model handle. The service is not usable afterwards.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedder = nil
	s.closed = true
	return nil
}

func (s *Service) embed(ctx context.Context, inputs []string) ([][]float32, error) {
	embedder, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := embedder.EmbedStrings(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embed %d inputs: %w", len(inputs), err)
	}
	if len(raw) != len(inputs) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(raw), len(inputs))
	}

	vecs := make([][]float32, len(raw))
	for i, v := range raw {
		if len(v) != s.dim {
			return nil, &DimensionError{Want: s.dim, Got: len(v)}
		}
		vec := make([]float32, len(v))
		for j, f := range v {
			vec[j] = float32(f)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// EmbedQuery embeds search text with the query prefix. Queries are never
// cached; they are cheap and rarely repeat.
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.embed(ctx, []string{queryPrefix + text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocument embeds one chunk with the document prefix, consulting the
// cache first. A cache read failure falls through to the model; a cache write
// failure is logged and ignored.
func (s *Service) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedDocuments embeds chunks with the document prefix, batching only the
// cache misses into the model call.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		hashes[i] = DocumentHash(text)
		if s.cache != nil {
			vec, err := s.cache.GetCachedVector(ctx, hashes[i])
			if err != nil {
				slog.Warn("embedding cache read failed", "error", err)
			} else if vec != nil {
				if len(vec) != s.dim {
					return nil, &DimensionError{Want: s.dim, Got: len(vec)}
				}
				out[i] = vec
				continue
			}
		}
		missTexts = append(missTexts, documentPrefix+texts[i])
		missIdx = append(missIdx, i)
	}

	if len(missTexts) > 0 {
		vecs, err := s.embed(ctx, missTexts)
		if err != nil {
			return nil, err
		}
		for n, i := range missIdx {
			out[i] = vecs[n]
			if s.cache != nil {
				if err := s.cache.PutCachedVector(ctx, hashes[i], s.cfg.EmbeddingModel, vecs[n]); err != nil {
					slog.Warn("embedding cache write failed", "error", err)
				}
			}
		}
	}
	return out, nil
}

// DocumentHash is the cache key for a chunk: the hash of the raw chunk text,
// before the document prefix is applied.
func DocumentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
