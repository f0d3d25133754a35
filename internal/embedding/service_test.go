package embedding

import (
	"context"
	"strings"
	"testing"

	einoembed "github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/recall/internal/llm"
)

type fakeEmbedder struct {
	dim   int
	calls [][]string
}

func (f *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, _ ...einoembed.Option) ([][]float64, error) {
	f.calls = append(f.calls, texts)
	out := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, f.dim)
		v[0] = float64(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

type fakeCache struct {
	vectors map[string][]float32
}

func newFakeCache() *fakeCache {
	return &fakeCache{vectors: make(map[string][]float32)}
}

func (c *fakeCache) GetCachedVector(_ context.Context, hash string) ([]float32, error) {
	return c.vectors[hash], nil
}

func (c *fakeCache) PutCachedVector(_ context.Context, hash, _ string, vec []float32) error {
	c.vectors[hash] = vec
	return nil
}

func llmConfigForTest() llm.Config {
	return llm.Config{Provider: llm.ProviderOllama, EmbeddingModel: "test-model"}
}

func withFakeEmbedder(t *testing.T, dim int) *fakeEmbedder {
	t.Helper()
	fake := &fakeEmbedder{dim: dim}
	orig := embeddingModelFactory
	embeddingModelFactory = func(context.Context, llm.Config) (einoembed.Embedder, error) {
		return fake, nil
	}
	t.Cleanup(func() { embeddingModelFactory = orig })
	return fake
}

func TestEmbedQueryAppliesPrefix(t *testing.T) {
	fake := withFakeEmbedder(t, 4)
	svc := NewService(llm.Config{}, 4, nil)

	vec, err := svc.EmbedQuery(context.Background(), "how are vectors stored")
	require.NoError(t, err)
	assert.Len(t, vec, 4)

	require.Len(t, fake.calls, 1)
	assert.True(t, strings.HasPrefix(fake.calls[0][0], "search_query: "))
}

func TestEmbedDocumentAppliesPrefix(t *testing.T) {
	fake := withFakeEmbedder(t, 4)
	svc := NewService(llm.Config{}, 4, nil)

	_, err := svc.EmbedDocument(context.Background(), "stored fact")
	require.NoError(t, err)

	require.Len(t, fake.calls, 1)
	assert.Equal(t, "search_document: stored fact", fake.calls[0][0])
}

func TestDimensionMismatch(t *testing.T) {
	withFakeEmbedder(t, 8)
	svc := NewService(llm.Config{}, 4, nil)

	_, err := svc.EmbedQuery(context.Background(), "anything")
	require.Error(t, err)

	var dimErr *DimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Want)
	assert.Equal(t, 8, dimErr.Got)
}

func TestEmbedDocumentsUsesCache(t *testing.T) {
	fake := withFakeEmbedder(t, 4)
	cache := newFakeCache()
	svc := NewService(llm.Config{EmbeddingModel: "test-model"}, 4, cache)
	ctx := context.Background()

	first, err := svc.EmbedDocuments(ctx, []string{"fact one", "fact two"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Len(t, fake.calls, 1)
	assert.Len(t, fake.calls[0], 2)

	// Second run: both vectors come from the cache, the model sees nothing.
	second, err := svc.EmbedDocuments(ctx, []string{"fact one", "fact two"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, fake.calls, 1)

	// A mixed batch only sends the miss to the model.
	third, err := svc.EmbedDocuments(ctx, []string{"fact one", "fact three"})
	require.NoError(t, err)
	require.Len(t, third, 2)
	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"search_document: fact three"}, fake.calls[1])
}

func TestDocumentHashIsOverRawText(t *testing.T) {
	// The cache key covers the chunk text itself, not the prefixed form.
	assert.Equal(t, DocumentHash("abc"), DocumentHash("abc"))
	assert.NotEqual(t, DocumentHash("abc"), DocumentHash(documentPrefix+"abc"))
}

func TestEmbedQueryNotCached(t *testing.T) {
	fake := withFakeEmbedder(t, 4)
	cache := newFakeCache()
	svc := NewService(llm.Config{}, 4, cache)
	ctx := context.Background()

	_, err := svc.EmbedQuery(ctx, "repeated query")
	require.NoError(t, err)
	_, err = svc.EmbedQuery(ctx, "repeated query")
	require.NoError(t, err)

	assert.Len(t, fake.calls, 2)
	assert.Empty(t, cache.vectors)
}
