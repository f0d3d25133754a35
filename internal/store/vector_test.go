package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertEmbedded(t *testing.T, st *Store, e Entry, vec []float32) int64 {
	t.Helper()
	ids, err := st.InsertEmbedded(context.Background(), e, [][]float32{vec}, nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3.75, 0}
	decoded, err := DecodeVector(EncodeVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)
}

func TestDecodeVectorBadLength(t *testing.T) {
	_, err := DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestSemanticSearchOrdersByDistance(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	near := insertEmbedded(t, st, Entry{Source: "notes", Content: "near"}, []float32{1, 0, 0, 0})
	far := insertEmbedded(t, st, Entry{Source: "notes", Content: "far"}, []float32{0, 1, 0, 0})

	hits, err := st.SemanticSearch(ctx, []float32{1, 0.1, 0, 0}, VectorOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, near, hits[0].RowID)
	assert.Equal(t, far, hits[1].RowID)
	assert.Less(t, hits[0].Distance, hits[1].Distance)
}

func TestSemanticSearchPartitionFilter(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	vec := []float32{1, 0, 0, 0}
	insertEmbedded(t, st, Entry{Source: "captures", Topic: "alpha", Content: "alpha capture"}, vec)
	insertEmbedded(t, st, Entry{Source: "captures", Topic: "beta", Content: "beta capture"}, vec)
	insertEmbedded(t, st, Entry{Source: "commits", Topic: "alpha", Content: "alpha commit"}, vec)

	hits, err := st.SemanticSearch(ctx, vec, VectorOptions{Source: "captures", Topic: "alpha", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "alpha capture", hits[0].Content)

	hits, err = st.SemanticSearch(ctx, vec, VectorOptions{Source: "commits", Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "commits", hits[0].Source)
}

func TestSemanticSearchDimensionMismatch(t *testing.T) {
	st := newTestStore(t)
	_, err := st.SemanticSearch(context.Background(), []float32{1, 0}, VectorOptions{Limit: 5})
	require.Error(t, err)
}

func TestInsertEmbeddedVectorCountMismatch(t *testing.T) {
	st := newTestStore(t)
	_, err := st.InsertEmbedded(context.Background(),
		Entry{Source: "notes", Content: "short"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, nil)
	require.Error(t, err)
}

func TestPurgeRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id := insertEmbedded(t, st, Entry{
		Source: "captures", Topic: "secrets", Content: "the password is hunter2",
	}, []float32{1, 0, 0, 0})
	keep := insertEmbedded(t, st, Entry{
		Source: "captures", Topic: "other", Content: "unrelated fact",
	}, []float32{0, 1, 0, 0})

	matches, err := st.FindPurgeMatches(ctx, "hunter2", PurgeOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, id, matches[0].RowID)

	deleted, err := st.DeleteEntries(ctx, []int64{id}, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	// Gone from both tables.
	_, err = st.GetEntry(ctx, id)
	require.Error(t, err)
	hits, err := st.SemanticSearch(ctx, []float32{1, 0, 0, 0}, VectorOptions{Limit: 10})
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, id, h.RowID)
	}

	// Gone from lexical search too, via the FTS delete trigger.
	lhits, err := st.Search(ctx, "hunter2", SearchOptions{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, lhits)

	// The unrelated row survives.
	_, err = st.GetEntry(ctx, keep)
	require.NoError(t, err)
}

func TestPurgeOnlyMutableSources(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertEntry(ctx, Entry{
		Source: "commits", Content: "secret-token appears in commit history",
	}, nil)
	require.NoError(t, err)

	matches, err := st.FindPurgeMatches(ctx, "secret-token", PurgeOptions{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPurgeSourceRestriction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertEntry(ctx, Entry{Source: "captures", Content: "stale-fact captured"}, nil)
	require.NoError(t, err)
	_, err = st.InsertEntry(ctx, Entry{Source: "notes", Content: "stale-fact noted"}, nil)
	require.NoError(t, err)
	_, err = st.InsertEntry(ctx, Entry{Source: "commits", Content: "stale-fact committed"}, nil)
	require.NoError(t, err)

	matches, err := st.FindPurgeMatches(ctx, "stale-fact", PurgeOptions{Sources: []string{"notes"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "notes", matches[0].Source)

	// Naming a structural source cannot widen the search past the purgeable set.
	matches, err = st.FindPurgeMatches(ctx, "stale-fact", PurgeOptions{Sources: []string{"commits"}})
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = st.FindPurgeMatches(ctx, "stale-fact", PurgeOptions{Sources: []string{"commits", "captures"}})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "captures", matches[0].Source)
}

func TestPurgeEscapesLikeWildcards(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.InsertEntry(ctx, Entry{Source: "notes", Content: "literal 100% match"}, nil)
	require.NoError(t, err)
	_, err = st.InsertEntry(ctx, Entry{Source: "notes", Content: "100 bare number"}, nil)
	require.NoError(t, err)

	matches, err := st.FindPurgeMatches(ctx, "100%", PurgeOptions{})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, matches[0].Content, "literal")
}

func TestEmbeddingCache(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	vec, err := st.GetCachedVector(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Nil(t, vec)

	want := []float32{0.5, 0.25, -1, 2}
	require.NoError(t, st.PutCachedVector(ctx, "deadbeef", "nomic-embed-text", want))

	vec, err = st.GetCachedVector(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, want, vec)

	// Overwrite under the same hash replaces the vector.
	next := []float32{1, 1, 1, 1}
	require.NoError(t, st.PutCachedVector(ctx, "deadbeef", "other-model", next))
	vec, err = st.GetCachedVector(ctx, "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, next, vec)
}

func TestMissingVectors(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	withVec := insertEmbedded(t, st, Entry{Source: "notes", Content: "has vector"}, []float32{1, 0, 0, 0})
	ids, err := st.InsertEntry(ctx, Entry{Source: "notes", Content: "no vector yet"}, nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)

	missing, err := st.MissingVectors(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[0]}, missing)
	assert.NotContains(t, missing, withVec)

	require.NoError(t, st.InsertVector(ctx, ids[0], 0, []float32{0, 0, 1, 0}))
	missing, err = st.MissingVectors(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, missing)
}
