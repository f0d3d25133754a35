package indexer

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/recall/internal/store"
)

const testDim = 4

func TestMain(m *testing.M) {
	if err := store.InitializeRuntime(); err != nil {
		panic("runtime init: " + err.Error())
	}
	os.Exit(m.Run())
}

// fakeEmbedder maps every text to the same unit vector, which makes any two
// contents semantic neighbors at distance 0.
type fakeEmbedder struct{}

func (fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0, 0}, nil
}

func (fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0, 0}
	}
	return out, nil
}

type fakeResolver struct {
	resolution *Resolution
	err        error
	called     bool
	neighbors  []store.VectorHit
}

func (r *fakeResolver) Resolve(_ context.Context, _ string, neighbors []store.VectorHit) (*Resolution, error) {
	r.called = true
	r.neighbors = neighbors
	return r.resolution, r.err
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Create(":memory:", store.Options{Dimension: testDim})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedCapture(t *testing.T, st *store.Store, topic, content string) int64 {
	t.Helper()
	ids, err := st.InsertEmbedded(context.Background(), store.Entry{
		Source: "captures", Topic: topic, Type: "gotcha", Content: content,
	}, [][]float32{{1, 0, 0, 0}}, nil)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}

func entryCount(t *testing.T, st *store.Store) int {
	t.Helper()
	stats, err := st.GetStats()
	require.NoError(t, err)
	return stats.Entries
}

func TestNoopSkipsIndexing(t *testing.T) {
	st := newTestStore(t)
	seedCapture(t, st, "sable", "Always verify store path")

	resolver := &fakeResolver{resolution: &Resolution{Action: ActionNoop, Reasoning: "duplicate"}}
	ix := New(st, fakeEmbedder{}, Options{Resolver: resolver})

	decisions, err := ix.IndexAndEmbed(context.Background(), []Event{
		KnowledgeEvent{Topic: "sable", Subtype: "gotcha", Content: "Always verify the store path"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	assert.True(t, resolver.called)
	assert.Equal(t, ActionNoop, decisions[0].Action)
	assert.Empty(t, decisions[0].RowIDs)
	assert.Equal(t, 1, entryCount(t, st), "duplicate must add no rows")
}

func TestDeleteAddSupersedes(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	old := seedCapture(t, st, "sable", "The store lives at /tmp/old.db")

	resolver := &fakeResolver{}
	ix := New(st, fakeEmbedder{}, Options{Resolver: resolver})
	// The resolver names the row it saw as a candidate.
	resolver.resolution = &Resolution{Action: ActionDeleteAdd, SupersededRowID: old}

	decisions, err := ix.IndexAndEmbed(ctx, []Event{
		KnowledgeEvent{Topic: "sable", Subtype: "gotcha", Content: "The store moved to ~/.recall/index.db"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, ActionDeleteAdd, d.Action)
	assert.Equal(t, old, d.DeletedRowID)
	require.Len(t, d.RowIDs, 1)

	// The old row is gone from both tables, the new one is present in both.
	_, err = st.GetEntry(ctx, old)
	require.Error(t, err)
	hits, err := st.SemanticSearch(ctx, []float32{1, 0, 0, 0}, store.VectorOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, d.RowIDs[0], hits[0].RowID)
	assert.Equal(t, 1, entryCount(t, st))
}

func TestResolverFailureFailsOpen(t *testing.T) {
	st := newTestStore(t)
	seedCapture(t, st, "sable", "existing fact")

	resolver := &fakeResolver{err: errors.New("context deadline exceeded")}
	ix := New(st, fakeEmbedder{}, Options{Resolver: resolver})

	decisions, err := ix.IndexAndEmbed(context.Background(), []Event{
		KnowledgeEvent{Topic: "sable", Subtype: "gotcha", Content: "a new fact the resolver never saw"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, ActionAdd, d.Action)
	assert.NotEmpty(t, d.ResolverErr, "fail-open must record the reason")
	assert.Empty(t, d.Err)
	require.Len(t, d.RowIDs, 1, "event must still be indexed")
	assert.Equal(t, 2, entryCount(t, st))
}

func TestStructuralSourcesSkipContradictionCheck(t *testing.T) {
	st := newTestStore(t)

	resolver := &fakeResolver{resolution: &Resolution{Action: ActionNoop}}
	ix := New(st, fakeEmbedder{}, Options{Resolver: resolver})

	decisions, err := ix.IndexAndEmbed(context.Background(), []Event{
		TaskEvent{Topic: "sable", Name: "fix store path", Problem: "wrong path", Solution: "use config"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	assert.False(t, resolver.called, "tasks are append-only, no contradiction check")
	assert.Equal(t, ActionAdd, decisions[0].Action)
	assert.Equal(t, 1, entryCount(t, st))
}

func TestEndToEndKnowledgeCapture(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	resolver := &fakeResolver{resolution: &Resolution{Action: ActionNoop}}
	ix := New(st, fakeEmbedder{}, Options{Resolver: resolver})

	decisions, err := ix.IndexAndEmbed(ctx, []Event{
		KnowledgeEvent{Topic: "sable", Subtype: "gotcha", Content: "Always verify store path"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	// Empty store: no candidates, so the resolver is never consulted.
	assert.False(t, resolver.called)
	d := decisions[0]
	assert.Equal(t, ActionAdd, d.Action)
	assert.Equal(t, "captures", d.Source)
	assert.Equal(t, "sable", d.Topic)
	require.Len(t, d.RowIDs, 1)

	e, err := st.GetEntry(ctx, d.RowIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "captures", e.Source)
	assert.Equal(t, "sable", e.Topic)
	assert.Equal(t, "gotcha", e.Type)

	// The vector row carries the same partition columns.
	hits, err := st.SemanticSearch(ctx, []float32{1, 0, 0, 0}, store.VectorOptions{
		Source: "captures", Topic: "sable", Type: "gotcha", Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, d.RowIDs[0], hits[0].RowID)
}

func TestBatchIsolation(t *testing.T) {
	st := newTestStore(t)

	ix := New(st, fakeEmbedder{}, Options{})
	decisions, err := ix.IndexAndEmbed(context.Background(), []Event{
		NoteEvent{Topic: "a", Content: "first note"},
		NoteEvent{Topic: "b", Content: ""}, // invalid: empty content
		NoteEvent{Topic: "c", Content: "third note"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 3)

	assert.Empty(t, decisions[0].Err)
	assert.NotEmpty(t, decisions[1].Err, "invalid event must fail on its own")
	assert.Empty(t, decisions[2].Err, "a failed event must not poison the rest of the batch")
	assert.Equal(t, 2, entryCount(t, st))
}

func TestNoResolverMeansPlainAdd(t *testing.T) {
	st := newTestStore(t)
	seedCapture(t, st, "sable", "existing")

	ix := New(st, fakeEmbedder{}, Options{})
	decisions, err := ix.IndexAndEmbed(context.Background(), []Event{
		KnowledgeEvent{Topic: "sable", Subtype: "gotcha", Content: "new fact"},
	})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, ActionAdd, decisions[0].Action)
	assert.Equal(t, 2, entryCount(t, st))
}
