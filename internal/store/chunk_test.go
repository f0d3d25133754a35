package store

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitContentUnderThreshold(t *testing.T) {
	content := strings.Repeat("a", 2500)
	chunks := SplitContent(content)
	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0])
}

func TestSplitContentOverThreshold(t *testing.T) {
	content := strings.Repeat("b", 3000)
	chunks := SplitContent(content)
	require.GreaterOrEqual(t, len(chunks), 2)

	for i, c := range chunks {
		assert.LessOrEqual(t, len(c), 2500, "chunk %d too long", i)
	}

	// Consecutive chunks share a 200-character overlap.
	for i := 0; i < len(chunks)-1; i++ {
		tail := chunks[i][len(chunks[i])-200:]
		head := chunks[i+1][:200]
		assert.Equal(t, tail, head, "chunks %d and %d do not overlap", i, i+1)
	}
}

func TestSplitContentCoversEverything(t *testing.T) {
	// Reassembling chunks minus the overlap must give back the original.
	content := strings.Repeat("x", 6000)
	chunks := SplitContent(content)

	rebuilt := chunks[0]
	for _, c := range chunks[1:] {
		rebuilt += c[200:]
	}
	assert.Equal(t, content, rebuilt)
}

func TestSplitContentPrefersSentenceBoundary(t *testing.T) {
	sentence := "This is a complete sentence that ends properly. "
	content := strings.Repeat(sentence, 70) // ~3400 chars
	chunks := SplitContent(content)
	require.GreaterOrEqual(t, len(chunks), 2)

	// The first cut should land just after a sentence ender, not mid-word.
	first := chunks[0]
	assert.True(t, strings.HasSuffix(first, ". "), "chunk ends with %q", first[len(first)-10:])
}

func TestSplitContentEmpty(t *testing.T) {
	chunks := SplitContent("")
	require.Len(t, chunks, 1)
	assert.Equal(t, "", chunks[0])
}
