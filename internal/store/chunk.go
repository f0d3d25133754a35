package store

import "strings"

const (
	// maxChunkChars is the longest content stored as a single entry row.
	maxChunkChars = 2500

	// chunkOverlap is how much of a chunk's tail is repeated at the head of
	// the next chunk, so sentences spanning a split stay retrievable.
	chunkOverlap = 200

	// boundaryWindow is how far back from a hard split point we look for a
	// sentence boundary before giving up and cutting mid-sentence.
	boundaryWindow = 400
)

var sentenceEnders = []string{". ", ".\n", "! ", "!\n", "? ", "?\n", "\n\n"}

// SplitContent splits content into overlapping chunks of at most 2,500
// characters, preferring sentence boundaries near the split point. Content at
// or under the threshold comes back as a single chunk.
func SplitContent(content string) []string {
	if len(content) <= maxChunkChars {
		return []string{content}
	}

	var chunks []string
	start := 0
	for start < len(content) {
		end := start + maxChunkChars
		if end >= len(content) {
			chunks = append(chunks, content[start:])
			break
		}

		if b := sentenceBoundary(content[start:end]); b > 0 {
			end = start + b
		}
		chunks = append(chunks, content[start:end])

		next := end - chunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// sentenceBoundary returns the index just past the last sentence ender within
// the trailing boundaryWindow of chunk, or 0 if none is close enough.
func sentenceBoundary(chunk string) int {
	floor := len(chunk) - boundaryWindow
	if floor < 0 {
		floor = 0
	}
	best := 0
	for _, ender := range sentenceEnders {
		if i := strings.LastIndex(chunk, ender); i >= floor {
			if cut := i + len(ender); cut > best {
				best = cut
			}
		}
	}
	return best
}
