package indexer

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/josephgoksu/recall/internal/store"
)

// Action is the contradiction verdict for one capture against one neighbor.
type Action string

const (
	// ActionNoop means the capture duplicates the neighbor and is discarded.
	ActionNoop Action = "NOOP"
	// ActionAdd means the capture coexists with its neighbors and is indexed.
	ActionAdd Action = "ADD"
	// ActionDeleteAdd means the capture supersedes the neighbor: delete the
	// neighbor's record and vectors, then index the capture.
	ActionDeleteAdd Action = "DELETE_ADD"
)

// Resolution is the resolver's answer for one capture.
type Resolution struct {
	Action Action `json:"action"`
	// SupersededRowID is set only for DELETE_ADD.
	SupersededRowID int64  `json:"superseded_row_id,omitempty"`
	Reasoning       string `json:"reasoning,omitempty"`
}

// Resolver classifies a new capture against its semantic neighbors.
type Resolver interface {
	Resolve(ctx context.Context, capture string, neighbors []store.VectorHit) (*Resolution, error)
}

// maxResolverResponseBytes caps the model response before parsing (5 KB).
const maxResolverResponseBytes = 5 * 1024

// resolverPrompt asks the model for a JSON verdict. Nonce delimiters keep
// stored content from injecting instructions into the prompt.
// %s placeholders: (1) nonce, (2) neighbors, (3) nonce, (4) nonce,
// (5) capture, (6) nonce.
const resolverPrompt = `You are a knowledge index conflict resolver. Given EXISTING entries and a NEW capture on the same topic, decide the correct action.

===EXISTING_%s===
%s
===END_EXISTING_%s===

===NEW_%s===
%s
===END_NEW_%s===

Decide one action:
- NOOP: The new capture states the same fact as an existing entry. Discard it.
- DELETE_ADD: The new capture supersedes or contradicts one existing entry. Set "superseded_row_id" to that entry's id.
- ADD: The new capture is distinct and should coexist with all existing entries.

Output JSON only: {"action": "...", "superseded_row_id": 0, "reasoning": "..."}`

// LLMResolver implements Resolver on an Eino chat model.
type LLMResolver struct {
	model model.BaseChatModel
}

func NewLLMResolver(m model.BaseChatModel) *LLMResolver {
	return &LLMResolver{model: m}
}

// Resolve renders the neighbors and capture into the verdict prompt and
// parses the model's JSON answer. Any failure here is the caller's cue to
// fail open.
func (r *LLMResolver) Resolve(ctx context.Context, capture string, neighbors []store.VectorHit) (*Resolution, error) {
	nonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	var existing strings.Builder
	for _, n := range neighbors {
		fmt.Fprintf(&existing, "[id=%d] %s\n", n.RowID, sanitizeDelimiters(n.Content))
	}

	prompt := fmt.Sprintf(resolverPrompt,
		nonce, existing.String(), nonce,
		nonce, sanitizeDelimiters(capture), nonce)

	resp, err := r.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("resolver generate: %w", err)
	}

	raw := resp.Content
	if len(raw) > maxResolverResponseBytes {
		return nil, fmt.Errorf("resolver response too large: %d bytes", len(raw))
	}
	text := stripCodeFences(strings.TrimSpace(raw))
	if text == "" {
		return nil, fmt.Errorf("empty resolver response")
	}

	var res Resolution
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("parse resolver response: %w (raw: %q)", err, truncate(text, 200))
	}

	switch res.Action {
	case ActionNoop, ActionAdd:
	case ActionDeleteAdd:
		if res.SupersededRowID == 0 {
			return nil, fmt.Errorf("DELETE_ADD verdict without superseded_row_id")
		}
		if !knownRowID(neighbors, res.SupersededRowID) {
			return nil, fmt.Errorf("DELETE_ADD names row %d, not among the candidates", res.SupersededRowID)
		}
	default:
		return nil, fmt.Errorf("invalid resolver action: %q", res.Action)
	}
	return &res, nil
}

func knownRowID(neighbors []store.VectorHit, id int64) bool {
	for _, n := range neighbors {
		if n.RowID == id {
			return true
		}
	}
	return false
}

func generateNonce() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// sanitizeDelimiters strips anything resembling our section markers from
// content that goes into the prompt.
func sanitizeDelimiters(s string) string {
	return strings.ReplaceAll(s, "===", "")
}

func stripCodeFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
