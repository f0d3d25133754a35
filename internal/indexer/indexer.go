package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josephgoksu/recall/internal/store"
)

const (
	// defaultResolverTimeout bounds the contradiction check. The resolver is
	// a network boundary; a hung call must never block capture.
	defaultResolverTimeout = 5 * time.Second

	// maxCandidateDistance is the cosine distance ceiling for a neighbor to
	// count as a contradiction candidate at all.
	maxCandidateDistance = 0.6

	// maxCandidates caps how many neighbors go into the resolver prompt.
	maxCandidates = 5
)

// Embedder is the slice of the embedding service the indexer uses.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// Decision records what happened to one capture event.
type Decision struct {
	ID           string  `json:"id"`
	Action       Action  `json:"action"`
	Source       string  `json:"source"`
	Topic        string  `json:"topic"`
	RowIDs       []int64 `json:"row_ids,omitempty"`
	DeletedRowID int64   `json:"deleted_row_id,omitempty"`
	// ResolverErr is set when the contradiction check failed and the event
	// was indexed anyway.
	ResolverErr string `json:"resolver_err,omitempty"`
	// Err is set when the event itself could not be indexed.
	Err string `json:"err,omitempty"`
	// Reason carries the resolver's reasoning for NOOP and DELETE_ADD.
	Reason string `json:"reason,omitempty"`
}

// Options configures an Indexer.
type Options struct {
	// Resolver may be nil, which disables the contradiction check entirely;
	// every checkable event is then a plain ADD.
	Resolver        Resolver
	ResolverTimeout time.Duration
}

// Indexer commits capture events to the store.
type Indexer struct {
	store           *store.Store
	embed           Embedder
	resolver        Resolver
	resolverTimeout time.Duration
}

func New(st *store.Store, embed Embedder, opts Options) *Indexer {
	timeout := opts.ResolverTimeout
	if timeout <= 0 {
		timeout = defaultResolverTimeout
	}
	return &Indexer{store: st, embed: embed, resolver: opts.Resolver, resolverTimeout: timeout}
}

// IndexAndEmbed processes a batch in input order. Each event's record and
// vectors land in one transaction, so one event failing leaves the others
// intact; the failure is recorded on that event's decision instead of
// aborting the batch.
func (ix *Indexer) IndexAndEmbed(ctx context.Context, events []Event) ([]Decision, error) {
	if ix.store == nil {
		return nil, fmt.Errorf("indexer has no store")
	}

	sess := store.NewDedupSession()
	decisions := make([]Decision, 0, len(events))
	for _, ev := range events {
		decisions = append(decisions, ix.indexOne(ctx, ev, sess))
	}
	return decisions, nil
}

func (ix *Indexer) indexOne(ctx context.Context, ev Event, sess *store.DedupSession) Decision {
	entry := ev.Entry()
	d := Decision{
		ID:     uuid.NewString(),
		Action: ActionAdd,
		Source: entry.Source,
		Topic:  entry.Topic,
	}

	if ix.resolver != nil && store.IsPurgeable(entry.Source) {
		res := ix.checkContradiction(ctx, entry)
		if res.err != nil {
			// Fail open: a broken resolver never blocks capture.
			d.ResolverErr = res.err.Error()
			slog.Warn("contradiction check failed, indexing anyway",
				"source", entry.Source, "topic", entry.Topic, "error", res.err)
		} else if res.resolution != nil {
			d.Action = res.resolution.Action
			d.Reason = res.resolution.Reasoning
			switch res.resolution.Action {
			case ActionNoop:
				return d
			case ActionDeleteAdd:
				deleted := res.resolution.SupersededRowID
				if _, err := ix.store.DeleteEntries(ctx, []int64{deleted}, ""); err != nil {
					d.Err = fmt.Sprintf("delete superseded row %d: %v", deleted, err)
					return d
				}
				d.DeletedRowID = deleted
			}
		}
	}

	chunks := store.SplitContent(entry.Content)
	vecs, err := ix.embed.EmbedDocuments(ctx, chunks)
	if err != nil {
		d.Err = fmt.Sprintf("embed content: %v", err)
		return d
	}

	ids, err := ix.store.InsertEmbedded(ctx, entry, vecs, sess)
	if err != nil {
		d.Err = fmt.Sprintf("insert: %v", err)
		return d
	}
	d.RowIDs = ids
	return d
}

type checkResult struct {
	resolution *Resolution
	err        error
}

// checkContradiction finds semantic neighbors in the event's own partition
// and, when any are close enough, asks the resolver for a verdict.
func (ix *Indexer) checkContradiction(ctx context.Context, entry store.Entry) checkResult {
	qvec, err := ix.embed.EmbedQuery(ctx, entry.Content)
	if err != nil {
		return checkResult{err: fmt.Errorf("embed for neighbor search: %w", err)}
	}

	hits, err := ix.store.SemanticSearch(ctx, qvec, store.VectorOptions{
		Source: entry.Source,
		Topic:  entry.Topic,
		Limit:  maxCandidates,
	})
	if err != nil {
		return checkResult{err: fmt.Errorf("neighbor search: %w", err)}
	}

	var candidates []store.VectorHit
	for _, h := range hits {
		if h.Distance <= maxCandidateDistance {
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return checkResult{resolution: &Resolution{Action: ActionAdd}}
	}

	rctx, cancel := context.WithTimeout(ctx, ix.resolverTimeout)
	defer cancel()
	res, err := ix.resolver.Resolve(rctx, entry.Content, candidates)
	if err != nil {
		return checkResult{err: err}
	}
	return checkResult{resolution: res}
}
