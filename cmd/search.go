/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/recall/internal/search"
	"github.com/josephgoksu/recall/internal/store"
)

var (
	searchMode    string
	searchSources []string
	searchTypes   []string
	searchTopic   string
	searchSince   string
	searchLimit   int
	searchJSON    bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Query the index",
	Long: `Query the index by keyword relevance, semantic similarity, or a
weighted fusion of both (the default).

Examples:
  recall search "store path gotcha"
  recall search --mode text --source commits "race condition"
  recall search --mode vector --topic recall "how are vectors serialized"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVar(&searchMode, "mode", "hybrid", "hybrid, text, or vector")
	searchCmd.Flags().StringSliceVar(&searchSources, "source", nil, "restrict to source buckets")
	searchCmd.Flags().StringSliceVar(&searchTypes, "type", nil, "restrict to types")
	searchCmd.Flags().StringVar(&searchTopic, "topic", "", "restrict to a topic (vector and hybrid modes)")
	searchCmd.Flags().StringVar(&searchSince, "since", "", "only entries at or after this ISO-8601 timestamp")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "max results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "emit results as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	limit := searchLimit
	if limit <= 0 {
		limit = cfg.Search.DefaultLimit
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()
	switch searchMode {
	case "text":
		hits, err := st.Search(ctx, query, store.SearchOptions{
			Sources: searchSources,
			Types:   searchTypes,
			Since:   searchSince,
			Limit:   limit,
		})
		if err != nil {
			return err
		}
		return printHits(hits, func(h store.SearchHit) (store.StoredEntry, string) {
			return h.StoredEntry, fmt.Sprintf("rank %.3f", h.Rank)
		})

	case "vector":
		svc, err := newEmbeddingService(st)
		if err != nil {
			return err
		}
		qvec, err := svc.EmbedQuery(ctx, query)
		if err != nil {
			return err
		}
		vopts := store.VectorOptions{Topic: searchTopic, Limit: limit}
		if len(searchSources) == 1 {
			vopts.Source = searchSources[0]
		}
		if len(searchTypes) == 1 {
			vopts.Type = searchTypes[0]
		}
		hits, err := st.SemanticSearch(ctx, qvec, vopts)
		if err != nil {
			return err
		}
		// Multi-valued filters exceed what one partition predicate can
		// express, so they are enforced on the results.
		hits = narrowVectorHits(hits, searchSources, searchTypes)
		return printHits(hits, func(h store.VectorHit) (store.StoredEntry, string) {
			return h.StoredEntry, fmt.Sprintf("distance %.3f", h.Distance)
		})

	case "hybrid":
		svc, err := newEmbeddingService(st)
		if err != nil {
			return err
		}
		engine := search.NewEngine(st, svc)
		results, err := engine.Search(ctx, query, search.Options{
			Sources:      searchSources,
			Types:        searchTypes,
			Topic:        searchTopic,
			Since:        searchSince,
			Limit:        limit,
			VectorWeight: cfg.Search.VectorWeight,
			TextWeight:   cfg.Search.TextWeight,
		})
		if err != nil {
			return err
		}
		return printHits(results, func(r search.Result) (store.StoredEntry, string) {
			return r.StoredEntry, fmt.Sprintf("score %.3f", r.Score)
		})

	default:
		return fmt.Errorf("unknown mode %q (hybrid, text, or vector)", searchMode)
	}
}

func printHits[T any](hits []T, fields func(T) (store.StoredEntry, string)) error {
	if searchJSON {
		return json.NewEncoder(os.Stdout).Encode(hits)
	}
	if len(hits) == 0 {
		fmt.Println("No results")
		return nil
	}
	for _, h := range hits {
		e, score := fields(h)
		header := fmt.Sprintf("[%d] %s", e.RowID, e.Source)
		if e.Topic != "" {
			header += "/" + e.Topic
		}
		fmt.Printf("%s  %s  (%s)\n", header, e.Title, score)
		fmt.Printf("    %s\n", oneLine(e.Content, 160))
	}
	return nil
}

func narrowVectorHits(hits []store.VectorHit, sources, types []string) []store.VectorHit {
	if len(sources) == 0 && len(types) == 0 {
		return hits
	}
	inSet := func(set []string, v string) bool {
		for _, s := range set {
			if s == v {
				return true
			}
		}
		return false
	}
	kept := hits[:0]
	for _, h := range hits {
		if len(sources) > 0 && !inSet(sources, h.Source) {
			continue
		}
		if len(types) > 0 && !inSet(types, h.Type) {
			continue
		}
		kept = append(kept, h)
	}
	return kept
}

func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
