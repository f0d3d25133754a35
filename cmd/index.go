/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/recall/internal/embedding"
	"github.com/josephgoksu/recall/internal/indexer"
	"github.com/josephgoksu/recall/internal/llm"
	"github.com/josephgoksu/recall/internal/store"
)

var indexFile string

// indexCmd represents the index command
var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index captured events",
	Long: `Read capture events (JSONL) and commit them to the index, running
the contradiction check against existing entries for mutable sources.
Reads the configured capture log by default; --file overrides it.`,
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVar(&indexFile, "file", "", "event file to index instead of the capture log")
}

func runIndex(cmd *cobra.Command, args []string) error {
	path := indexFile
	if path == "" {
		path = cfg.CaptureLogPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	events, err := indexer.DecodeEvents(data)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No events to index")
		return nil
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	svc, err := newEmbeddingService(st)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	ctx := cmd.Context()
	opts := indexer.Options{
		ResolverTimeout: time.Duration(cfg.Indexer.ResolverTimeoutSeconds) * time.Second,
	}
	if cfg.Indexer.ResolverEnabled {
		chat, err := llm.NewChatModel(ctx, cfg.ClientConfig())
		if err != nil {
			return fmt.Errorf("create resolver model: %w", err)
		}
		opts.Resolver = indexer.NewLLMResolver(chat)
	}

	decisions, err := indexer.New(st, svc, opts).IndexAndEmbed(ctx, events)
	if err != nil {
		return err
	}

	var added, skipped, superseded, failed int
	for _, d := range decisions {
		switch {
		case d.Err != "":
			failed++
			fmt.Fprintf(os.Stderr, "failed %s/%s: %s\n", d.Source, d.Topic, d.Err)
		case d.Action == indexer.ActionNoop:
			skipped++
		case d.Action == indexer.ActionDeleteAdd:
			superseded++
		default:
			added++
		}
		if d.ResolverErr != "" {
			fmt.Fprintf(os.Stderr, "resolver unavailable for %s/%s, indexed anyway: %s\n",
				d.Source, d.Topic, d.ResolverErr)
		}
	}
	fmt.Printf("Indexed %d events: %d added, %d duplicates skipped, %d superseded, %d failed\n",
		len(decisions), added, skipped, superseded, failed)

	return backfillVectors(ctx, st, svc)
}

// backfillVectors embeds entries that were inserted without vectors, such as
// 'recall add --embed=false' rows or rows left by an interrupted run.
func backfillVectors(ctx context.Context, st *store.Store, svc *embedding.Service) error {
	for {
		ids, err := st.MissingVectors(ctx, 100)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		for _, id := range ids {
			e, err := st.GetEntry(ctx, id)
			if err != nil {
				return err
			}
			vec, err := svc.EmbedDocument(ctx, e.Content)
			if err != nil {
				return fmt.Errorf("backfill row %d: %w", id, err)
			}
			if err := st.InsertVector(ctx, id, 0, vec); err != nil {
				return err
			}
		}
		fmt.Printf("Backfilled %d vectors\n", len(ids))
	}
}
