/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/recall/internal/store"
)

var (
	addSource string
	addTitle  string
	addTopic  string
	addType   string
	addEmbed  bool
)

// addCmd represents the add command
var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Insert one entry into the index",
	Long: `Insert text directly, bypassing the capture log. Long content is
chunked automatically. With --embed the entry is vectorized immediately;
without it, vectors are backfilled by the next 'recall index' run.

Examples:
  recall add --topic recall "Always verify store path before opening"
  recall add --source notes --title "Deploy checklist" "$(cat checklist.md)"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)

	addCmd.Flags().StringVar(&addSource, "source", "notes", "source bucket")
	addCmd.Flags().StringVar(&addTitle, "title", "", "entry title (default: first line)")
	addCmd.Flags().StringVar(&addTopic, "topic", "", "grouping topic")
	addCmd.Flags().StringVar(&addType, "type", "note", "sub-classification")
	addCmd.Flags().BoolVar(&addEmbed, "embed", true, "embed the entry immediately")
}

func runAdd(cmd *cobra.Command, args []string) error {
	content := strings.TrimSpace(strings.Join(args, " "))
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	title := addTitle
	if title == "" {
		title = content
		if i := strings.IndexByte(title, '\n'); i >= 0 {
			title = title[:i]
		}
		if len(title) > 80 {
			title = title[:80] + "..."
		}
	}

	entry := store.Entry{
		Source:    addSource,
		Title:     title,
		Content:   content,
		Topic:     addTopic,
		Type:      addType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	ctx := cmd.Context()
	var ids []int64
	if addEmbed {
		svc, err := newEmbeddingService(st)
		if err != nil {
			return err
		}
		vecs, err := svc.EmbedDocuments(ctx, store.SplitContent(content))
		if err != nil {
			return err
		}
		ids, err = st.InsertEmbedded(ctx, entry, vecs, nil)
		if err != nil {
			return err
		}
	} else {
		ids, err = st.InsertEntry(ctx, entry, nil)
		if err != nil {
			return err
		}
	}

	if len(ids) == 0 {
		fmt.Println("Already indexed, nothing added")
		return nil
	}
	fmt.Printf("Added %d entr%s to %s\n", len(ids), pluralY(len(ids)), addSource)
	return nil
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
