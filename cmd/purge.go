/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/recall/internal/store"
)

var (
	purgeYes     bool
	purgeSources []string
)

// purgeCmd represents the purge command
var purgeCmd = &cobra.Command{
	Use:   "purge <text>",
	Short: "Remove captured knowledge matching a substring",
	Long: `Find entries containing the given text and delete them from both
the search and vector tables, after confirmation. Only mutable sources
(captures, teachings, observations, notes) can be purged; commit history
and other structural sources are untouchable.

Matching lines are also filtered out of the capture log so purged facts
do not return on the next full reindex.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "delete without confirmation")
	purgeCmd.Flags().StringSliceVar(&purgeSources, "source", nil, "restrict to these purgeable sources")
}

func runPurge(cmd *cobra.Command, args []string) error {
	term := strings.Join(args, " ")

	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ctx := cmd.Context()
	matches, err := st.FindPurgeMatches(ctx, term, store.PurgeOptions{Sources: purgeSources})
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("No matching entries")
		return nil
	}

	fmt.Printf("Found %d matching entries:\n", len(matches))
	ids := make([]int64, len(matches))
	for i, m := range matches {
		ids[i] = m.RowID
		fmt.Printf("  [%d] %s/%s  %s\n", m.RowID, m.Source, m.Topic, oneLine(m.Content, 120))
	}

	if !purgeYes {
		fmt.Print("Delete these entries? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted")
			return nil
		}
	}

	deleted, err := st.DeleteEntries(ctx, ids, term)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d entries\n", deleted)
	return nil
}
