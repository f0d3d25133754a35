/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var statsJSON bool

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index contents",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit stats as JSON")
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	stats, err := st.GetStats()
	if err != nil {
		return err
	}

	if statsJSON {
		return json.NewEncoder(os.Stdout).Encode(stats)
	}

	fmt.Printf("Store: %s\n", cfg.StorePath)
	fmt.Printf("Entries: %d  Vectors: %d  Cached embeddings: %d\n",
		stats.Entries, stats.Vectors, stats.CacheEntries)

	sources := make([]string, 0, len(stats.EntriesBySrc))
	for src := range stats.EntriesBySrc {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	for _, src := range sources {
		fmt.Printf("  %-14s %d\n", src, stats.EntriesBySrc[src])
	}
	return nil
}
