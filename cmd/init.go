/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/recall/internal/store"
)

var initWarm bool

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the index store",
	Long: `Create the SQLite index file with its search and vector tables.
Safe to re-run; an existing store is left as-is.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initWarm, "warm", false, "also load the embedding model and verify its dimension")
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := store.InitializeRuntime(); err != nil {
		return err
	}
	dim, err := cfg.Dimension()
	if err != nil {
		return err
	}

	st, err := store.Create(cfg.StorePath, store.Options{
		Dimension:      dim,
		CaptureLogPath: cfg.CaptureLogPath,
	})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	fmt.Printf("Initialized store at %s (dimension %d)\n", cfg.StorePath, dim)

	if initWarm {
		svc, err := newEmbeddingService(st)
		if err != nil {
			return err
		}
		if err := svc.WarmUp(cmd.Context()); err != nil {
			return fmt.Errorf("embedding warmup: %w", err)
		}
		fmt.Printf("Embedding model %s ready\n", cfg.LLM.EmbeddingModel)
	}
	return nil
}
