/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/josephgoksu/recall/internal/config"
	"github.com/josephgoksu/recall/internal/embedding"
	"github.com/josephgoksu/recall/internal/store"
)

var (
	// verbose enables debug logging.
	verbose bool
	// version is the application version.
	version = "0.1.0"

	cfg config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "recall",
	Short:   "recall is a personal knowledge index with hybrid search",
	Version: version,
	Long: `recall ingests notes, commits and captured insights into one local
SQLite index and answers queries by keyword relevance, semantic similarity,
or a weighted fusion of both.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; real config comes from ~/.recall/config.yaml
		// and RECALL_* environment variables.
		_ = godotenv.Load()

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// openStore initializes the runtime and opens the configured index file.
// The store must already exist; 'recall init' creates it.
func openStore() (*store.Store, error) {
	if err := store.InitializeRuntime(); err != nil {
		return nil, err
	}
	dim, err := cfg.Dimension()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.StorePath, store.Options{
		Dimension:      dim,
		CaptureLogPath: cfg.CaptureLogPath,
	})
}

// newEmbeddingService builds the embedding service backed by the store's
// vector cache.
func newEmbeddingService(st *store.Store) (*embedding.Service, error) {
	dim, err := cfg.Dimension()
	if err != nil {
		return nil, err
	}
	return embedding.NewService(cfg.ClientConfig(), dim, st), nil
}
