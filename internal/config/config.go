// Package config loads recall's configuration from the config file and
// environment via Viper, with working defaults for a local Ollama setup.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/josephgoksu/recall/internal/llm"
)

// Config is everything the commands need to construct a store, an embedding
// service and the resolver.
type Config struct {
	// StorePath is the SQLite index file.
	StorePath string `mapstructure:"store_path"`

	// CaptureLogPath is the upstream append-only JSONL capture log.
	CaptureLogPath string `mapstructure:"capture_log_path"`

	LLM LLMConfig `mapstructure:"llm"`

	Search SearchConfig `mapstructure:"search"`

	Indexer IndexerConfig `mapstructure:"indexer"`
}

// LLMConfig selects the provider and models.
type LLMConfig struct {
	Provider       string `mapstructure:"provider"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	// Dimension overrides the model registry; 0 means look the model up.
	Dimension int    `mapstructure:"dimension"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
}

// SearchConfig tunes hybrid fusion.
type SearchConfig struct {
	VectorWeight float64 `mapstructure:"vector_weight"`
	TextWeight   float64 `mapstructure:"text_weight"`
	DefaultLimit int     `mapstructure:"default_limit"`
}

// IndexerConfig tunes the real-time capture path.
type IndexerConfig struct {
	// ResolverTimeoutSeconds bounds each contradiction check.
	ResolverTimeoutSeconds int `mapstructure:"resolver_timeout_seconds"`
	// ResolverEnabled turns the contradiction check off entirely when false.
	ResolverEnabled bool `mapstructure:"resolver_enabled"`
}

// Default returns the zero-config setup: local Ollama, nomic embeddings,
// store under the user's data directory.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		StorePath:      filepath.Join(home, ".recall", "index.db"),
		CaptureLogPath: filepath.Join(home, ".recall", "captures.jsonl"),
		LLM: LLMConfig{
			Provider:       llm.DefaultProvider,
			Model:          "llama3.1",
			EmbeddingModel: llm.DefaultOllamaEmbeddingModel,
		},
		Search: SearchConfig{
			VectorWeight: 0.7,
			TextWeight:   0.3,
			DefaultLimit: 10,
		},
		Indexer: IndexerConfig{
			ResolverTimeoutSeconds: 5,
			ResolverEnabled:        true,
		},
	}
}

// Load reads ~/.recall/config.yaml (or RECALL_* environment variables) over
// the defaults. A missing config file is fine; a malformed one is not.
func Load() (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".recall"))
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("RECALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	// API keys come from the environment by convention, not the config file.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = apiKeyFromEnv(cfg.LLM.Provider)
	}

	if err := llm.ValidateProvider(cfg.LLM.Provider); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Dimension resolves the embedding width: explicit config wins, then the
// model registry.
func (c Config) Dimension() (int, error) {
	if c.LLM.Dimension > 0 {
		return c.LLM.Dimension, nil
	}
	if d := llm.EmbeddingDimension(c.LLM.EmbeddingModel); d > 0 {
		return d, nil
	}
	return 0, fmt.Errorf("unknown embedding model %q: set llm.dimension explicitly", c.LLM.EmbeddingModel)
}

// ClientConfig converts to the llm package's client config.
func (c Config) ClientConfig() llm.Config {
	return llm.Config{
		Provider:       c.LLM.Provider,
		Model:          c.LLM.Model,
		EmbeddingModel: c.LLM.EmbeddingModel,
		APIKey:         c.LLM.APIKey,
		BaseURL:        c.LLM.BaseURL,
	}
}

func apiKeyFromEnv(provider string) string {
	switch provider {
	case llm.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case llm.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case llm.ProviderGemini:
		if k := os.Getenv("GEMINI_API_KEY"); k != "" {
			return k
		}
		return os.Getenv("GOOGLE_API_KEY")
	}
	return ""
}
