// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"fmt"

	ollamaEmbed "github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"

	"github.com/pdiddy/collabmatch/pkg/types"
)

// Default models per provider.
const (
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultOllamaURL   = "http://localhost:11434"
)

// NewBackend creates the inference backend selected by cfg.Provider and
// returns it with its model name. The none provider returns a nil backend.
func NewBackend(ctx context.Context, cfg types.EmbedderConfig) (embedding.Embedder, string, error) {
	switch cfg.Provider {
	case types.ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, "", fmt.Errorf("openai API key is required")
		}
		model := cfg.Model
		if model == "" {
			model = DefaultOpenAIModel
		}
		b, err := openaiEmbed.NewEmbedder(ctx, &openaiEmbed.EmbeddingConfig{
			Model:   model,
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, "", fmt.Errorf("creating openai embedder: %w", err)
		}
		return b, model, nil

	case types.ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultOllamaURL
		}
		model := cfg.Model
		if model == "" {
			model = DefaultOllamaModel
		}
		b, err := ollamaEmbed.NewEmbedder(ctx, &ollamaEmbed.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, "", fmt.Errorf("creating ollama embedder: %w", err)
		}
		return b, model, nil

	case types.ProviderHTTP:
		b, err := NewHTTP(HTTPConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, "", err
		}
		model := cfg.Model
		if model == "" {
			model = "http"
		}
		return b, model, nil

	case types.ProviderLexical, "":
		return NewLexical(cfg.Dimension), LexicalModel, nil

	case types.ProviderNone:
		return nil, FallbackModel, nil

	default:
		return nil, "", fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// NewFromConfig builds an Embedder from configuration.
func NewFromConfig(ctx context.Context, cfg types.EmbedderConfig, opts ...Option) (*Embedder, error) {
	backend, model, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithCacheSize(cfg.CacheSize), WithTimeout(cfg.Timeout)}, opts...)
	return New(backend, model, cfg.Dimension, opts...), nil
}
