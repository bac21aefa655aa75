// Package embedding turns text into vectors for knowledge retrieval.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// Embedder produces dense vectors. Model names the exact embedding model, so
// that vectors from different models are never compared with each other.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type Config struct {
	Provider     string
	Model        string
	BaseURL      string
	OpenAIAPIKey string
}

var ErrEmptyEmbedding = errors.New("embedding response was empty")

type ErrUnsupportedProvider struct {
	Provider string
}

func (e ErrUnsupportedProvider) Error() string {
	return fmt.Sprintf("unsupported embedding provider: %s", e.Provider)
}

func New(cfg Config) (Embedder, error) {
	switch cfg.Provider {
	case "", "ollama":
		return NewOllama(cfg.BaseURL, cfg.Model), nil
	case "openai":
		return NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}
