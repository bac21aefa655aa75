package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OpenAI struct {
	apiKey string
	model  string
	client openai.Client
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	return &OpenAI{
		apiKey: cfg.APIKey,
		model:  model,
		client: openai.NewClient(opts...),
	}
}

func (o *OpenAI) Model() string {
	return "openai/" + o.model
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if o.apiKey == "" {
		return nil, errors.New("missing API key for embedding provider")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings: expected %d vectors, got %d", len(texts), len(resp.Data))
	}
	results := make([][]float32, len(texts))
	for _, item := range resp.Data {
		index := int(item.Index)
		if index < 0 || index >= len(results) {
			return nil, fmt.Errorf("embeddings: index %d out of range", index)
		}
		if len(item.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		vector := make([]float32, len(item.Embedding))
		for i, value := range item.Embedding {
			vector[i] = float32(value)
		}
		results[index] = vector
	}
	return results, nil
}
