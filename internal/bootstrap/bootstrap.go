// Package bootstrap assembles the tutor's components from configuration. It is
// shared by the server and the tutorctl command.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/Keyring-Network/gavryn-tutor/internal/classify"
	"github.com/Keyring-Network/gavryn-tutor/internal/config"
	"github.com/Keyring-Network/gavryn-tutor/internal/embedding"
	"github.com/Keyring-Network/gavryn-tutor/internal/knowledge"
	"github.com/Keyring-Network/gavryn-tutor/internal/llm"
	"github.com/Keyring-Network/gavryn-tutor/internal/prompt"
	"github.com/Keyring-Network/gavryn-tutor/internal/secrets"
	"github.com/Keyring-Network/gavryn-tutor/internal/websearch"
)

// ResolveSecrets replaces every sealed credential in cfg with its plaintext.
func ResolveSecrets(cfg *config.Config) error {
	resolver, err := secrets.NewResolver(cfg.SecretsKey)
	if err != nil {
		return err
	}
	return resolver.ResolveFields(map[string]*string{
		"GROQ_API_KEY":       &cfg.GroqAPIKey,
		"OPENAI_API_KEY":     &cfg.OpenAIAPIKey,
		"OPENROUTER_API_KEY": &cfg.OpenRouterAPIKey,
		"ANTHROPIC_API_KEY":  &cfg.AnthropicAPIKey,
		"SERPER_API_KEY":     &cfg.SerperAPIKey,
		"POSTGRES_URL":       &cfg.PostgresURL,
	})
}

func NewEmbedder(cfg config.Config) (embedding.Embedder, error) {
	inner, err := embedding.New(embedding.Config{
		Provider:     cfg.EmbeddingProvider,
		Model:        cfg.EmbeddingModel,
		BaseURL:      cfg.EmbeddingBaseURL,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
	})
	if err != nil {
		return nil, err
	}
	return embedding.NewCached(inner, cfg.QueryCacheSize)
}

// Knowledge is the loaded knowledge base with its index.
type Knowledge struct {
	Entries   []knowledge.Entry
	Index     *knowledge.Index
	Retriever *knowledge.Retriever
}

func LoadKnowledge(ctx context.Context, cfg config.Config, embedder embedding.Embedder) (*Knowledge, error) {
	entries, err := knowledge.LoadEntries(cfg.KnowledgeBasePath)
	if err != nil {
		return nil, err
	}
	index, err := knowledge.BuildIndex(ctx, entries, embedder, cfg.EmbeddingCacheDir)
	if err != nil {
		return nil, fmt.Errorf("build knowledge index: %w", err)
	}
	retriever, err := knowledge.NewRetriever(entries, index, embedder, cfg.RetrievalThreshold)
	if err != nil {
		return nil, err
	}
	return &Knowledge{Entries: entries, Index: index, Retriever: retriever}, nil
}

func NewProvider(cfg config.Config) (llm.Provider, error) {
	return llm.NewProvider(llm.Config{
		Mode:             cfg.LLMMode,
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		MaxTokens:        cfg.LLMMaxTokens,
		Temperature:      &cfg.LLMTemperature,
		GroqAPIKey:       cfg.GroqAPIKey,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
	})
}

// NewInlineSearcher calls Serper from this process, behind the TTL cache.
func NewInlineSearcher(cfg config.Config) (*websearch.CachedSearcher, error) {
	serper := websearch.NewSerper(websearch.Config{
		APIKey:  cfg.SerperAPIKey,
		URL:     cfg.WebSearchURL,
		Timeout: cfg.WebSearchTimeout,
	})
	return websearch.NewCached(serper, cfg.WebSearchCacheTTL)
}

func NewClassifier(cfg config.Config) (*classify.Classifier, error) {
	return classify.Load(cfg.KeywordsPath, cfg.TheoryOpeners)
}

func LoadSystemPrompt(cfg config.Config) (string, error) {
	return prompt.Load(cfg.SystemPromptPath)
}
