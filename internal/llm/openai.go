package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConfig also serves Groq and OpenRouter, which speak the same
// chat completions protocol.
type OpenAIConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Sampling Sampling
}

type OpenAIProvider struct {
	apiKey   string
	model    string
	baseURL  string
	sampling Sampling
	client   openai.Client
}

func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	client := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	)
	return &OpenAIProvider{
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		baseURL:  baseURL,
		sampling: cfg.Sampling.withDefaults(),
		client:   client,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, messages []Message) (string, error) {
	if p.apiKey == "" {
		return "", ErrMissingAPIKey
	}
	if p.model == "" {
		return "", ErrMissingModel
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(p.model),
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   openai.Int(int64(p.sampling.MaxTokens)),
		Temperature: openai.Float(*p.sampling.Temperature),
	}
	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("LLM response had no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	results := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			results = append(results, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			results = append(results, openai.AssistantMessage(msg.Content))
		default:
			results = append(results, openai.UserMessage(msg.Content))
		}
	}
	return results
}
