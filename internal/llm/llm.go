package llm

import (
	"context"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"

	DefaultMaxTokens   = 2025
	DefaultTemperature = 0.3
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

type Config struct {
	Mode             string
	Provider         string
	Model            string
	BaseURL          string
	MaxTokens        int
	Temperature      *float64
	GroqAPIKey       string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	AnthropicAPIKey  string
}

func NewProvider(cfg Config) (Provider, error) {
	if cfg.Mode == "local" {
		return LocalProvider{}, nil
	}

	sampling := Sampling{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
	switch cfg.Provider {
	case "groq":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:   cfg.GroqAPIKey,
			Model:    cfg.Model,
			BaseURL:  defaultIfEmpty(cfg.BaseURL, "https://api.groq.com/openai/v1"),
			Sampling: sampling,
		}), nil
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:   cfg.OpenAIAPIKey,
			Model:    cfg.Model,
			BaseURL:  cfg.BaseURL,
			Sampling: sampling,
		}), nil
	case "openrouter":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:   cfg.OpenRouterAPIKey,
			Model:    cfg.Model,
			BaseURL:  defaultIfEmpty(cfg.BaseURL, "https://openrouter.ai/api/v1"),
			Sampling: sampling,
		}), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:   cfg.AnthropicAPIKey,
			Model:    cfg.Model,
			BaseURL:  cfg.BaseURL,
			Sampling: sampling,
		}), nil
	default:
		return nil, ErrUnsupportedProvider{Provider: cfg.Provider}
	}
}

// Sampling bounds every completion. A zero MaxTokens or nil Temperature falls
// back to the defaults; an explicit zero temperature is kept.
type Sampling struct {
	MaxTokens   int
	Temperature *float64
}

func (s Sampling) withDefaults() Sampling {
	if s.MaxTokens <= 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Temperature == nil {
		temperature := float64(DefaultTemperature)
		s.Temperature = &temperature
	}
	return s
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
