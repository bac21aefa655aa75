package llm

import (
	"context"
	"errors"
	"testing"
)

func TestNewProvider_Local(t *testing.T) {
	provider, err := NewProvider(Config{Mode: "local"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if _, ok := provider.(LocalProvider); !ok {
		t.Fatalf("expected LocalProvider, got %T", provider)
	}
	if _, err := provider.Generate(context.Background(), nil); !errors.Is(err, ErrLocalModeUnset) {
		t.Fatalf("expected ErrLocalModeUnset, got %v", err)
	}
}

func TestNewProvider_Groq(t *testing.T) {
	provider, err := NewProvider(Config{
		Mode:       "remote",
		Provider:   "groq",
		Model:      "llama-3.3-70b-versatile",
		GroqAPIKey: "groq-key",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	openAIProvider, ok := provider.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", provider)
	}
	if openAIProvider.apiKey != "groq-key" {
		t.Errorf("expected apiKey 'groq-key', got %s", openAIProvider.apiKey)
	}
	if openAIProvider.baseURL != "https://api.groq.com/openai/v1" {
		t.Errorf("expected groq baseURL, got %s", openAIProvider.baseURL)
	}
	if openAIProvider.sampling.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", openAIProvider.sampling.MaxTokens)
	}
	if *openAIProvider.sampling.Temperature != DefaultTemperature {
		t.Errorf("expected default temperature, got %v", *openAIProvider.sampling.Temperature)
	}
}

func TestNewProvider_OpenAI(t *testing.T) {
	provider, err := NewProvider(Config{
		Mode:         "remote",
		Provider:     "openai",
		Model:        "gpt-4o-mini",
		OpenAIAPIKey: "test-key",
		MaxTokens:    512,
		Temperature:  float64Ptr(0.1),
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	openAIProvider, ok := provider.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", provider)
	}
	if openAIProvider.baseURL != "https://api.openai.com/v1" {
		t.Errorf("expected default baseURL, got %s", openAIProvider.baseURL)
	}
	if openAIProvider.sampling.MaxTokens != 512 || *openAIProvider.sampling.Temperature != 0.1 {
		t.Errorf("unexpected sampling %+v", openAIProvider.sampling)
	}
}

func TestNewProvider_OpenRouter(t *testing.T) {
	provider, err := NewProvider(Config{
		Mode:             "remote",
		Provider:         "openrouter",
		Model:            "meta-llama/llama-3.3-70b-instruct",
		OpenRouterAPIKey: "router-key",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	openAIProvider, ok := provider.(*OpenAIProvider)
	if !ok {
		t.Fatalf("expected *OpenAIProvider, got %T", provider)
	}
	if openAIProvider.apiKey != "router-key" {
		t.Errorf("expected apiKey 'router-key', got %s", openAIProvider.apiKey)
	}
	if openAIProvider.baseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("expected openrouter baseURL, got %s", openAIProvider.baseURL)
	}
}

func TestNewProvider_OpenRouter_CustomBaseURL(t *testing.T) {
	provider, err := NewProvider(Config{
		Mode:             "remote",
		Provider:         "openrouter",
		Model:            "meta-llama/llama-3.3-70b-instruct",
		OpenRouterAPIKey: "router-key",
		BaseURL:          "https://custom.openrouter.ai/api/v1/",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	openAIProvider := provider.(*OpenAIProvider)
	if openAIProvider.baseURL != "https://custom.openrouter.ai/api/v1" {
		t.Errorf("expected custom baseURL without trailing slash, got %s", openAIProvider.baseURL)
	}
}

func TestNewProvider_Anthropic(t *testing.T) {
	provider, err := NewProvider(Config{
		Mode:            "remote",
		Provider:        "anthropic",
		Model:           "claude-sonnet-4-5",
		AnthropicAPIKey: "anthropic-key",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	anthropicProvider, ok := provider.(*AnthropicProvider)
	if !ok {
		t.Fatalf("expected *AnthropicProvider, got %T", provider)
	}
	if anthropicProvider.apiKey != "anthropic-key" {
		t.Errorf("expected apiKey 'anthropic-key', got %s", anthropicProvider.apiKey)
	}
}

func TestNewProvider_Unsupported(t *testing.T) {
	provider, err := NewProvider(Config{Mode: "remote", Provider: "unsupported-provider"})
	if err == nil {
		t.Fatal("expected error for unsupported provider, got nil")
	}
	if provider != nil {
		t.Errorf("expected nil provider, got %T", provider)
	}
	var unsupported ErrUnsupportedProvider
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected ErrUnsupportedProvider, got %T", err)
	}
	if unsupported.Provider != "unsupported-provider" {
		t.Errorf("expected provider name 'unsupported-provider', got %s", unsupported.Provider)
	}
}

func TestDefaultIfEmpty(t *testing.T) {
	if got := defaultIfEmpty("existing-value", "fallback"); got != "existing-value" {
		t.Errorf("expected 'existing-value', got %s", got)
	}
	if got := defaultIfEmpty("", "fallback"); got != "fallback" {
		t.Errorf("expected 'fallback', got %s", got)
	}
}

func float64Ptr(v float64) *float64 { return &v }

func TestSamplingDefaults_KeepExplicitZeroTemperature(t *testing.T) {
	got := Sampling{Temperature: float64Ptr(0)}.withDefaults()
	if *got.Temperature != 0 {
		t.Errorf("expected explicit zero temperature, got %v", *got.Temperature)
	}
	if got.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", got.MaxTokens)
	}
	if unset := (Sampling{}).withDefaults(); *unset.Temperature != DefaultTemperature {
		t.Errorf("expected default temperature, got %v", *unset.Temperature)
	}
}
