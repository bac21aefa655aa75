package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultRetrievalThreshold = 0.76
	DefaultHistoryMaxTurns    = 20
)

var DefaultTheoryOpeners = []string{
	"what is",
	"define",
	"explain",
	"who is",
	"formula for",
	"state",
	"meaning of",
	"describe",
	"expand",
	"find the value of",
}

type Config struct {
	Port               string
	RequestTimeout     time.Duration
	KnowledgeBasePath  string
	EmbeddingCacheDir  string
	KeywordsPath       string
	SystemPromptPath   string
	RetrievalThreshold float64
	TheoryOpeners      []string
	HistoryMaxTurns    int
	QueryCacheSize     int

	LLMMode        string
	LLMProvider    string
	LLMModel       string
	LLMBaseURL     string
	LLMMaxTokens   int
	LLMTemperature float64

	GroqAPIKey       string
	OpenAIAPIKey     string
	OpenRouterAPIKey string
	AnthropicAPIKey  string
	SecretsKey       string

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingBaseURL  string

	SerperAPIKey      string
	WebSearchURL      string
	WebSearchTimeout  time.Duration
	WebSearchCacheTTL time.Duration
	WebSearchMode     string

	SessionBackend    string
	FeedbackBackend   string
	FeedbackPath      string
	PostgresURL       string
	SQLitePath        string
	TemporalAddress   string
	TemporalTaskQueue string
}

// Overlay is the optional YAML file named by TUTOR_CONFIG. Only routing knobs
// live here; everything else is environment driven.
type Overlay struct {
	RetrievalThreshold *float64 `yaml:"retrieval_threshold"`
	TheoryOpeners      []string `yaml:"theory_openers"`
	HistoryMaxTurns    *int     `yaml:"history_max_turns"`
	QueryCacheSize     *int     `yaml:"query_cache_size"`
}

func Load() Config {
	return Config{
		Port:               getEnv("TUTOR_PORT", "8000"),
		RequestTimeout:     getEnvDuration("REQUEST_TIMEOUT", 2*time.Minute),
		KnowledgeBasePath:  getEnv("KNOWLEDGE_BASE_PATH", "knowledge/maths_kb3.json"),
		EmbeddingCacheDir:  getEnv("EMBEDDING_CACHE_DIR", "knowledge"),
		KeywordsPath:       getEnv("KEYWORDS_PATH", ""),
		SystemPromptPath:   getEnv("SYSTEM_PROMPT_PATH", ""),
		RetrievalThreshold: getEnvFloat("RETRIEVAL_THRESHOLD", DefaultRetrievalThreshold),
		TheoryOpeners:      getEnvList("THEORY_OPENERS", DefaultTheoryOpeners),
		HistoryMaxTurns:    getEnvInt("HISTORY_MAX_TURNS", DefaultHistoryMaxTurns),
		QueryCacheSize:     getEnvInt("QUERY_CACHE_SIZE", 512),

		LLMMode:        getEnv("LLM_MODE", "remote"),
		LLMProvider:    getEnv("LLM_PROVIDER", "groq"),
		LLMModel:       getEnv("LLM_MODEL", "llama-3.3-70b-versatile"),
		LLMBaseURL:     getEnv("LLM_BASE_URL", ""),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 2025),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),

		GroqAPIKey:       getEnv("GROQ_API_KEY", ""),
		OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
		OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		SecretsKey:       getEnv("TUTOR_SECRETS_KEY", ""),

		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
		EmbeddingBaseURL:  getEnv("EMBEDDING_BASE_URL", ""),

		SerperAPIKey:      getEnv("SERPER_API_KEY", ""),
		WebSearchURL:      getEnv("WEB_SEARCH_URL", "https://google.serper.dev/search"),
		WebSearchTimeout:  getEnvDuration("WEB_SEARCH_TIMEOUT", 10*time.Second),
		WebSearchCacheTTL: getEnvDuration("WEB_SEARCH_CACHE_TTL", 10*time.Minute),
		WebSearchMode:     getEnv("WEB_SEARCH_MODE", "inline"),

		SessionBackend:    getEnv("SESSION_BACKEND", "memory"),
		FeedbackBackend:   getEnv("FEEDBACK_BACKEND", "file"),
		FeedbackPath:      getEnv("FEEDBACK_PATH", "knowledge/feedback.json"),
		PostgresURL:       postgresURL(),
		SQLitePath:        getEnv("SQLITE_PATH", "tutor.db"),
		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "tutor-web-search"),
	}
}

// LoadWithOverlay is Load followed by the TUTOR_CONFIG overlay, if any.
func LoadWithOverlay() (Config, error) {
	cfg := Load()
	path := getEnv("TUTOR_CONFIG", "")
	if path == "" {
		return cfg, nil
	}
	if err := cfg.ApplyOverlayFile(path); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) ApplyOverlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config overlay: %w", err)
	}
	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config overlay %s: %w", path, err)
	}
	c.ApplyOverlay(overlay)
	return nil
}

func (c *Config) ApplyOverlay(overlay Overlay) {
	if overlay.RetrievalThreshold != nil {
		c.RetrievalThreshold = *overlay.RetrievalThreshold
	}
	if len(overlay.TheoryOpeners) > 0 {
		c.TheoryOpeners = normalizeList(overlay.TheoryOpeners)
	}
	if overlay.HistoryMaxTurns != nil {
		c.HistoryMaxTurns = *overlay.HistoryMaxTurns
	}
	if overlay.QueryCacheSize != nil {
		c.QueryCacheSize = *overlay.QueryCacheSize
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string{}, fallback...)
	}
	list := normalizeList(strings.Split(value, ","))
	if len(list) == 0 {
		return append([]string{}, fallback...)
	}
	return list
}

func normalizeList(values []string) []string {
	results := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.ToLower(strings.TrimSpace(value))
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func postgresURL() string {
	if value := getEnv("POSTGRES_URL", ""); value != "" {
		return value
	}
	user := getEnv("POSTGRES_USER", "tutor")
	password := getEnv("POSTGRES_PASSWORD", "tutor")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "tutor")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
