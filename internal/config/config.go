package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

type Config struct {
	Port        int
	NatsURL     string // empty disables the event bus
	NatsToken   string
	DatabaseURL string
	LogLevel    string
	LogFile     string // empty logs to stdout
	APIToken    string

	AnthropicAPIKey    string
	AnthropicModel     string
	OpenAIAPIKey       string
	OpenAIBaseURL      string
	EmbeddingModel     string
	EmbeddingDims      int
	CompletionProvider string
	ChatModel          string

	Tuning Tuning
}

// Tuning holds the empirically chosen pipeline constants.
type Tuning struct {
	ChunkMaxChars     int
	RetrievalTopK     int
	RetrievalMinScore float64
	RetrievalCap      int
	HistoryLimit      int
	HistoryTail       int
	BackfillLimit     int
}

func Load() Config {
	return Config{
		Port:        envInt("SCRIBE_PORT", 8760),
		NatsURL:     envStr("NATS_URL", ""),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		LogFile:     envStr("LOG_FILE", ""),
		APIToken:    envStr("SCRIBE_API_TOKEN", ""),

		AnthropicAPIKey:    envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     envStr("SCRIBE_MODEL", "claude-sonnet-4-20250514"),
		OpenAIAPIKey:       envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      envStr("OPENAI_BASE_URL", ""),
		EmbeddingModel:     envStr("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDims:      envInt("EMBEDDING_DIMENSIONS", 0),
		CompletionProvider: strings.ToLower(envStr("COMPLETION_PROVIDER", ProviderAnthropic)),
		ChatModel:          envStr("CHAT_MODEL", "gpt-4o-mini"),

		Tuning: Tuning{
			ChunkMaxChars:     envInt("CHUNK_MAX_CHARS", 800),
			RetrievalTopK:     envInt("RETRIEVAL_TOP_K", 12),
			RetrievalMinScore: envFloat("RETRIEVAL_MIN_SCORE", 0.18),
			RetrievalCap:      envInt("RETRIEVAL_CAP", 4000),
			HistoryLimit:      envInt("HISTORY_LIMIT", 50),
			HistoryTail:       envInt("HISTORY_TAIL", 12),
			BackfillLimit:     envInt("BACKFILL_LIMIT", 200),
		},
	}
}

// Validate reports settings the service cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required for embeddings"))
	}
	switch c.CompletionProvider {
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			errs = append(errs, errors.New("ANTHROPIC_API_KEY is required when COMPLETION_PROVIDER=anthropic"))
		}
	case ProviderOpenAI:
	default:
		errs = append(errs, errors.New("COMPLETION_PROVIDER must be anthropic or openai"))
	}
	return errors.Join(errs...)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
