package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ProviderConfig holds the connection settings for one AI backend.
// A provider is considered configured when its API key is non-empty;
// nothing beyond that is validated.
type ProviderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Config holds all application configuration
type Config struct {
	Port         string
	DatabasePath string

	OpenAI    ProviderConfig
	Anthropic ProviderConfig
	Gemini    ProviderConfig

	// ProviderPriority is the fallback order for the dispatcher
	ProviderPriority []string

	// ProviderTimeout bounds a single backend call
	ProviderTimeout time.Duration

	// MaxReplyTokens caps the model's output per turn
	MaxReplyTokens int

	// HistoryTokenBudget bounds the windowed conversation history
	HistoryTokenBudget int

	// MetricsEnabled toggles the Prometheus /metrics endpoint
	MetricsEnabled bool
}

// Load loads configuration from environment variables with defaults
func Load() *Config {
	priority := strings.Split(getEnv("PROVIDER_PRIORITY", "openai,anthropic,gemini"), ",")
	for i := range priority {
		priority[i] = strings.TrimSpace(priority[i])
	}

	return &Config{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "everkind.db"),

		OpenAI: ProviderConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Anthropic: ProviderConfig{
			APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL: getEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			Model:   getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
		},
		Gemini: ProviderConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},

		ProviderPriority:   priority,
		ProviderTimeout:    time.Duration(getIntEnv("PROVIDER_TIMEOUT_SECONDS", 120)) * time.Second,
		MaxReplyTokens:     getIntEnv("MAX_REPLY_TOKENS", 1024),
		HistoryTokenBudget: getIntEnv("HISTORY_TOKEN_BUDGET", 1200),
		MetricsEnabled:     getBoolEnv("METRICS_ENABLED", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
