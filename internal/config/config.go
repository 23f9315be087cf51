package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	// LLM provider selection and credentials.
	LLMProvider      string
	FallbackProvider string
	GeminiAPIKey     string
	OpenAIAPIKey     string
	PollinationsURL  string

	// Model tuning. Temperature is a pointer so "unset" can fall back to
	// each provider's default.
	LLMModel       string
	Temperature    *float64
	MaxTemperature float64
	StoryLanguage  string

	RedisURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		LLMProvider:      strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		FallbackProvider: strings.ToLower(os.Getenv("FALLBACK_PROVIDER")),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		PollinationsURL:  getEnv("POLLINATIONS_URL", "https://text.pollinations.ai"),

		LLMModel:      os.Getenv("LLM_MODEL"),
		StoryLanguage: getEnv("STORY_LANGUAGE", "English"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),
	}

	if raw := os.Getenv("LLM_TEMPERATURE"); raw != "" {
		t, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_TEMPERATURE %q: %w", raw, err)
		}
		cfg.Temperature = &t
	}

	maxTemp := getEnv("LLM_MAX_TEMPERATURE", "2")
	mt, err := strconv.ParseFloat(maxTemp, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid LLM_MAX_TEMPERATURE %q: %w", maxTemp, err)
	}
	cfg.MaxTemperature = mt

	return cfg, nil
}

// Validate checks that the selected providers have the credentials they
// need. It is separate from Load so the worker and console can load
// partial configs.
func (c *Config) Validate() error {
	providers := []string{c.LLMProvider}
	if c.FallbackProvider != "" {
		providers = append(providers, c.FallbackProvider)
	}
	for _, p := range providers {
		switch p {
		case "gemini":
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("GEMINI_API_KEY is required for provider gemini")
			}
		case "openai":
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required for provider openai")
			}
		case "pollinations":
			// Pollinations needs no key.
		default:
			return fmt.Errorf("unknown LLM provider %q", p)
		}
	}
	return nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
