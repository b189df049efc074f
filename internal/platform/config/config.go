// Package config loads application configuration from environment variables.
// All variables use the LESSON_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Cache    CacheConfig
	AI       AIConfig
	Telegram TelegramConfig
	Engine   EngineConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings.
type CacheConfig struct {
	URL string
}

// AIConfig holds configuration for all AI providers.
type AIConfig struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	DeepSeek  DeepSeekConfig
	Ollama    OllamaConfig

	// TeachingModel and GradingModel select which model each task runs on.
	// Empty means the provider's default.
	TeachingModel string
	GradingModel  string

	MaxTokens int

	// RateRPS/RateBurst throttle completion calls across all users.
	RateRPS   float64
	RateBurst int

	// DailyTokenBudget caps per-user daily token spend. Zero means unlimited.
	DailyTokenBudget int64
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey string
}

// AnthropicConfig holds Anthropic provider settings.
type AnthropicConfig struct {
	APIKey string
}

// DeepSeekConfig holds DeepSeek provider settings (OpenAI-compatible).
type DeepSeekConfig struct {
	APIKey string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string
}

// EngineConfig holds lesson and session settings.
type EngineConfig struct {
	LessonPath    string
	DefaultLesson string

	// SessionStore selects the session backend: memory, postgres, or redis.
	SessionStore string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LESSON_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("LESSON_SERVER_PORT", 8080),
			Host: envStr("LESSON_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("LESSON_DATABASE_URL", ""),
			MaxConns: envInt("LESSON_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("LESSON_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("LESSON_CACHE_URL", ""),
		},
		AI: AIConfig{
			OpenAI: OpenAIConfig{
				APIKey: envStr("LESSON_AI_OPENAI_API_KEY", ""),
			},
			Anthropic: AnthropicConfig{
				APIKey: envStr("LESSON_AI_ANTHROPIC_API_KEY", ""),
			},
			DeepSeek: DeepSeekConfig{
				APIKey: envStr("LESSON_AI_DEEPSEEK_API_KEY", ""),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("LESSON_AI_OLLAMA_ENABLED", false),
				URL:     envStr("LESSON_AI_OLLAMA_URL", "http://localhost:11434/v1"),
			},
			TeachingModel:    envStr("LESSON_AI_TEACHING_MODEL", ""),
			GradingModel:     envStr("LESSON_AI_GRADING_MODEL", ""),
			MaxTokens:        envInt("LESSON_AI_MAX_TOKENS", 1024),
			RateRPS:          envFloat("LESSON_AI_RATE_RPS", 5),
			RateBurst:        envInt("LESSON_AI_RATE_BURST", 10),
			DailyTokenBudget: int64(envInt("LESSON_AI_DAILY_TOKEN_BUDGET", 0)),
		},
		Telegram: TelegramConfig{
			BotToken: envStr("LESSON_TELEGRAM_BOT_TOKEN", ""),
		},
		Engine: EngineConfig{
			LessonPath:    envStr("LESSON_PATH", "./lessons"),
			DefaultLesson: envStr("LESSON_DEFAULT", ""),
			SessionStore:  envStr("LESSON_SESSION_STORE", "memory"),
		},
		Log: LogConfig{
			Level:  envStr("LESSON_LOG_LEVEL", "info"),
			Format: envStr("LESSON_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	switch c.Engine.SessionStore {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("LESSON_SESSION_STORE must be memory, postgres, or redis, got %q", c.Engine.SessionStore)
	}

	if c.Engine.SessionStore == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("LESSON_DATABASE_URL is required for the postgres session store")
	}
	if c.Engine.SessionStore == "redis" && c.Cache.URL == "" {
		return fmt.Errorf("LESSON_CACHE_URL is required for the redis session store")
	}

	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("LESSON_AI_MAX_TOKENS must be positive, got %d", c.AI.MaxTokens)
	}

	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
// Without one the bot still runs, teaching from scripted lesson content only.
func (c *Config) HasAIProvider() bool {
	return c.AI.OpenAI.APIKey != "" ||
		c.AI.Anthropic.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.Ollama.Enabled
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
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

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
