package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/reflect-journal/backend/internal/llm"
	"github.com/reflect-journal/backend/internal/questions"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	LLM       llm.Config
	Journal   JournalConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
}

// DatabaseConfig selects and configures the question store.
type DatabaseConfig struct {
	Driver   string // "postgres" or "sqlite"
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/journal?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string
}

// RedisConfig holds Redis connection settings. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JournalConfig holds question lifecycle policy.
type JournalConfig struct {
	AnswerPolicy questions.AnswerPolicy
	// GenerateLimitPerHour caps GenerateNew per user; 0 disables the cap.
	GenerateLimitPerHour int
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	SampleRatio float64
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	policy, err := questions.ParseAnswerPolicy(getEnv("ANSWER_POLICY", string(questions.PolicyReject)))
	if err != nil {
		return nil, err
	}

	llmCfg := llm.DefaultConfig()
	llmCfg.Provider = strings.ToLower(getEnv("LLM_PROVIDER", llmCfg.Provider))
	llmCfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", "")
	llmCfg.OpenAI.Model = getEnv("OPENAI_MODEL", llmCfg.OpenAI.Model)
	llmCfg.OpenAI.BaseURL = getEnv("OPENAI_BASE_URL", "")
	llmCfg.Anthropic.APIKey = getEnv("ANTHROPIC_API_KEY", "")
	llmCfg.Anthropic.Model = getEnv("ANTHROPIC_MODEL", llmCfg.Anthropic.Model)
	llmCfg.Gemini.APIKey = getEnv("GEMINI_API_KEY", "")
	llmCfg.Gemini.Model = getEnv("GEMINI_MODEL", llmCfg.Gemini.Model)
	llmCfg.MaxTokens = getEnvInt("LLM_MAX_TOKENS", llmCfg.MaxTokens)
	llmCfg.Temperature = getEnvFloat("LLM_TEMPERATURE", llmCfg.Temperature)
	llmCfg.Timeout = time.Duration(getEnvInt("LLM_TIMEOUT_SEC", int(llmCfg.Timeout/time.Second))) * time.Second
	if m := getEnv("LLM_MODEL", ""); m != "" {
		// LLM_MODEL applies to whichever provider is selected.
		switch llmCfg.Provider {
		case "openai":
			llmCfg.OpenAI.Model = m
		case "anthropic":
			llmCfg.Anthropic.Model = m
		case "gemini":
			llmCfg.Gemini.Model = m
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 90),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite")),
			URL:        getEnv("DATABASE_URL", ""),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "journal"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			MaxConns:   int32(getEnvInt("DB_MAX_CONNS", 0)),
			SQLitePath: getEnv("SQLITE_PATH", "questions.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		LLM: llmCfg,
		Journal: JournalConfig{
			AnswerPolicy:         policy,
			GenerateLimitPerHour: getEnvInt("GENERATE_LIMIT_PER_HOUR", 0),
		},
		Telemetry: TelemetryConfig{
			Enabled:     getEnvBool("OTEL_ENABLED", false),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "reflect-journal"),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			SampleRatio: getEnvFloat("OTEL_SAMPLER_RATIO", 0.1),
		},
	}

	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unknown DATABASE_DRIVER %q", cfg.Database.Driver)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
