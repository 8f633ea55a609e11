package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reflect-journal/backend/internal/questions"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("ANSWER_POLICY", "")
	t.Setenv("LLM_PROVIDER", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, questions.PolicyReject, cfg.Journal.AnswerPolicy)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 150, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-9)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://db/journal")
	t.Setenv("ANSWER_POLICY", "overwrite")
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("LLM_MODEL", "claude-sonnet")
	t.Setenv("LLM_TIMEOUT_SEC", "5")
	t.Setenv("LLM_TEMPERATURE", "0.2")
	t.Setenv("GENERATE_LIMIT_PER_HOUR", "12")
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://db/journal", cfg.Database.DSN())
	assert.Equal(t, questions.PolicyOverwrite, cfg.Journal.AnswerPolicy)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-sonnet", cfg.LLM.Anthropic.Model)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 12, cfg.Journal.GenerateLimitPerHour)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_RejectsUnknownValues(t *testing.T) {
	t.Setenv("ANSWER_POLICY", "sometimes")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("ANSWER_POLICY", "")
	t.Setenv("DATABASE_DRIVER", "mysql")
	_, err = Load()
	assert.Error(t, err)
}

func TestDSN_FromComponents(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "journal", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/journal?sslmode=disable", c.DSN())
}
