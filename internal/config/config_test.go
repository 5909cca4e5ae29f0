package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "ENV", "LOG_LEVEL", "STORE_PATH", "ENCRYPTION_KEY",
		"TARGET_DSN", "TARGET_HOST", "TARGET_PORT", "TARGET_DBNAME",
		"TARGET_USER", "TARGET_PASSWORD", "TARGET_SSLMODE",
		"STATEMENT_TIMEOUT", "SESSION_TIMEOUT", "SANDBOX_ROW_LIMIT", "SWEEP_EVERY",
		"ADVISOR_ORDER", "ADVISOR_RPS",
		"GEMINI_API_KEY", "DEEPSEEK_API_KEY", "GROQ_API_KEY", "OPENAI_API_KEY",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "pg_advisor.sqlite", cfg.StorePath)
	assert.Equal(t, InsecureDefaultKey, cfg.EncryptionKey)
	assert.Equal(t, "localhost", cfg.Target.Host)
	assert.Equal(t, 5432, cfg.Target.Port)
	assert.Equal(t, "prefer", cfg.Target.SSLMode)
	assert.Equal(t, 30*time.Second, cfg.StatementTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 0, cfg.SandboxRowLimit)
	assert.Equal(t, time.Hour, cfg.SweepEvery)
	assert.Equal(t, []string{"gemini", "deepseek", "groq", "openai"}, cfg.Advisor.Order)
	assert.Equal(t, 1.0, cfg.Advisor.RPS)
	assert.Equal(t, 10.0, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.NotEmpty(t, cfg.Warnings, "insecure key default should warn")
	assert.False(t, cfg.Target.Configured())
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("STORE_PATH", "/tmp/history.sqlite")
	t.Setenv("TARGET_HOST", "db.internal")
	t.Setenv("TARGET_PORT", "5433")
	t.Setenv("TARGET_DBNAME", "shop")
	t.Setenv("TARGET_USER", "advisor")
	t.Setenv("TARGET_PASSWORD", "hunter2")
	t.Setenv("TARGET_SSLMODE", "require")
	t.Setenv("STATEMENT_TIMEOUT", "10s")
	t.Setenv("SESSION_TIMEOUT", "2m")
	t.Setenv("SANDBOX_ROW_LIMIT", "50000")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("ADVISOR_RPS", "0.5")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, "/tmp/history.sqlite", cfg.StorePath)
	assert.Equal(t, "db.internal", cfg.Target.Host)
	assert.Equal(t, 5433, cfg.Target.Port)
	assert.Equal(t, "shop", cfg.Target.Database)
	assert.Equal(t, 10*time.Second, cfg.StatementTimeout)
	assert.Equal(t, 2*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 50000, cfg.SandboxRowLimit)
	assert.Equal(t, "g-key", cfg.Advisor.Gemini.APIKey)
	assert.Equal(t, 0.5, cfg.Advisor.RPS)
	assert.True(t, cfg.Target.Configured())

	conn := cfg.Target.Connection()
	assert.Equal(t, "db.internal", conn.Host)
	assert.Equal(t, "hunter2", conn.Password)
	assert.Equal(t, "require", conn.SSLMode)
}

func TestLoadFromEnv_AdvisorOrder(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADVISOR_ORDER", "groq, gemini")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"groq", "gemini"}, cfg.Advisor.Order)
}

func TestLoadFromEnv_UnknownProvider(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADVISOR_ORDER", "gemini,claude")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude")
}

func TestLoadFromEnv_InvalidSSLMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARGET_SSLMODE", "mandatory")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sslmode")
}

func TestLoadFromEnv_ProductionRequiresKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example.com")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENCRYPTION_KEY")
}

func TestLoadFromEnv_ProductionRefusesCORSWildcard(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("ENCRYPTION_KEY", "6368616e676520746869732070617373776f726420746f206120736563726574")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CORS")
}

func TestLoadFromEnv_ProductionComplete(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("ENCRYPTION_KEY", "6368616e676520746869732070617373776f726420746f206120736563726574")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example.com")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Empty(t, cfg.Warnings)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.level}
		assert.Equal(t, tt.want, cfg.SlogLevel(), "level %q", tt.level)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	require.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(
		"# local overrides\n"+
			"TEST_DOTENV_PLAIN=plain\n"+
			"export TEST_DOTENV_EXPORTED=exported\n"+
			"TEST_DOTENV_QUOTED=\"with spaces\"\n"+
			"not-a-pair\n"), 0o644))

	t.Setenv("TEST_DOTENV_PLAIN", "")
	t.Setenv("TEST_DOTENV_EXPORTED", "")
	t.Setenv("TEST_DOTENV_QUOTED", "")

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "plain", os.Getenv("TEST_DOTENV_PLAIN"))
	assert.Equal(t, "exported", os.Getenv("TEST_DOTENV_EXPORTED"))
	assert.Equal(t, "with spaces", os.Getenv("TEST_DOTENV_QUOTED"))
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("TEST_DOTENV_PRECEDENCE", "from_env")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_DOTENV_PRECEDENCE=from_file\n"), 0o644))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from_env", os.Getenv("TEST_DOTENV_PRECEDENCE"))
}
