// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"pg-advisor/internal/domain"
)

// InsecureDefaultKey is the all-zero encryption key used when
// ENCRYPTION_KEY is unset. Development only; production refuses it.
const InsecureDefaultKey = "0000000000000000000000000000000000000000000000000000000000000000"

// TargetConfig describes the default target database. A full DSN wins
// over the individual fields.
type TargetConfig struct {
	DSN      string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string
}

// Configured reports whether a default target is set at all.
func (t *TargetConfig) Configured() bool {
	return t.DSN != "" || t.Database != ""
}

// Connection returns the target as a stored-connection value, used to
// build a DSN when TARGET_DSN is not set.
func (t *TargetConfig) Connection() domain.Connection {
	return domain.Connection{
		Name:     "default",
		Host:     t.Host,
		Port:     t.Port,
		Database: t.Database,
		Username: t.Username,
		Password: t.Password,
		SSLMode:  t.SSLMode,
	}
}

// ProviderConfig holds the per-provider advisor settings. An empty
// APIKey disables the provider.
type ProviderConfig struct {
	APIKey  string
	BaseURL string // empty uses the provider's published endpoint
	Model   string // empty uses the provider's default model
}

// AdvisorConfig holds the advisor chain settings.
type AdvisorConfig struct {
	Order    []string // fallback order; unconfigured entries are skipped
	RPS      float64  // per-provider request rate (default 1)
	Gemini   ProviderConfig
	DeepSeek ProviderConfig
	Groq     ProviderConfig
	OpenAI   ProviderConfig
}

// KnownProvider reports whether name is a provider this build can construct.
func KnownProvider(name string) bool {
	switch name {
	case "gemini", "deepseek", "groq", "openai":
		return true
	}
	return false
}

// Config holds the configuration for the optimization service.
type Config struct {
	ListenAddr    string // HTTP listen address (default ":8080")
	Env           string // "development" (default) or "production"
	LogLevel      string // debug, info, warn, error (default "info")
	StorePath     string // path to the SQLite history file
	EncryptionKey string // 64-char hex string (32-byte AES key) for stored passwords

	Target TargetConfig

	StatementTimeout time.Duration // per-statement cap on the target (default 30s)
	SessionTimeout   time.Duration // whole-session deadline (default 5m)
	SandboxRowLimit  int           // rows copied per table into a sandbox, 0 = full copy
	SweepEvery       time.Duration // orphan sandbox sweep interval (default 1h)

	Advisor AdvisorConfig

	// HTTP rate limiting for the optimize endpoints.
	RateLimitRPS   float64 // sustained requests per second (default 10)
	RateLimitBurst int     // burst capacity (default 20)

	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:    os.Getenv("LISTEN_ADDR"),
		Env:           os.Getenv("ENV"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		StorePath:     os.Getenv("STORE_PATH"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),
		Target: TargetConfig{
			DSN:      os.Getenv("TARGET_DSN"),
			Host:     os.Getenv("TARGET_HOST"),
			Port:     parseIntEnv("TARGET_PORT", 5432),
			Database: os.Getenv("TARGET_DBNAME"),
			Username: os.Getenv("TARGET_USER"),
			Password: os.Getenv("TARGET_PASSWORD"),
			SSLMode:  os.Getenv("TARGET_SSLMODE"),
		},
		StatementTimeout: parseDurationEnv("STATEMENT_TIMEOUT", 30*time.Second),
		SessionTimeout:   parseDurationEnv("SESSION_TIMEOUT", 5*time.Minute),
		SandboxRowLimit:  parseIntEnv("SANDBOX_ROW_LIMIT", 0),
		SweepEvery:       parseDurationEnv("SWEEP_EVERY", time.Hour),
		Advisor: AdvisorConfig{
			RPS: parseFloatEnv("ADVISOR_RPS", 1),
			Gemini: ProviderConfig{
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				BaseURL: os.Getenv("GEMINI_BASE_URL"),
				Model:   os.Getenv("GEMINI_MODEL"),
			},
			DeepSeek: ProviderConfig{
				APIKey:  os.Getenv("DEEPSEEK_API_KEY"),
				BaseURL: os.Getenv("DEEPSEEK_BASE_URL"),
				Model:   os.Getenv("DEEPSEEK_MODEL"),
			},
			Groq: ProviderConfig{
				APIKey:  os.Getenv("GROQ_API_KEY"),
				BaseURL: os.Getenv("GROQ_BASE_URL"),
				Model:   os.Getenv("GROQ_MODEL"),
			},
			OpenAI: ProviderConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
				Model:   os.Getenv("OPENAI_MODEL"),
			},
		},
		RateLimitRPS:   parseFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: parseIntEnv("RATE_LIMIT_BURST", 20),
	}

	if v := os.Getenv("ADVISOR_ORDER"); v != "" {
		order := splitTrimmed(v)
		for _, name := range order {
			if !KnownProvider(name) {
				return nil, fmt.Errorf("ADVISOR_ORDER: unknown provider %q", name)
			}
		}
		cfg.Advisor.Order = order
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitTrimmed(v)
	}

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "pg_advisor.sqlite"
	}
	if cfg.Target.Host == "" {
		cfg.Target.Host = "localhost"
	}
	if cfg.Target.SSLMode == "" {
		cfg.Target.SSLMode = "prefer"
	}
	if len(cfg.Advisor.Order) == 0 {
		cfg.Advisor.Order = []string{"gemini", "deepseek", "groq", "openai"}
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.EncryptionKey == "" {
		cfg.EncryptionKey = InsecureDefaultKey
		cfg.Warnings = append(cfg.Warnings, "ENCRYPTION_KEY not set — using insecure default. Set ENCRYPTION_KEY in production!")
	}
	if cfg.Target.SSLMode != "" && !domain.ValidSSLMode(cfg.Target.SSLMode) {
		return nil, fmt.Errorf("TARGET_SSLMODE: unknown sslmode %q", cfg.Target.SSLMode)
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.EncryptionKey == InsecureDefaultKey {
			return nil, fmt.Errorf("ENCRYPTION_KEY must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func parseIntEnv(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func parseFloatEnv(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitTrimmed(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines are KEY=VALUE with an optional "export " prefix;
// comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
