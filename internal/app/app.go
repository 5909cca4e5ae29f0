// Package app provides application-level wiring: it assembles the
// history store, stored-connection service, advisor chain, and
// optimization engine into the services the server and CLI run on.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"pg-advisor/internal/advisor"
	"pg-advisor/internal/config"
	"pg-advisor/internal/db"
	"pg-advisor/internal/db/crypto"
	"pg-advisor/internal/optimizer"
	"pg-advisor/internal/pgdb"
	"pg-advisor/internal/service"
	"pg-advisor/internal/store"
)

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create
// itself: config and the already-open history store.
type Deps struct {
	Cfg    *config.Config
	Store  *db.Pair
	Logger *slog.Logger
}

// Services groups the service pointers the API handler and CLI need.
type Services struct {
	Optimize    *service.OptimizeService
	Connections *service.ConnectionService
}

// App is the fully wired application.
type App struct {
	Cfg      *config.Config
	Services Services
	Logger   *slog.Logger

	store *db.Pair
}

// New wires the application. The store must already be open; schema
// migrations run here so every entrypoint sees a current schema.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// === History store ===
	if err := db.Migrate(deps.Store.Write); err != nil {
		return nil, fmt.Errorf("migrate history store: %w", err)
	}
	connRepo := store.NewConnectionRepo(deps.Store)
	sessionRepo := store.NewSessionRepo(deps.Store)

	// Sessions interrupted by a previous crash are still marked as
	// running in the store. Close them out so history stays truthful.
	// Best-effort: a failure here should not block startup.
	if n, err := sessionRepo.FailInterrupted(context.Background(), "interrupted by server restart"); err != nil {
		logger.Warn("failed to close interrupted sessions", "error", err)
	} else if n > 0 {
		logger.Info("closed interrupted sessions from previous run", "count", n)
	}

	// === Stored connections ===
	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	ping := func(ctx context.Context, dsn string) error {
		target, err := pgdb.Open(dsn, pgdb.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer target.Close()
		return target.Ping(ctx)
	}
	connSvc := service.NewConnectionService(connRepo, encryptor, ping, logger)

	// === Advisor chain ===
	providers, err := buildProviders(cfg.Advisor)
	if err != nil {
		return nil, err
	}
	gateway, err := advisor.NewGateway(providers, cfg.Advisor.RPS, logger)
	if err != nil {
		return nil, fmt.Errorf("advisor gateway: %w", err)
	}
	logger.Info("advisor chain ready", "providers", gateway.Providers())

	// === Optimization engine ===
	engine := optimizer.New(gateway, sessionRepo, optimizer.Config{
		SessionTimeout: cfg.SessionTimeout,
	}, logger)

	var defaultDSN string
	if cfg.Target.Configured() {
		defaultDSN = cfg.Target.DSN
		if defaultDSN == "" {
			defaultDSN = pgdb.DSN(cfg.Target.Connection())
		}
	}
	optSvc := service.NewOptimizeService(engine, connSvc, sessionRepo, service.OptimizeOptions{
		DefaultDSN:       defaultDSN,
		StatementTimeout: cfg.StatementTimeout,
		SandboxRowLimit:  int64(cfg.SandboxRowLimit),
		Logger:           logger,
	})

	return &App{
		Cfg: cfg,
		Services: Services{
			Optimize:    optSvc,
			Connections: connSvc,
		},
		Logger: logger,
		store:  deps.Store,
	}, nil
}

// buildProviders constructs the advisor chain in the configured order.
// Providers without an API key are skipped; at least one must remain.
func buildProviders(cfg config.AdvisorConfig) ([]advisor.Provider, error) {
	var providers []advisor.Provider
	for _, name := range cfg.Order {
		switch name {
		case "gemini":
			if cfg.Gemini.APIKey != "" {
				providers = append(providers, advisor.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.BaseURL, cfg.Gemini.Model))
			}
		case "deepseek":
			if cfg.DeepSeek.APIKey != "" {
				providers = append(providers, advisor.NewDeepSeek(cfg.DeepSeek.APIKey, cfg.DeepSeek.BaseURL, cfg.DeepSeek.Model))
			}
		case "groq":
			if cfg.Groq.APIKey != "" {
				providers = append(providers, advisor.NewGroq(cfg.Groq.APIKey, cfg.Groq.BaseURL, cfg.Groq.Model))
			}
		case "openai":
			if cfg.OpenAI.APIKey != "" {
				providers = append(providers, advisor.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model))
			}
		default:
			return nil, fmt.Errorf("advisor order: unknown provider %q", name)
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no advisor provider configured: set at least one of GEMINI_API_KEY, DEEPSEEK_API_KEY, GROQ_API_KEY, OPENAI_API_KEY")
	}
	return providers, nil
}

// StorePing reports history-store health. The health endpoint uses it.
func (a *App) StorePing(ctx context.Context) error {
	return a.store.Read.PingContext(ctx)
}

// Close releases pooled target connections and their sandbox managers.
// The history store itself is owned and closed by main.
func (a *App) Close() error {
	return a.Services.Optimize.Close()
}
