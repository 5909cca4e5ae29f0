// Package api serves the REST surface: query validation and analysis,
// optimization sessions, stored connections, and health.
package api

import (
	"context"
	"log/slog"

	"pg-advisor/internal/analyzer"
	"pg-advisor/internal/domain"
	"pg-advisor/internal/service"
	"pg-advisor/internal/sqlcheck"
)

// Optimizer is the slice of service.OptimizeService the handlers call.
type Optimizer interface {
	Validate(sql string) (*sqlcheck.Result, error)
	Analyze(ctx context.Context, sql, connection string) (*analyzer.Report, error)
	Optimize(ctx context.Context, sql, connection string) (*domain.Conclusion, error)
	OptimizeAsync(ctx context.Context, sql, connection string) (string, error)
	CancelSession(id string) error
	Session(ctx context.Context, id string) (*domain.Session, error)
	Sessions(ctx context.Context, limit, offset int) ([]domain.Session, int64, error)
	SessionAttempts(ctx context.Context, id string) ([]domain.Attempt, error)
	SessionRecommendations(ctx context.Context, id string) ([]domain.Recommendation, error)
	Invalidate(name string)
	Ping(ctx context.Context) error
}

// Connections is the slice of service.ConnectionService the handlers call.
type Connections interface {
	Create(ctx context.Context, req service.CreateConnectionRequest) (*domain.Connection, error)
	Get(ctx context.Context, name string) (*domain.Connection, error)
	List(ctx context.Context) ([]domain.Connection, error)
	Delete(ctx context.Context, name string) error
	Test(ctx context.Context, name string) error
}

var (
	_ Optimizer   = (*service.OptimizeService)(nil)
	_ Connections = (*service.ConnectionService)(nil)
)

// PingFunc reports whether a backing store is reachable.
type PingFunc func(ctx context.Context) error

// Handler carries the services the routes are wired to.
type Handler struct {
	svc       Optimizer
	conns     Connections
	storePing PingFunc
	logger    *slog.Logger
}

// NewHandler builds the API handler. storePing checks the history
// store for /healthz and may be nil.
func NewHandler(svc Optimizer, conns Connections, storePing PingFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:       svc,
		conns:     conns,
		storePing: storePing,
		logger:    logger.With("component", "api"),
	}
}
