package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pg-advisor/internal/analyzer"
	"pg-advisor/internal/domain"
	"pg-advisor/internal/optimizer"
	"pg-advisor/internal/pgdb"
	"pg-advisor/internal/sandbox"
	"pg-advisor/internal/sqlcheck"
)

// Runner is the slice of optimizer.Engine the service drives.
type Runner interface {
	Run(ctx context.Context, target optimizer.Target, query string) (*domain.Conclusion, error)
	RunAsync(target optimizer.Target, query string) (string, error)
	Cancel(id string) error
	Status(id string) (domain.SessionState, bool)
}

// OpenTargetFunc dials a target database. Tests swap in pools backed
// by sqlmock.
type OpenTargetFunc func(dsn string) (*pgdb.DB, error)

// OptimizeOptions configures the optimization service.
type OptimizeOptions struct {
	DefaultDSN       string // target used when no connection name is given
	StatementTimeout time.Duration
	SandboxRowLimit  int64
	Open             OpenTargetFunc // nil dials through pgdb.Open
	Logger           *slog.Logger
}

// OptimizeService is the entrypoint the API and CLI talk to: validate
// and analyze queries, start and track optimization sessions, and read
// session history. Target pools are opened once per connection name and
// reused across sessions.
type OptimizeService struct {
	engine   Runner
	conns    *ConnectionService
	sessions domain.SessionRepository

	defaultDSN  string
	stmtTimeout time.Duration
	rowLimit    int64
	open        OpenTargetFunc
	logger      *slog.Logger

	mu       sync.Mutex
	pools    map[string]*pgdb.DB
	managers map[string]*sandbox.Manager
}

// NewOptimizeService builds the service around an engine and the
// connection service used to resolve named targets.
func NewOptimizeService(engine Runner, conns *ConnectionService, sessions domain.SessionRepository, opts OptimizeOptions) *OptimizeService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := opts.Open
	if open == nil {
		open = func(dsn string) (*pgdb.DB, error) {
			return pgdb.Open(dsn, pgdb.Options{
				StatementTimeout: opts.StatementTimeout,
				Logger:           logger,
			})
		}
	}
	return &OptimizeService{
		engine:      engine,
		conns:       conns,
		sessions:    sessions,
		defaultDSN:  opts.DefaultDSN,
		stmtTimeout: opts.StatementTimeout,
		rowLimit:    opts.SandboxRowLimit,
		open:        open,
		logger:      logger.With("component", "optimize"),
		pools:       make(map[string]*pgdb.DB),
		managers:    make(map[string]*sandbox.Manager),
	}
}

// Validate checks a query without touching any database.
func (s *OptimizeService) Validate(sql string) (*sqlcheck.Result, error) {
	return sqlcheck.Validate(sql)
}

// Analyze validates the query and measures its baseline on the target.
func (s *OptimizeService) Analyze(ctx context.Context, sql, connection string) (*analyzer.Report, error) {
	check, err := sqlcheck.Validate(sql)
	if err != nil {
		return nil, err
	}
	target, err := s.targetFor(ctx, connection)
	if err != nil {
		return nil, err
	}
	return target.Analyzer.Analyze(ctx, sql, check.Tables)
}

// Optimize runs a full session synchronously and returns its conclusion.
func (s *OptimizeService) Optimize(ctx context.Context, sql, connection string) (*domain.Conclusion, error) {
	target, err := s.targetFor(ctx, connection)
	if err != nil {
		return nil, err
	}
	return s.engine.Run(ctx, target, sql)
}

// OptimizeAsync starts a session in the background and returns its id.
func (s *OptimizeService) OptimizeAsync(ctx context.Context, sql, connection string) (string, error) {
	target, err := s.targetFor(ctx, connection)
	if err != nil {
		return "", err
	}
	return s.engine.RunAsync(target, sql)
}

// CancelSession cancels a running session.
func (s *OptimizeService) CancelSession(id string) error {
	return s.engine.Cancel(id)
}

// Session returns one session. Running sessions report their live
// state; concluded ones come straight from the store.
func (s *OptimizeService) Session(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if state, running := s.engine.Status(id); running {
		sess.State = state
	}
	return sess, nil
}

// Sessions lists recent sessions, newest first.
func (s *OptimizeService) Sessions(ctx context.Context, limit, offset int) ([]domain.Session, int64, error) {
	return s.sessions.List(ctx, limit, offset)
}

// SessionAttempts returns the tested attempts of a session.
func (s *OptimizeService) SessionAttempts(ctx context.Context, id string) ([]domain.Attempt, error) {
	if _, err := s.sessions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.sessions.ListAttempts(ctx, id)
}

// SessionRecommendations returns the advisor recommendations of a session.
func (s *OptimizeService) SessionRecommendations(ctx context.Context, id string) ([]domain.Recommendation, error) {
	if _, err := s.sessions.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.sessions.ListRecommendations(ctx, id)
}

// SweepOrphans drops leaked sandbox schemas on every open target.
func (s *OptimizeService) SweepOrphans(ctx context.Context, olderThan time.Duration) int {
	s.mu.Lock()
	managers := make([]*sandbox.Manager, 0, len(s.managers))
	for _, m := range s.managers {
		managers = append(managers, m)
	}
	s.mu.Unlock()

	total := 0
	for _, m := range managers {
		n, err := m.SweepOrphans(ctx, olderThan)
		if err != nil {
			s.logger.Warn("orphan sweep failed", "error", err)
			continue
		}
		total += n
	}
	return total
}

// Ping verifies the default target answers. Used by the health check;
// no default target configured is not an error.
func (s *OptimizeService) Ping(ctx context.Context) error {
	if s.defaultDSN == "" {
		return nil
	}
	pool, _, err := s.pool(connKeyDefault, s.defaultDSN)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// Invalidate drops the cached pool for a connection whose settings
// changed or which was deleted.
func (s *OptimizeService) Invalidate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pool, ok := s.pools[name]; ok {
		_ = pool.Close()
		delete(s.pools, name)
		delete(s.managers, name)
	}
}

// Close releases every cached target pool.
func (s *OptimizeService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for name, pool := range s.pools {
		if err := pool.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.pools, name)
		delete(s.managers, name)
	}
	return first
}

const connKeyDefault = "default"

// targetFor resolves a connection name into an optimizer target backed
// by a cached pool. An empty name uses the configured default target.
func (s *OptimizeService) targetFor(ctx context.Context, connection string) (optimizer.Target, error) {
	name := connection
	dsn := ""
	switch {
	case connection == "" || connection == connKeyDefault:
		if s.defaultDSN == "" {
			return optimizer.Target{}, domain.ErrValidation("no target database configured; name a stored connection")
		}
		name, dsn = connKeyDefault, s.defaultDSN
	default:
		conn, err := s.conns.Resolve(ctx, connection)
		if err != nil {
			return optimizer.Target{}, err
		}
		dsn = pgdb.DSN(*conn)
	}

	pool, mgr, err := s.pool(name, dsn)
	if err != nil {
		return optimizer.Target{}, domain.ErrExecution("connect to %q: %s", name, err)
	}

	return optimizer.Target{
		Connection: name,
		Analyzer:   analyzer.New(pool, s.logger),
		Sandboxes: func(ctx context.Context, tables []string) (optimizer.Sandbox, error) {
			return mgr.Create(ctx, tables)
		},
	}, nil
}

// pool returns the cached pool and sandbox manager for name, opening
// them on first use.
func (s *OptimizeService) pool(name, dsn string) (*pgdb.DB, *sandbox.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pool, ok := s.pools[name]; ok {
		return pool, s.managers[name], nil
	}
	pool, err := s.open(dsn)
	if err != nil {
		return nil, nil, err
	}
	s.pools[name] = pool
	s.managers[name] = sandbox.NewManager(pool, s.rowLimit, s.logger)
	return pool, s.managers[name], nil
}
