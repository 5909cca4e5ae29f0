// Package service holds the application services in front of the
// repositories: stored-connection management and the optimization
// entrypoints the API and CLI call.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"pg-advisor/internal/db/crypto"
	"pg-advisor/internal/domain"
	"pg-advisor/internal/pgdb"
)

// PingFunc checks connectivity to a target DSN. The default
// implementation dials through pgdb; tests inject their own.
type PingFunc func(ctx context.Context, dsn string) error

// ConnectionService manages stored target connections. Passwords are
// sealed before they reach the repository and stripped from everything
// the service returns; only Resolve hands back clear text, for callers
// that dial the target.
type ConnectionService struct {
	repo   domain.ConnectionRepository
	enc    *crypto.Encryptor
	ping   PingFunc
	logger *slog.Logger
}

// NewConnectionService builds the service. ping may be nil, disabling
// Test with an ExecutionError instead of a dial.
func NewConnectionService(repo domain.ConnectionRepository, enc *crypto.Encryptor, ping PingFunc, logger *slog.Logger) *ConnectionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionService{
		repo:   repo,
		enc:    enc,
		ping:   ping,
		logger: logger.With("component", "connections"),
	}
}

// CreateConnectionRequest carries the fields for a new stored connection.
type CreateConnectionRequest struct {
	Name     string `json:"name"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Database string `json:"database"`
	Username string `json:"username"`
	Password string `json:"password"`
	SSLMode  string `json:"ssl_mode"`
}

// Create validates and persists a new stored connection. The returned
// connection never carries the password.
func (s *ConnectionService) Create(ctx context.Context, req CreateConnectionRequest) (*domain.Connection, error) {
	if req.Name == "" {
		return nil, domain.ErrValidation("connection name is required")
	}
	if req.Database == "" {
		return nil, domain.ErrValidation("database name is required")
	}
	if req.Host == "" {
		req.Host = "localhost"
	}
	if req.Port == 0 {
		req.Port = 5432
	}
	if req.Port < 1 || req.Port > 65535 {
		return nil, domain.ErrValidation("port %d is out of range", req.Port)
	}
	if req.SSLMode == "" {
		req.SSLMode = "prefer"
	}
	if !domain.ValidSSLMode(req.SSLMode) {
		return nil, domain.ErrValidation("unknown sslmode %q", req.SSLMode)
	}

	sealed, err := s.enc.Encrypt(req.Password)
	if err != nil {
		return nil, fmt.Errorf("seal password: %w", err)
	}

	conn := &domain.Connection{
		Name:     req.Name,
		Host:     req.Host,
		Port:     req.Port,
		Database: req.Database,
		Username: req.Username,
		Password: sealed,
		SSLMode:  req.SSLMode,
	}
	if err := s.repo.Create(ctx, conn); err != nil {
		return nil, err
	}

	s.logger.Info("connection stored", "name", conn.Name, "host", conn.Host, "database", conn.Database)
	return redacted(conn), nil
}

// Get returns a stored connection without its password.
func (s *ConnectionService) Get(ctx context.Context, name string) (*domain.Connection, error) {
	conn, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return redacted(conn), nil
}

// List returns all stored connections without passwords.
func (s *ConnectionService) List(ctx context.Context) ([]domain.Connection, error) {
	conns, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range conns {
		conns[i].Password = ""
	}
	return conns, nil
}

// Delete removes a stored connection.
func (s *ConnectionService) Delete(ctx context.Context, name string) error {
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info("connection removed", "name", name)
	return nil
}

// Test dials the stored connection and reports whether it answers.
func (s *ConnectionService) Test(ctx context.Context, name string) error {
	if s.ping == nil {
		return domain.ErrExecution("connection testing is not available")
	}
	conn, err := s.Resolve(ctx, name)
	if err != nil {
		return err
	}
	if err := s.ping(ctx, pgdb.DSN(*conn)); err != nil {
		return domain.ErrExecution("connection %q failed: %s", name, err)
	}
	return nil
}

// Resolve returns a stored connection with the password opened. For
// internal callers that need to dial; never exposed over the API.
func (s *ConnectionService) Resolve(ctx context.Context, name string) (*domain.Connection, error) {
	conn, err := s.repo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	password, err := s.enc.Decrypt(conn.Password)
	if err != nil {
		return nil, fmt.Errorf("open stored password for %q: %w", name, err)
	}
	conn.Password = password
	return conn, nil
}

func redacted(c *domain.Connection) *domain.Connection {
	out := *c
	out.Password = ""
	return &out
}
