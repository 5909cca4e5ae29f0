// Package sandbox provisions throwaway schemas on the target database
// where candidate indexes and rewritten queries are tested without
// touching production objects.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pg-advisor/internal/domain"
	"pg-advisor/internal/pgdb"
	"pg-advisor/internal/planreader"
	"pg-advisor/internal/sqlcheck"
)

const namePrefix = "temp_test_"

// destroyTimeout bounds schema teardown. Destroy detaches from the
// session context, which may already be canceled when cleanup runs.
const destroyTimeout = 30 * time.Second

// Executor is the slice of pgdb.DB the sandbox needs.
type Executor interface {
	Exec(ctx context.Context, stmt string, args ...interface{}) error
	ExplainAnalyzeIn(ctx context.Context, schema, query string) ([]byte, error)
	ListSchemas(ctx context.Context, pattern string) ([]string, error)
}

// Manager creates sandboxes on one target database and tracks the live
// ones so the orphan sweeper leaves them alone.
type Manager struct {
	db       Executor
	rowLimit int64
	logger   *slog.Logger

	mu     sync.Mutex
	active map[string]time.Time
}

// NewManager returns a Manager cloning at most rowLimit rows per table
// (0 copies everything).
func NewManager(db Executor, rowLimit int64, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:       db,
		rowLimit: rowLimit,
		logger:   logger.With("component", "sandbox"),
		active:   make(map[string]time.Time),
	}
}

// Sandbox is one temp_test_<hex> schema holding cloned tables.
type Sandbox struct {
	Name   string
	Tables []string

	manager *Manager
	cloned  map[string]string // source name as referenced -> bare clone name
	destroy sync.Once
}

// Create provisions a new schema and clones the given tables into it.
// On any failure the half-built schema is dropped before returning.
func (m *Manager) Create(ctx context.Context, tables []string) (*Sandbox, error) {
	name := namePrefix + uuid.NewString()[:8]

	if err := m.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+sqlcheck.QuoteIdentifier(name)); err != nil {
		return nil, domain.ErrSandbox("create schema %s: %s", name, err)
	}
	m.track(name)

	sb := &Sandbox{
		Name:    name,
		Tables:  tables,
		manager: m,
		cloned:  make(map[string]string, len(tables)),
	}

	for _, src := range tables {
		if err := m.cloneTable(ctx, sb, src); err != nil {
			if dropErr := m.drop(context.WithoutCancel(ctx), name); dropErr != nil {
				m.logger.Warn("rollback of failed sandbox did not drop schema", "schema", name, "error", dropErr)
			}
			m.untrack(name)
			return nil, err
		}
	}

	m.logger.Info("sandbox created", "schema", name, "tables", len(tables))
	return sb, nil
}

// cloneTable copies structure and data of one source table into the
// sandbox. A table referenced under several spellings is cloned once.
func (m *Manager) cloneTable(ctx context.Context, sb *Sandbox, src string) error {
	_, bare := pgdb.SplitQualified(src)
	if sb.hasClone(bare) {
		sb.cloned[src] = bare
		return nil
	}

	clone := sqlcheck.QuoteIdentifier(sb.Name) + "." + sqlcheck.QuoteIdentifier(bare)

	ddl := fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS INCLUDING STORAGE)", clone, quoteQualified(src))
	if err := m.db.Exec(ctx, ddl); err != nil {
		return domain.ErrSandbox("clone table %s: %s", src, err)
	}

	copySQL := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", clone, quoteQualified(src))
	if m.rowLimit > 0 {
		copySQL += fmt.Sprintf(" LIMIT %d", m.rowLimit)
	}
	if err := m.db.Exec(ctx, copySQL); err != nil {
		return domain.ErrSandbox("copy rows into %s: %s", clone, err)
	}

	sb.cloned[src] = bare
	return nil
}

// ExplainInside measures a query against the cloned tables. The query
// is rewritten so every cloned relation resolves inside the sandbox,
// and search_path is pinned to the sandbox schema for the run.
func (s *Sandbox) ExplainInside(ctx context.Context, sql string) (*planreader.Explain, error) {
	rewritten, err := s.Rewrite(sql)
	if err != nil {
		return nil, err
	}

	raw, err := s.manager.db.ExplainAnalyzeIn(ctx, s.Name, rewritten)
	if err != nil {
		return nil, err
	}

	explain, err := planreader.Parse(raw)
	if err != nil {
		return nil, domain.ErrSandbox("parse sandbox explain output: %s", err)
	}
	return explain, nil
}

// Destroy drops the sandbox schema. Safe to call repeatedly and from
// deferred paths: only the first call touches the database, and it runs
// detached from the session context so a timed-out session still
// cleans up.
func (s *Sandbox) Destroy(ctx context.Context) error {
	var err error
	s.destroy.Do(func() {
		dropErr := s.manager.drop(context.WithoutCancel(ctx), s.Name)
		s.manager.untrack(s.Name)
		if dropErr != nil {
			err = domain.ErrSandbox("drop schema %s: %s", s.Name, dropErr)
			return
		}
		s.manager.logger.Info("sandbox destroyed", "schema", s.Name)
	})
	return err
}

// SweepOrphans drops temp_test_ schemas that no live session owns.
// Schemas created by this process are spared until olderThan has
// passed; schemas without a registry entry belonged to a dead process
// and are dropped unconditionally.
func (m *Manager) SweepOrphans(ctx context.Context, olderThan time.Duration) (int, error) {
	schemas, err := m.db.ListSchemas(ctx, "^"+namePrefix+"[0-9a-f]{8}$")
	if err != nil {
		return 0, domain.ErrSandbox("list sandbox schemas: %s", err)
	}

	dropped := 0
	for _, schema := range schemas {
		if m.isRecent(schema, olderThan) {
			continue
		}
		if err := m.drop(ctx, schema); err != nil {
			m.logger.Warn("orphan sweep could not drop schema", "schema", schema, "error", err)
			continue
		}
		m.untrack(schema)
		dropped++
	}

	if dropped > 0 {
		m.logger.Info("swept orphan sandboxes", "count", dropped)
	}
	return dropped, nil
}

func (m *Manager) drop(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, destroyTimeout)
	defer cancel()
	return m.db.Exec(ctx, "DROP SCHEMA IF EXISTS "+sqlcheck.QuoteIdentifier(name)+" CASCADE")
}

func (m *Manager) track(name string) {
	m.mu.Lock()
	m.active[name] = time.Now()
	m.mu.Unlock()
}

func (m *Manager) untrack(name string) {
	m.mu.Lock()
	delete(m.active, name)
	m.mu.Unlock()
}

func (m *Manager) isRecent(name string, olderThan time.Duration) bool {
	m.mu.Lock()
	created, ok := m.active[name]
	m.mu.Unlock()
	return ok && time.Since(created) < olderThan
}

func (s *Sandbox) hasClone(bare string) bool {
	for _, b := range s.cloned {
		if b == bare {
			return true
		}
	}
	return false
}

// suffix is the hex part of the sandbox name, used to decollide index
// names created inside the sandbox.
func (s *Sandbox) suffix() string {
	return strings.TrimPrefix(s.Name, namePrefix)
}

func quoteQualified(name string) string {
	schema, table := pgdb.SplitQualified(name)
	return sqlcheck.QuoteIdentifier(schema) + "." + sqlcheck.QuoteIdentifier(table)
}
