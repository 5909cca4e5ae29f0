// Package pgdb provides access to the target PostgreSQL database: plan
// capture under EXPLAIN, catalog metadata lookups, and the DDL surface
// the sandbox needs. All access goes through database/sql backed by the
// pgx driver.
package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"pg-advisor/internal/domain"
)

// DB wraps a pooled connection to one target database.
type DB struct {
	sql         *sql.DB
	stmtTimeout time.Duration
	logger      *slog.Logger
}

// Options tune a target connection.
type Options struct {
	StatementTimeout time.Duration // 0 disables SET LOCAL statement_timeout
	MaxOpenConns     int           // 0 defaults to 4
	Logger           *slog.Logger
}

// Open connects to the target database described by dsn and verifies
// the connection with a short ping.
func Open(dsn string, opts Options) (*DB, error) {
	pool, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 4
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxOpen)
	pool.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &DB{sql: pool, stmtTimeout: opts.StatementTimeout, logger: logger}, nil
}

// FromSQL wraps an existing pool. Used by tests.
func FromSQL(pool *sql.DB, opts Options) *DB {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DB{sql: pool, stmtTimeout: opts.StatementTimeout, logger: logger}
}

// DSN builds a libpq-style URL for a stored connection.
func DSN(c domain.Connection) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   c.Host + ":" + strconv.Itoa(c.Port),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Close releases the pool.
func (d *DB) Close() error { return d.sql.Close() }

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.sql.PingContext(ctx); err != nil {
		return domain.ErrExecution("ping target database: %s", err)
	}
	return nil
}

// ExplainAnalyze runs the query under EXPLAIN (ANALYZE, BUFFERS,
// FORMAT JSON) inside a rolled-back transaction and returns the raw
// JSON document. The configured statement timeout applies via
// SET LOCAL so it never leaks onto pooled connections.
func (d *DB) ExplainAnalyze(ctx context.Context, query string) ([]byte, error) {
	return d.explainAnalyze(ctx, "", query)
}

// ExplainAnalyzeIn is ExplainAnalyze with search_path pinned to the
// given schema (then public) for the duration of the transaction.
func (d *DB) ExplainAnalyzeIn(ctx context.Context, schema, query string) ([]byte, error) {
	return d.explainAnalyze(ctx, schema, query)
}

func (d *DB) explainAnalyze(ctx context.Context, schema, query string) ([]byte, error) {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return nil, mapExecError(err, "begin explain transaction")
	}
	defer tx.Rollback() //nolint:errcheck

	if d.stmtTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", d.stmtTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, mapExecError(err, "set statement timeout")
		}
	}
	if schema != "" {
		stmt := fmt.Sprintf("SET LOCAL search_path = %s, public", quoteIdent(schema))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return nil, mapExecError(err, "set search path")
		}
	}

	var raw []byte
	err = tx.QueryRowContext(ctx, "EXPLAIN (ANALYZE, BUFFERS, FORMAT JSON) "+query).Scan(&raw)
	if err != nil {
		return nil, mapExecError(err, "explain analyze")
	}
	return raw, nil
}

// TableColumns returns column metadata from information_schema.
func (d *DB) TableColumns(ctx context.Context, schema, table string) ([]domain.ColumnInfo, error) {
	const q = `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := d.sql.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, mapExecError(err, "list columns")
	}
	defer rows.Close() //nolint:errcheck

	var cols []domain.ColumnInfo
	for rows.Next() {
		var c domain.ColumnInfo
		var nullable string
		if err := rows.Scan(&c.Name, &c.DataType, &nullable); err != nil {
			return nil, mapExecError(err, "scan column")
		}
		c.Nullable = nullable == "YES"
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapExecError(err, "list columns")
	}
	return cols, nil
}

// TableIndexes returns index definitions from pg_indexes.
func (d *DB) TableIndexes(ctx context.Context, schema, table string) ([]domain.IndexInfo, error) {
	const q = `
		SELECT indexname, indexdef
		FROM pg_indexes
		WHERE schemaname = $1 AND tablename = $2
		ORDER BY indexname`

	rows, err := d.sql.QueryContext(ctx, q, schema, table)
	if err != nil {
		return nil, mapExecError(err, "list indexes")
	}
	defer rows.Close() //nolint:errcheck

	var idxs []domain.IndexInfo
	for rows.Next() {
		var ix domain.IndexInfo
		if err := rows.Scan(&ix.Name, &ix.Definition); err != nil {
			return nil, mapExecError(err, "scan index")
		}
		idxs = append(idxs, ix)
	}
	if err := rows.Err(); err != nil {
		return nil, mapExecError(err, "list indexes")
	}
	return idxs, nil
}

// TableRowEstimate returns the planner's row estimate from pg_class.
// Fresh tables that were never analyzed report -1 or 0; callers treat
// the value as approximate.
func (d *DB) TableRowEstimate(ctx context.Context, schema, table string) (int64, error) {
	const q = `
		SELECT c.reltuples::bigint
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2`

	var estimate int64
	err := d.sql.QueryRowContext(ctx, q, schema, table).Scan(&estimate)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrExecution("table %s.%s does not exist", schema, table)
	}
	if err != nil {
		return 0, mapExecError(err, "estimate rows")
	}
	if estimate < 0 {
		estimate = 0
	}
	return estimate, nil
}

// Exec runs a single statement. Sandbox DDL and cleanup go through
// here.
func (d *DB) Exec(ctx context.Context, stmt string, args ...interface{}) error {
	if _, err := d.sql.ExecContext(ctx, stmt, args...); err != nil {
		return mapExecError(err, "exec")
	}
	return nil
}

// ListSchemas returns schema names matching the given anchored regular
// expression. The sweeper uses it to find leaked sandbox schemas.
func (d *DB) ListSchemas(ctx context.Context, pattern string) ([]string, error) {
	const q = `SELECT nspname FROM pg_namespace WHERE nspname ~ $1 ORDER BY nspname`

	rows, err := d.sql.QueryContext(ctx, q, pattern)
	if err != nil {
		return nil, mapExecError(err, "list schemas")
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapExecError(err, "scan schema")
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, mapExecError(err, "list schemas")
	}
	return names, nil
}

// SplitQualified splits "schema.table" into its parts, defaulting the
// schema to public.
func SplitQualified(name string) (schema, table string) {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "public", name
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// mapExecError converts driver errors into the domain taxonomy.
// Statement-timeout cancellation surfaces as a TimeoutError so the
// session loop can distinguish slow queries from broken ones.
func mapExecError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout("%s: %s", op, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "statement timeout") || strings.Contains(msg, "canceling statement") {
		return domain.ErrTimeout("%s: %s", op, err)
	}
	return domain.ErrExecution("%s: %s", op, err)
}
