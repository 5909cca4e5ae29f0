package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pg-advisor/internal/db"
	"pg-advisor/internal/domain"
)

// ConnectionRepo stores target-database connection profiles. Passwords
// arrive already encrypted; the repo never sees clear text.
type ConnectionRepo struct {
	write *sql.DB
	read  *sql.DB
}

var _ domain.ConnectionRepository = (*ConnectionRepo)(nil)

func NewConnectionRepo(pair *db.Pair) *ConnectionRepo {
	return &ConnectionRepo{write: pair.Write, read: pair.Read}
}

func (r *ConnectionRepo) Create(ctx context.Context, c *domain.Connection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.write.ExecContext(ctx,
		`INSERT INTO connections (name, host, port, dbname, username, password_enc, sslmode, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict("connection %q already exists", c.Name)
		}
		return err
	}
	return nil
}

func (r *ConnectionRepo) GetByName(ctx context.Context, name string) (*domain.Connection, error) {
	var c domain.Connection
	err := r.read.QueryRowContext(ctx,
		`SELECT name, host, port, dbname, username, password_enc, sslmode, created_at
		 FROM connections WHERE name = ?`, name).
		Scan(&c.Name, &c.Host, &c.Port, &c.Database, &c.Username, &c.Password, &c.SSLMode, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("connection %q not found", name)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ConnectionRepo) List(ctx context.Context) ([]domain.Connection, error) {
	rows, err := r.read.QueryContext(ctx,
		`SELECT name, host, port, dbname, username, password_enc, sslmode, created_at
		 FROM connections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var conns []domain.Connection
	for rows.Next() {
		var c domain.Connection
		if err := rows.Scan(&c.Name, &c.Host, &c.Port, &c.Database, &c.Username, &c.Password, &c.SSLMode, &c.CreatedAt); err != nil {
			return nil, err
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (r *ConnectionRepo) Delete(ctx context.Context, name string) error {
	res, err := r.write.ExecContext(ctx, `DELETE FROM connections WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("connection %q not found", name)
	}
	return nil
}
