// Package db opens and migrates the SQLite history store that keeps
// optimization sessions, their attempts, and saved connection profiles.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"
)

// DSN hardening applied to every pool.
const (
	busyTimeoutMs = "5000"
	synchronous   = "NORMAL"
	journalMode   = "WAL"
)

// Pair is the write/read pool pair over one SQLite file. SQLite allows
// a single writer, so the write pool is pinned to one connection while
// reads fan out over their own pool.
type Pair struct {
	Write *sql.DB
	Read  *sql.DB
}

// Open opens both pools for the history file at path. readMaxOpen
// sizes the read pool; 0 means 4.
func Open(path string, readMaxOpen int) (*Pair, error) {
	write, err := open(path, true, 1)
	if err != nil {
		return nil, fmt.Errorf("open history store (write): %w", err)
	}

	if readMaxOpen <= 0 {
		readMaxOpen = 4
	}
	read, err := open(path, false, readMaxOpen)
	if err != nil {
		_ = write.Close()
		return nil, fmt.Errorf("open history store (read): %w", err)
	}

	return &Pair{Write: write, Read: read}, nil
}

// Close closes both pools and reports the first error.
func (p *Pair) Close() error {
	werr := p.Write.Close()
	rerr := p.Read.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

func open(path string, writable bool, maxOpen int) (*sql.DB, error) {
	pool, err := sql.Open("sqlite3", buildDSN(path, writable))
	if err != nil {
		return nil, err
	}
	pool.SetMaxOpenConns(maxOpen)
	pool.SetMaxIdleConns(maxOpen)
	pool.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return pool, nil
}

// buildDSN appends the hardening parameters: WAL journaling, a busy
// timeout so concurrent access waits instead of failing with
// SQLITE_BUSY, NORMAL fsync, and enforced foreign keys. The write pool
// additionally takes the immediate transaction lock up front.
func buildDSN(path string, writable bool) string {
	params := url.Values{}
	params.Set("_journal_mode", journalMode)
	params.Set("_busy_timeout", busyTimeoutMs)
	params.Set("_synchronous", synchronous)
	params.Set("_foreign_keys", "on")
	if writable {
		params.Set("_txlock", "immediate")
	}
	return path + "?" + params.Encode()
}
