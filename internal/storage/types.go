// Package storage implements the scout state store: the durable record of
// every scout, its latest source snapshot, its detected events, its daily
// email counter, and the engine's step checkpoints. One shared PostgreSQL
// database backs every scout; logical isolation between scouts is enforced
// by scout_id partitioning in every query plus the single-writer lock in
// ScoutLocks, not by separate databases or schemas.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	postgresDriver = "postgres"
	ctxTimeout     = 5 * time.Second
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound is returned when no scout exists with the requested ID.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when creating a scout whose ID already exists.
	ErrAlreadyExists = errors.New("already exists")
)

// Connection wraps a pooled *sql.DB with the health-check and lifecycle
// conventions the rest of the service expects.
type Connection struct {
	*sql.DB
}

// NewConnection opens a PostgreSQL connection pool and verifies it's reachable.
func NewConnection(config *Config) (*Connection, error) {
	db, err := sql.Open(postgresDriver, config.databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	return &Connection{db}, nil
}

// HealthCheck pings the database with a bounded timeout.
func (c *Connection) HealthCheck(ctx context.Context) error { //nolint: contextcheck
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), ctxTimeout)

		defer cancel()
	}

	return c.PingContext(ctx)
}

// Close closes the connection pool. Safe to call multiple times.
func (c *Connection) Close() error {
	return c.DB.Close()
}

// Stats returns connection pool statistics for monitoring.
func (c *Connection) Stats() sql.DBStats {
	return c.DB.Stats()
}
