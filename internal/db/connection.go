// Package db stores the sales warehouse in PostgreSQL.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// DefaultMaxConns bounds the pool. Loads run one table at a time, so a
// handful of connections is enough.
const DefaultMaxConns = 4

// applyPoolDefaults sets the pool limits used for every warehouse pool.
func applyPoolDefaults(config *pgxpool.Config, maxConns int32) {
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}
	config.MaxConns = maxConns
	config.MinConns = min(1, maxConns)
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second
}

// Connect establishes a connection pool to the warehouse database.
// maxConns <= 0 selects DefaultMaxConns.
func Connect(ctx context.Context, connString string, maxConns int32) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	applyPoolDefaults(config, maxConns)

	logging.Debug().
		Str("host", config.ConnConfig.Host).
		Uint16("port", config.ConnConfig.Port).
		Str("database", config.ConnConfig.Database).
		Int32("max_conns", config.MaxConns).
		Msg("Connecting to warehouse")

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logging.Info().
		Str("host", config.ConnConfig.Host).
		Str("database", config.ConnConfig.Database).
		Msg("Connected to warehouse")

	return pool, nil
}
