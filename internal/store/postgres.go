// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package store opens the Postgres and Redis connections and owns the schema
// migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// PostgresConfig configures Connect.
type PostgresConfig struct {
	URL      string
	MaxConns int32
	// Attempts bounds how often Connect retries an unreachable database.
	Attempts uint64
	// BaseDelay is the first retry delay. It doubles per attempt up to 5s.
	BaseDelay time.Duration
}

const defaultBaseDelay = 250 * time.Millisecond

// Connect opens a pool and pings the database, retrying with exponential
// backoff while the server is not yet accepting connections.
func Connect(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool.Ping, cfg, logger); err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("host", poolCfg.ConnConfig.Host).
			With("attempts", cfg.Attempts).
			Wrap(err)
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, ping func(context.Context) error, cfg PostgresConfig, logger *slog.Logger) error {
	base := cfg.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(attempts-1, retry.WithCappedDuration(5*time.Second, retry.NewExponential(base)))

	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := ping(pingCtx); err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}
