// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/pinvent/pinvent/internal/observability"
	"github.com/pinvent/pinvent/internal/store"
)

// Database is the part of *pgxpool.Pool the commands use.
type Database interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// AutoMigrator applies pending migrations on startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer is the metrics and health endpoint.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

// Deps contains injectable dependencies for serve and worker.
// All fields with nil values will use their default implementations.
type Deps struct {
	// DatabaseFactory opens the Postgres pool.
	// Default: store.Connect
	DatabaseFactory func(ctx context.Context, cfg store.PostgresConfig, logger *slog.Logger) (Database, error)

	// RedisFactory opens the Redis client backing the logout denylist.
	// Default: store.ConnectRedis
	RedisFactory func(ctx context.Context, cfg store.RedisConfig) (*redis.Client, error)

	// MigratorFactory opens a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, metrics *observability.Metrics, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// Listen opens the API listener.
	// Default: net.Listen
	Listen func(network, address string) (net.Listener, error)

	// LogOutput receives the structured logs.
	// Default: os.Stderr
	LogOutput io.Writer
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.DatabaseFactory == nil {
		out.DatabaseFactory = func(ctx context.Context, cfg store.PostgresConfig, logger *slog.Logger) (Database, error) {
			pool, err := store.Connect(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.RedisFactory == nil {
		out.RedisFactory = store.ConnectRedis
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, metrics *observability.Metrics, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, metrics, ready, logger)
		}
	}
	if out.Listen == nil {
		out.Listen = net.Listen
	}
	if out.LogOutput == nil {
		out.LogOutput = os.Stderr
	}
	return &out
}
