// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pinvent/pinvent/internal/auth/postgres"
	"github.com/pinvent/pinvent/internal/config"
	"github.com/pinvent/pinvent/internal/jobs"
	"github.com/pinvent/pinvent/internal/observability"
	"github.com/pinvent/pinvent/pkg/errutil"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs",
		Long: `Run the background job worker. It purges expired password reset
tokens on the jobs.purge_schedule cron and on demand (see "jobs purge").`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, cfg, concurrency, nil)
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of tasks processed in parallel")
	return cmd
}

func runWorker(ctx context.Context, cfg config.Config, concurrency int, deps *Deps) error {
	if cfg.Redis.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "redis.addr").Errorf("redis.addr is required to run the worker")
	}

	deps = deps.withDefaults()
	logger := setupLogger(cfg, deps.LogOutput)

	db, err := deps.DatabaseFactory(ctx, postgresConfig(cfg.Database), logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer db.Close()

	metrics := observability.NewMetrics()
	purge, err := jobs.NewPurgeJob(postgres.NewResetTokenRepository(db), logger, metrics)
	if err != nil {
		return err
	}
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		Redis:         jobs.RedisOpt(redisConfig(cfg.Redis)),
		Logger:        logger,
		Concurrency:   concurrency,
		PurgeSchedule: cfg.Jobs.PurgeSchedule,
		Purge:         purge,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		obs := deps.ObservabilityServerFactory(cfg.Metrics.Addr, metrics, func(ctx context.Context) error {
			return db.Ping(ctx)
		}, logger)
		errCh, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		g.Go(func() error {
			return watchServer(gctx, errCh, "observability")
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return obs.Stop(shutdownCtx)
		})
	}

	g.Go(func() error {
		return worker.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		errutil.LogErrorContext(ctx, logger, "worker stopped with error", err)
		return err
	}
	return nil
}
