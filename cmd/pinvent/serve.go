// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/internal/auth/denylist"
	"github.com/pinvent/pinvent/internal/auth/postgres"
	"github.com/pinvent/pinvent/internal/config"
	"github.com/pinvent/pinvent/internal/contact"
	"github.com/pinvent/pinvent/internal/httpapi"
	"github.com/pinvent/pinvent/internal/observability"
	"github.com/pinvent/pinvent/pkg/errutil"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	denylistPrefix    = "pinvent:denylist:"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API together with the metrics and health endpoint.
The server stops gracefully on SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, nil)
		},
	}
}

// runServe wires the services and serves until ctx is cancelled or a
// server fails.
func runServe(ctx context.Context, cfg config.Config, deps *Deps) error {
	deps = deps.withDefaults()
	logger := setupLogger(cfg, deps.LogOutput)

	if cfg.Database.AutoMigrate {
		if err := autoMigrate(ctx, cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	db, err := deps.DatabaseFactory(ctx, postgresConfig(cfg.Database), logger)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}
	defer db.Close()

	opts := []auth.Option{auth.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		rdb, err := deps.RedisFactory(ctx, redisConfig(cfg.Redis))
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rdb.Close(); cerr != nil {
				errutil.LogErrorContext(ctx, logger, "closing redis", cerr)
			}
		}()
		opts = append(opts, auth.WithDenylist(denylist.NewRedis(rdb, denylistPrefix)))
	} else {
		logger.Warn("redis.addr not set, logout does not revoke session tokens")
	}

	metrics := observability.NewMetrics()
	handler, err := buildAPI(cfg, db, opts, metrics, logger)
	if err != nil {
		return err
	}

	ln, err := deps.Listen("tcp", cfg.HTTP.Addr)
	if err != nil {
		return oops.Code("HTTP_LISTEN_FAILED").With("addr", cfg.HTTP.Addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	var obs ObservabilityServer
	var obsErrCh <-chan error
	if cfg.Metrics.Addr != "" {
		obs = deps.ObservabilityServerFactory(cfg.Metrics.Addr, metrics, func(ctx context.Context) error {
			return db.Ping(ctx)
		}, logger)
		obsErrCh, err = obs.Start()
		if err != nil {
			_ = ln.Close() //nolint:errcheck // start error takes precedence
			return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
		}
		logger.Info("observability server started", "addr", obs.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api server listening", "addr", ln.Addr().String(), "env", cfg.Env)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return oops.Code("HTTP_SERVE_FAILED").Wrap(err)
		}
		return nil
	})

	if obs != nil {
		g.Go(func() error {
			return watchServer(gctx, obsErrCh, "observability")
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, oops.Code("HTTP_SHUTDOWN_FAILED").Wrap(err))
		}
		if obs != nil {
			if err := obs.Stop(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		errutil.LogErrorContext(ctx, logger, "server stopped with error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

// buildAPI assembles the auth services and the router over db.
func buildAPI(cfg config.Config, db Database, opts []auth.Option, metrics *observability.Metrics, logger *slog.Logger) (http.Handler, error) {
	codec, err := auth.NewTokenCodec([]byte(cfg.Session.Secret))
	if err != nil {
		return nil, err
	}
	mailer, err := newMailer(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}

	hasher := auth.NewArgon2idHasher()
	users := postgres.NewUserRepository(db)

	accounts, err := auth.NewService(users, codec, hasher, opts...)
	if err != nil {
		return nil, err
	}
	guard, err := auth.NewGuard(codec, users, opts...)
	if err != nil {
		return nil, err
	}
	resets, err := auth.NewPasswordResetService(users, postgres.NewResetTokenRepository(db), hasher, mailer, cfg.FrontendURL, opts...)
	if err != nil {
		return nil, err
	}
	contactSvc, err := contact.NewService(mailer, cfg.SupportInbox(), logger)
	if err != nil {
		return nil, err
	}

	return httpapi.NewRouter(httpapi.Services{
		Accounts: accounts,
		Guard:    guard,
		Resets:   resets,
		Contact:  contactSvc,
	}, httpapi.Config{
		Production:     cfg.IsProduction(),
		CookieName:     cfg.Session.CookieName,
		CORSOrigins:    cfg.HTTP.CORSOrigins,
		AuthRateLimit:  cfg.HTTP.AuthRateLimit,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		Logger:         logger,
		Metrics:        metrics,
	})
}
