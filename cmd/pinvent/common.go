// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/config"
	"github.com/pinvent/pinvent/internal/logging"
	"github.com/pinvent/pinvent/internal/mail"
	"github.com/pinvent/pinvent/internal/store"
	"github.com/pinvent/pinvent/pkg/errutil"
)

const serviceName = "pinvent"

// setupLogger installs the process logger for cfg and returns it.
func setupLogger(cfg config.Config, w io.Writer) *slog.Logger {
	logger := logging.New(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   logging.LevelFor(cfg.Env),
	}, w)
	slog.SetDefault(logger)
	return logger
}

func postgresConfig(cfg config.DatabaseConfig) store.PostgresConfig {
	return store.PostgresConfig{
		URL:      cfg.URL,
		MaxConns: cfg.MaxConns,
		Attempts: cfg.ConnectAttempts,
	}
}

func redisConfig(cfg config.RedisConfig) store.RedisConfig {
	return store.RedisConfig{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}

// autoMigrate applies pending migrations and always closes the migrator.
func autoMigrate(ctx context.Context, databaseURL string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() {
		if cerr := migrator.Close(); cerr != nil {
			errutil.LogErrorContext(ctx, logger, "closing migrator", cerr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.Code("AUTO_MIGRATION_FAILED").Wrap(err)
	}
	logger.InfoContext(ctx, "database migrations applied")
	return nil
}

// newMailer returns an SMTP sender, or a log sender when no host is set.
func newMailer(cfg config.MailConfig, logger *slog.Logger) (mail.Sender, error) {
	if cfg.Host == "" {
		logger.Warn("mail.host not set, outgoing mail is logged only")
		return mail.NewLogSender(logger), nil
	}
	sender, err := mail.NewSMTPSender(mail.SMTPConfig{
		Host:               cfg.Host,
		Port:               cfg.Port,
		Username:           cfg.Username,
		Password:           cfg.Password,
		From:               cfg.From,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	})
	if err != nil {
		return nil, oops.Code("MAIL_INIT_FAILED").Wrap(err)
	}
	return sender, nil
}

// watchServer blocks until errCh reports a failure or ctx ends. A closed
// channel means the server stopped on its own and is not an error.
func watchServer(ctx context.Context, errCh <-chan error, name string) error {
	select {
	case err, ok := <-errCh:
		if !ok || err == nil {
			<-ctx.Done()
			return nil
		}
		return oops.Code("SERVER_FAILED").With("server", name).Wrap(err)
	case <-ctx.Done():
		return nil
	}
}
