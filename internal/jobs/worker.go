// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/pinvent/pinvent/pkg/errutil"
)

// WorkerConfig collects the worker's dependencies.
type WorkerConfig struct {
	Redis       asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	// PurgeSchedule is a standard cron spec. Empty disables scheduling;
	// purge tasks can still be enqueued with Client.
	PurgeSchedule string
	Purge         *PurgeJob
}

// Worker processes queued tasks and enqueues the scheduled ones.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker builds a Worker. The cron schedule is validated here.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Purge == nil {
		return nil, oops.Code("JOBS_INVALID").Errorf("purge job is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	logger := cfg.Logger.With("component", "jobs")

	srv := asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{QueueDefault: 1},
		Logger:      slogAdapter{logger: logger},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			errutil.LogErrorContext(ctx, logger, "task failed",
				oops.With("task", task.Type()).Wrap(err))
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskPurgeResetTokens, cfg.Purge.Handle)

	var scheduler *asynq.Scheduler
	if cfg.PurgeSchedule != "" {
		scheduler = asynq.NewScheduler(cfg.Redis, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   slogAdapter{logger: logger},
		})
		if _, err := scheduler.Register(cfg.PurgeSchedule, NewPurgeTask()); err != nil {
			return nil, oops.Code("JOBS_INVALID").With("schedule", cfg.PurgeSchedule).Wrap(err)
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: logger}, nil
}

// Run processes tasks until ctx is cancelled or the server fails.
func (w *Worker) Run(ctx context.Context) error {
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return oops.Code("JOBS_SCHEDULER_FAILED").Wrap(err)
		}
		defer w.scheduler.Shutdown()
	}

	if err := w.server.Start(w.mux); err != nil {
		return oops.Code("JOBS_SERVER_FAILED").Wrap(err)
	}
	w.logger.InfoContext(ctx, "worker started")

	<-ctx.Done()
	w.server.Shutdown()
	w.logger.Info("worker stopped")
	return nil
}

// Client enqueues tasks.
type Client struct {
	client *asynq.Client
}

// NewClient creates a Client.
func NewClient(redis asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redis)}
}

// EnqueuePurge queues an immediate purge and returns its task id.
func (c *Client) EnqueuePurge(ctx context.Context) (string, error) {
	info, err := c.client.EnqueueContext(ctx, NewPurgeTask())
	if err != nil {
		return "", oops.Code("JOBS_ENQUEUE_FAILED").With("task", TaskPurgeResetTokens).Wrap(err)
	}
	return info.ID, nil
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// slogAdapter routes asynq's logs to slog.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Debug(args ...any) { a.logger.Debug(fmt.Sprint(args...)) }
func (a slogAdapter) Info(args ...any)  { a.logger.Info(fmt.Sprint(args...)) }
func (a slogAdapter) Warn(args ...any)  { a.logger.Warn(fmt.Sprint(args...)) }
func (a slogAdapter) Error(args ...any) { a.logger.Error(fmt.Sprint(args...)) }

func (a slogAdapter) Fatal(args ...any) {
	a.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
