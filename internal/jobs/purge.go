// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/observability"
)

// ExpiredTokenStore deletes reset tokens that expired at or before now.
type ExpiredTokenStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PurgeJob handles TaskPurgeResetTokens.
type PurgeJob struct {
	store   ExpiredTokenStore
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPurgeJob creates a PurgeJob. logger and metrics may be nil.
func NewPurgeJob(store ExpiredTokenStore, logger *slog.Logger, metrics *observability.Metrics) (*PurgeJob, error) {
	if store == nil {
		return nil, oops.Code("JOBS_INVALID").Errorf("reset token store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeJob{
		store:   store,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// Handle deletes expired tokens. Store errors are returned so asynq retries.
func (j *PurgeJob) Handle(ctx context.Context, _ *asynq.Task) error {
	now := j.now().UTC()
	n, err := j.store.DeleteExpired(ctx, now)
	if err != nil {
		return oops.Code("JOBS_PURGE_FAILED").With("task", TaskPurgeResetTokens).Wrap(err)
	}
	j.metrics.RecordPurged(n)
	j.logger.InfoContext(ctx, "expired reset tokens purged", "count", n, "cutoff", now)
	return nil
}
