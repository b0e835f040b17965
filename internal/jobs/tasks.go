// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package jobs runs background maintenance on an asynq queue backed by Redis.
package jobs

import (
	"time"

	"github.com/hibiken/asynq"

	"github.com/pinvent/pinvent/internal/store"
)

const (
	// QueueDefault is the queue all pinvent tasks run on.
	QueueDefault = "default"
	// TaskPurgeResetTokens deletes expired password reset tokens.
	TaskPurgeResetTokens = "reset_tokens:purge"
)

const purgeTimeout = time.Minute

// NewPurgeTask builds a purge task. It carries no payload: every run
// deletes whatever has expired at that moment.
func NewPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskPurgeResetTokens, nil,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(3),
		asynq.Timeout(purgeTimeout),
	)
}

// RedisOpt converts the Redis settings for asynq.
func RedisOpt(cfg store.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
}
