// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package main

import (
	"context"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/pinvent/pinvent/internal/config"
	"github.com/pinvent/pinvent/internal/jobs"
)

// NewJobsCmd creates the jobs subcommand.
func NewJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage background jobs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Queue an immediate purge of expired reset tokens",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			id, err := enqueuePurge(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			cmd.Printf("Queued purge task %s\n", id)
			return nil
		},
	})

	return cmd
}

func enqueuePurge(ctx context.Context, cfg config.Config) (string, error) {
	if cfg.Redis.Addr == "" {
		return "", oops.Code("CONFIG_INVALID").With("key", "redis.addr").Errorf("redis.addr is required to queue jobs")
	}
	client := jobs.NewClient(jobs.RedisOpt(redisConfig(cfg.Redis)))
	defer client.Close() //nolint:errcheck // best-effort close after enqueue

	return client.EnqueuePurge(ctx)
}
