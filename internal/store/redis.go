// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// RedisConfig configures ConnectRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Options converts the config for go-redis and asynq consumers.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB}
}

// ConnectRedis creates a client and verifies it with PING.
func ConnectRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(cfg.Options())

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", cfg.Addr).Wrap(err)
	}
	return client, nil
}
