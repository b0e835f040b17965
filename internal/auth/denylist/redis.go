// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package denylist stores revoked session token IDs in Redis.
package denylist

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/auth"
)

// DefaultPrefix namespaces denylist keys.
const DefaultPrefix = "pinvent:session:revoked:"

// Redis implements auth.Denylist with one expiring key per revoked token.
type Redis struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// Compile-time interface check.
var _ auth.Denylist = (*Redis)(nil)

// NewRedis creates a Redis denylist. An empty prefix selects DefaultPrefix.
func NewRedis(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Redis{client: client, prefix: prefix, now: time.Now}
}

// Revoke stores tokenID until the token would have expired anyway.
// Tokens already past until are skipped.
func (d *Redis) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return oops.Code("DENYLIST_INVALID").Errorf("token id cannot be empty")
	}
	ttl := until.Sub(d.now())
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, d.prefix+tokenID, 1, ttl).Err(); err != nil {
		return oops.Code("DENYLIST_WRITE_FAILED").
			With("operation", "set revoked token").
			With("ttl", ttl.String()).
			Wrap(err)
	}
	return nil
}

// IsRevoked reports whether tokenID is on the list.
func (d *Redis) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.prefix+tokenID).Result()
	if err != nil {
		return false, oops.Code("DENYLIST_READ_FAILED").
			With("operation", "check revoked token").
			Wrap(err)
	}
	return n > 0, nil
}
