// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"context"
	"time"
)

// Denylist records session tokens revoked before their natural expiry.
// Without one, logout only clears the client's cookie.
type Denylist interface {
	// Revoke marks the token ID as revoked until the given time.
	Revoke(ctx context.Context, tokenID string, until time.Time) error

	// IsRevoked reports whether the token ID has been revoked.
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}
