// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"

	"github.com/pinvent/pinvent/pkg/errutil"
)

// Guard resolves session tokens to users for protected requests.
type Guard struct {
	codec    *TokenCodec
	users    UserRepository
	denylist Denylist
	logger   *slog.Logger
}

// NewGuard creates a Guard. WithDenylist and WithLogger are honored.
func NewGuard(codec *TokenCodec, users UserRepository, opts ...Option) (*Guard, error) {
	if codec == nil {
		return nil, oops.Code("AUTH_GUARD_INVALID").Errorf("token codec is required")
	}
	if users == nil {
		return nil, oops.Code("AUTH_GUARD_INVALID").Errorf("user repository is required")
	}
	o := applyOptions(opts)
	return &Guard{codec: codec, users: users, denylist: o.denylist, logger: o.logger}, nil
}

// Authenticate returns the user owning token, without its password hash.
// Every failure, including store errors, is reported as CodeUnauthorized so
// callers cannot tell which check rejected the token.
func (g *Guard) Authenticate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, errUnauthorized()
	}

	session, err := activeSession(ctx, g.codec, g.denylist, token)
	if err != nil {
		g.logger.DebugContext(ctx, "session rejected", "error", err)
		return nil, errUnauthorized()
	}

	user, err := g.users.GetByID(ctx, session.UserID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			errutil.LogError(g.logger, "session user lookup failed",
				oops.With("user_id", session.UserID.String()).Wrap(err))
		}
		return nil, errUnauthorized()
	}

	return user.Public(), nil
}
