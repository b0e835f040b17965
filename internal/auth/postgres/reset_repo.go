// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/auth"
)

// ResetTokenRepository implements auth.ResetTokenRepository using PostgreSQL.
// The reset_tokens table holds at most one row per user.
type ResetTokenRepository struct {
	pool poolIface
}

// NewResetTokenRepository creates a new ResetTokenRepository.
func NewResetTokenRepository(pool poolIface) *ResetTokenRepository {
	return &ResetTokenRepository{pool: pool}
}

// Create stores token, replacing any token the user already has.
func (r *ResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reset_tokens (id, user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			id = EXCLUDED.id,
			token_hash = EXCLUDED.token_hash,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`, token.ID.String(), token.UserID.String(), token.TokenHash, token.CreatedAt, token.ExpiresAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "upsert reset token").
			With("user_id", token.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a token by the SHA256 hash of its secret.
// Expired tokens are returned too; the caller decides.
func (r *ResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at
		FROM reset_tokens
		WHERE token_hash = $1
	`, tokenHash)

	var (
		idStr, userIDStr string
		t                auth.ResetToken
	)
	err := row.Scan(&idStr, &userIDStr, &t.TokenHash, &t.CreatedAt, &t.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("RESET_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("RESET_SCAN_FAILED").Wrap(err)
	}

	if t.ID, err = ulid.Parse(idStr); err != nil {
		return nil, oops.Code("RESET_INVALID_ID").With("id", idStr).Wrap(err)
	}
	if t.UserID, err = ulid.Parse(userIDStr); err != nil {
		return nil, oops.Code("RESET_INVALID_USER_ID").With("user_id", userIDStr).Wrap(err)
	}
	return &t, nil
}

// Delete removes a token by ID.
func (r *ResetTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE id = $1`, id.String())
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").With("id", id.String()).Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_NOT_FOUND").With("id", id.String()).Wrap(auth.ErrNotFound)
	}
	return nil
}

// DeleteByUser removes the user's token. Having none is not an error.
func (r *ResetTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE user_id = $1`, userID.String())
	if err != nil {
		return oops.Code("RESET_DELETE_BY_USER_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return nil
}

// DeleteExpired removes every token expired at now and returns the count.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM reset_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").Wrap(err)
	}
	return result.RowsAffected(), nil
}

var _ auth.ResetTokenRepository = (*ResetTokenRepository)(nil)
