// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32               // 32 bytes = 64 hex chars
	ResetTokenExpiry = 30 * time.Minute // link lifetime
)

// ResetToken is a stored password-reset request. Only the hash of the
// emailed secret is kept.
type ResetToken struct {
	ID        ulid.ULID
	UserID    ulid.ULID
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// NewResetToken validates and builds a ResetToken created at now.
func NewResetToken(userID ulid.ULID, tokenHash string, now time.Time) (*ResetToken, error) {
	if userID.IsZero() {
		return nil, oops.Code("RESET_TOKEN_INVALID").Errorf("user id cannot be zero")
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_TOKEN_INVALID").Errorf("token hash cannot be empty")
	}
	now = now.UTC()
	return &ResetToken{
		ID:        ulid.Make(),
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: now,
		ExpiresAt: now.Add(ResetTokenExpiry),
	}, nil
}

// ExpiredAt reports whether the token is no longer usable at now.
func (r *ResetToken) ExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// GenerateResetToken creates the secret sent to the user and its hash.
// The secret is the hex of ResetTokenBytes random bytes followed by the
// user ID, so two users can never share a secret.
func GenerateResetToken(userID ulid.ULID) (token, hash string, err error) {
	buf := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(buf); err != nil {
		return "", "", oops.Code("RESET_TOKEN_GENERATE_FAILED").Wrap(err)
	}

	token = hex.EncodeToString(buf) + userID.String()
	return token, HashResetToken(token), nil
}

// HashResetToken computes the hex SHA256 used to look up a reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// ResetTokenRepository manages reset token persistence.
type ResetTokenRepository interface {
	// Create stores a reset token, replacing any token the user already has.
	Create(ctx context.Context, token *ResetToken) error

	// GetByTokenHash retrieves a reset token by its hash.
	GetByTokenHash(ctx context.Context, tokenHash string) (*ResetToken, error)

	// Delete removes one reset token.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByUser removes all reset tokens for a user.
	DeleteByUser(ctx context.Context, userID ulid.ULID) error

	// DeleteExpired removes tokens that expired at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
