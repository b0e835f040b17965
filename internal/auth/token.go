// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// SessionTokenExpiry is the absolute lifetime of a session token.
const SessionTokenExpiry = 24 * time.Hour

// MinSecretLength is the shortest signing secret NewTokenCodec accepts.
const MinSecretLength = 32

// Session is the verified content of a session token.
type Session struct {
	// ID is the token's unique jti, used for revocation.
	ID        string
	UserID    ulid.ULID
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// sessionClaims is the JWT payload. The user id travels as "id".
type sessionClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"id"`
}

// TokenCodec signs and verifies stateless session tokens.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithCodecClock overrides the time source used for issuing and verifying.
func WithCodecClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// NewTokenCodec creates a TokenCodec signing with secret (HS256).
func NewTokenCodec(secret []byte, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_INVALID").
			With("min_length", MinSecretLength).
			Errorf("session secret must be at least %d bytes", MinSecretLength)
	}
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue returns a signed token for userID that expires SessionTokenExpiry from now.
func (c *TokenCodec) Issue(userID ulid.ULID) (string, *Session, error) {
	if userID.IsZero() {
		return "", nil, oops.Code("TOKEN_ISSUE_FAILED").Errorf("user id cannot be zero")
	}

	issued := jwt.NewNumericDate(c.now())
	expires := jwt.NewNumericDate(issued.Add(SessionTokenExpiry))
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Subject:   userID.String(),
			IssuedAt:  issued,
			ExpiresAt: expires,
		},
		UserID: userID.String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, oops.Code("TOKEN_ISSUE_FAILED").With("user_id", userID.String()).Wrap(err)
	}

	return signed, &Session{
		ID:        claims.ID,
		UserID:    userID,
		IssuedAt:  issued.UTC(),
		ExpiresAt: expires.UTC(),
	}, nil
}

// Verify checks the signature and expiry of token and returns its session.
// Any failure is reported with CodeInvalidToken.
func (c *TokenCodec) Verify(token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code(CodeInvalidToken).Errorf("session token cannot be empty")
	}

	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).With("reason", err.Error()).Errorf("invalid session token")
	}

	userID, err := ulid.ParseStrict(claims.UserID)
	if err != nil {
		return nil, oops.Code(CodeInvalidToken).With("reason", "malformed user id").Errorf("invalid session token")
	}

	s := &Session{
		ID:        claims.ID,
		UserID:    userID,
		ExpiresAt: claims.ExpiresAt.UTC(),
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.UTC()
	}
	return s, nil
}
