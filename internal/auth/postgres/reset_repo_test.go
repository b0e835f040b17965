// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/pkg/errutil"
)

func testResetToken(t *testing.T) *auth.ResetToken {
	t.Helper()
	rt, err := auth.NewResetToken(ulid.Make(), auth.HashResetToken("secret"), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return rt
}

func TestResetTokenRepository_Create(t *testing.T) {
	t.Run("upserts per user", func(t *testing.T) {
		mock := newMockPool(t)
		rt := testResetToken(t)
		mock.ExpectExec(`INSERT INTO reset_tokens .+ ON CONFLICT \(user_id\) DO UPDATE`).
			WithArgs(rt.ID.String(), rt.UserID.String(), rt.TokenHash, rt.CreatedAt, rt.ExpiresAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, NewResetTokenRepository(mock).Create(context.Background(), rt))
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		rt := testResetToken(t)
		mock.ExpectExec(`INSERT INTO reset_tokens`).
			WithArgs(rt.ID.String(), rt.UserID.String(), rt.TokenHash, rt.CreatedAt, rt.ExpiresAt).
			WillReturnError(errors.New("connection refused"))

		err := NewResetTokenRepository(mock).Create(context.Background(), rt)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_CREATE_FAILED")
		errutil.AssertErrorContext(t, err, "user_id", rt.UserID.String())
	})
}

func TestResetTokenRepository_GetByTokenHash(t *testing.T) {
	cols := []string{"id", "user_id", "token_hash", "created_at", "expires_at"}

	t.Run("found", func(t *testing.T) {
		mock := newMockPool(t)
		rt := testResetToken(t)
		mock.ExpectQuery(`SELECT .+ FROM reset_tokens`).
			WithArgs(rt.TokenHash).
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow(rt.ID.String(), rt.UserID.String(), rt.TokenHash, rt.CreatedAt, rt.ExpiresAt))

		got, err := NewResetTokenRepository(mock).GetByTokenHash(context.Background(), rt.TokenHash)
		require.NoError(t, err)
		assert.Equal(t, rt, got)
	})

	t.Run("not found", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectQuery(`SELECT .+ FROM reset_tokens`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)

		_, err := NewResetTokenRepository(mock).GetByTokenHash(context.Background(), "missing")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("corrupt user id", func(t *testing.T) {
		mock := newMockPool(t)
		rt := testResetToken(t)
		mock.ExpectQuery(`SELECT .+ FROM reset_tokens`).
			WithArgs(rt.TokenHash).
			WillReturnRows(pgxmock.NewRows(cols).
				AddRow(rt.ID.String(), "bogus", rt.TokenHash, rt.CreatedAt, rt.ExpiresAt))

		_, err := NewResetTokenRepository(mock).GetByTokenHash(context.Background(), rt.TokenHash)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_INVALID_USER_ID")
	})
}

func TestResetTokenRepository_Delete(t *testing.T) {
	t.Run("deletes", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		mock.ExpectExec(`DELETE FROM reset_tokens WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, NewResetTokenRepository(mock).Delete(context.Background(), id))
	})

	t.Run("already gone", func(t *testing.T) {
		mock := newMockPool(t)
		id := ulid.Make()
		mock.ExpectExec(`DELETE FROM reset_tokens WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		err := NewResetTokenRepository(mock).Delete(context.Background(), id)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestResetTokenRepository_DeleteByUser(t *testing.T) {
	mock := newMockPool(t)
	userID := ulid.Make()
	mock.ExpectExec(`DELETE FROM reset_tokens WHERE user_id = \$1`).
		WithArgs(userID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, NewResetTokenRepository(mock).DeleteByUser(context.Background(), userID))
}

func TestResetTokenRepository_DeleteExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("returns count", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM reset_tokens WHERE expires_at <= \$1`).
			WithArgs(now).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))

		n, err := NewResetTokenRepository(mock).DeleteExpired(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)
	})

	t.Run("database error", func(t *testing.T) {
		mock := newMockPool(t)
		mock.ExpectExec(`DELETE FROM reset_tokens WHERE expires_at`).
			WithArgs(now).
			WillReturnError(errors.New("connection refused"))

		_, err := NewResetTokenRepository(mock).DeleteExpired(context.Background(), now)
		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "RESET_DELETE_EXPIRED_FAILED")
	})
}
