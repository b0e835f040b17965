// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package mocks provides testify mocks of the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/pinvent/pinvent/internal/auth"
)

// TestingT is the subset of testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t TestingT) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

func userOrNil(v any) *auth.User {
	if v == nil {
		return nil
	}
	return v.(*auth.User)
}

// MockUserRepository mocks auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

var _ auth.UserRepository = (*MockUserRepository)(nil)

// NewMockUserRepository creates a mock that asserts its expectations on cleanup.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(&m.Mock, t)
	return m
}

func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	ret := m.Called(ctx, id)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	ret := m.Called(ctx, email)
	return userOrNil(ret.Get(0)), ret.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *auth.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	return m.Called(ctx, id, passwordHash).Error(0)
}

// MockResetTokenRepository mocks auth.ResetTokenRepository.
type MockResetTokenRepository struct {
	mock.Mock
}

var _ auth.ResetTokenRepository = (*MockResetTokenRepository)(nil)

// NewMockResetTokenRepository creates a mock that asserts its expectations on cleanup.
func NewMockResetTokenRepository(t TestingT) *MockResetTokenRepository {
	m := &MockResetTokenRepository{}
	register(&m.Mock, t)
	return m
}

func (m *MockResetTokenRepository) Create(ctx context.Context, token *auth.ResetToken) error {
	return m.Called(ctx, token).Error(0)
}

func (m *MockResetTokenRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.ResetToken, error) {
	ret := m.Called(ctx, tokenHash)
	var rt *auth.ResetToken
	if v := ret.Get(0); v != nil {
		rt = v.(*auth.ResetToken)
	}
	return rt, ret.Error(1)
}

func (m *MockResetTokenRepository) Delete(ctx context.Context, id ulid.ULID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockResetTokenRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *MockResetTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ret := m.Called(ctx, now)
	return ret.Get(0).(int64), ret.Error(1)
}

// MockPasswordHasher mocks auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

var _ auth.PasswordHasher = (*MockPasswordHasher)(nil)

// NewMockPasswordHasher creates a mock that asserts its expectations on cleanup.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(&m.Mock, t)
	return m
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	ret := m.Called(password)
	return ret.String(0), ret.Error(1)
}

func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	ret := m.Called(password, hash)
	return ret.Bool(0), ret.Error(1)
}

func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	return m.Called(hash).Bool(0)
}

// MockDenylist mocks auth.Denylist.
type MockDenylist struct {
	mock.Mock
}

var _ auth.Denylist = (*MockDenylist)(nil)

// NewMockDenylist creates a mock that asserts its expectations on cleanup.
func NewMockDenylist(t TestingT) *MockDenylist {
	m := &MockDenylist{}
	register(&m.Mock, t)
	return m
}

func (m *MockDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	return m.Called(ctx, tokenID, until).Error(0)
}

func (m *MockDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	ret := m.Called(ctx, tokenID)
	return ret.Bool(0), ret.Error(1)
}
