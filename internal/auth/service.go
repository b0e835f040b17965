// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/pinvent/pinvent/pkg/errutil"
)

// SessionGrant is returned by Register and Login.
type SessionGrant struct {
	User    *User
	Token   string
	Session *Session
}

// RegisterInput carries the fields of a new account. Role may be empty.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Service provides account and session operations.
type Service struct {
	users    UserRepository
	codec    *TokenCodec
	hasher   PasswordHasher
	denylist Denylist
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a new Service.
func NewService(users UserRepository, codec *TokenCodec, hasher PasswordHasher, opts ...Option) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("user repository is required")
	}
	if codec == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("token codec is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}
	o := applyOptions(opts)
	return &Service{
		users:    users,
		codec:    codec,
		hasher:   hasher,
		denylist: o.denylist,
		logger:   o.logger,
		now:      o.now,
	}, nil
}

// Register creates an account and opens a session for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*SessionGrant, error) {
	if err := ValidateName(in.Name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(in.Email); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, invalidInput("password required")
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return nil, err
	}

	_, err = s.users.GetByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, emailTaken()
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "get user by email").Wrap(err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}

	user, err := NewUser(in.Name, in.Email, hash, role, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, emailTaken()
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "create user").Wrap(err)
	}

	return s.grant(user)
}

// Login verifies credentials and opens a session.
// An unknown email is reported with CodeNotFound, a wrong password with
// CodeInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*SessionGrant, error) {
	if email == "" {
		return nil, invalidInput("invalid email")
	}
	if password == "" {
		return nil, invalidInput("invalid password")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound("user not found, please signup")
		}
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user by email").Wrap(err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "verify password").
			With("user_id", user.ID.String()).
			Wrap(err)
	}
	if !ok {
		return nil, invalidCredentials("invalid email or password")
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	return s.grant(user)
}

// upgradeHash rehashes a legacy password. Login succeeds even if this fails.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, user.ID, hash)
	}
	if err != nil {
		errutil.LogError(s.logger, "password hash upgrade failed",
			oops.With("operation", "upgrade password hash").With("user_id", user.ID.String()).Wrap(err))
		return
	}
	user.PasswordHash = hash
}

func (s *Service) grant(user *User) (*SessionGrant, error) {
	token, session, err := s.codec.Issue(user.ID)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_FAILED").With("operation", "issue session token").Wrap(err)
	}
	return &SessionGrant{User: user.Public(), Token: token, Session: session}, nil
}

// Logout revokes token when a denylist is configured. It never fails: the
// caller clears the cookie regardless, and a missing or invalid token has
// nothing to revoke.
func (s *Service) Logout(ctx context.Context, token string) {
	if s.denylist == nil || token == "" {
		return
	}
	session, err := s.codec.Verify(token)
	if err != nil {
		return
	}
	if err := s.denylist.Revoke(ctx, session.ID, session.ExpiresAt); err != nil {
		errutil.LogError(s.logger, "session revocation failed",
			oops.With("operation", "revoke session").With("user_id", session.UserID.String()).Wrap(err))
	}
}

// GetCurrentUser reloads the authenticated user without its password hash.
func (s *Service) GetCurrentUser(ctx context.Context, id ulid.ULID) (*User, error) {
	user, err := s.loadUser(ctx, id, "AUTH_GET_USER_FAILED")
	if err != nil {
		return nil, err
	}
	return user.Public(), nil
}

// CheckLoginStatus reports whether token is a live session. It never fails.
func (s *Service) CheckLoginStatus(ctx context.Context, token string) bool {
	_, err := activeSession(ctx, s.codec, s.denylist, token)
	return err == nil
}

// UpdateProfile applies the non-nil fields of upd to the user's record.
func (s *Service) UpdateProfile(ctx context.Context, id ulid.ULID, upd ProfileUpdate) (*User, error) {
	user, err := s.loadUser(ctx, id, "AUTH_UPDATE_PROFILE_FAILED")
	if err != nil {
		return nil, err
	}

	if err := upd.apply(user); err != nil {
		return nil, err
	}
	if upd.Password != nil {
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, oops.Code("AUTH_UPDATE_PROFILE_FAILED").With("operation", "hash password").Wrap(err)
		}
		user.PasswordHash = hash
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, emailTaken()
		case errors.Is(err, ErrNotFound):
			return nil, userNotFound("user not found")
		}
		return nil, oops.Code("AUTH_UPDATE_PROFILE_FAILED").
			With("operation", "update user").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user.Public(), nil
}

// ChangePassword replaces the password after checking the old one.
// Other sessions of the user stay valid.
func (s *Service) ChangePassword(ctx context.Context, id ulid.ULID, oldPassword, newPassword string) error {
	if oldPassword == "" || newPassword == "" {
		return invalidInput("please add old and new password")
	}

	user, err := s.loadUser(ctx, id, "AUTH_CHANGE_PASSWORD_FAILED")
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(oldPassword, user.PasswordHash)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !ok {
		return invalidCredentials("old password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, id, hash); err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound("user not found")
		}
		return oops.Code("AUTH_CHANGE_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", id.String()).
			Wrap(err)
	}
	return nil
}

func (s *Service) loadUser(ctx context.Context, id ulid.ULID, failCode string) (*User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, userNotFound("user not found")
		}
		return nil, oops.Code(failCode).
			With("operation", "get user by id").
			With("user_id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// activeSession verifies token and checks it against the denylist.
func activeSession(ctx context.Context, codec *TokenCodec, denylist Denylist, token string) (*Session, error) {
	session, err := codec.Verify(token)
	if err != nil {
		return nil, err
	}
	if denylist == nil {
		return session, nil
	}
	revoked, err := denylist.IsRevoked(ctx, session.ID)
	if err != nil {
		return nil, oops.With("operation", "check denylist").Wrap(err)
	}
	if revoked {
		return nil, oops.Code(CodeInvalidToken).With("reason", "revoked").Errorf("session token revoked")
	}
	return session, nil
}
