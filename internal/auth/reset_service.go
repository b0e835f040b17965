// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/mail"
	"github.com/pinvent/pinvent/pkg/errutil"
)

// PasswordResetService handles the forgot/reset password flow.
type PasswordResetService struct {
	users       UserRepository
	resets      ResetTokenRepository
	hasher      PasswordHasher
	mailer      mail.Sender
	frontendURL string
	logger      *slog.Logger
	now         func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService. Reset links
// point at frontendURL.
func NewPasswordResetService(
	users UserRepository,
	resets ResetTokenRepository,
	hasher PasswordHasher,
	mailer mail.Sender,
	frontendURL string,
	opts ...Option,
) (*PasswordResetService, error) {
	switch {
	case users == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("user repository is required")
	case resets == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("reset token repository is required")
	case hasher == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("password hasher is required")
	case mailer == nil:
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("mail sender is required")
	case frontendURL == "":
		return nil, oops.Code("RESET_SERVICE_INVALID").Errorf("frontend url is required")
	}
	o := applyOptions(opts)
	return &PasswordResetService{
		users:       users,
		resets:      resets,
		hasher:      hasher,
		mailer:      mailer,
		frontendURL: frontendURL,
		logger:      o.logger,
		now:         o.now,
	}, nil
}

// ForgotPassword replaces the user's reset token with a new one and e-mails
// the reset link. If delivery fails the new token is deleted again.
func (s *PasswordResetService) ForgotPassword(ctx context.Context, email string) error {
	if email == "" {
		return invalidInput("email required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound("user does not exist")
		}
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "get user by email").Wrap(err)
	}

	if err := s.resets.DeleteByUser(ctx, user.ID); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "delete previous tokens").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	token, hash, err := GenerateResetToken(user.ID)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "generate token").Wrap(err)
	}
	reset, err := NewResetToken(user.ID, hash, s.now())
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").With("operation", "build token").Wrap(err)
	}
	if err := s.resets.Create(ctx, reset); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "store token").
			With("user_id", user.ID.String()).
			Wrap(err)
	}

	body, err := renderResetEmail(user.Name, ResetLink(s.frontendURL, token))
	if err == nil {
		err = s.mailer.Send(ctx, mail.Message{
			To:      user.Email,
			Subject: ResetEmailSubject,
			HTML:    body,
		})
	}
	if err != nil {
		errutil.LogError(s.logger, "reset email not sent",
			oops.With("user_id", user.ID.String()).Wrap(err))
		s.discard(ctx, reset)
		return oops.Code(CodeEmailDelivery).
			With("user_id", user.ID.String()).
			Errorf("email not sent, please try again")
	}

	return nil
}

// discard removes a token whose e-mail never left. It runs even if ctx was
// cancelled, since cancellation is a common cause of the send failure.
func (s *PasswordResetService) discard(ctx context.Context, reset *ResetToken) {
	if err := s.resets.Delete(context.WithoutCancel(ctx), reset.ID); err != nil && !errors.Is(err, ErrNotFound) {
		errutil.LogError(s.logger, "orphaned reset token not deleted",
			oops.With("operation", "delete undelivered token").
				With("user_id", reset.UserID.String()).
				Wrap(err))
	}
}

// ResetPassword sets a new password using an e-mailed token. The token and
// any other tokens of the user are deleted afterwards.
func (s *PasswordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return invalidInput("password required")
	}
	if token == "" {
		return invalidResetToken()
	}

	reset, err := s.resets.GetByTokenHash(ctx, HashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return invalidResetToken()
		}
		return oops.Code("RESET_VALIDATE_FAILED").With("operation", "get token by hash").Wrap(err)
	}
	if reset.ExpiredAt(s.now()) {
		return invalidResetToken()
	}

	if _, err := s.users.GetByID(ctx, reset.UserID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return userNotFound("user not found")
		}
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "get user by id").Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").With("operation", "hash password").Wrap(err)
	}
	if err := s.users.UpdatePassword(ctx, reset.UserID, hash); err != nil {
		return oops.Code("RESET_PASSWORD_FAILED").
			With("operation", "update password").
			With("user_id", reset.UserID.String()).
			Wrap(err)
	}

	// The password is already changed, so a failed cleanup is only logged.
	// The purge job removes the token once it expires.
	if err := s.resets.DeleteByUser(ctx, reset.UserID); err != nil {
		errutil.LogError(s.logger, "used reset token not deleted",
			oops.With("operation", "delete used tokens").
				With("user_id", reset.UserID.String()).
				Wrap(err))
	}

	return nil
}

func invalidResetToken() error {
	return oops.Code(CodeInvalidResetToken).Errorf("invalid or expired token")
}
