// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// ErrNotFound is returned by repositories when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEmail is returned by repositories when an insert or update
// collides with an existing email address.
var ErrDuplicateEmail = errors.New("email already registered")

// Error codes returned by the auth services. Each one is attached to a leaf
// oops error so that oops.OopsError.Code reports it unambiguously.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeConflict           = "EMAIL_TAKEN"
	CodeNotFound           = "USER_NOT_FOUND"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidResetToken  = "INVALID_OR_EXPIRED_TOKEN"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeEmailDelivery      = "EMAIL_NOT_SENT"
)

func invalidInput(format string, args ...any) error {
	return oops.Code(CodeInvalidInput).Errorf(format, args...)
}

func userNotFound(msg string) error {
	return oops.Code(CodeNotFound).Errorf("%s", msg)
}

func emailTaken() error {
	return oops.Code(CodeConflict).Errorf("user already exists")
}

func invalidCredentials(msg string) error {
	return oops.Code(CodeInvalidCredentials).Errorf("%s", msg)
}

// errUnauthorized is the single error the Guard reports, whatever the cause.
func errUnauthorized() error {
	return oops.Code(CodeUnauthorized).Errorf("not authorized, please login")
}
