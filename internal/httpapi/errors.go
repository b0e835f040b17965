// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/samber/oops"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/pkg/errutil"
)

// Codes produced by the HTTP layer itself.
const (
	codeRateLimited      = "RATE_LIMITED"
	codeRouteNotFound    = "ROUTE_NOT_FOUND"
	codeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

const internalErrorMessage = "something went wrong, please try again"

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// statusError pins the HTTP status of err for one route.
type statusError struct {
	err    error
	status int
}

func (e *statusError) Error() string { return e.err.Error() }

func (e *statusError) Unwrap() error { return e.err }

// withStatus overrides the status of err when it carries code.
func withStatus(err error, code string, status int) error {
	if errutil.HasCode(err, code) {
		return &statusError{err: err, status: status}
	}
	return err
}

// statusFor maps an error code to its default HTTP status. Unknown codes
// are upstream failures and report false.
func statusFor(code string) (int, bool) {
	switch code {
	case auth.CodeInvalidInput,
		auth.CodeConflict,
		auth.CodeInvalidCredentials,
		auth.CodeInvalidResetToken:
		return http.StatusBadRequest, true
	case auth.CodeUnauthorized:
		return http.StatusUnauthorized, true
	case auth.CodeNotFound, codeRouteNotFound:
		return http.StatusNotFound, true
	case codeMethodNotAllowed:
		return http.StatusMethodNotAllowed, true
	case codeRateLimited:
		return http.StatusTooManyRequests, true
	case auth.CodeEmailDelivery:
		return http.StatusInternalServerError, true
	default:
		return http.StatusInternalServerError, false
	}
}

// respondError is the single writer of error responses. Upstream failures
// get a generic message and are logged.
func (a *api) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := errutil.Code(err)
	status, known := statusFor(code)
	var se *statusError
	if errors.As(err, &se) {
		status = se.status
	}

	body := errorBody{Message: err.Error()}
	if !known {
		body.Message = internalErrorMessage
	}
	if !a.production {
		body.Stack = errutil.Stack(err)
	}

	if status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), a.logger, "request failed", err)
	} else {
		a.logger.DebugContext(r.Context(), "request rejected",
			slog.Int("status", status),
			slog.String("code", code),
			slog.String("error", err.Error()))
	}

	writeJSON(w, status, body)
}

// errNotAuthenticated is used when a protected handler runs without an
// identity in its context.
func errNotAuthenticated() error {
	return oops.Code(auth.CodeUnauthorized).Errorf("not authorized, please login")
}
