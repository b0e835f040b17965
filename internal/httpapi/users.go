// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/internal/observability"
)

type userResponse struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// updateUserRequest distinguishes absent fields (nil) from explicit values.
type updateUserRequest struct {
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	Password    string `json:"password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := a.decodeAndValidate(w, r, &req); err != nil {
		a.metrics.RecordAuthEvent("register", observability.OutcomeFailure)
		a.respondError(w, r, err)
		return
	}

	grant, err := a.Accounts.Register(r.Context(), auth.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		a.metrics.RecordAuthEvent("register", observability.OutcomeFailure)
		a.respondError(w, r, err)
		return
	}

	a.metrics.RecordAuthEvent("register", observability.OutcomeSuccess)
	a.setSessionCookie(w, grant.Token, grant.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, newUserResponse(grant.User))
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeAndValidate(w, r, &req); err != nil {
		a.metrics.RecordAuthEvent("login", observability.OutcomeFailure)
		a.respondError(w, r, err)
		return
	}

	grant, err := a.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.metrics.RecordAuthEvent("login", observability.OutcomeFailure)
		a.respondError(w, r, withStatus(err, auth.CodeNotFound, http.StatusBadRequest))
		return
	}

	a.metrics.RecordAuthEvent("login", observability.OutcomeSuccess)
	a.setSessionCookie(w, grant.Token, grant.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, newUserResponse(grant.User))
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	a.Accounts.Logout(r.Context(), a.sessionToken(r))
	a.metrics.RecordAuthEvent("logout", observability.OutcomeSuccess)
	a.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, messageBody{Message: "Successfully Logged Out"})
}

func (a *api) getUser(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		a.respondError(w, r, errNotAuthenticated())
		return
	}
	user, err := a.Accounts.GetCurrentUser(r.Context(), current.ID)
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (a *api) loggedIn(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Accounts.CheckLoginStatus(r.Context(), a.sessionToken(r)))
}

func (a *api) updateUser(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		a.respondError(w, r, errNotAuthenticated())
		return
	}
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	user, err := a.Accounts.UpdateProfile(r.Context(), current.ID, auth.ProfileUpdate{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     req.Role,
	})
	if err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user))
}

func (a *api) changePassword(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		a.respondError(w, r, errNotAuthenticated())
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	err := a.Accounts.ChangePassword(r.Context(), current.ID, req.OldPassword, req.Password)
	if err != nil {
		a.metrics.RecordAuthEvent("change_password", observability.OutcomeFailure)
		a.respondError(w, r, withStatus(err, auth.CodeNotFound, http.StatusBadRequest))
		return
	}
	a.metrics.RecordAuthEvent("change_password", observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, messageBody{Message: "Password change successful"})
}

func (a *api) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := a.decodeAndValidate(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	if err := a.Resets.ForgotPassword(r.Context(), req.Email); err != nil {
		a.metrics.RecordAuthEvent("forgot_password", observability.OutcomeFailure)
		a.respondError(w, r, err)
		return
	}
	a.metrics.RecordAuthEvent("forgot_password", observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, messageBody{Success: true, Message: "Reset Email Sent"})
}

func (a *api) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := a.decodeAndValidate(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	err := a.Resets.ResetPassword(r.Context(), chi.URLParam(r, "resetToken"), req.Password)
	if err != nil {
		a.metrics.RecordAuthEvent("reset_password", observability.OutcomeFailure)
		a.respondError(w, r, withStatus(err, auth.CodeNotFound, http.StatusBadRequest))
		return
	}
	a.metrics.RecordAuthEvent("reset_password", observability.OutcomeSuccess)
	writeJSON(w, http.StatusOK, messageBody{Message: "Password Reset Successful, Please Login"})
}
