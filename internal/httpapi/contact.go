// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package httpapi

import (
	"net/http"

	"github.com/pinvent/pinvent/internal/auth"
)

type contactRequest struct {
	Subject string `json:"subject" validate:"required"`
	Message string `json:"message" validate:"required"`
}

func (a *api) contactUs(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		a.respondError(w, r, errNotAuthenticated())
		return
	}
	var req contactRequest
	if err := a.decodeAndValidate(w, r, &req); err != nil {
		a.respondError(w, r, err)
		return
	}

	if err := a.Contact.Send(r.Context(), user, req.Subject, req.Message); err != nil {
		a.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Success: true, Message: "Email Sent"})
}
