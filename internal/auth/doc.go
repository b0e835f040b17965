// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package auth implements user accounts, sessions and password recovery.
//
// # Domain Types
//
// User and ResetToken should be created through their constructors:
//   - NewUser - validates name, email and role and stamps timestamps
//   - NewResetToken - validates the owner and expiry of a reset token
//
// Session tokens are not persisted. TokenCodec signs and verifies them as
// HS256 JWTs that expire SessionTokenExpiry after issuance.
//
// # Services
//
//   - Service - register, login, logout, profile and password change
//   - PasswordResetService - forgot/reset password via emailed tokens
//   - Guard - resolves a session token to a User for protected requests
//
// Services are created with New* constructors that validate dependencies.
package auth
