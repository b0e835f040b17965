// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Role is the authorization level of a user account.
type Role string

// Known roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// ParseRole converts s to a Role. An empty string yields RoleUser.
func ParseRole(s string) (Role, error) {
	if s == "" {
		return RoleUser, nil
	}
	r := Role(strings.ToLower(s))
	if !r.Valid() {
		return "", invalidInput("unknown role %q", s)
	}
	return r, nil
}

// User is a registered account.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Phone        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser validates the account fields and returns a User with a fresh ID.
// passwordHash must already be hashed.
func NewUser(name, email, passwordHash string, role Role, now time.Time) (*User, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, invalidInput("password hash cannot be empty")
	}
	if role == "" {
		role = RoleUser
	}
	if !role.Valid() {
		return nil, invalidInput("unknown role %q", role)
	}
	now = now.UTC()
	return &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Public returns a copy of u without the password hash.
func (u *User) Public() *User {
	cp := *u
	cp.PasswordHash = ""
	return &cp
}

// ValidateName checks a display name.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return invalidInput("name required")
	}
	return nil
}

// ValidateEmail checks that email is a bare address. Case is preserved.
func ValidateEmail(email string) error {
	if email == "" {
		return invalidInput("email required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return invalidInput("invalid email")
	}
	return nil
}

// UserRepository manages user persistence.
type UserRepository interface {
	// Create stores a new user. Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by exact email.
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// Update replaces the mutable fields of an existing user.
	// Returns ErrDuplicateEmail if the new email is taken.
	Update(ctx context.Context, user *User) error

	// UpdatePassword updates only the password hash for a user.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error
}
