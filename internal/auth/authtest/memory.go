// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

// Package authtest provides in-memory auth stores and a recording mailer for tests.
package authtest

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/pinvent/pinvent/internal/auth"
	"github.com/pinvent/pinvent/internal/mail"
)

// Users is an in-memory auth.UserRepository.
type Users struct {
	mu   sync.Mutex
	byID map[ulid.ULID]auth.User
	Err  error // returned by every method when set
}

var _ auth.UserRepository = (*Users)(nil)

// NewUsers creates an empty Users store.
func NewUsers() *Users {
	return &Users{byID: make(map[ulid.ULID]auth.User)}
}

// Create stores a copy of user.
func (r *Users) Create(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if r.emailTakenLocked(user.Email, user.ID) {
		return auth.ErrDuplicateEmail
	}
	r.byID[user.ID] = *user
	return nil
}

// GetByID returns a copy of the stored user.
func (r *Users) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

// GetByEmail returns a copy of the user with exactly this email.
func (r *Users) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Update replaces the stored user.
func (r *Users) Update(_ context.Context, user *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.byID[user.ID]; !ok {
		return auth.ErrNotFound
	}
	if r.emailTakenLocked(user.Email, user.ID) {
		return auth.ErrDuplicateEmail
	}
	r.byID[user.ID] = *user
	return nil
}

// UpdatePassword replaces the stored hash.
func (r *Users) UpdatePassword(_ context.Context, id ulid.ULID, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	u, ok := r.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	r.byID[id] = u
	return nil
}

// Delete removes a user; used to simulate concurrent account removal.
func (r *Users) Delete(id ulid.ULID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

func (r *Users) emailTakenLocked(email string, self ulid.ULID) bool {
	for id, u := range r.byID {
		if u.Email == email && id != self {
			return true
		}
	}
	return false
}

// ResetTokens is an in-memory auth.ResetTokenRepository that keeps at most
// one token per user, like the Postgres table.
type ResetTokens struct {
	mu     sync.Mutex
	byUser map[ulid.ULID]auth.ResetToken
	Err    error
}

var _ auth.ResetTokenRepository = (*ResetTokens)(nil)

// NewResetTokens creates an empty ResetTokens store.
func NewResetTokens() *ResetTokens {
	return &ResetTokens{byUser: make(map[ulid.ULID]auth.ResetToken)}
}

// Create stores token, replacing the user's previous one.
func (r *ResetTokens) Create(_ context.Context, token *auth.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.byUser[token.UserID] = *token
	return nil
}

// GetByTokenHash finds a token by hash.
func (r *ResetTokens) GetByTokenHash(_ context.Context, tokenHash string) (*auth.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for _, t := range r.byUser {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, auth.ErrNotFound
}

// Delete removes a token by ID.
func (r *ResetTokens) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	for user, t := range r.byUser {
		if t.ID == id {
			delete(r.byUser, user)
			return nil
		}
	}
	return auth.ErrNotFound
}

// DeleteByUser removes the user's token, if any.
func (r *ResetTokens) DeleteByUser(_ context.Context, userID ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.byUser, userID)
	return nil
}

// DeleteExpired removes tokens expired at now.
func (r *ResetTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for user, t := range r.byUser {
		if t.ExpiredAt(now) {
			delete(r.byUser, user)
			n++
		}
	}
	return n, nil
}

// ForUser returns the user's stored token.
func (r *ResetTokens) ForUser(userID ulid.ULID) (*auth.ResetToken, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byUser[userID]
	return &t, ok
}

// Len returns the number of stored tokens.
func (r *ResetTokens) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser)
}

// Denylist is an in-memory auth.Denylist.
type Denylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

var _ auth.Denylist = (*Denylist)(nil)

// NewDenylist creates an empty Denylist.
func NewDenylist() *Denylist {
	return &Denylist{revoked: make(map[string]time.Time)}
}

// Revoke records tokenID.
func (d *Denylist) Revoke(_ context.Context, tokenID string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[tokenID] = until
	return nil
}

// IsRevoked reports whether tokenID was revoked.
func (d *Denylist) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.revoked[tokenID]
	return ok, nil
}

// Mailer records sent messages. Err, when set, fails every send.
type Mailer struct {
	mu   sync.Mutex
	sent []mail.Message
	Err  error
}

var _ mail.Sender = (*Mailer)(nil)

// Send records msg or returns Err.
func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *Mailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

// Last returns the most recent message.
func (m *Mailer) Last() (mail.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return mail.Message{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// PlainHasher is a fast auth.PasswordHasher for tests. Hashes are
// "plain:" + password.
type PlainHasher struct{}

var _ auth.PasswordHasher = PlainHasher{}

// Hash returns "plain:" + password.
func (PlainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return "plain:" + password, nil
}

// Verify compares against the plain encoding.
func (PlainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain:"+password, nil
}

// NeedsUpgrade always reports false.
func (PlainHasher) NeedsUpgrade(string) bool { return false }
