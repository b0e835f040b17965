// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pinvent Contributors

package auth

// ProfileUpdate lists the fields UpdateProfile may change. A nil field is left
// untouched. A non-nil field is applied even when empty, and rejected if the
// empty value is not allowed for that field.
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string
	Phone    *string
	Role     *string
}

// Empty reports whether the update carries no fields.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Password == nil && p.Phone == nil && p.Role == nil
}

// apply validates the update and writes the non-password fields into u.
// The password is handled by the caller because it must be hashed.
func (p ProfileUpdate) apply(u *User) error {
	if p.Name != nil {
		if err := ValidateName(*p.Name); err != nil {
			return err
		}
		u.Name = *p.Name
	}
	if p.Email != nil {
		if err := ValidateEmail(*p.Email); err != nil {
			return err
		}
		u.Email = *p.Email
	}
	if p.Phone != nil {
		if *p.Phone == "" {
			u.Phone = nil
		} else {
			phone := *p.Phone
			u.Phone = &phone
		}
	}
	if p.Role != nil {
		if *p.Role == "" {
			return invalidInput("role cannot be empty")
		}
		role, err := ParseRole(*p.Role)
		if err != nil {
			return err
		}
		u.Role = role
	}
	if p.Password != nil && *p.Password == "" {
		return invalidInput("password cannot be empty")
	}
	return nil
}
