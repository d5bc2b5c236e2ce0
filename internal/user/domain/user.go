package domain

import (
	"errors"
	"strings"
	"time"
)

// User is the core identity record. PasswordHash is empty for invitee
// placeholders created by a workspace invite before the user sets a
// password; such accounts cannot log in.
type User struct {
	ID              string
	Email           string
	Name            string
	PasswordHash    string
	EmailVerifiedAt *time.Time // nil until verified
	LastLoginAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NormalizeEmail lower-cases and trims an email address. All lookups and
// uniqueness checks run on the normalized form.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Validate validates the user for persistence.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.Email != NormalizeEmail(u.Email) {
		return errors.New("email must be normalized")
	}
	return nil
}
