// Package user defines the user model used throughout the application,
// particularly for authentication and ownership of finance records.
package user

import (
	"strings"
	"time"
)

// User represents a registered account.
type User struct {
	// ID is the unique identifier of the user, meaning a UUID.
	ID string

	// Email is unique across users and kept in its normalized form.
	Email string

	// PasswordHash is the bcrypt hash of the password.
	PasswordHash []byte

	CreatedAt time.Time
}

// NormalizeEmail returns the form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
