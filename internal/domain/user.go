// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// User is the mutable record tracked by the primary store. Its current state
// lives in Postgres only; every field transition is captured as ChangeEvents
// in the user's audit stream.
type User struct {
	ID             uuid.UUID  `json:"id"`
	EmailAddress   string     `json:"email_address"`
	HashedPassword string     `json:"-"`
	EmailVerified  bool       `json:"email_verified"`
	RemovedAt      *time.Time `json:"removed_at,omitempty"`
}

var emailPattern = regexp.MustCompile(`^[\w.\-_]+@[\w.\-_]+\.[\w.\-_]{2,5}$`)

// Validate checks shape constraints before any store interaction.
func (u *User) Validate() error {
	if len(u.EmailAddress) < 6 || len(u.EmailAddress) > 255 || !emailPattern.MatchString(u.EmailAddress) {
		return ErrInvalidEmail
	}
	if u.HashedPassword == "" {
		return ErrMissingPassword
	}
	return nil
}

// Removed reports whether the user has been scheduled for permanent deletion.
// There is no path back to an active user once this is set.
func (u *User) Removed() bool {
	return u.RemovedAt != nil
}
