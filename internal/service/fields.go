// SPDX-License-Identifier: Apache-2.0

package service

import (
	"strconv"
	"time"

	"userledger/internal/changeset"
	"userledger/internal/domain"
)

// userFields snapshots both versions of a user as canonical text, in field
// declaration order. Event batches follow this order. prev is nil for a
// record that has never been persisted.
func userFields(prev, cur *domain.User) []changeset.Field {
	var p, c fieldValues
	if prev != nil {
		p = valuesOf(prev)
	}
	if cur != nil {
		c = valuesOf(cur)
	}

	return []changeset.Field{
		{Name: "id", Previous: p.id, Current: c.id},
		{Name: "email_address", Previous: p.email, Current: c.email},
		{Name: "hashed_password", Previous: p.password, Current: c.password},
		{Name: "email_verified", Previous: p.verified, Current: c.verified},
		{Name: "removed_at", Previous: p.removedAt, Current: c.removedAt},
	}
}

type fieldValues struct {
	id        *string
	email     *string
	password  *string
	verified  *string
	removedAt *string
}

func valuesOf(u *domain.User) fieldValues {
	return fieldValues{
		id:        textPtr(u.ID.String()),
		email:     textPtr(u.EmailAddress),
		password:  textPtr(u.HashedPassword),
		verified:  textPtr(strconv.FormatBool(u.EmailVerified)),
		removedAt: timePtr(u.RemovedAt),
	}
}

func textPtr(s string) *string {
	return &s
}

func timePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	return textPtr(t.UTC().Format(time.RFC3339Nano))
}
