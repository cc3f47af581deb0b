// SPDX-License-Identifier: Apache-2.0

package eventlog

import "github.com/google/uuid"

const userStreamPrefix = "user-"

// UserStream derives the stream key for a user's audit trail. One key maps
// to exactly one user's lifetime; after deletion the key may be reused, but
// no tombstone guarantee protects the prior history.
func UserStream(id uuid.UUID) string {
	return userStreamPrefix + id.String()
}
