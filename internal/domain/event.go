// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

// EventKind is the type discriminator stored alongside each event payload.
type EventKind string

const (
	KindCreate EventKind = "Create"
	KindUpdate EventKind = "Update"
	KindDelete EventKind = "Delete"
)

func (k EventKind) Valid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// ChangeEvent is an immutable description of one field's transition at save
// time. Previous is absent for Create events; Delete events carry the value
// being discarded in New.
type ChangeEvent struct {
	Kind     EventKind `json:"kind"`
	Field    string    `json:"field"`
	Previous *string   `json:"previous,omitempty"`
	New      *string   `json:"new,omitempty"`
}

// RecordedEvent is a ChangeEvent read back from the log store, enriched with
// the creation timestamp the store assigned at append time. The log store is
// the authority on ordering and wall-clock time.
type RecordedEvent struct {
	ChangeEvent
	CreatedAt time.Time `json:"created_at"`
}
