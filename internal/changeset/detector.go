// SPDX-License-Identifier: Apache-2.0

// Package changeset turns a record's pending mutations into ordered
// field-level change events. Pure diff logic, no I/O: callers snapshot the
// last-persisted values, and the save path threads the returned batch to the
// event log after the primary commit.
package changeset

import "userledger/internal/domain"

// State describes what is happening to the record as a whole in this save.
type State int

const (
	// StateAdded marks a record that does not exist in the primary store yet.
	StateAdded State = iota + 1
	// StateModified marks a record whose persisted row is being updated.
	StateModified
	// StateRemoved marks a record whose row is being deleted.
	StateRemoved
)

// Field is one property's snapshot at save time. Previous holds the
// last-persisted value, Current the pending one; nil means absent, which is
// distinct from an empty string. Temporary flags values the store has not
// finalized yet (e.g. a store-assigned identifier); those never produce
// events.
type Field struct {
	Name      string
	Previous  *string
	Current   *string
	Temporary bool
}

// Detect emits one event per field transition, in the order the fields are
// given. Unchanged fields of a modified record are skipped, so a batch is
// proportional to actual change volume rather than total field count.
func Detect(state State, fields []Field) []domain.ChangeEvent {
	var events []domain.ChangeEvent

	for _, f := range fields {
		if f.Temporary {
			continue
		}

		switch state {
		case StateAdded:
			if f.Current == nil {
				continue
			}
			events = append(events, domain.ChangeEvent{
				Kind:  domain.KindCreate,
				Field: f.Name,
				New:   f.Current,
			})
		case StateModified:
			if equal(f.Previous, f.Current) {
				continue
			}
			events = append(events, domain.ChangeEvent{
				Kind:     domain.KindUpdate,
				Field:    f.Name,
				Previous: f.Previous,
				New:      f.Current,
			})
		case StateRemoved:
			// The removal event still carries the value being discarded.
			events = append(events, domain.ChangeEvent{
				Kind:  domain.KindDelete,
				Field: f.Name,
				New:   f.Current,
			})
		}
	}

	return events
}

func equal(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
