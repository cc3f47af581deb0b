// SPDX-License-Identifier: Apache-2.0

// Package eventlog owns the append-only audit store: it serializes change
// events into per-record streams, reads them back tolerantly, and deletes
// whole streams. The Gateway is the only component in the system that talks
// to the underlying event store.
package eventlog

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure caused by the event store being
// unreachable. Callers decide whether that is fatal; the save path treats it
// as an operational concern only.
var ErrUnavailable = errors.New("event log unavailable")

// ProposedEvent is the raw, serialized form of one event handed to a backend
// for appending. Type is the discriminator stored alongside the payload and
// always equals the event kind.
type ProposedEvent struct {
	Type     string
	Data     []byte
	Metadata []byte
}

// StoredEvent is a raw entry read back from a backend. CreatedAt is assigned
// by the store at append time, never by the writer.
type StoredEvent struct {
	Type      string
	Data      []byte
	CreatedAt time.Time
}

// Backend is the narrow surface the gateway needs from a durable event
// store. Implementations must be safe for concurrent use; one shared client
// serves all saves and the reaper.
type Backend interface {
	// Append atomically appends the batch to the stream, creating it if
	// needed, with no optimistic-concurrency check against the stream head.
	Append(ctx context.Context, streamKey string, events []ProposedEvent) error

	// ReadBackward returns up to limit entries, newest first. A missing
	// stream reads as empty, not as an error.
	ReadBackward(ctx context.Context, streamKey string, limit int) ([]StoredEvent, error)

	// DeleteStream removes the whole stream. Deleting a missing stream is a
	// no-op.
	DeleteStream(ctx context.Context, streamKey string) error
}
