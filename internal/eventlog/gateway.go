// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"userledger/internal/domain"
	"userledger/internal/metrics"
)

// DefaultReadLimit bounds history reads when the caller does not ask for a
// specific count.
const DefaultReadLimit = 100

var emptyMetadata = []byte("{}")

// Gateway translates between domain change events and the raw stream store.
type Gateway struct {
	backend Backend
	logger  *slog.Logger
}

func NewGateway(backend Backend, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	return &Gateway{
		backend: backend,
		logger:  logger,
	}
}

// payload is the external serialization of one change event. It is
// self-describing; schema evolution discriminates on the stored event type,
// which always equals the kind, without touching the body.
type payload struct {
	Kind     domain.EventKind `json:"kind"`
	Field    string           `json:"field"`
	Previous *string          `json:"previous,omitempty"`
	New      *string          `json:"new,omitempty"`
}

// Append serializes the batch and appends it atomically to the stream.
// Appending an empty batch is a no-op.
func (g *Gateway) Append(ctx context.Context, streamKey string, events []domain.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}

	proposed := make([]ProposedEvent, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(payload{
			Kind:     ev.Kind,
			Field:    ev.Field,
			Previous: ev.Previous,
			New:      ev.New,
		})
		if err != nil {
			return fmt.Errorf("encode %s event for field %s: %w", ev.Kind, ev.Field, err)
		}

		proposed = append(proposed, ProposedEvent{
			Type:     string(ev.Kind),
			Data:     data,
			Metadata: emptyMetadata,
		})
	}

	if err := g.backend.Append(ctx, streamKey, proposed); err != nil {
		metrics.IncAppendFailures()
		return fmt.Errorf("append %d events to stream %s: %w", len(proposed), streamKey, err)
	}

	metrics.AddAppendedEvents(len(proposed))
	return nil
}

// Read returns up to limit events, newest first, with store-assigned
// creation timestamps. Entries that fail to decode are dropped rather than
// failing the whole read; history must stay readable even when parts of it
// are not.
func (g *Gateway) Read(ctx context.Context, streamKey string, limit int) ([]domain.RecordedEvent, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	stored, err := g.backend.ReadBackward(ctx, streamKey, limit)
	if err != nil {
		return nil, fmt.Errorf("read stream %s: %w", streamKey, err)
	}

	out := make([]domain.RecordedEvent, 0, len(stored))
	for _, raw := range stored {
		var p payload
		if err := json.Unmarshal(raw.Data, &p); err != nil {
			metrics.IncDroppedEntries()
			g.logger.Debug("dropping unreadable history entry",
				"stream", streamKey,
				"type", raw.Type,
				"error", err,
			)
			continue
		}
		if !p.Kind.Valid() {
			// Foreign payloads can decode as JSON and still mean nothing.
			metrics.IncDroppedEntries()
			g.logger.Debug("dropping history entry with unknown kind",
				"stream", streamKey,
				"type", raw.Type,
			)
			continue
		}

		out = append(out, domain.RecordedEvent{
			ChangeEvent: domain.ChangeEvent{
				Kind:     p.Kind,
				Field:    p.Field,
				Previous: p.Previous,
				New:      p.New,
			},
			CreatedAt: raw.CreatedAt,
		})
	}

	return out, nil
}

// Delete removes the whole stream. Individual events are never deleted.
// Deleting a stream that does not exist is not an error.
func (g *Gateway) Delete(ctx context.Context, streamKey string) error {
	if err := g.backend.DeleteStream(ctx, streamKey); err != nil {
		return fmt.Errorf("delete stream %s: %w", streamKey, err)
	}
	return nil
}
