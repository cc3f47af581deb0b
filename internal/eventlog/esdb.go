// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
)

// ESDBBackend stores streams in EventStoreDB. The client is stateless and
// shared across all saves and the reaper.
type ESDBBackend struct {
	client *esdb.Client
}

func NewESDBBackend(connString string) (*ESDBBackend, error) {
	settings, err := esdb.ParseConnectionString(connString)
	if err != nil {
		return nil, fmt.Errorf("parse event store connection string: %w", err)
	}

	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, fmt.Errorf("create event store client: %w", err)
	}

	return &ESDBBackend{client: client}, nil
}

func (b *ESDBBackend) Close() error {
	return b.client.Close()
}

func (b *ESDBBackend) Append(ctx context.Context, streamKey string, events []ProposedEvent) error {
	data := make([]esdb.EventData, 0, len(events))
	for _, ev := range events {
		data = append(data, esdb.EventData{
			EventType:   ev.Type,
			ContentType: esdb.ContentTypeJson,
			Data:        ev.Data,
			Metadata:    ev.Metadata,
		})
	}

	// Append regardless of expected version: concurrent writers to one
	// stream are ordered by the store's own append atomicity only.
	opts := esdb.AppendToStreamOptions{ExpectedRevision: esdb.Any{}}
	if _, err := b.client.AppendToStream(ctx, streamKey, opts, data...); err != nil {
		return unavailable(err)
	}

	return nil
}

func (b *ESDBBackend) ReadBackward(ctx context.Context, streamKey string, limit int) ([]StoredEvent, error) {
	opts := esdb.ReadStreamOptions{
		Direction:      esdb.Backwards,
		From:           esdb.End{},
		ResolveLinkTos: true,
	}

	stream, err := b.client.ReadStream(ctx, streamKey, opts, uint64(limit))
	if err != nil {
		if streamNotFound(err) {
			return nil, nil
		}
		return nil, unavailable(err)
	}
	defer stream.Close()

	var out []StoredEvent
	for {
		resolved, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if streamNotFound(err) {
				return nil, nil
			}
			return nil, unavailable(err)
		}

		rec := resolved.OriginalEvent()
		if rec == nil {
			continue
		}

		out = append(out, StoredEvent{
			Type:      rec.EventType,
			Data:      rec.Data,
			CreatedAt: rec.CreatedDate,
		})
	}

	return out, nil
}

func (b *ESDBBackend) DeleteStream(ctx context.Context, streamKey string) error {
	opts := esdb.DeleteStreamOptions{ExpectedRevision: esdb.Any{}}
	if _, err := b.client.DeleteStream(ctx, streamKey, opts); err != nil {
		if streamNotFound(err) {
			return nil
		}
		return unavailable(err)
	}

	return nil
}

func streamNotFound(err error) bool {
	esdbErr, ok := esdb.FromError(err)
	return !ok && esdbErr.IsErrorCode(esdb.ErrorCodeResourceNotFound)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
