// SPDX-License-Identifier: Apache-2.0

package eventlog

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps streams in process memory. It backs tests and the
// EVENTSTORE_URL=memory dev mode; it intentionally favors clarity over
// performance.
type MemoryBackend struct {
	mu      sync.Mutex
	streams map[string][]StoredEvent
	now     func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		streams: make(map[string][]StoredEvent),
		now:     time.Now,
	}
}

func (m *MemoryBackend) Append(_ context.Context, streamKey string, events []ProposedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ev := range events {
		data := make([]byte, len(ev.Data))
		copy(data, ev.Data)

		m.streams[streamKey] = append(m.streams[streamKey], StoredEvent{
			Type:      ev.Type,
			Data:      data,
			CreatedAt: m.tick(streamKey),
		})
	}

	return nil
}

func (m *MemoryBackend) ReadBackward(_ context.Context, streamKey string, limit int) ([]StoredEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stream := m.streams[streamKey]
	if len(stream) == 0 {
		return nil, nil
	}

	if limit > len(stream) {
		limit = len(stream)
	}

	out := make([]StoredEvent, 0, limit)
	for i := len(stream) - 1; i >= len(stream)-limit; i-- {
		out = append(out, stream[i])
	}

	return out, nil
}

func (m *MemoryBackend) DeleteStream(_ context.Context, streamKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.streams, streamKey)
	return nil
}

// tick assigns a creation timestamp strictly after the stream's current
// head, so backward reads stay strictly ordered even within one batch.
func (m *MemoryBackend) tick(streamKey string) time.Time {
	ts := m.now()
	if stream := m.streams[streamKey]; len(stream) > 0 {
		if last := stream[len(stream)-1].CreatedAt; !ts.After(last) {
			ts = last.Add(time.Nanosecond)
		}
	}
	return ts
}
