// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"userledger/internal/domain"

	"github.com/google/uuid"
)

// Memory is an in-process primary store with the same transactional
// contract as the Postgres one. It keeps the service and reaper testable
// without a database; it intentionally favors clarity over performance.
type Memory struct {
	mu    sync.Mutex
	users map[uuid.UUID]domain.User
}

func NewMemory() *Memory {
	return &Memory{users: make(map[uuid.UUID]domain.User)}
}

func (m *Memory) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (m *Memory) List(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

// Apply mirrors the all-or-nothing commit of the Postgres store: the checks
// run against a scratch copy and the live map only changes on success.
func (m *Memory) Apply(_ context.Context, muts []Mutation) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[uuid.UUID]domain.User, len(m.users))
	for id, u := range m.users {
		next[id] = u
	}

	var affected int64
	for _, mut := range muts {
		u := mut.User

		switch mut.Op {
		case OpInsert:
			if _, exists := next[u.ID]; exists {
				return 0, errors.New("duplicate user id")
			}
			if emailTaken(next, u.EmailAddress, u.ID) {
				return 0, domain.ErrEmailTaken
			}
			next[u.ID] = *u
			affected++
		case OpUpdate:
			if _, exists := next[u.ID]; !exists {
				continue
			}
			if emailTaken(next, u.EmailAddress, u.ID) {
				return 0, domain.ErrEmailTaken
			}
			next[u.ID] = *u
			affected++
		case OpDelete:
			if _, exists := next[u.ID]; !exists {
				continue
			}
			delete(next, u.ID)
			affected++
		default:
			return 0, errors.New("unknown mutation op")
		}
	}

	m.users = next
	return affected, nil
}

func (m *Memory) PurgeExpired(_ context.Context, cutoff time.Time) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var purged []domain.User
	for id, u := range m.users {
		if u.RemovedAt != nil && u.RemovedAt.Before(cutoff) {
			purged = append(purged, u)
			delete(m.users, id)
		}
	}
	return purged, nil
}

func emailTaken(users map[uuid.UUID]domain.User, email string, self uuid.UUID) bool {
	for id, u := range users {
		if id != self && u.EmailAddress == email {
			return true
		}
	}
	return false
}
