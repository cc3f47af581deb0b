// SPDX-License-Identifier: Apache-2.0

// Package service coordinates one logical save: diff the pending mutations
// against the last-persisted values, commit the primary store transaction,
// then append the detected events to each record's audit stream. The
// primary commit is the transactional boundary; appends after it are
// best-effort.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"userledger/internal/changeset"
	"userledger/internal/domain"
	"userledger/internal/eventlog"
	"userledger/internal/metrics"
	"userledger/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// appendConcurrency bounds the per-record stream appends issued after one
// commit.
const appendConcurrency = 8

// Store is the slice of the primary store the coordinator needs.
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Apply(ctx context.Context, muts []store.Mutation) (int64, error)
}

// EventLog is the gateway surface the coordinator appends to and reads from.
type EventLog interface {
	Append(ctx context.Context, streamKey string, events []domain.ChangeEvent) error
	Read(ctx context.Context, streamKey string, limit int) ([]domain.RecordedEvent, error)
}

type Users struct {
	store  Store
	log    EventLog
	logger *slog.Logger
}

func NewUsers(st Store, log EventLog, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}

	return &Users{
		store:  st,
		log:    log,
		logger: logger,
	}
}

type CreateParams struct {
	EmailAddress   string
	HashedPassword string
}

// Create persists a new user and appends one Create event per initial field
// to a fresh stream.
func (s *Users) Create(ctx context.Context, p CreateParams) (*domain.User, error) {
	u := &domain.User{
		ID:             uuid.New(),
		EmailAddress:   strings.TrimSpace(p.EmailAddress),
		HashedPassword: p.HashedPassword,
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.save(ctx, []*tracked{{user: u, state: changeset.StateAdded}}); err != nil {
		return nil, err
	}

	metrics.IncSaves("create")
	s.logger.Info("user created", "user_id", u.ID)
	return u, nil
}

type UpdateParams struct {
	EmailAddress   *string
	HashedPassword *string
	EmailVerified  *bool
}

// Update applies the given field changes. Changing the email address resets
// the verified flag. Fields that end up unchanged produce no events.
func (s *Users) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*domain.User, error) {
	prior, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := *prior
	if p.EmailAddress != nil {
		email := strings.TrimSpace(*p.EmailAddress)
		if email != prior.EmailAddress {
			next.EmailAddress = email
			next.EmailVerified = false
		}
	}
	if p.HashedPassword != nil {
		next.HashedPassword = *p.HashedPassword
	}
	if p.EmailVerified != nil {
		// An explicit flag wins over the reset above.
		next.EmailVerified = *p.EmailVerified
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.save(ctx, []*tracked{{user: &next, prior: prior, state: changeset.StateModified}}); err != nil {
		return nil, err
	}

	metrics.IncSaves("update")
	return &next, nil
}

// ScheduleRemoval sets the removal timestamp, which starts the grace window
// and surfaces as one Update event on that field. Scheduling an already
// scheduled user changes nothing. This subsystem offers no path back.
func (s *Users) ScheduleRemoval(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	prior, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if prior.Removed() {
		return prior, nil
	}

	now := time.Now().UTC()
	next := *prior
	next.RemovedAt = &now

	if _, err := s.save(ctx, []*tracked{{user: &next, prior: prior, state: changeset.StateModified}}); err != nil {
		return nil, err
	}

	metrics.IncSaves("update")
	s.logger.Info("user scheduled for removal", "user_id", id, "removed_at", now)
	return &next, nil
}

func (s *Users) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Users) List(ctx context.Context) ([]domain.User, error) {
	return s.store.List(ctx)
}

// History reads back the user's stream, newest first. It stays readable
// after the user is soft-deleted and only disappears once the reaper purges
// the stream.
func (s *Users) History(ctx context.Context, id uuid.UUID, limit int) ([]domain.RecordedEvent, error) {
	return s.log.Read(ctx, eventlog.UserStream(id), limit)
}

// tracked is the explicit staging structure for one record inside a save:
// the pending state, the last-persisted snapshot to diff against, and the
// events detected for it. Nothing is staged on the entity itself.
type tracked struct {
	user   *domain.User
	prior  *domain.User
	state  changeset.State
	staged []domain.ChangeEvent
}

// save runs one logical save over the tracked records: detect, commit,
// append. A primary-store failure aborts with nothing appended. Append
// failures after the commit leave the save successful and the audit trail
// incomplete for this operation.
func (s *Users) save(ctx context.Context, recs []*tracked) (int64, error) {
	muts := make([]store.Mutation, 0, len(recs))
	for _, rec := range recs {
		rec.staged = changeset.Detect(rec.state, userFields(rec.prior, rec.user))
		muts = append(muts, store.Mutation{Op: opFor(rec.state), User: rec.user})
	}

	affected, err := s.store.Apply(ctx, muts)
	if err != nil {
		return 0, fmt.Errorf("commit primary store: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(appendConcurrency)
	for _, rec := range recs {
		if len(rec.staged) == 0 {
			continue
		}

		g.Go(func() error {
			key := eventlog.UserStream(rec.user.ID)
			if err := s.log.Append(ctx, key, rec.staged); err != nil {
				// The primary change is already durable; history for this
				// save is lost, not the save itself.
				s.logger.Error("audit append failed",
					"stream", key,
					"events", len(rec.staged),
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	return affected, nil
}

func opFor(state changeset.State) store.Op {
	switch state {
	case changeset.StateAdded:
		return store.OpInsert
	case changeset.StateRemoved:
		return store.OpDelete
	default:
		return store.OpUpdate
	}
}
