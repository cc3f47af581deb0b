// SPDX-License-Identifier: Apache-2.0

// Package store is the primary, transactional system of record for current
// user state. It never sees change events; the audit trail lives in the
// event log alone.
package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"userledger/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Op is one primary-store mutation kind inside a save.
type Op int

const (
	OpInsert Op = iota + 1
	OpUpdate
	OpDelete
)

// Mutation is one row change to apply. A save's mutations commit in a single
// transaction or not at all.
type Mutation struct {
	Op   Op
	User *domain.User
}

type Users struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewUsers(pool *pgxpool.Pool, logger *slog.Logger) *Users {
	if logger == nil {
		logger = slog.Default()
	}

	return &Users{
		pool:   pool,
		logger: logger,
	}
}

const userColumns = `id, email_address, hashed_password, email_verified, removed_at`

func (s *Users) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id=$1`,
		id,
	).Scan(&u.ID, &u.EmailAddress, &u.HashedPassword, &u.EmailVerified, &u.RemovedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		s.logger.Error("get user failed", "user_id", id, "error", err)
		return nil, err
	}

	return &u, nil
}

func (s *Users) List(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY email_address ASC`,
	)
	if err != nil {
		s.logger.Error("list users query failed", "error", err)
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.User, 0, 8)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.EmailAddress, &u.HashedPassword, &u.EmailVerified, &u.RemovedAt); err != nil {
			s.logger.Error("scan user row failed", "error", err)
			return nil, err
		}
		out = append(out, u)
	}

	if err := rows.Err(); err != nil {
		s.logger.Error("users rows iteration failed", "error", err)
		return nil, err
	}

	return out, nil
}

// Apply commits every mutation in one transaction and returns the number of
// rows affected. On any failure nothing is persisted.
func (s *Users) Apply(ctx context.Context, muts []Mutation) (int64, error) {
	if len(muts) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.logger.Error("begin tx failed", "error", err)
		return 0, err
	}
	defer tx.Rollback(ctx)

	var affected int64
	for _, mut := range muts {
		ct, err := s.applyOne(ctx, tx, mut)
		if err != nil {
			s.logger.Error("apply mutation failed",
				"user_id", mut.User.ID,
				"op", mut.Op,
				"error", err,
			)
			return 0, err
		}
		affected += ct.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit failed", "error", err)
		return 0, err
	}

	return affected, nil
}

func (s *Users) applyOne(ctx context.Context, tx pgx.Tx, mut Mutation) (pgconn.CommandTag, error) {
	u := mut.User

	switch mut.Op {
	case OpInsert:
		ct, err := tx.Exec(ctx, `
			INSERT INTO users (id, email_address, hashed_password, email_verified, removed_at)
			VALUES ($1, $2, $3, $4, $5)
		`,
			u.ID, u.EmailAddress, u.HashedPassword, u.EmailVerified, u.RemovedAt,
		)
		return ct, mapConstraint(err)
	case OpUpdate:
		ct, err := tx.Exec(ctx, `
			UPDATE users
			SET email_address=$2,
			    hashed_password=$3,
			    email_verified=$4,
			    removed_at=$5,
			    updated_at=NOW()
			WHERE id=$1
		`,
			u.ID, u.EmailAddress, u.HashedPassword, u.EmailVerified, u.RemovedAt,
		)
		return ct, mapConstraint(err)
	case OpDelete:
		return tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, u.ID)
	}

	return pgconn.CommandTag{}, errors.New("unknown mutation op")
}

// PurgeExpired deletes every user whose removal timestamp is older than the
// cutoff and returns the deleted rows, in one transaction. The caller owns
// cleaning up the corresponding streams afterwards.
func (s *Users) PurgeExpired(ctx context.Context, cutoff time.Time) ([]domain.User, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		s.logger.Error("begin purge tx failed", "error", err)
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		DELETE FROM users
		WHERE removed_at IS NOT NULL AND removed_at < $1
		RETURNING `+userColumns,
		cutoff,
	)
	if err != nil {
		s.logger.Error("purge delete failed", "cutoff", cutoff, "error", err)
		return nil, err
	}

	purged := make([]domain.User, 0, 8)
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.EmailAddress, &u.HashedPassword, &u.EmailVerified, &u.RemovedAt); err != nil {
			rows.Close()
			s.logger.Error("scan purged row failed", "error", err)
			return nil, err
		}
		purged = append(purged, u)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		s.logger.Error("purge rows iteration failed", "error", err)
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("purge commit failed", "error", err)
		return nil, err
	}

	return purged, nil
}

// mapConstraint translates a unique violation on the email index into the
// domain error callers can act on.
func mapConstraint(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrEmailTaken
	}
	return err
}
