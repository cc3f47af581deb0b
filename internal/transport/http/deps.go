// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/google/uuid"

	"userledger/internal/domain"
	"userledger/internal/service"
)

type UserService interface {
	Create(ctx context.Context, p service.CreateParams) (*domain.User, error)
	Update(ctx context.Context, id uuid.UUID, p service.UpdateParams) (*domain.User, error)
	ScheduleRemoval(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	History(ctx context.Context, id uuid.UUID, limit int) ([]domain.RecordedEvent, error)
}

type HealthChecker interface {
	Check(ctx context.Context) error
}
