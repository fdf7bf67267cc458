package store

import (
	"context"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
)

type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, s domain.Schedule) (domain.Schedule, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error)
	ListSchedules(ctx context.Context, staffID string) ([]domain.Schedule, error)
	ListActiveSchedules(ctx context.Context, staffID string, day domain.DayOfWeek) ([]domain.Schedule, error)
	UpdateSchedule(ctx context.Context, s domain.Schedule) (domain.Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error

	CreateBlock(ctx context.Context, b domain.ScheduleBlock) (domain.ScheduleBlock, error)
	ListBlocks(ctx context.Context, filter BlockFilter) ([]domain.ScheduleBlock, error)
	// ListActiveBlocksFor returns active blocks on date that belong to
	// staffID or to nobody.
	ListActiveBlocksFor(ctx context.Context, staffID string, date domain.Date) ([]domain.ScheduleBlock, error)
	DeleteBlock(ctx context.Context, id uuid.UUID) error
}

// BlockFilter narrows ListBlocks. The date range is inclusive.
type BlockFilter struct {
	StaffID    string
	From       domain.Date
	To         domain.Date
	ActiveOnly bool
}
