// Package schedules manages staff working schedules and date-specific
// unavailability blocks.
package schedules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type Service struct {
	repo store.ScheduleRepository
}

func NewService(repo store.ScheduleRepository) *Service {
	return &Service{repo: repo}
}

type ScheduleInput struct {
	StaffID   string
	DayOfWeek string
	StartTime string
	EndTime   string
	// IsActive defaults to true.
	IsActive *bool
}

type SchedulePatch struct {
	DayOfWeek *string
	StartTime *string
	EndTime   *string
	IsActive  *bool
}

type BlockInput struct {
	// StaffID nil or blank makes the block apply to all staff.
	StaffID   *string
	Date      domain.Date
	StartTime string
	EndTime   string
	Reason    string
	IsActive  *bool
}

func (s *Service) CreateSchedule(ctx context.Context, in ScheduleInput) (domain.Schedule, error) {
	staffID := strings.TrimSpace(in.StaffID)
	if staffID == "" {
		return domain.Schedule{}, fmt.Errorf("%w: staff id required", domain.ErrInvalidInput)
	}
	day, err := domain.ParseDayOfWeek(in.DayOfWeek)
	if err != nil {
		return domain.Schedule{}, err
	}
	start, end, err := normalizeRange(in.StartTime, in.EndTime)
	if err != nil {
		return domain.Schedule{}, err
	}

	return s.repo.CreateSchedule(ctx, domain.Schedule{
		StaffID:   staffID,
		DayOfWeek: day,
		StartTime: start,
		EndTime:   end,
		IsActive:  boolOr(in.IsActive, true),
	})
}

func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	sched, err := s.repo.GetSchedule(ctx, id)
	if err != nil {
		return domain.Schedule{}, notFound(err, "schedule", id)
	}
	return sched, nil
}

// ListSchedules returns every schedule, or only staffID's when it is set.
func (s *Service) ListSchedules(ctx context.Context, staffID string) ([]domain.Schedule, error) {
	return s.repo.ListSchedules(ctx, strings.TrimSpace(staffID))
}

func (s *Service) UpdateSchedule(ctx context.Context, id uuid.UUID, patch SchedulePatch) (domain.Schedule, error) {
	sched, err := s.GetSchedule(ctx, id)
	if err != nil {
		return domain.Schedule{}, err
	}

	if patch.DayOfWeek != nil {
		day, err := domain.ParseDayOfWeek(*patch.DayOfWeek)
		if err != nil {
			return domain.Schedule{}, err
		}
		sched.DayOfWeek = day
	}
	start, end := sched.StartTime, sched.EndTime
	if patch.StartTime != nil {
		start = *patch.StartTime
	}
	if patch.EndTime != nil {
		end = *patch.EndTime
	}
	sched.StartTime, sched.EndTime, err = normalizeRange(start, end)
	if err != nil {
		return domain.Schedule{}, err
	}
	if patch.IsActive != nil {
		sched.IsActive = *patch.IsActive
	}

	out, err := s.repo.UpdateSchedule(ctx, sched)
	if err != nil {
		return domain.Schedule{}, notFound(err, "schedule", id)
	}
	return out, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	return notFound(s.repo.DeleteSchedule(ctx, id), "schedule", id)
}

func (s *Service) CreateBlock(ctx context.Context, in BlockInput) (domain.ScheduleBlock, error) {
	if !in.Date.Valid() {
		return domain.ScheduleBlock{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, in.Date)
	}
	start, end, err := normalizeRange(in.StartTime, in.EndTime)
	if err != nil {
		return domain.ScheduleBlock{}, err
	}

	var staffID *string
	if in.StaffID != nil {
		if v := strings.TrimSpace(*in.StaffID); v != "" {
			staffID = &v
		}
	}

	return s.repo.CreateBlock(ctx, domain.ScheduleBlock{
		StaffID:   staffID,
		Date:      in.Date,
		StartTime: start,
		EndTime:   end,
		Reason:    strings.TrimSpace(in.Reason),
		IsActive:  boolOr(in.IsActive, true),
	})
}

func (s *Service) ListBlocks(ctx context.Context, staffID string) ([]domain.ScheduleBlock, error) {
	return s.repo.ListBlocks(ctx, store.BlockFilter{StaffID: strings.TrimSpace(staffID)})
}

// ListBlocksByDateRange returns blocks dated within [from, to].
func (s *Service) ListBlocksByDateRange(ctx context.Context, from, to domain.Date) ([]domain.ScheduleBlock, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: range %q..%q", domain.ErrInvalidDate, from, to)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: start date must not be after end date", domain.ErrInvalidDate)
	}
	return s.repo.ListBlocks(ctx, store.BlockFilter{From: from, To: to})
}

func (s *Service) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	return notFound(s.repo.DeleteBlock(ctx, id), "block", id)
}

func normalizeRange(start, end string) (string, string, error) {
	s, e, err := domain.ParseRange(start, end)
	if err != nil {
		return "", "", err
	}
	return domain.FormatMinutes(s), domain.FormatMinutes(e), nil
}

func notFound(err error, what string, id uuid.UUID) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, domain.ErrNotFound)
	}
	return err
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
