package bunstore

import (
	"context"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type ScheduleRepo struct {
	db *bun.DB
}

func NewScheduleRepo(db *bun.DB) *ScheduleRepo {
	return &ScheduleRepo{db: db}
}

func (r *ScheduleRepo) CreateSchedule(ctx context.Context, s domain.Schedule) (domain.Schedule, error) {
	m := s
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Schedule{}, mapError(err)
	}
	return m, nil
}

func (r *ScheduleRepo) GetSchedule(ctx context.Context, id uuid.UUID) (domain.Schedule, error) {
	var out domain.Schedule
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Schedule{}, mapError(err)
	}
	return out, nil
}

func (r *ScheduleRepo) ListSchedules(ctx context.Context, staffID string) ([]domain.Schedule, error) {
	var rows []domain.Schedule
	q := r.db.NewSelect().Model(&rows)
	if staffID != "" {
		q = q.Where("staff_id = ?", staffID)
	}
	if err := q.OrderExpr("staff_id ASC, day_of_week ASC, start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) ListActiveSchedules(ctx context.Context, staffID string, day domain.DayOfWeek) ([]domain.Schedule, error) {
	var rows []domain.Schedule
	err := r.db.NewSelect().
		Model(&rows).
		Where("staff_id = ?", staffID).
		Where("day_of_week = ?", day).
		Where("is_active = ?", true).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) UpdateSchedule(ctx context.Context, s domain.Schedule) (domain.Schedule, error) {
	m := s
	res, err := r.db.NewUpdate().
		Model(&m).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Schedule{}, mapError(err)
	}
	if err := expectAffected(res); err != nil {
		return domain.Schedule{}, err
	}
	return r.GetSchedule(ctx, m.ID)
}

func (r *ScheduleRepo) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Schedule)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r *ScheduleRepo) CreateBlock(ctx context.Context, b domain.ScheduleBlock) (domain.ScheduleBlock, error) {
	m := b
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.ScheduleBlock{}, mapError(err)
	}
	return m, nil
}

func (r *ScheduleRepo) ListBlocks(ctx context.Context, filter store.BlockFilter) ([]domain.ScheduleBlock, error) {
	var rows []domain.ScheduleBlock
	q := r.db.NewSelect().Model(&rows)
	if filter.StaffID != "" {
		q = q.Where("staff_id = ?", filter.StaffID)
	}
	if !filter.From.IsZero() {
		q = q.Where("day >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("day <= ?", filter.To)
	}
	if filter.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.OrderExpr("day ASC, start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) ListActiveBlocksFor(ctx context.Context, staffID string, date domain.Date) ([]domain.ScheduleBlock, error) {
	var rows []domain.ScheduleBlock
	err := r.db.NewSelect().
		Model(&rows).
		Where("day = ?", date).
		Where("is_active = ?", true).
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("staff_id = ?", staffID).WhereOr("staff_id IS NULL")
		}).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ScheduleRepo) DeleteBlock(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.ScheduleBlock)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
