package bunstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

var inactiveAppointmentStatuses = []domain.AppointmentStatus{
	domain.AppointmentStatusCancelled,
	domain.AppointmentStatusNoShow,
}

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return out, nil
}

func (r *AppointmentRepo) List(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	if filter.ClientID != "" {
		q = q.Where("client_id = ?", filter.ClientID)
	}
	if filter.StaffID != "" {
		q = q.Where("staff_id = ?", filter.StaffID)
	}
	if !filter.From.IsZero() {
		q = q.Where("day >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		q = q.Where("day <= ?", filter.To)
	}
	err := q.OrderExpr("day ASC, start_time ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListActiveForStaffDay(ctx context.Context, staffID string, date domain.Date, excludeID uuid.UUID) ([]domain.Appointment, error) {
	return listActiveForStaffDay(ctx, r.db, staffID, date, excludeID)
}

func (r *AppointmentRepo) ExistsActiveForSlot(ctx context.Context, key domain.SlotKey, clientID string) (bool, error) {
	return r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("service_id = ?", key.ServiceID).
		Where("day = ?", key.Date).
		Where("start_time = ?", key.StartTime).
		Where("client_id = ?", clientID).
		Where("status NOT IN (?)", bun.In(inactiveAppointmentStatuses)).
		Exists(ctx)
}

func (r *AppointmentRepo) Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", domain.AppointmentStatusCancelled).
		Set("cancellation_reason = ?", reason).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status NOT IN (?)", bun.In([]domain.AppointmentStatus{
			domain.AppointmentStatusCancelled,
			domain.AppointmentStatusCompleted,
		})).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}

	guardErr := expectAffected(res)
	current, err := r.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}
	if guardErr != nil {
		if errors.Is(guardErr, store.ErrNotFound) {
			return current, store.ErrConflict
		}
		return domain.Appointment{}, guardErr
	}
	return current, nil
}

func (r *AppointmentRepo) SetStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", status).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, err
	}
	if err := expectAffected(res); err != nil {
		return domain.Appointment{}, err
	}
	return r.Get(ctx, id)
}

func (r *AppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*domain.Appointment)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r *AppointmentRepo) InStaffDayTransaction(ctx context.Context, staffID string, date domain.Date, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockKey(ctx, tx, "staff-day:"+staffID+":"+date.String()); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func (t bookingTx) ListActiveForStaffDay(ctx context.Context, staffID string, date domain.Date, excludeID uuid.UUID) ([]domain.Appointment, error) {
	return listActiveForStaffDay(ctx, t.tx, staffID, date, excludeID)
}

func (t bookingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := t.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return m, nil
}

func (t bookingTx) HoldBacked(ctx context.Context, key domain.SlotKey, clientID string, excludeID uuid.UUID) (bool, error) {
	if err := lockKey(ctx, t.tx, "slot:"+key.ServiceID+":"+key.Date.String()+":"+key.StartTime); err != nil {
		return false, err
	}
	q := t.tx.NewSelect().
		Model((*domain.Appointment)(nil)).
		Where("service_id = ?", key.ServiceID).
		Where("day = ?", key.Date).
		Where("start_time = ?", key.StartTime).
		Where("client_id = ?", clientID).
		Where("status NOT IN (?)", bun.In(inactiveAppointmentStatuses))
	if excludeID != uuid.Nil {
		q = q.Where("id != ?", excludeID)
	}
	return q.Exists(ctx)
}

func (t bookingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment, statuses ...domain.AppointmentStatus) (domain.Appointment, error) {
	q := t.tx.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("staff_id = ?", appt.StaffID).
		Set("service_id = ?", appt.ServiceID).
		Set("day = ?", appt.Date).
		Set("start_time = ?", appt.StartTime).
		Set("end_time = ?", appt.EndTime).
		Set("notes = ?", appt.Notes).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appt.ID)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapError(err)
	}

	guardErr := expectAffected(res)
	var current domain.Appointment
	if err := t.tx.NewSelect().Model(&current).Where("id = ?", appt.ID).Limit(1).Scan(ctx); err != nil {
		return domain.Appointment{}, mapError(err)
	}
	if guardErr != nil {
		if errors.Is(guardErr, store.ErrNotFound) {
			return current, store.ErrConflict
		}
		return domain.Appointment{}, guardErr
	}
	return current, nil
}

func listActiveForStaffDay(ctx context.Context, db bun.IDB, staffID string, date domain.Date, excludeID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := db.NewSelect().
		Model(&rows).
		Where("staff_id = ?", staffID).
		Where("day = ?", date).
		Where("status NOT IN (?)", bun.In(inactiveAppointmentStatuses))
	if excludeID != uuid.Nil {
		q = q.Where("id != ?", excludeID)
	}
	if err := q.OrderExpr("start_time ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}
