package store

import (
	"context"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
)

type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error)
	ListActiveForStaffDay(ctx context.Context, staffID string, date domain.Date, excludeID uuid.UUID) ([]domain.Appointment, error)
	ExistsActiveForSlot(ctx context.Context, key domain.SlotKey, clientID string) (bool, error)

	// Cancel moves an appointment to cancelled unless it is already cancelled
	// or completed. It returns ErrConflict with the current row when the
	// guard rejects the change.
	Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	SetStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// InStaffDayTransaction runs fn in a transaction that holds an exclusive
	// lock on the (staffID, date) pair, so the conflict scan and the write it
	// guards cannot interleave with another booking for the same staff day.
	InStaffDayTransaction(ctx context.Context, staffID string, date domain.Date, fn func(ctx context.Context, tx BookingTx) error) error
}

type BookingTx interface {
	ListActiveForStaffDay(ctx context.Context, staffID string, date domain.Date, excludeID uuid.UUID) ([]domain.Appointment, error)

	// HoldBacked locks the slot key for the rest of the transaction and
	// reports whether an active appointment of clientID other than excludeID
	// already uses it.
	HoldBacked(ctx context.Context, key domain.SlotKey, clientID string, excludeID uuid.UUID) (bool, error)

	InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)

	// UpdateAppointment writes the scheduling fields and notes of appt. Status
	// and cancellation reason are never written here. When statuses is not
	// empty the row must currently be in one of them, otherwise ErrConflict is
	// returned with the current row.
	UpdateAppointment(ctx context.Context, appt domain.Appointment, statuses ...domain.AppointmentStatus) (domain.Appointment, error)
}

// AppointmentFilter narrows List. Zero fields are ignored; the date range is
// inclusive on both ends.
type AppointmentFilter struct {
	ClientID string
	StaffID  string
	From     domain.Date
	To       domain.Date
}
