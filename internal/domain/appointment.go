package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "pending"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusNoShow    AppointmentStatus = "no_show"
)

var AppointmentStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusConfirmed,
	AppointmentStatusCompleted,
	AppointmentStatusCancelled,
	AppointmentStatusNoShow,
}

func (s AppointmentStatus) Valid() bool {
	for _, v := range AppointmentStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// BlockingStatuses are the statuses for which BlocksStaff is true.
var BlockingStatuses = []AppointmentStatus{
	AppointmentStatusPending,
	AppointmentStatusConfirmed,
	AppointmentStatusCompleted,
}

// BlocksStaff reports whether an appointment in this status occupies its
// staff member's time.
func (s AppointmentStatus) BlocksStaff() bool {
	return s != AppointmentStatusCancelled && s != AppointmentStatusNoShow
}

type Appointment struct {
	bun.BaseModel `bun:"table:appointments"`

	ID                 uuid.UUID         `bun:"id,pk,type:uuid"`
	ClientID           string            `bun:"client_id,notnull"`
	StaffID            string            `bun:"staff_id,notnull"`
	ServiceID          string            `bun:"service_id,notnull"`
	Date               Date              `bun:"day,notnull"`
	StartTime          string            `bun:"start_time,notnull"`
	EndTime            string            `bun:"end_time,notnull"`
	Status             AppointmentStatus `bun:"status,notnull"`
	Notes              string            `bun:"notes"`
	CancellationReason *string           `bun:"cancellation_reason"`
	CreatedAt          time.Time         `bun:"created_at,notnull"`
	UpdatedAt          time.Time         `bun:"updated_at,notnull"`
}

// SlotKey is the value join between an appointment and the slot it holds.
func (a Appointment) SlotKey() SlotKey {
	return SlotKey{ServiceID: a.ServiceID, Date: a.Date, StartTime: a.StartTime}
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// AppointmentStats counts appointments by status over a date range.
type AppointmentStats struct {
	Total     int
	Pending   int
	Confirmed int
	Completed int
	Cancelled int
	NoShow    int
}

func (s *AppointmentStats) Add(status AppointmentStatus) {
	s.Total++
	switch status {
	case AppointmentStatusPending:
		s.Pending++
	case AppointmentStatusConfirmed:
		s.Confirmed++
	case AppointmentStatusCompleted:
		s.Completed++
	case AppointmentStatusCancelled:
		s.Cancelled++
	case AppointmentStatusNoShow:
		s.NoShow++
	}
}
