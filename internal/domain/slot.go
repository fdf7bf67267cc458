package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusReserved  SlotStatus = "reserved"
	SlotStatusBlocked   SlotStatus = "blocked"
	SlotStatusCompleted SlotStatus = "completed"
	SlotStatusCancelled SlotStatus = "cancelled"
)

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotStatusAvailable, SlotStatusReserved, SlotStatusBlocked, SlotStatusCompleted, SlotStatusCancelled:
		return true
	}
	return false
}

// Reusable reports whether a slot in this status may be overlapped by newly
// generated slots.
func (s SlotStatus) Reusable() bool {
	return s == SlotStatusCancelled || s == SlotStatusBlocked
}

// SlotKey identifies a slot by value: service, day and start time.
type SlotKey struct {
	ServiceID string
	Date      Date
	StartTime string
}

type ServiceSlot struct {
	bun.BaseModel `bun:"table:service_slots"`

	ID           uuid.UUID  `bun:"id,pk,type:uuid"`
	ServiceID    string     `bun:"service_id,notnull"`
	ProviderID   string     `bun:"provider_id,notnull"`
	ProviderType string     `bun:"provider_type"`
	Date         Date       `bun:"day,notnull"`
	StartTime    string     `bun:"start_time,notnull"`
	EndTime      string     `bun:"end_time,notnull"`
	Status       SlotStatus `bun:"status,notnull"`
	ClientID     *string    `bun:"client_id"`
	Notes        *string    `bun:"notes"`
	CreatedAt    time.Time  `bun:"created_at,notnull"`
	UpdatedAt    time.Time  `bun:"updated_at,notnull"`
}

func (s ServiceSlot) Key() SlotKey {
	return SlotKey{ServiceID: s.ServiceID, Date: s.Date, StartTime: s.StartTime}
}

// HeldBy reports whether clientID is the slot's current holder.
func (s ServiceSlot) HeldBy(clientID string) bool {
	return s.ClientID != nil && *s.ClientID == clientID
}

func (s *ServiceSlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// OrphanedReservation records a slot left reserved after a compensating
// release failed. The reconciler retries the release until it succeeds.
type OrphanedReservation struct {
	bun.BaseModel `bun:"table:orphaned_reservations"`

	ID         uuid.UUID  `bun:"id,pk,type:uuid"`
	ServiceID  string     `bun:"service_id,notnull"`
	Date       Date       `bun:"day,notnull"`
	StartTime  string     `bun:"start_time,notnull"`
	ClientID   string     `bun:"client_id,notnull"`
	Reason     string     `bun:"reason"`
	Attempts   int        `bun:"attempts,notnull"`
	LastError  string     `bun:"last_error"`
	ResolvedAt *time.Time `bun:"resolved_at"`
	CreatedAt  time.Time  `bun:"created_at,notnull"`
	UpdatedAt  time.Time  `bun:"updated_at,notnull"`
}

func (o OrphanedReservation) Key() SlotKey {
	return SlotKey{ServiceID: o.ServiceID, Date: o.Date, StartTime: o.StartTime}
}

func (o *OrphanedReservation) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if o.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			o.ID = id
		}
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}
		if o.UpdatedAt.IsZero() {
			o.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		o.UpdatedAt = now
	}
	return nil
}
