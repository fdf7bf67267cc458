// Package events publishes booking lifecycle notifications. Publishing is
// best-effort: a failed publish never undoes the state change it reports.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	AppointmentCreated       = "appointment.created"
	AppointmentUpdated       = "appointment.updated"
	AppointmentCancelled     = "appointment.cancelled"
	AppointmentDeleted       = "appointment.deleted"
	AppointmentStatusChanged = "appointment.status_changed"
	SlotOrphaned             = "slot.orphaned"
)

type Event struct {
	ID          string    `json:"event_id"`
	Type        string    `json:"event_type"`
	AggregateID string    `json:"aggregate_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Data        any       `json:"data"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType, aggregateID string, data any) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{
		ID:          id.String(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Data:        data,
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close() error                         { return nil }
