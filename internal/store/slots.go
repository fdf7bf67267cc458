package store

import (
	"context"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
)

type SlotRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.ServiceSlot, error)
	ListByKey(ctx context.Context, key domain.SlotKey) ([]domain.ServiceSlot, error)
	// ListAvailable and ListByProvider skip the day filter for a zero date.
	ListAvailable(ctx context.Context, serviceID string, date domain.Date) ([]domain.ServiceSlot, error)
	ListByProvider(ctx context.Context, providerID string, date domain.Date) ([]domain.ServiceSlot, error)

	// Reserve flips one available slot matching key to reserved for
	// clientID. It returns ErrConflict when no available slot could be taken.
	Reserve(ctx context.Context, key domain.SlotKey, clientID string) (domain.ServiceSlot, error)
	// Release returns the slot held by clientID under key to available.
	// The boolean is false when nothing matched.
	Release(ctx context.Context, key domain.SlotKey, clientID string) (bool, error)
	// CompareAndSwap writes next over the slot only while its status still
	// equals expected. It returns ErrConflict when the guard fails.
	CompareAndSwap(ctx context.Context, expected domain.SlotStatus, next domain.ServiceSlot) (domain.ServiceSlot, error)

	// InProviderDayTransaction serializes slot generation per provider day.
	InProviderDayTransaction(ctx context.Context, providerID string, date domain.Date, fn func(ctx context.Context, tx SlotTx) error) error
}

type SlotTx interface {
	ListForProviderDay(ctx context.Context, providerID string, date domain.Date) ([]domain.ServiceSlot, error)
	InsertSlots(ctx context.Context, slots []domain.ServiceSlot) ([]domain.ServiceSlot, error)
}

type OrphanRepository interface {
	RecordOrphan(ctx context.Context, o domain.OrphanedReservation) (domain.OrphanedReservation, error)
	ListUnresolved(ctx context.Context, limit int) ([]domain.OrphanedReservation, error)
	MarkResolved(ctx context.Context, id uuid.UUID) error
	MarkAttempt(ctx context.Context, id uuid.UUID, lastErr string) error
}
