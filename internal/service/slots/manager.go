// Package slots owns service slots: bulk generation over a time window and
// the reserve, release and status transitions on a single slot.
package slots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/policy"
	"agenda/backend/internal/store"
)

type ServiceLookup interface {
	GetService(ctx context.Context, id string) (domain.ServiceInfo, error)
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (domain.UserInfo, error)
}

type Manager struct {
	repo     store.SlotRepository
	services ServiceLookup
	users    UserLookup
	log      *slog.Logger
	tracer   trace.Tracer
}

func NewManager(repo store.SlotRepository, services ServiceLookup, users UserLookup, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		repo:     repo,
		services: services,
		users:    users,
		log:      log.With(slog.String("component", "slots")),
		tracer:   otel.Tracer("agenda/backend/internal/service/slots"),
	}
}

type GenerateInput struct {
	ProviderID  string
	ServiceID   string
	Date        domain.Date
	WindowStart string
	WindowEnd   string
	// DurationMinutes overrides the service's configured duration when set.
	DurationMinutes int
}

// GenerateSlots walks [WindowStart, WindowEnd) in fixed steps and creates an
// available slot for every step that does not overlap an existing slot of the
// same provider and day. Cancelled and blocked slots may be overlapped.
func (m *Manager) GenerateSlots(ctx context.Context, actor domain.Actor, in GenerateInput) (_ []domain.ServiceSlot, err error) {
	ctx, span := m.tracer.Start(ctx, "slots.Generate")
	defer func() { endSpan(span, err) }()

	ownerID, err := policy.ResolveOwner(actor.Role, actor.ID, in.ProviderID)
	if err != nil {
		return nil, err
	}
	provider, err := m.requireProvider(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if !in.Date.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDate, in.Date)
	}
	windowStart, windowEnd, err := domain.ParseRange(in.WindowStart, in.WindowEnd)
	if err != nil {
		return nil, err
	}

	svc, err := m.services.GetService(ctx, strings.TrimSpace(in.ServiceID))
	if err != nil {
		return nil, err
	}
	if svc.ProviderID != nil && *svc.ProviderID != ownerID {
		return nil, fmt.Errorf("%w: service %s belongs to another provider", domain.ErrForbidden, svc.ID)
	}

	duration := in.DurationMinutes
	if duration == 0 {
		duration = svc.DurationMinutes
	}
	if duration <= 0 || duration > windowEnd-windowStart {
		return nil, fmt.Errorf("%w: %d minutes for a %d minute window", domain.ErrInvalidDuration, duration, windowEnd-windowStart)
	}

	span.SetAttributes(
		attribute.String("provider_id", ownerID),
		attribute.String("service_id", svc.ID),
		attribute.String("date", in.Date.String()),
		attribute.Int("duration_minutes", duration),
	)

	var created []domain.ServiceSlot
	err = m.repo.InProviderDayTransaction(ctx, ownerID, in.Date, func(ctx context.Context, tx store.SlotTx) error {
		existing, err := tx.ListForProviderDay(ctx, ownerID, in.Date)
		if err != nil {
			return err
		}
		occupied, err := occupiedIntervals(existing)
		if err != nil {
			return err
		}

		var fresh []domain.ServiceSlot
		for start := windowStart; start+duration <= windowEnd; start += duration {
			end := start + duration
			if overlapsAny(occupied, start, end) {
				continue
			}
			fresh = append(fresh, domain.ServiceSlot{
				ServiceID:    svc.ID,
				ProviderID:   ownerID,
				ProviderType: deref(provider.ProviderType),
				Date:         in.Date,
				StartTime:    domain.FormatMinutes(start),
				EndTime:      domain.FormatMinutes(end),
				Status:       domain.SlotStatusAvailable,
			})
		}
		if len(fresh) == 0 {
			return domain.ErrNoSlotsGenerated
		}

		created, err = tx.InsertSlots(ctx, fresh)
		return err
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("slots generated",
		slog.String("provider_id", ownerID),
		slog.String("service_id", svc.ID),
		slog.String("date", in.Date.String()),
		slog.Int("count", len(created)),
	)
	return created, nil
}

// FindAvailable lists available slots of a service, on date when it is set.
func (m *Manager) FindAvailable(ctx context.Context, serviceID string, date domain.Date) ([]domain.ServiceSlot, error) {
	serviceID = strings.TrimSpace(serviceID)
	if serviceID == "" {
		return nil, fmt.Errorf("%w: service id required", domain.ErrInvalidInput)
	}
	if !date.IsZero() && !date.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDate, date)
	}
	return m.repo.ListAvailable(ctx, serviceID, date)
}

// FindByProvider lists a provider's slots in any status, on date when it is
// set.
func (m *Manager) FindByProvider(ctx context.Context, providerID string, date domain.Date) ([]domain.ServiceSlot, error) {
	if _, err := m.requireProvider(ctx, strings.TrimSpace(providerID)); err != nil {
		return nil, err
	}
	if !date.IsZero() && !date.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidDate, date)
	}
	return m.repo.ListByProvider(ctx, strings.TrimSpace(providerID), date)
}

// CheckUsable finds the slot for key that clientID could book: an available
// slot, or one the same client already holds.
func (m *Manager) CheckUsable(ctx context.Context, key domain.SlotKey, clientID string) (domain.ServiceSlot, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	candidates, err := m.repo.ListByKey(ctx, key)
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	if len(candidates) == 0 {
		return domain.ServiceSlot{}, fmt.Errorf("%s %s %s: %w", key.ServiceID, key.Date, key.StartTime, domain.ErrSlotNotConfigured)
	}
	for _, c := range candidates {
		if c.Status == domain.SlotStatusReserved && c.HeldBy(clientID) {
			return c, nil
		}
	}
	for _, c := range candidates {
		if c.Status == domain.SlotStatusAvailable {
			return c, nil
		}
	}
	return domain.ServiceSlot{}, fmt.Errorf("%s %s %s: %w", key.ServiceID, key.Date, key.StartTime, domain.ErrSlotUnavailable)
}

func (m *Manager) Reserve(ctx context.Context, key domain.SlotKey, clientID string) (domain.ServiceSlot, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	if strings.TrimSpace(clientID) == "" {
		return domain.ServiceSlot{}, domain.ErrClientRequired
	}

	slot, err := m.repo.Reserve(ctx, key, clientID)
	if errors.Is(err, store.ErrConflict) {
		return domain.ServiceSlot{}, fmt.Errorf("%s %s %s: %w", key.ServiceID, key.Date, key.StartTime, domain.ErrSlotUnavailable)
	}
	if err != nil {
		return domain.ServiceSlot{}, err
	}

	m.log.Debug("slot reserved", slog.String("slot_id", slot.ID.String()), slog.String("client_id", clientID))
	return slot, nil
}

// Release returns the slot clientID holds under key to available. A missing
// slot or one held by someone else is left untouched.
func (m *Manager) Release(ctx context.Context, key domain.SlotKey, clientID string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	released, err := m.repo.Release(ctx, key, clientID)
	if err != nil {
		return err
	}
	if !released {
		m.log.Debug("release skipped; slot not held by client",
			slog.String("service_id", key.ServiceID),
			slog.String("date", key.Date.String()),
			slog.String("start_time", key.StartTime),
			slog.String("client_id", clientID),
		)
	}
	return nil
}

type StatusUpdate struct {
	Status   domain.SlotStatus
	ClientID *string
	Notes    *string
}

// UpdateStatus is the explicit override transition used by admins and the
// owning provider. Only a move to reserved is gated on the current status.
func (m *Manager) UpdateStatus(ctx context.Context, actor domain.Actor, slotID uuid.UUID, in StatusUpdate) (domain.ServiceSlot, error) {
	if !in.Status.Valid() {
		return domain.ServiceSlot{}, fmt.Errorf("%w: slot status %q", domain.ErrInvalidStatus, in.Status)
	}

	slot, err := m.repo.Get(ctx, slotID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ServiceSlot{}, fmt.Errorf("slot %s: %w", slotID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	if err := policy.CanModify(actor, slot.ProviderID); err != nil {
		return domain.ServiceSlot{}, err
	}

	next := slot
	next.Status = in.Status
	switch in.Status {
	case domain.SlotStatusReserved:
		if slot.Status != domain.SlotStatusAvailable {
			return domain.ServiceSlot{}, fmt.Errorf("slot %s is %s: %w", slot.ID, slot.Status, domain.ErrSlotUnavailable)
		}
		clientID := strings.TrimSpace(deref(in.ClientID))
		if clientID == "" {
			return domain.ServiceSlot{}, domain.ErrClientRequired
		}
		if err := m.requireClient(ctx, clientID); err != nil {
			return domain.ServiceSlot{}, err
		}
		next.ClientID = &clientID
	case domain.SlotStatusAvailable, domain.SlotStatusCancelled, domain.SlotStatusBlocked:
		next.ClientID = nil
	case domain.SlotStatusCompleted:
		if clientID := strings.TrimSpace(deref(in.ClientID)); clientID != "" {
			next.ClientID = &clientID
		}
	}
	if in.Notes != nil {
		notes := *in.Notes
		next.Notes = &notes
	}

	out, err := m.repo.CompareAndSwap(ctx, slot.Status, next)
	if errors.Is(err, store.ErrConflict) {
		return domain.ServiceSlot{}, fmt.Errorf("slot %s changed concurrently: %w", slot.ID, domain.ErrSlotUnavailable)
	}
	if err != nil {
		return domain.ServiceSlot{}, err
	}

	m.log.Info("slot status updated",
		slog.String("slot_id", slot.ID.String()),
		slog.String("from", string(slot.Status)),
		slog.String("to", string(out.Status)),
		slog.String("actor_id", actor.ID),
	)
	return out, nil
}

func (m *Manager) requireProvider(ctx context.Context, providerID string) (domain.UserInfo, error) {
	if providerID == "" {
		return domain.UserInfo{}, fmt.Errorf("%w: provider id required", domain.ErrInvalidInput)
	}
	u, err := m.users.GetUser(ctx, providerID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.UserInfo{}, fmt.Errorf("provider %s: %w", providerID, domain.ErrProviderNotFound)
	}
	if err != nil {
		return domain.UserInfo{}, err
	}
	if u.Role != domain.RoleProvider {
		return domain.UserInfo{}, fmt.Errorf("%w: user %s is not a provider", domain.ErrInvalidInput, providerID)
	}
	if strings.TrimSpace(deref(u.ProviderType)) == "" {
		return domain.UserInfo{}, fmt.Errorf("%w: provider %s has no provider type", domain.ErrInvalidInput, providerID)
	}
	return u, nil
}

func (m *Manager) requireClient(ctx context.Context, clientID string) error {
	_, err := m.users.GetUser(ctx, clientID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("client %s: %w", clientID, domain.ErrClientNotFound)
	}
	return err
}

type interval struct{ start, end int }

func occupiedIntervals(existing []domain.ServiceSlot) ([]interval, error) {
	out := make([]interval, 0, len(existing))
	for _, s := range existing {
		if s.Status.Reusable() {
			continue
		}
		start, end, err := domain.ParseRange(s.StartTime, s.EndTime)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", s.ID, err)
		}
		out = append(out, interval{start, end})
	}
	return out, nil
}

func overlapsAny(occupied []interval, start, end int) bool {
	for _, o := range occupied {
		if domain.IntervalsOverlap(start, end, o.start, o.end) {
			return true
		}
	}
	return false
}

func normalizeKey(key domain.SlotKey) (domain.SlotKey, error) {
	key.ServiceID = strings.TrimSpace(key.ServiceID)
	if key.ServiceID == "" {
		return domain.SlotKey{}, fmt.Errorf("%w: service id required", domain.ErrInvalidInput)
	}
	if !key.Date.Valid() {
		return domain.SlotKey{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, key.Date)
	}
	start, err := domain.NormalizeTime(key.StartTime)
	if err != nil {
		return domain.SlotKey{}, err
	}
	key.StartTime = start
	return key, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
