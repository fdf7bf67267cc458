// Package appointments is the booking engine: it creates, moves, cancels and
// removes appointments and keeps the slot each one holds in step with it.
package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/events"
	"agenda/backend/internal/saga"
	"agenda/backend/internal/store"
)

type ServiceLookup interface {
	GetService(ctx context.Context, id string) (domain.ServiceInfo, error)
}

// SlotBooker is the slot side of a booking.
type SlotBooker interface {
	CheckUsable(ctx context.Context, key domain.SlotKey, clientID string) (domain.ServiceSlot, error)
	Reserve(ctx context.Context, key domain.SlotKey, clientID string) (domain.ServiceSlot, error)
	Release(ctx context.Context, key domain.SlotKey, clientID string) error
}

type Deps struct {
	Repo     store.AppointmentRepository
	Slots    SlotBooker
	Services ServiceLookup
	// Orphans records slots left reserved by a failed compensation. Optional.
	Orphans store.OrphanRepository
	Events  events.Publisher
	Saga    *saga.Runner
	Log     *slog.Logger
	// Location decides which calendar day is "today". Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

type Service struct {
	repo     store.AppointmentRepository
	slots    SlotBooker
	services ServiceLookup
	orphans  store.OrphanRepository
	events   events.Publisher
	saga     *saga.Runner
	log      *slog.Logger
	tracer   trace.Tracer
	loc      *time.Location
	now      func() time.Time
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		repo:     d.Repo,
		slots:    d.Slots,
		services: d.Services,
		orphans:  d.Orphans,
		events:   d.Events,
		saga:     d.Saga,
		log:      log.With(slog.String("component", "appointments")),
		tracer:   otel.Tracer("agenda/backend/internal/service/appointments"),
		loc:      d.Location,
		now:      d.Now,
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.saga == nil {
		s.saga = saga.NewRunner(log, saga.WithIgnore(isNotFound))
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

type CreateInput struct {
	// ClientID defaults to the acting user.
	ClientID  string
	StaffID   string
	ServiceID string
	Date      domain.Date
	StartTime string
	Notes     string
}

// UpdateInput patches an appointment. Nil fields keep their current value.
type UpdateInput struct {
	StaffID   *string
	ServiceID *string
	Date      *domain.Date
	StartTime *string
	Notes     *string
}

// AvailabilityCheck describes a candidate booking. ExcludeID skips the
// appointment being moved.
type AvailabilityCheck struct {
	ServiceID string
	StaffID   string
	Date      domain.Date
	StartTime string
	EndTime   string
	ClientID  string
	ExcludeID uuid.UUID
}

func (s *Service) Create(ctx context.Context, in CreateInput, actingUserID string) (_ domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Create")
	defer func() { endSpan(span, err) }()

	clientID := strings.TrimSpace(in.ClientID)
	if clientID == "" {
		clientID = strings.TrimSpace(actingUserID)
	}
	if clientID == "" {
		return domain.Appointment{}, domain.ErrClientRequired
	}
	staffID := strings.TrimSpace(in.StaffID)
	if staffID == "" {
		return domain.Appointment{}, fmt.Errorf("%w: staff id required", domain.ErrInvalidInput)
	}
	if !in.Date.Valid() {
		return domain.Appointment{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, in.Date)
	}
	start, err := domain.NormalizeTime(in.StartTime)
	if err != nil {
		return domain.Appointment{}, err
	}

	svc, err := s.services.GetService(ctx, strings.TrimSpace(in.ServiceID))
	if err != nil {
		return domain.Appointment{}, err
	}
	end, err := endTime(start, svc.DurationMinutes)
	if err != nil {
		return domain.Appointment{}, err
	}

	span.SetAttributes(
		attribute.String("client_id", clientID),
		attribute.String("staff_id", staffID),
		attribute.String("service_id", svc.ID),
		attribute.String("date", in.Date.String()),
		attribute.String("start_time", start),
	)

	appt := domain.Appointment{
		ClientID:  clientID,
		StaffID:   staffID,
		ServiceID: svc.ID,
		Date:      in.Date,
		StartTime: start,
		EndTime:   end,
		Status:    domain.AppointmentStatusPending,
		Notes:     strings.TrimSpace(in.Notes),
	}

	slot, err := s.ValidateAvailability(ctx, AvailabilityCheck{
		ServiceID: appt.ServiceID,
		StaffID:   appt.StaffID,
		Date:      appt.Date,
		StartTime: appt.StartTime,
		EndTime:   appt.EndTime,
		ClientID:  clientID,
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	held := slot.Status == domain.SlotStatusReserved
	var created domain.Appointment
	err = s.saga.Run(ctx, "create appointment",
		s.reserveStep(appt.SlotKey(), clientID, held),
		saga.Step{
			Name: "persist",
			Do: func(ctx context.Context) error {
				var err error
				created, err = s.insert(ctx, appt, held)
				return err
			},
		},
	)
	if err != nil {
		s.log.Info("appointment create failed",
			slog.String("client_id", clientID),
			slog.String("staff_id", staffID),
			slog.String("date", appt.Date.String()),
			slog.String("start_time", start),
			slog.Any("err", err),
		)
		return domain.Appointment{}, err
	}

	s.log.Info("appointment created",
		slog.String("appointment_id", created.ID.String()),
		slog.String("client_id", clientID),
		slog.String("staff_id", staffID),
	)
	s.publish(ctx, events.AppointmentCreated, created)
	return created, nil
}

// ValidateAvailability checks a candidate booking against the calendar, the
// slot it would take and the staff member's other appointments that day. It
// returns the slot the booking would use.
func (s *Service) ValidateAvailability(ctx context.Context, c AvailabilityCheck) (domain.ServiceSlot, error) {
	if c.Date.Before(s.today()) {
		return domain.ServiceSlot{}, fmt.Errorf("%s: %w", c.Date, domain.ErrPastDate)
	}

	slot, err := s.slots.CheckUsable(ctx, domain.SlotKey{ServiceID: c.ServiceID, Date: c.Date, StartTime: c.StartTime}, c.ClientID)
	if err != nil {
		return domain.ServiceSlot{}, err
	}

	start, end, err := domain.ParseRange(c.StartTime, c.EndTime)
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	existing, err := s.repo.ListActiveForStaffDay(ctx, c.StaffID, c.Date, c.ExcludeID)
	if err != nil {
		return domain.ServiceSlot{}, err
	}
	if err := checkConflicts(existing, start, end); err != nil {
		return domain.ServiceSlot{}, err
	}
	return slot, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (_ domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Update", trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer func() { endSpan(span, err) }()

	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Appointment{}, err
	}

	target := current
	if in.StaffID != nil {
		target.StaffID = strings.TrimSpace(*in.StaffID)
		if target.StaffID == "" {
			return domain.Appointment{}, fmt.Errorf("%w: staff id required", domain.ErrInvalidInput)
		}
	}
	if in.ServiceID != nil {
		target.ServiceID = strings.TrimSpace(*in.ServiceID)
	}
	if in.Date != nil {
		if !in.Date.Valid() {
			return domain.Appointment{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, *in.Date)
		}
		target.Date = *in.Date
	}
	if in.StartTime != nil {
		target.StartTime, err = domain.NormalizeTime(*in.StartTime)
		if err != nil {
			return domain.Appointment{}, err
		}
	}
	if in.Notes != nil {
		target.Notes = strings.TrimSpace(*in.Notes)
	}

	if target.ServiceID != current.ServiceID || target.StartTime != current.StartTime {
		svc, err := s.services.GetService(ctx, target.ServiceID)
		if err != nil {
			return domain.Appointment{}, err
		}
		target.ServiceID = svc.ID
		target.EndTime, err = endTime(target.StartTime, svc.DurationMinutes)
		if err != nil {
			return domain.Appointment{}, err
		}
	}

	moved := target.ServiceID != current.ServiceID ||
		target.Date != current.Date ||
		target.StaffID != current.StaffID ||
		target.StartTime != current.StartTime

	if moved && !current.Status.BlocksStaff() {
		return domain.Appointment{}, inactiveError(current)
	}

	var slot domain.ServiceSlot
	if moved {
		slot, err = s.ValidateAvailability(ctx, AvailabilityCheck{
			ServiceID: target.ServiceID,
			StaffID:   target.StaffID,
			Date:      target.Date,
			StartTime: target.StartTime,
			EndTime:   target.EndTime,
			ClientID:  target.ClientID,
			ExcludeID: current.ID,
		})
		if err != nil {
			return domain.Appointment{}, err
		}
	}

	slotChanged := target.SlotKey() != current.SlotKey()
	held := slotChanged && slot.Status == domain.SlotStatusReserved

	// A move only lands while the row is still in a status that holds time.
	var guard []domain.AppointmentStatus
	if moved {
		guard = domain.BlockingStatuses
	}
	persist := saga.Step{
		Name: "persist",
		Do: func(ctx context.Context) error {
			var err error
			target, err = s.save(ctx, target, held, guard)
			return err
		},
	}

	if !slotChanged {
		if err := s.saga.Run(ctx, "update appointment", persist); err != nil {
			return domain.Appointment{}, err
		}
		s.log.Info("appointment updated", slog.String("appointment_id", id.String()))
		s.publish(ctx, events.AppointmentUpdated, target)
		return target, nil
	}

	err = s.saga.Run(ctx, "move appointment",
		s.reserveStep(target.SlotKey(), target.ClientID, held),
		persist,
	)
	if err != nil {
		return domain.Appointment{}, err
	}

	// The move is committed; a stuck old slot is reported, not returned.
	s.releaseOrRecord(ctx, current.SlotKey(), current.ClientID, "release after move of appointment "+id.String())

	s.log.Info("appointment moved",
		slog.String("appointment_id", id.String()),
		slog.String("from", current.Date.String()+" "+current.StartTime),
		slog.String("to", target.Date.String()+" "+target.StartTime),
	)
	s.publish(ctx, events.AppointmentUpdated, target)
	return target, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (_ domain.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Cancel", trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer func() { endSpan(span, err) }()

	appt, err := s.repo.Cancel(ctx, id, strings.TrimSpace(reason))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.Appointment{}, fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	case errors.Is(err, store.ErrConflict):
		if appt.Status == domain.AppointmentStatusCompleted {
			return domain.Appointment{}, fmt.Errorf("appointment %s: %w", id, domain.ErrCannotCancelCompleted)
		}
		return domain.Appointment{}, fmt.Errorf("appointment %s: %w", id, domain.ErrAlreadyCancelled)
	case err != nil:
		return domain.Appointment{}, err
	}

	s.releaseOrRecord(ctx, appt.SlotKey(), appt.ClientID, "release after cancel of appointment "+id.String())

	s.log.Info("appointment cancelled", slog.String("appointment_id", id.String()))
	s.publish(ctx, events.AppointmentCancelled, appt)
	return appt, nil
}

func (s *Service) Remove(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := s.tracer.Start(ctx, "appointments.Remove", trace.WithAttributes(attribute.String("appointment_id", id.String())))
	defer func() { endSpan(span, err) }()

	appt, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
		}
		return err
	}

	s.releaseOrRecord(ctx, appt.SlotKey(), appt.ClientID, "release after removal of appointment "+id.String())

	s.log.Info("appointment removed", slog.String("appointment_id", id.String()))
	s.publish(ctx, events.AppointmentDeleted, appt)
	return nil
}

// UpdateStatus overwrites the status with no transition rules. Guarded
// transitions go through Cancel.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error) {
	if !status.Valid() {
		return domain.Appointment{}, fmt.Errorf("%w: appointment status %q", domain.ErrInvalidStatus, status)
	}
	appt, err := s.repo.SetStatus(ctx, id, status)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Appointment{}, err
	}

	s.log.Info("appointment status set", slog.String("appointment_id", id.String()), slog.String("status", string(status)))
	s.publish(ctx, events.AppointmentStatusChanged, appt)
	return appt, nil
}

// GetStatistics counts appointments dated within [from, to] by status.
func (s *Service) GetStatistics(ctx context.Context, from, to domain.Date) (domain.AppointmentStats, error) {
	rows, err := s.ListByDateRange(ctx, from, to)
	if err != nil {
		return domain.AppointmentStats{}, err
	}
	var stats domain.AppointmentStats
	for _, a := range rows {
		stats.Add(a.Status)
	}
	return stats, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	if id == uuid.Nil {
		return domain.Appointment{}, fmt.Errorf("%w: appointment id required", domain.ErrInvalidInput)
	}
	appt, err := s.repo.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, fmt.Errorf("appointment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Appointment{}, err
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) ListByClient(ctx context.Context, clientID string) ([]domain.Appointment, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, domain.ErrClientRequired
	}
	return s.repo.List(ctx, store.AppointmentFilter{ClientID: clientID})
}

func (s *Service) ListByStaff(ctx context.Context, staffID string) ([]domain.Appointment, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return nil, fmt.Errorf("%w: staff id required", domain.ErrInvalidInput)
	}
	return s.repo.List(ctx, store.AppointmentFilter{StaffID: staffID})
}

func (s *Service) ListByDateRange(ctx context.Context, from, to domain.Date) ([]domain.Appointment, error) {
	if !from.Valid() || !to.Valid() {
		return nil, fmt.Errorf("%w: range %q..%q", domain.ErrInvalidDate, from, to)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: start date must not be after end date", domain.ErrInvalidDate)
	}
	return s.repo.List(ctx, store.AppointmentFilter{From: from, To: to})
}

// reserveStep takes the slot for clientID. When the client already holds it
// there is nothing to take, and nothing to give back on failure.
func (s *Service) reserveStep(key domain.SlotKey, clientID string, alreadyHeld bool) saga.Step {
	if alreadyHeld {
		return saga.Step{Name: "reserve slot (held)", Do: func(context.Context) error { return nil }}
	}
	return saga.Step{
		Name: "reserve slot",
		Do: func(ctx context.Context) error {
			_, err := s.slots.Reserve(ctx, key, clientID)
			return err
		},
		Compensate: func(ctx context.Context) error {
			return s.slots.Release(ctx, key, clientID)
		},
		Abandoned: func(ctx context.Context, err error) {
			s.recordOrphan(ctx, key, clientID, "compensating release failed", err)
		},
	}
}

func (s *Service) insert(ctx context.Context, appt domain.Appointment, held bool) (domain.Appointment, error) {
	var out domain.Appointment
	err := s.repo.InStaffDayTransaction(ctx, appt.StaffID, appt.Date, func(ctx context.Context, tx store.BookingTx) error {
		if err := s.recheck(ctx, tx, appt, held); err != nil {
			return err
		}
		var err error
		out, err = tx.InsertAppointment(ctx, appt)
		return err
	})
	return out, err
}

func (s *Service) save(ctx context.Context, appt domain.Appointment, held bool, statuses []domain.AppointmentStatus) (domain.Appointment, error) {
	var out domain.Appointment
	err := s.repo.InStaffDayTransaction(ctx, appt.StaffID, appt.Date, func(ctx context.Context, tx store.BookingTx) error {
		if err := s.recheck(ctx, tx, appt, held); err != nil {
			return err
		}
		var err error
		out, err = tx.UpdateAppointment(ctx, appt, statuses...)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("appointment %s: %w", appt.ID, domain.ErrNotFound)
		case errors.Is(err, store.ErrConflict):
			return inactiveError(out)
		}
		return err
	})
	return out, err
}

// recheck repeats the overlap scan under the staff-day lock so two bookings
// that both passed validation cannot both commit. A slot the client already
// held is only adopted when no other live appointment of theirs uses it.
func (s *Service) recheck(ctx context.Context, tx store.BookingTx, appt domain.Appointment, held bool) error {
	if !appt.Status.BlocksStaff() {
		return nil
	}
	if held {
		backed, err := tx.HoldBacked(ctx, appt.SlotKey(), appt.ClientID, appt.ID)
		if err != nil {
			return err
		}
		if backed {
			key := appt.SlotKey()
			return fmt.Errorf("%s %s %s: %w", key.ServiceID, key.Date, key.StartTime, domain.ErrSlotUnavailable)
		}
	}
	start, end, err := domain.ParseRange(appt.StartTime, appt.EndTime)
	if err != nil {
		return err
	}
	existing, err := tx.ListActiveForStaffDay(ctx, appt.StaffID, appt.Date, appt.ID)
	if err != nil {
		return err
	}
	return checkConflicts(existing, start, end)
}

// releaseOrRecord frees a slot after the appointment change is committed. A
// failure leaves an orphan, which is recorded for the reconciler.
func (s *Service) releaseOrRecord(ctx context.Context, key domain.SlotKey, clientID, reason string) {
	err := s.slots.Release(ctx, key, clientID)
	if err == nil || isNotFound(err) {
		return
	}
	s.log.Error("slot release failed",
		slog.String("service_id", key.ServiceID),
		slog.String("date", key.Date.String()),
		slog.String("start_time", key.StartTime),
		slog.String("client_id", clientID),
		slog.Any("err", err),
	)
	s.recordOrphan(context.WithoutCancel(ctx), key, clientID, reason, err)
}

func (s *Service) recordOrphan(ctx context.Context, key domain.SlotKey, clientID, reason string, cause error) {
	orphan := domain.OrphanedReservation{
		ServiceID: key.ServiceID,
		Date:      key.Date,
		StartTime: key.StartTime,
		ClientID:  clientID,
		Reason:    reason,
		LastError: cause.Error(),
	}
	if s.orphans != nil {
		recorded, err := s.orphans.RecordOrphan(ctx, orphan)
		if err != nil {
			s.log.Error("orphaned reservation could not be recorded",
				slog.String("service_id", key.ServiceID),
				slog.String("date", key.Date.String()),
				slog.String("start_time", key.StartTime),
				slog.String("client_id", clientID),
				slog.Any("err", err),
			)
		} else {
			orphan = recorded
		}
	}
	aggregate := key.ServiceID + ":" + key.Date.String() + ":" + key.StartTime
	if err := s.events.Publish(ctx, events.New(events.SlotOrphaned, aggregate, orphan)); err != nil {
		s.log.Warn("event publish failed", slog.String("event_type", events.SlotOrphaned), slog.Any("err", err))
	}
}

func (s *Service) publish(ctx context.Context, eventType string, appt domain.Appointment) {
	if err := s.events.Publish(ctx, events.New(eventType, appt.ID.String(), appt)); err != nil {
		s.log.Warn("event publish failed",
			slog.String("event_type", eventType),
			slog.String("appointment_id", appt.ID.String()),
			slog.Any("err", err),
		)
	}
}

func (s *Service) today() domain.Date {
	return domain.NormalizeDate(s.now().In(s.loc))
}

// endTime derives the end of a booking. A result past midnight fails as an
// invalid time of day.
func endTime(start string, durationMinutes int) (string, error) {
	if durationMinutes <= 0 {
		return "", fmt.Errorf("%w: service duration %d", domain.ErrInvalidDuration, durationMinutes)
	}
	end, err := domain.AddMinutes(start, durationMinutes)
	if err != nil {
		return "", err
	}
	if _, err := domain.ToMinutes(end); err != nil {
		return "", fmt.Errorf("booking at %s for %d minutes ends past midnight: %w", start, durationMinutes, err)
	}
	return end, nil
}

func checkConflicts(existing []domain.Appointment, start, end int) error {
	for _, a := range existing {
		aStart, aEnd, err := domain.ParseRange(a.StartTime, a.EndTime)
		if err != nil {
			return fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		if domain.IntervalsOverlap(start, end, aStart, aEnd) {
			return fmt.Errorf("overlaps appointment %s at %s-%s: %w", a.ID, a.StartTime, a.EndTime, domain.ErrTimeConflict)
		}
	}
	return nil
}

// inactiveError explains why appt can no longer be rescheduled.
func inactiveError(appt domain.Appointment) error {
	if appt.Status == domain.AppointmentStatusCancelled {
		return fmt.Errorf("appointment %s: %w", appt.ID, domain.ErrAlreadyCancelled)
	}
	return fmt.Errorf("appointment %s is %s: %w", appt.ID, appt.Status, domain.ErrAppointmentInactive)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound) || domain.KindOf(err) == domain.KindNotFound
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
