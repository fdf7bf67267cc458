package grpc

import (
	"context"
	"log/slog"
	"time"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/slots"
)

type Slot struct {
	ID           string    `json:"id"`
	ServiceID    string    `json:"service_id"`
	ProviderID   string    `json:"provider_id"`
	ProviderType string    `json:"provider_type,omitempty"`
	Date         string    `json:"date"`
	StartTime    string    `json:"start_time"`
	EndTime      string    `json:"end_time"`
	Status       string    `json:"status"`
	ClientID     string    `json:"client_id,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SlotsReply struct {
	Slots []Slot `json:"slots"`
}

type SlotReply struct {
	Slot Slot `json:"slot"`
}

type GenerateSlotsRequest struct {
	// ProviderID may be left empty by a provider generating its own slots.
	ProviderID      string `json:"provider_id"`
	ServiceID       string `json:"service_id"`
	Date            string `json:"date"`
	WindowStart     string `json:"window_start"`
	WindowEnd       string `json:"window_end"`
	DurationMinutes int    `json:"duration_minutes"`
}

type ListAvailableSlotsRequest struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
}

type ListProviderSlotsRequest struct {
	ProviderID string `json:"provider_id"`
	Date       string `json:"date"`
}

type SetSlotStatusRequest struct {
	SlotID   string  `json:"slot_id"`
	Status   string  `json:"status"`
	ClientID *string `json:"client_id,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

func (s *BookingServer) GenerateSlots(ctx context.Context, req *GenerateSlotsRequest) (*SlotsReply, error) {
	log := s.rpcLog(ctx, "GenerateSlots")

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}

	created, err := s.slots.GenerateSlots(ctx, actor, slots.GenerateInput{
		ProviderID:      req.ProviderID,
		ServiceID:       req.ServiceID,
		Date:            date,
		WindowStart:     req.WindowStart,
		WindowEnd:       req.WindowEnd,
		DurationMinutes: req.DurationMinutes,
	})
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("actor_id", actor.ID)), err)
	}

	log.Info("slots generated",
		slog.String("service_id", req.ServiceID),
		slog.String("date", date.String()),
		slog.Int("count", len(created)),
	)
	return &SlotsReply{Slots: toWireSlots(created)}, nil
}

func (s *BookingServer) ListAvailableSlots(ctx context.Context, req *ListAvailableSlotsRequest) (*SlotsReply, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	rows, err := s.slots.FindAvailable(ctx, req.ServiceID, date)
	if err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "ListAvailableSlots"), err)
	}
	return &SlotsReply{Slots: toWireSlots(rows)}, nil
}

func (s *BookingServer) ListProviderSlots(ctx context.Context, req *ListProviderSlotsRequest) (*SlotsReply, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	rows, err := s.slots.FindByProvider(ctx, req.ProviderID, date)
	if err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "ListProviderSlots"), err)
	}
	return &SlotsReply{Slots: toWireSlots(rows)}, nil
}

func (s *BookingServer) SetSlotStatus(ctx context.Context, req *SetSlotStatusRequest) (*SlotReply, error) {
	log := s.rpcLog(ctx, "SetSlotStatus")

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID("slot_id", req.SlotID)
	if err != nil {
		return nil, err
	}

	slot, err := s.slots.UpdateStatus(ctx, actor, id, slots.StatusUpdate{
		Status:   domain.SlotStatus(req.Status),
		ClientID: req.ClientID,
		Notes:    req.Notes,
	})
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("slot_id", id.String()), slog.String("actor_id", actor.ID)), err)
	}
	log.Info("slot status set", slog.String("slot_id", id.String()), slog.String("status", string(slot.Status)))
	return &SlotReply{Slot: toWireSlot(slot)}, nil
}

func toWireSlot(sl domain.ServiceSlot) Slot {
	out := Slot{
		ID:           sl.ID.String(),
		ServiceID:    sl.ServiceID,
		ProviderID:   sl.ProviderID,
		ProviderType: sl.ProviderType,
		Date:         sl.Date.String(),
		StartTime:    sl.StartTime,
		EndTime:      sl.EndTime,
		Status:       string(sl.Status),
		CreatedAt:    sl.CreatedAt,
		UpdatedAt:    sl.UpdatedAt,
	}
	if sl.ClientID != nil {
		out.ClientID = *sl.ClientID
	}
	if sl.Notes != nil {
		out.Notes = *sl.Notes
	}
	return out
}

func toWireSlots(rows []domain.ServiceSlot) []Slot {
	out := make([]Slot, 0, len(rows))
	for _, sl := range rows {
		out = append(out, toWireSlot(sl))
	}
	return out
}
