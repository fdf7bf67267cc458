package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/appointments"
	"agenda/backend/internal/store"
)

type Appointment struct {
	ID                 string    `json:"id"`
	ClientID           string    `json:"client_id"`
	StaffID            string    `json:"staff_id"`
	ServiceID          string    `json:"service_id"`
	Date               string    `json:"date"`
	StartTime          string    `json:"start_time"`
	EndTime            string    `json:"end_time"`
	Status             string    `json:"status"`
	Notes              string    `json:"notes,omitempty"`
	CancellationReason string    `json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type AppointmentReply struct {
	Appointment Appointment `json:"appointment"`
}

type CreateAppointmentRequest struct {
	ClientID  string `json:"client_id"`
	StaffID   string `json:"staff_id"`
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	Notes     string `json:"notes"`
}

type AppointmentIDRequest struct {
	AppointmentID string `json:"appointment_id"`
}

type UpdateAppointmentRequest struct {
	AppointmentID string  `json:"appointment_id"`
	StaffID       *string `json:"staff_id,omitempty"`
	ServiceID     *string `json:"service_id,omitempty"`
	Date          *string `json:"date,omitempty"`
	StartTime     *string `json:"start_time,omitempty"`
	Notes         *string `json:"notes,omitempty"`
}

type CancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type SetAppointmentStatusRequest struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
}

// ListAppointmentsRequest filters on every field that is set.
type ListAppointmentsRequest struct {
	ClientID string `json:"client_id"`
	StaffID  string `json:"staff_id"`
	From     string `json:"from"`
	To       string `json:"to"`
}

type ListAppointmentsReply struct {
	Appointments []Appointment `json:"appointments"`
}

type StatisticsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type StatisticsReply struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Completed int `json:"completed"`
	Cancelled int `json:"cancelled"`
	NoShow    int `json:"no_show"`
}

type Empty struct{}

func (s *BookingServer) CreateAppointment(ctx context.Context, req *CreateAppointmentRequest) (*AppointmentReply, error) {
	log := s.rpcLog(ctx, "CreateAppointment")

	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}

	appt, err := s.appts.Create(ctx, appointments.CreateInput{
		ClientID:  req.ClientID,
		StaffID:   req.StaffID,
		ServiceID: req.ServiceID,
		Date:      date,
		StartTime: req.StartTime,
		Notes:     req.Notes,
	}, actor.ID)
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("actor_id", actor.ID)), err)
	}

	log.Info("appointment created",
		slog.String("appointment_id", appt.ID.String()),
		slog.String("client_id", appt.ClientID),
		slog.String("date", appt.Date.String()),
		slog.String("start_time", appt.StartTime),
	)
	return &AppointmentReply{Appointment: toWireAppointment(appt)}, nil
}

func (s *BookingServer) GetAppointment(ctx context.Context, req *AppointmentIDRequest) (*AppointmentReply, error) {
	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}
	appt, err := s.appts.Get(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "GetAppointment"), err)
	}
	return &AppointmentReply{Appointment: toWireAppointment(appt)}, nil
}

func (s *BookingServer) UpdateAppointment(ctx context.Context, req *UpdateAppointmentRequest) (*AppointmentReply, error) {
	log := s.rpcLog(ctx, "UpdateAppointment")

	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}
	in := appointments.UpdateInput{
		StaffID:   req.StaffID,
		ServiceID: req.ServiceID,
		StartTime: req.StartTime,
		Notes:     req.Notes,
	}
	if req.Date != nil {
		date, err := parseDate("date", *req.Date)
		if err != nil {
			return nil, err
		}
		if date.IsZero() {
			return nil, status.Error(codes.InvalidArgument, "date must not be empty")
		}
		in.Date = &date
	}

	appt, err := s.appts.Update(ctx, id, in)
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	log.Info("appointment updated", slog.String("appointment_id", id.String()))
	return &AppointmentReply{Appointment: toWireAppointment(appt)}, nil
}

func (s *BookingServer) CancelAppointment(ctx context.Context, req *CancelAppointmentRequest) (*AppointmentReply, error) {
	log := s.rpcLog(ctx, "CancelAppointment")

	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}
	appt, err := s.appts.Cancel(ctx, id, req.Reason)
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	log.Info("appointment cancelled", slog.String("appointment_id", id.String()))
	return &AppointmentReply{Appointment: toWireAppointment(appt)}, nil
}

func (s *BookingServer) DeleteAppointment(ctx context.Context, req *AppointmentIDRequest) (*Empty, error) {
	log := s.rpcLog(ctx, "DeleteAppointment")

	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := s.appts.Remove(ctx, id); err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	log.Info("appointment deleted", slog.String("appointment_id", id.String()))
	return &Empty{}, nil
}

func (s *BookingServer) SetAppointmentStatus(ctx context.Context, req *SetAppointmentStatusRequest) (*AppointmentReply, error) {
	log := s.rpcLog(ctx, "SetAppointmentStatus")

	id, err := parseID("appointment_id", req.AppointmentID)
	if err != nil {
		return nil, err
	}
	appt, err := s.appts.UpdateStatus(ctx, id, domain.AppointmentStatus(req.Status))
	if err != nil {
		return nil, s.fail(ctx, log.With(slog.String("appointment_id", id.String())), err)
	}
	return &AppointmentReply{Appointment: toWireAppointment(appt)}, nil
}

func (s *BookingServer) ListAppointments(ctx context.Context, req *ListAppointmentsRequest) (*ListAppointmentsReply, error) {
	log := s.rpcLog(ctx, "ListAppointments")

	from, err := parseDate("from", req.From)
	if err != nil {
		return nil, err
	}
	to, err := parseDate("to", req.To)
	if err != nil {
		return nil, err
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return nil, status.Error(codes.InvalidArgument, "from must not be after to")
	}

	rows, err := s.appts.List(ctx, store.AppointmentFilter{
		ClientID: req.ClientID,
		StaffID:  req.StaffID,
		From:     from,
		To:       to,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	out := make([]Appointment, 0, len(rows))
	for _, a := range rows {
		out = append(out, toWireAppointment(a))
	}
	log.Debug("appointments listed", slog.Int("count", len(out)))
	return &ListAppointmentsReply{Appointments: out}, nil
}

func (s *BookingServer) GetStatistics(ctx context.Context, req *StatisticsRequest) (*StatisticsReply, error) {
	from, err := parseDate("from", req.From)
	if err != nil {
		return nil, err
	}
	to, err := parseDate("to", req.To)
	if err != nil {
		return nil, err
	}
	stats, err := s.appts.GetStatistics(ctx, from, to)
	if err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "GetStatistics"), err)
	}
	return &StatisticsReply{
		Total:     stats.Total,
		Pending:   stats.Pending,
		Confirmed: stats.Confirmed,
		Completed: stats.Completed,
		Cancelled: stats.Cancelled,
		NoShow:    stats.NoShow,
	}, nil
}

func toWireAppointment(a domain.Appointment) Appointment {
	out := Appointment{
		ID:        a.ID.String(),
		ClientID:  a.ClientID,
		StaffID:   a.StaffID,
		ServiceID: a.ServiceID,
		Date:      a.Date.String(),
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		Notes:     a.Notes,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.CancellationReason != nil {
		out.CancellationReason = *a.CancellationReason
	}
	return out
}
