// Package grpc exposes the booking engine as the agenda.v1.Booking gRPC
// service. Messages are JSON encoded; clients select the codec with
// grpc.CallContentSubtype(CodecName).
package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/appointments"
	"agenda/backend/internal/service/availability"
	"agenda/backend/internal/service/schedules"
	"agenda/backend/internal/service/slots"
	"agenda/backend/internal/store"
)

const ServiceName = "agenda.v1.Booking"

type appointmentsService interface {
	Create(ctx context.Context, in appointments.CreateInput, actingUserID string) (domain.Appointment, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Update(ctx context.Context, id uuid.UUID, in appointments.UpdateInput) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (domain.Appointment, error)
	Remove(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AppointmentStatus) (domain.Appointment, error)
	List(ctx context.Context, filter store.AppointmentFilter) ([]domain.Appointment, error)
	GetStatistics(ctx context.Context, from, to domain.Date) (domain.AppointmentStats, error)
}

type slotsService interface {
	GenerateSlots(ctx context.Context, actor domain.Actor, in slots.GenerateInput) ([]domain.ServiceSlot, error)
	FindAvailable(ctx context.Context, serviceID string, date domain.Date) ([]domain.ServiceSlot, error)
	FindByProvider(ctx context.Context, providerID string, date domain.Date) ([]domain.ServiceSlot, error)
	UpdateStatus(ctx context.Context, actor domain.Actor, slotID uuid.UUID, in slots.StatusUpdate) (domain.ServiceSlot, error)
}

type schedulesService interface {
	CreateSchedule(ctx context.Context, in schedules.ScheduleInput) (domain.Schedule, error)
	ListSchedules(ctx context.Context, staffID string) ([]domain.Schedule, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, patch schedules.SchedulePatch) (domain.Schedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	CreateBlock(ctx context.Context, in schedules.BlockInput) (domain.ScheduleBlock, error)
	ListBlocks(ctx context.Context, staffID string) ([]domain.ScheduleBlock, error)
	ListBlocksByDateRange(ctx context.Context, from, to domain.Date) ([]domain.ScheduleBlock, error)
	DeleteBlock(ctx context.Context, id uuid.UUID) error
}

type availabilityService interface {
	GetAvailability(ctx context.Context, staffID string, date domain.Date) (availability.Availability, error)
}

type Services struct {
	Appointments appointmentsService
	Slots        slotsService
	Schedules    schedulesService
	Availability availabilityService
}

type BookingServer struct {
	appts     appointmentsService
	slots     slotsService
	schedules schedulesService
	avail     availabilityService
	log       *slog.Logger
}

func NewBookingServer(svc Services, log *slog.Logger) *BookingServer {
	if log == nil {
		log = slog.Default()
	}
	return &BookingServer{
		appts:     svc.Appointments,
		slots:     svc.Slots,
		schedules: svc.Schedules,
		avail:     svc.Availability,
		log:       log.With(slog.String("component", "grpc.booking")),
	}
}

// Register adds the booking service to s.
func (s *BookingServer) Register(r grpc.ServiceRegistrar) {
	r.RegisterService(&bookingServiceDesc, s)
}

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateAppointment", (*BookingServer).CreateAppointment),
		unary("GetAppointment", (*BookingServer).GetAppointment),
		unary("UpdateAppointment", (*BookingServer).UpdateAppointment),
		unary("CancelAppointment", (*BookingServer).CancelAppointment),
		unary("DeleteAppointment", (*BookingServer).DeleteAppointment),
		unary("SetAppointmentStatus", (*BookingServer).SetAppointmentStatus),
		unary("ListAppointments", (*BookingServer).ListAppointments),
		unary("GetStatistics", (*BookingServer).GetStatistics),
		unary("GenerateSlots", (*BookingServer).GenerateSlots),
		unary("ListAvailableSlots", (*BookingServer).ListAvailableSlots),
		unary("ListProviderSlots", (*BookingServer).ListProviderSlots),
		unary("SetSlotStatus", (*BookingServer).SetSlotStatus),
		unary("GetAvailability", (*BookingServer).GetAvailability),
		unary("CreateSchedule", (*BookingServer).CreateSchedule),
		unary("ListSchedules", (*BookingServer).ListSchedules),
		unary("UpdateSchedule", (*BookingServer).UpdateSchedule),
		unary("DeleteSchedule", (*BookingServer).DeleteSchedule),
		unary("CreateBlock", (*BookingServer).CreateBlock),
		unary("ListBlocks", (*BookingServer).ListBlocks),
		unary("DeleteBlock", (*BookingServer).DeleteBlock),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "agenda/v1/booking",
}

// unary adapts a typed handler method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(*BookingServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "decode %s request: %v", name, err)
			}
			s := srv.(*BookingServer)
			handler := func(ctx context.Context, req any) (any, error) {
				resp, err := call(s, ctx, req.(*Req))
				if err != nil {
					return nil, err
				}
				return resp, nil
			}
			if interceptor == nil {
				return handler(ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, req, info, handler)
		},
	}
}

// fail converts a service error into a status. Domain failures keep their
// message and carry their code in the x-error-code trailer.
func (s *BookingServer) fail(ctx context.Context, log *slog.Logger, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		_ = grpc.SetTrailer(ctx, metadata.Pairs(ErrorCodeMetadataKey, de.Code))
	}

	var code codes.Code
	switch domain.KindOf(err) {
	case domain.KindValidation:
		code = codes.InvalidArgument
	case domain.KindNotFound:
		code = codes.NotFound
	case domain.KindConflict:
		code = codes.FailedPrecondition
	case domain.KindAuthorization:
		code = codes.PermissionDenied
	default:
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			log.Warn("request timed out", slog.Any("err", err))
			return status.Error(codes.DeadlineExceeded, "request timed out")
		case errors.Is(err, context.Canceled):
			return status.Error(codes.Canceled, "request cancelled")
		}
		log.Error("request failed", slog.Any("err", err))
		return status.Error(codes.Internal, "internal error")
	}

	log.Info("request rejected", slog.String("code", de.Code), slog.Any("err", err))
	return status.Error(code, err.Error())
}

func (s *BookingServer) rpcLog(ctx context.Context, rpc string) *slog.Logger {
	log := s.log.With(slog.String("rpc", rpc))
	if id := RequestIDFromContext(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}

// actorFrom reads the authenticated caller that the fronting gateway stamps
// into metadata.
func actorFrom(ctx context.Context) (domain.Actor, error) {
	actor := domain.Actor{
		ID:   firstMetadata(ctx, ActorIDMetadataKey),
		Role: domain.Role(firstMetadata(ctx, ActorRoleMetadataKey)),
	}
	if actor.ID == "" || actor.Role == "" {
		return domain.Actor{}, status.Error(codes.Unauthenticated, "x-actor-id and x-actor-role metadata are required")
	}
	return actor, nil
}

func parseID(field, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "%s must be a UUID", field)
	}
	return id, nil
}

func parseDate(field, raw string) (domain.Date, error) {
	if raw == "" {
		return "", nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return "", status.Errorf(codes.InvalidArgument, "%s must be YYYY-MM-DD", field)
	}
	return d, nil
}
