package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/service/schedules"
)

type Schedule struct {
	ID        string `json:"id"`
	StaffID   string `json:"staff_id"`
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsActive  bool   `json:"is_active"`
}

type Block struct {
	ID string `json:"id"`
	// StaffID is empty for blocks that apply to all staff.
	StaffID   string `json:"staff_id,omitempty"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Reason    string `json:"reason,omitempty"`
	IsActive  bool   `json:"is_active"`
}

type CreateScheduleRequest struct {
	StaffID   string `json:"staff_id"`
	DayOfWeek string `json:"day_of_week"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

type UpdateScheduleRequest struct {
	ScheduleID string  `json:"schedule_id"`
	DayOfWeek  *string `json:"day_of_week,omitempty"`
	StartTime  *string `json:"start_time,omitempty"`
	EndTime    *string `json:"end_time,omitempty"`
	IsActive   *bool   `json:"is_active,omitempty"`
}

type ScheduleReply struct {
	Schedule Schedule `json:"schedule"`
}

type ListSchedulesRequest struct {
	StaffID string `json:"staff_id"`
}

type ListSchedulesReply struct {
	Schedules []Schedule `json:"schedules"`
}

type IDRequest struct {
	ID string `json:"id"`
}

type CreateBlockRequest struct {
	StaffID   *string `json:"staff_id,omitempty"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Reason    string  `json:"reason"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

type BlockReply struct {
	Block Block `json:"block"`
}

// ListBlocksRequest lists by staff member, or by date range when From and To
// are set.
type ListBlocksRequest struct {
	StaffID string `json:"staff_id"`
	From    string `json:"from"`
	To      string `json:"to"`
}

type ListBlocksReply struct {
	Blocks []Block `json:"blocks"`
}

type AvailabilityRequest struct {
	StaffID string `json:"staff_id"`
	Date    string `json:"date"`
}

type AvailabilityReply struct {
	StaffID string     `json:"staff_id"`
	Date    string     `json:"date"`
	Working []Schedule `json:"working"`
	Blocked []Block    `json:"blocked"`
}

func (s *BookingServer) GetAvailability(ctx context.Context, req *AvailabilityRequest) (*AvailabilityReply, error) {
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	av, err := s.avail.GetAvailability(ctx, req.StaffID, date)
	if err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "GetAvailability"), err)
	}
	out := &AvailabilityReply{
		StaffID: av.StaffID,
		Date:    av.Date.String(),
		Working: make([]Schedule, 0, len(av.Working)),
		Blocked: make([]Block, 0, len(av.Blocked)),
	}
	for _, w := range av.Working {
		out.Working = append(out.Working, toWireSchedule(w))
	}
	for _, b := range av.Blocked {
		out.Blocked = append(out.Blocked, toWireBlock(b))
	}
	return out, nil
}

func (s *BookingServer) CreateSchedule(ctx context.Context, req *CreateScheduleRequest) (*ScheduleReply, error) {
	log := s.rpcLog(ctx, "CreateSchedule")

	sched, err := s.schedules.CreateSchedule(ctx, schedules.ScheduleInput{
		StaffID:   req.StaffID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		IsActive:  req.IsActive,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	log.Info("schedule created", slog.String("schedule_id", sched.ID.String()), slog.String("staff_id", sched.StaffID))
	return &ScheduleReply{Schedule: toWireSchedule(sched)}, nil
}

func (s *BookingServer) ListSchedules(ctx context.Context, req *ListSchedulesRequest) (*ListSchedulesReply, error) {
	rows, err := s.schedules.ListSchedules(ctx, req.StaffID)
	if err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "ListSchedules"), err)
	}
	out := make([]Schedule, 0, len(rows))
	for _, r := range rows {
		out = append(out, toWireSchedule(r))
	}
	return &ListSchedulesReply{Schedules: out}, nil
}

func (s *BookingServer) UpdateSchedule(ctx context.Context, req *UpdateScheduleRequest) (*ScheduleReply, error) {
	id, err := parseID("schedule_id", req.ScheduleID)
	if err != nil {
		return nil, err
	}
	sched, err := s.schedules.UpdateSchedule(ctx, id, schedules.SchedulePatch{
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		IsActive:  req.IsActive,
	})
	if err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "UpdateSchedule"), err)
	}
	return &ScheduleReply{Schedule: toWireSchedule(sched)}, nil
}

func (s *BookingServer) DeleteSchedule(ctx context.Context, req *IDRequest) (*Empty, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "DeleteSchedule"), err)
	}
	return &Empty{}, nil
}

func (s *BookingServer) CreateBlock(ctx context.Context, req *CreateBlockRequest) (*BlockReply, error) {
	log := s.rpcLog(ctx, "CreateBlock")

	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	block, err := s.schedules.CreateBlock(ctx, schedules.BlockInput{
		StaffID:   req.StaffID,
		Date:      date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
		IsActive:  req.IsActive,
	})
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}
	log.Info("block created", slog.String("block_id", block.ID.String()), slog.String("date", block.Date.String()))
	return &BlockReply{Block: toWireBlock(block)}, nil
}

func (s *BookingServer) ListBlocks(ctx context.Context, req *ListBlocksRequest) (*ListBlocksReply, error) {
	log := s.rpcLog(ctx, "ListBlocks")

	var (
		rows []domain.ScheduleBlock
		err  error
	)
	switch {
	case req.From != "" || req.To != "":
		if req.From == "" || req.To == "" {
			return nil, status.Error(codes.InvalidArgument, "from and to must be set together")
		}
		from, perr := parseDate("from", req.From)
		if perr != nil {
			return nil, perr
		}
		to, perr := parseDate("to", req.To)
		if perr != nil {
			return nil, perr
		}
		rows, err = s.schedules.ListBlocksByDateRange(ctx, from, to)
	default:
		rows, err = s.schedules.ListBlocks(ctx, req.StaffID)
	}
	if err != nil {
		return nil, s.fail(ctx, log, err)
	}

	out := make([]Block, 0, len(rows))
	for _, b := range rows {
		out = append(out, toWireBlock(b))
	}
	return &ListBlocksReply{Blocks: out}, nil
}

func (s *BookingServer) DeleteBlock(ctx context.Context, req *IDRequest) (*Empty, error) {
	id, err := parseID("id", req.ID)
	if err != nil {
		return nil, err
	}
	if err := s.schedules.DeleteBlock(ctx, id); err != nil {
		return nil, s.fail(ctx, s.rpcLog(ctx, "DeleteBlock"), err)
	}
	return &Empty{}, nil
}

func toWireSchedule(sc domain.Schedule) Schedule {
	return Schedule{
		ID:        sc.ID.String(),
		StaffID:   sc.StaffID,
		DayOfWeek: string(sc.DayOfWeek),
		StartTime: sc.StartTime,
		EndTime:   sc.EndTime,
		IsActive:  sc.IsActive,
	}
}

func toWireBlock(b domain.ScheduleBlock) Block {
	out := Block{
		ID:        b.ID.String(),
		Date:      b.Date.String(),
		StartTime: b.StartTime,
		EndTime:   b.EndTime,
		Reason:    b.Reason,
		IsActive:  b.IsActive,
	}
	if b.StaffID != nil {
		out.StaffID = *b.StaffID
	}
	return out
}
