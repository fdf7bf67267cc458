// Package availability derives a staff member's working and blocked
// intervals for a day from recurring schedules and date-specific blocks.
package availability

import (
	"context"
	"fmt"
	"strings"

	"agenda/backend/internal/domain"
)

type Source interface {
	ListActiveSchedules(ctx context.Context, staffID string, day domain.DayOfWeek) ([]domain.Schedule, error)
	ListActiveBlocksFor(ctx context.Context, staffID string, date domain.Date) ([]domain.ScheduleBlock, error)
}

type Resolver struct {
	src Source
}

func NewResolver(src Source) *Resolver {
	return &Resolver{src: src}
}

// Availability is the raw working and blocked sets for one staff day. The
// sets are not merged. An empty Working set means the staff member does not
// work that day.
type Availability struct {
	StaffID string
	Date    domain.Date
	Working []domain.Schedule
	Blocked []domain.ScheduleBlock
}

func (r *Resolver) GetAvailability(ctx context.Context, staffID string, date domain.Date) (Availability, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return Availability{}, fmt.Errorf("%w: staff id required", domain.ErrInvalidInput)
	}
	if !date.Valid() {
		return Availability{}, fmt.Errorf("%w: %q", domain.ErrInvalidDate, date)
	}

	working, err := r.src.ListActiveSchedules(ctx, staffID, domain.DayOfWeekOf(date.Weekday()))
	if err != nil {
		return Availability{}, err
	}
	blocked, err := r.src.ListActiveBlocksFor(ctx, staffID, date)
	if err != nil {
		return Availability{}, err
	}

	return Availability{
		StaffID: staffID,
		Date:    date,
		Working: working,
		Blocked: blocked,
	}, nil
}

// Allows reports whether [start, end) fits inside a working interval and
// overlaps no blocked interval.
func (a Availability) Allows(start, end string) (bool, error) {
	s, e, err := domain.ParseRange(start, end)
	if err != nil {
		return false, err
	}

	inside := false
	for _, w := range a.Working {
		ws, we, err := domain.ParseRange(w.StartTime, w.EndTime)
		if err != nil {
			return false, err
		}
		if ws <= s && e <= we {
			inside = true
			break
		}
	}
	if !inside {
		return false, nil
	}

	for _, b := range a.Blocked {
		bs, be, err := domain.ParseRange(b.StartTime, b.EndTime)
		if err != nil {
			return false, err
		}
		if domain.IntervalsOverlap(s, e, bs, be) {
			return false, nil
		}
	}
	return true, nil
}
