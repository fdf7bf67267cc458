package bunstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

func seedAppointment(t *testing.T, repo *AppointmentRepo, appt domain.Appointment) domain.Appointment {
	t.Helper()
	var out domain.Appointment
	err := repo.InStaffDayTransaction(context.Background(), appt.StaffID, appt.Date, func(ctx context.Context, tx store.BookingTx) error {
		var err error
		out, err = tx.InsertAppointment(ctx, appt)
		return err
	})
	if err != nil {
		t.Fatalf("InsertAppointment error: %v", err)
	}
	return out
}

func TestAppointmentRepo_InsertGetAndList(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	a := seedAppointment(t, repo, domain.Appointment{
		ClientID:  "c1",
		StaffID:   "s1",
		ServiceID: "svc",
		Date:      testDay,
		StartTime: "10:00",
		EndTime:   "10:30",
		Status:    domain.AppointmentStatusConfirmed,
	})
	if a.ID == uuid.Nil {
		t.Fatalf("expected generated id")
	}
	if a.CreatedAt.IsZero() || a.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set: %+v", a)
	}

	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.StartTime != "10:00" || got.Date != testDay || got.Status != domain.AppointmentStatusConfirmed {
		t.Fatalf("Get = %+v", got)
	}

	seedAppointment(t, repo, domain.Appointment{
		ClientID:  "c2",
		StaffID:   "s1",
		ServiceID: "svc",
		Date:      testDay.AddDays(3),
		StartTime: "09:00",
		EndTime:   "09:30",
		Status:    domain.AppointmentStatusPending,
	})

	rows, err := repo.List(ctx, store.AppointmentFilter{StaffID: "s1", From: testDay, To: testDay})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != a.ID {
		t.Fatalf("List by day = %+v", rows)
	}

	rows, err = repo.List(ctx, store.AppointmentFilter{ClientID: "c2"})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(rows) != 1 || rows[0].ClientID != "c2" {
		t.Fatalf("List by client = %+v", rows)
	}

	if _, err := repo.Get(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get missing error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestAppointmentRepo_ListActiveSkipsInactiveAndExcluded(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	base := domain.Appointment{ClientID: "c1", StaffID: "s1", ServiceID: "svc", Date: testDay}

	active := base
	active.StartTime, active.EndTime, active.Status = "09:00", "09:30", domain.AppointmentStatusPending
	active = seedAppointment(t, repo, active)

	cancelled := base
	cancelled.StartTime, cancelled.EndTime, cancelled.Status = "10:00", "10:30", domain.AppointmentStatusCancelled
	seedAppointment(t, repo, cancelled)

	noShow := base
	noShow.StartTime, noShow.EndTime, noShow.Status = "11:00", "11:30", domain.AppointmentStatusNoShow
	seedAppointment(t, repo, noShow)

	completed := base
	completed.StartTime, completed.EndTime, completed.Status = "12:00", "12:30", domain.AppointmentStatusCompleted
	completed = seedAppointment(t, repo, completed)

	rows, err := repo.ListActiveForStaffDay(ctx, "s1", testDay, uuid.Nil)
	if err != nil {
		t.Fatalf("ListActiveForStaffDay error: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != active.ID || rows[1].ID != completed.ID {
		t.Fatalf("active rows = %+v", rows)
	}

	rows, err = repo.ListActiveForStaffDay(ctx, "s1", testDay, active.ID)
	if err != nil {
		t.Fatalf("ListActiveForStaffDay error: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != completed.ID {
		t.Fatalf("rows excluding %s = %+v", active.ID, rows)
	}

	ok, err := repo.ExistsActiveForSlot(ctx, active.SlotKey(), "c1")
	if err != nil || !ok {
		t.Fatalf("ExistsActiveForSlot = %v, %v; want true", ok, err)
	}
	ok, err = repo.ExistsActiveForSlot(ctx, domain.SlotKey{ServiceID: "svc", Date: testDay, StartTime: "10:00"}, "c1")
	if err != nil || ok {
		t.Fatalf("ExistsActiveForSlot(cancelled) = %v, %v; want false", ok, err)
	}
}

func TestAppointmentRepo_CancelGuard(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	a := seedAppointment(t, repo, domain.Appointment{
		ClientID: "c1", StaffID: "s1", ServiceID: "svc", Date: testDay,
		StartTime: "10:00", EndTime: "10:30", Status: domain.AppointmentStatusConfirmed,
	})

	got, err := repo.Cancel(ctx, a.ID, "sick")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Status != domain.AppointmentStatusCancelled || got.CancellationReason == nil || *got.CancellationReason != "sick" {
		t.Fatalf("Cancel = %+v", got)
	}

	got, err = repo.Cancel(ctx, a.ID, "again")
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second Cancel error = %v, want %v", err, store.ErrConflict)
	}
	if got.Status != domain.AppointmentStatusCancelled {
		t.Fatalf("second Cancel returned status %q", got.Status)
	}

	if _, err := repo.Cancel(ctx, uuid.New(), ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Cancel missing error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestAppointmentRepo_SetStatusUpdateAndDelete(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	a := seedAppointment(t, repo, domain.Appointment{
		ClientID: "c1", StaffID: "s1", ServiceID: "svc", Date: testDay,
		StartTime: "10:00", EndTime: "10:30", Status: domain.AppointmentStatusCompleted,
	})

	got, err := repo.SetStatus(ctx, a.ID, domain.AppointmentStatusPending)
	if err != nil {
		t.Fatalf("SetStatus error: %v", err)
	}
	if got.Status != domain.AppointmentStatusPending {
		t.Fatalf("SetStatus = %q", got.Status)
	}

	createdAt := got.CreatedAt

	err = repo.InStaffDayTransaction(ctx, a.StaffID, a.Date, func(ctx context.Context, tx store.BookingTx) error {
		next := got
		next.StartTime, next.EndTime, next.Notes = "11:00", "11:30", "moved"
		next.Status = domain.AppointmentStatusCancelled
		_, err := tx.UpdateAppointment(ctx, next)
		return err
	})
	if err != nil {
		t.Fatalf("UpdateAppointment error: %v", err)
	}
	got, err = repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.StartTime != "11:00" || got.Notes != "moved" || !got.CreatedAt.Equal(createdAt) {
		t.Fatalf("after update = %+v", got)
	}
	if got.Status != domain.AppointmentStatusPending {
		t.Fatalf("status after update = %q, want pending", got.Status)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Delete error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestAppointmentRepo_TransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := repo.InStaffDayTransaction(ctx, "s1", testDay, func(ctx context.Context, tx store.BookingTx) error {
		if _, err := tx.InsertAppointment(ctx, domain.Appointment{
			ClientID: "c1", StaffID: "s1", ServiceID: "svc", Date: testDay,
			StartTime: "10:00", EndTime: "10:30", Status: domain.AppointmentStatusPending,
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("tx error = %v, want %v", err, boom)
	}

	rows, err := repo.ListActiveForStaffDay(ctx, "s1", testDay, uuid.Nil)
	if err != nil {
		t.Fatalf("ListActiveForStaffDay error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("rows after rollback = %d, want 0", len(rows))
	}
}

func TestAppointmentRepo_UpdateGuardedByStatus(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	a := seedAppointment(t, repo, domain.Appointment{
		ClientID: "c1", StaffID: "s1", ServiceID: "svc", Date: testDay,
		StartTime: "10:00", EndTime: "10:30", Status: domain.AppointmentStatusPending,
	})
	if _, err := repo.Cancel(ctx, a.ID, "sick"); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	var current domain.Appointment
	err := repo.InStaffDayTransaction(ctx, a.StaffID, a.Date, func(ctx context.Context, tx store.BookingTx) error {
		next := a
		next.StartTime, next.EndTime = "11:00", "11:30"
		var err error
		current, err = tx.UpdateAppointment(ctx, next, domain.BlockingStatuses...)
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("UpdateAppointment error = %v, want %v", err, store.ErrConflict)
	}
	if current.Status != domain.AppointmentStatusCancelled {
		t.Fatalf("conflict returned status %q, want cancelled", current.Status)
	}

	got, err := repo.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.StartTime != "10:00" || got.Status != domain.AppointmentStatusCancelled || got.CancellationReason == nil || *got.CancellationReason != "sick" {
		t.Fatalf("row after rejected update = %+v", got)
	}

	err = repo.InStaffDayTransaction(ctx, "s1", testDay, func(ctx context.Context, tx store.BookingTx) error {
		_, err := tx.UpdateAppointment(ctx, domain.Appointment{ID: uuid.New(), StaffID: "s1", Date: testDay})
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("UpdateAppointment(missing) error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestAppointmentRepo_HoldBacked(t *testing.T) {
	db := newTestDB(t)
	repo := NewAppointmentRepo(db)
	ctx := context.Background()

	a := seedAppointment(t, repo, domain.Appointment{
		ClientID: "c1", StaffID: "s1", ServiceID: "svc", Date: testDay,
		StartTime: "10:00", EndTime: "10:30", Status: domain.AppointmentStatusPending,
	})
	key := a.SlotKey()

	cases := []struct {
		name     string
		clientID string
		exclude  uuid.UUID
		want     bool
	}{
		{name: "backed", clientID: "c1", want: true},
		{name: "own appointment excluded", clientID: "c1", exclude: a.ID, want: false},
		{name: "other client", clientID: "c2", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got bool
			err := repo.InStaffDayTransaction(ctx, "s2", testDay, func(ctx context.Context, tx store.BookingTx) error {
				var err error
				got, err = tx.HoldBacked(ctx, key, tc.clientID, tc.exclude)
				return err
			})
			if err != nil {
				t.Fatalf("HoldBacked error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("HoldBacked = %v, want %v", got, tc.want)
			}
		})
	}

	if _, err := repo.Cancel(ctx, a.ID, ""); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	err := repo.InStaffDayTransaction(ctx, "s2", testDay, func(ctx context.Context, tx store.BookingTx) error {
		backed, err := tx.HoldBacked(ctx, key, "c1", uuid.Nil)
		if err == nil && backed {
			t.Errorf("cancelled appointment still backs the hold")
		}
		return err
	})
	if err != nil {
		t.Fatalf("HoldBacked error: %v", err)
	}
}
