package bunstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

func seedSlots(t *testing.T, repo *SlotRepo, slots ...domain.ServiceSlot) []domain.ServiceSlot {
	t.Helper()
	var out []domain.ServiceSlot
	err := repo.InProviderDayTransaction(context.Background(), slots[0].ProviderID, slots[0].Date, func(ctx context.Context, tx store.SlotTx) error {
		var err error
		out, err = tx.InsertSlots(ctx, slots)
		return err
	})
	if err != nil {
		t.Fatalf("InsertSlots error: %v", err)
	}
	return out
}

func availableSlot(start, end string) domain.ServiceSlot {
	return domain.ServiceSlot{
		ServiceID:  "svc",
		ProviderID: "p1",
		Date:       testDay,
		StartTime:  start,
		EndTime:    end,
		Status:     domain.SlotStatusAvailable,
	}
}

func TestSlotRepo_ReserveAndRelease(t *testing.T) {
	db := newTestDB(t)
	repo := NewSlotRepo(db)
	ctx := context.Background()

	seedSlots(t, repo, availableSlot("09:00", "09:30"), availableSlot("09:30", "10:00"))
	key := domain.SlotKey{ServiceID: "svc", Date: testDay, StartTime: "09:00"}

	got, err := repo.Reserve(ctx, key, "c1")
	if err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if got.Status != domain.SlotStatusReserved || !got.HeldBy("c1") {
		t.Fatalf("Reserve = %+v", got)
	}

	if _, err := repo.Reserve(ctx, key, "c2"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second Reserve error = %v, want %v", err, store.ErrConflict)
	}

	avail, err := repo.ListAvailable(ctx, "svc", testDay)
	if err != nil {
		t.Fatalf("ListAvailable error: %v", err)
	}
	if len(avail) != 1 || avail[0].StartTime != "09:30" {
		t.Fatalf("ListAvailable = %+v", avail)
	}

	ok, err := repo.Release(ctx, key, "c2")
	if err != nil || ok {
		t.Fatalf("Release by other client = %v, %v; want false", ok, err)
	}

	ok, err = repo.Release(ctx, key, "c1")
	if err != nil || !ok {
		t.Fatalf("Release = %v, %v; want true", ok, err)
	}
	rows, err := repo.ListByKey(ctx, key)
	if err != nil {
		t.Fatalf("ListByKey error: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != domain.SlotStatusAvailable || rows[0].ClientID != nil {
		t.Fatalf("after release = %+v", rows)
	}
}

func TestSlotRepo_ConcurrentReserveTakesSlotOnce(t *testing.T) {
	db := newTestDB(t)
	repo := NewSlotRepo(db)
	ctx := context.Background()

	seedSlots(t, repo, availableSlot("09:00", "09:30"))
	key := domain.SlotKey{ServiceID: "svc", Date: testDay, StartTime: "09:00"}

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Reserve(ctx, key, "client-"+string(rune('a'+i)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("Reserve error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 || conflicts != callers-1 {
		t.Fatalf("succeeded=%d conflicts=%d, want 1 and %d", succeeded, conflicts, callers-1)
	}
}

func TestSlotRepo_CompareAndSwap(t *testing.T) {
	db := newTestDB(t)
	repo := NewSlotRepo(db)
	ctx := context.Background()

	slots := seedSlots(t, repo, availableSlot("09:00", "09:30"))

	next := slots[0]
	next.Status = domain.SlotStatusBlocked
	next.Notes = strPtr("maintenance")

	got, err := repo.CompareAndSwap(ctx, domain.SlotStatusAvailable, next)
	if err != nil {
		t.Fatalf("CompareAndSwap error: %v", err)
	}
	if got.Status != domain.SlotStatusBlocked || got.Notes == nil || *got.Notes != "maintenance" {
		t.Fatalf("CompareAndSwap = %+v", got)
	}

	next.Status = domain.SlotStatusCancelled
	if _, err := repo.CompareAndSwap(ctx, domain.SlotStatusAvailable, next); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale CompareAndSwap error = %v, want %v", err, store.ErrConflict)
	}
}

func TestSlotRepo_ListByProvider(t *testing.T) {
	db := newTestDB(t)
	repo := NewSlotRepo(db)
	ctx := context.Background()

	seedSlots(t, repo, availableSlot("10:00", "10:30"), availableSlot("09:00", "09:30"))
	other := availableSlot("09:00", "09:30")
	other.ProviderID = "p2"
	seedSlots(t, repo, other)

	rows, err := repo.ListByProvider(ctx, "p1", testDay)
	if err != nil {
		t.Fatalf("ListByProvider error: %v", err)
	}
	if len(rows) != 2 || rows[0].StartTime != "09:00" || rows[1].StartTime != "10:00" {
		t.Fatalf("ListByProvider = %+v", rows)
	}
}

func TestOrphanRepo_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	repo := NewOrphanRepo(db)
	ctx := context.Background()

	o, err := repo.RecordOrphan(ctx, domain.OrphanedReservation{
		ServiceID: "svc",
		Date:      testDay,
		StartTime: "09:00",
		ClientID:  "c1",
		Reason:    "compensation failed",
	})
	if err != nil {
		t.Fatalf("RecordOrphan error: %v", err)
	}

	if err := repo.MarkAttempt(ctx, o.ID, "still down"); err != nil {
		t.Fatalf("MarkAttempt error: %v", err)
	}
	rows, err := repo.ListUnresolved(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnresolved error: %v", err)
	}
	if len(rows) != 1 || rows[0].Attempts != 1 || rows[0].LastError != "still down" {
		t.Fatalf("ListUnresolved = %+v", rows)
	}

	if err := repo.MarkResolved(ctx, o.ID); err != nil {
		t.Fatalf("MarkResolved error: %v", err)
	}
	rows, err = repo.ListUnresolved(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnresolved error: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("unresolved after resolve = %d, want 0", len(rows))
	}
}
