package bunstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

func openIntegrationDB(t *testing.T) *bun.DB {
	t.Helper()

	databaseURL := strings.TrimSpace(os.Getenv("AGENDA_TEST_DATABASE_URL"))
	if databaseURL == "" {
		t.Skip("AGENDA_TEST_DATABASE_URL not set")
	}

	schema := "agenda_test_" + randomHex(t, 8)
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}

	admin, err := Open(DriverPostgres, databaseURL, PoolConfig{MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = admin.NewRaw("DROP SCHEMA IF EXISTS " + schema + " CASCADE").Exec(ctx)
		_ = Close(admin)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := admin.NewRaw("CREATE SCHEMA " + schema).Exec(ctx); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	db, err := Open(DriverPostgres, databaseURL+sep+"search_path="+schema, PoolConfig{MaxOpenConns: 8})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() {
		_ = Close(db)
	})
	if err := CreateSchema(ctx, db); err != nil {
		t.Fatalf("CreateSchema error: %v", err)
	}
	return db
}

func TestPostgresIntegration_ConcurrentBookingsSerializePerStaffDay(t *testing.T) {
	db := openIntegrationDB(t)
	repo := NewAppointmentRepo(db)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Every caller scans for overlaps and inserts under the staff-day lock;
	// only the first of the identical requests may find the day free.
	const callers = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InStaffDayTransaction(ctx, "s1", testDay, func(ctx context.Context, tx store.BookingTx) error {
				rows, err := tx.ListActiveForStaffDay(ctx, "s1", testDay, uuid.Nil)
				if err != nil {
					return err
				}
				if len(rows) > 0 {
					return store.ErrConflict
				}
				_, err = tx.InsertAppointment(ctx, domain.Appointment{
					ClientID: "c1", StaffID: "s1", ServiceID: "svc", Date: testDay,
					StartTime: "10:00", EndTime: "10:30", Status: domain.AppointmentStatusPending,
				})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, store.ErrConflict):
			default:
				t.Errorf("tx error: %v", err)
			}
		}()
	}
	wg.Wait()

	if inserted != 1 {
		t.Fatalf("inserted = %d, want 1", inserted)
	}
}

func TestPostgresIntegration_SlotReserveRelease(t *testing.T) {
	db := openIntegrationDB(t)
	repo := NewSlotRepo(db)
	ctx := context.Background()

	seedSlots(t, repo, availableSlot("09:00", "09:30"))
	key := domain.SlotKey{ServiceID: "svc", Date: testDay, StartTime: "09:00"}

	if _, err := repo.Reserve(ctx, key, "c1"); err != nil {
		t.Fatalf("Reserve error: %v", err)
	}
	if _, err := repo.Reserve(ctx, key, "c2"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("second Reserve error = %v, want %v", err, store.ErrConflict)
	}
	ok, err := repo.Release(ctx, key, "c1")
	if err != nil || !ok {
		t.Fatalf("Release = %v, %v", ok, err)
	}
}

func randomHex(t *testing.T, bytesLen int) string {
	t.Helper()
	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("rand.Read error: %v", err)
	}
	return hex.EncodeToString(b)
}
