package catalog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"agenda/backend/internal/domain"
	"agenda/backend/internal/store"
)

type fakeCatalogRepo struct {
	getServiceFn func(ctx context.Context, id string) (domain.ServiceInfo, error)
	getUserFn    func(ctx context.Context, id string) (domain.UserInfo, error)
}

func (f *fakeCatalogRepo) GetService(ctx context.Context, id string) (domain.ServiceInfo, error) {
	if f.getServiceFn == nil {
		panic("GetService not configured")
	}
	return f.getServiceFn(ctx, id)
}

func (f *fakeCatalogRepo) GetUser(ctx context.Context, id string) (domain.UserInfo, error) {
	if f.getUserFn == nil {
		panic("GetUser not configured")
	}
	return f.getUserFn(ctx, id)
}

func TestDirectory_MapsNotFound(t *testing.T) {
	d := NewDirectory(&fakeCatalogRepo{
		getServiceFn: func(ctx context.Context, id string) (domain.ServiceInfo, error) {
			return domain.ServiceInfo{}, store.ErrNotFound
		},
		getUserFn: func(ctx context.Context, id string) (domain.UserInfo, error) {
			return domain.UserInfo{}, store.ErrNotFound
		},
	})

	if _, err := d.GetService(context.Background(), "svc"); !errors.Is(err, domain.ErrServiceNotFound) {
		t.Fatalf("GetService error = %v, want %v", err, domain.ErrServiceNotFound)
	}
	if _, err := d.GetUser(context.Background(), "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetUser error = %v, want %v", err, domain.ErrNotFound)
	}
	if _, err := d.GetUser(context.Background(), "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("GetUser blank error = %v, want %v", err, domain.ErrInvalidInput)
	}
}

func TestCachedServices_FallsThroughWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	calls := 0
	source := &fakeCatalogRepo{
		getServiceFn: func(ctx context.Context, id string) (domain.ServiceInfo, error) {
			calls++
			return domain.ServiceInfo{ID: id, DurationMinutes: 30}, nil
		},
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := NewCachedServices(source, rdb, time.Minute, log)

	for i := 0; i < 2; i++ {
		svc, err := c.GetService(context.Background(), "svc")
		if err != nil {
			t.Fatalf("GetService error: %v", err)
		}
		if svc.DurationMinutes != 30 {
			t.Fatalf("DurationMinutes = %d, want 30", svc.DurationMinutes)
		}
	}
	if calls != 2 {
		t.Fatalf("source calls = %d, want 2", calls)
	}
}

func TestCachedServices_PropagatesSourceErrors(t *testing.T) {
	c := NewCachedServices(NewDirectory(&fakeCatalogRepo{
		getServiceFn: func(ctx context.Context, id string) (domain.ServiceInfo, error) {
			return domain.ServiceInfo{}, store.ErrNotFound
		},
	}), nil, 0, nil)

	if _, err := c.GetService(context.Background(), "svc"); !errors.Is(err, domain.ErrServiceNotFound) {
		t.Fatalf("error = %v, want %v", err, domain.ErrServiceNotFound)
	}
}

func TestCachedServices_RedisIntegration(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("AGENDA_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("AGENDA_TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	calls := 0
	source := &fakeCatalogRepo{
		getServiceFn: func(ctx context.Context, id string) (domain.ServiceInfo, error) {
			calls++
			return domain.ServiceInfo{ID: id, Name: "Cut", DurationMinutes: 45}, nil
		},
	}
	c := NewCachedServices(source, rdb, time.Minute, nil)
	ctx := context.Background()
	id := "svc-" + time.Now().UTC().Format("150405.000000000")
	t.Cleanup(func() { _ = rdb.Del(ctx, c.key(id)).Err() })

	for i := 0; i < 3; i++ {
		svc, err := c.GetService(ctx, id)
		if err != nil {
			t.Fatalf("GetService error: %v", err)
		}
		if svc.DurationMinutes != 45 || svc.Name != "Cut" {
			t.Fatalf("GetService = %+v", svc)
		}
	}
	if calls != 1 {
		t.Fatalf("source calls = %d, want 1", calls)
	}
}
