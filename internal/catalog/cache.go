package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"agenda/backend/internal/domain"
)

type ServiceLookup interface {
	GetService(ctx context.Context, id string) (domain.ServiceInfo, error)
}

// CachedServices keeps service records in Redis for ttl. Redis failures fall
// through to the source lookup.
type CachedServices struct {
	next   ServiceLookup
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	log    *slog.Logger
}

func NewCachedServices(next ServiceLookup, rdb *redis.Client, ttl time.Duration, log *slog.Logger) *CachedServices {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &CachedServices{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		prefix: "agenda:service",
		log:    log.With(slog.String("component", "catalog_cache")),
	}
}

func (c *CachedServices) GetService(ctx context.Context, id string) (domain.ServiceInfo, error) {
	if c.rdb == nil {
		return c.next.GetService(ctx, id)
	}

	key := c.key(id)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var svc domain.ServiceInfo
		if err := json.Unmarshal(raw, &svc); err == nil {
			return svc, nil
		}
		c.log.Warn("discarding undecodable cache entry", slog.String("key", key))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("service cache read failed", slog.String("key", key), slog.Any("err", err))
	}

	svc, err := c.next.GetService(ctx, id)
	if err != nil {
		return domain.ServiceInfo{}, err
	}

	if b, err := json.Marshal(svc); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.log.Warn("service cache write failed", slog.String("key", key), slog.Any("err", err))
		}
	}
	return svc, nil
}

func (c *CachedServices) key(id string) string {
	return c.prefix + ":" + strings.TrimSpace(id)
}
