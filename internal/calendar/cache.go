package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Anushkasethi/pharmacy-booking/internal/booking"
	"github.com/Anushkasethi/pharmacy-booking/internal/interval"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

// Cache is a read-through Redis cache in front of an availability source.
// Slot searches hammer the same window many times per call, so a short TTL
// absorbs the burst without letting the busy view go far stale. Cache
// failures fall through to the source: a broken cache degrades latency,
// never correctness.
type Cache struct {
	inner  booking.AvailabilitySource
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *logging.Logger
}

var _ booking.AvailabilitySource = (*Cache)(nil)

// NewCache wraps source with a Redis cache holding entries for ttl.
func NewCache(source booking.AvailabilitySource, rdb redis.UniversalClient, ttl time.Duration, logger *logging.Logger) *Cache {
	if source == nil {
		panic("calendar: availability source cannot be nil")
	}
	if rdb == nil {
		panic("calendar: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		inner:  source,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger,
	}
}

// QueryBusy serves the window from Redis when fresh, falling back to the
// wrapped source on a miss.
func (c *Cache) QueryBusy(ctx context.Context, window interval.TimeRange) ([]interval.TimeRange, error) {
	key := cacheKey(window)

	payload, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var busy []interval.TimeRange
		if jsonErr := json.Unmarshal(payload, &busy); jsonErr == nil {
			return busy, nil
		}
		// Unreadable entry, treat as a miss and overwrite below.
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("busy cache read failed", "key", key, "error", err)
	}

	busy, err := c.inner.QueryBusy(ctx, window)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(busy); jsonErr == nil {
		if setErr := c.rdb.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("busy cache write failed", "key", key, "error", setErr)
		}
	}
	return busy, nil
}

func cacheKey(window interval.TimeRange) string {
	return fmt.Sprintf("pharmacy:busy:%d:%d", window.Start.Unix(), window.End.Unix())
}
