package rates

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Cached puts a redis TTL cache in front of another Service, so many runs
// sharing one process do not hammer the upstream for the same pair.
type Cached struct {
	rdb  *redis.Client
	next Service
	ttl  time.Duration
	log  *zap.Logger
}

func NewCached(addr string, next Service, ttl time.Duration, log *zap.Logger) *Cached {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &Cached{rdb: rdb, next: next, ttl: ttl, log: log}
}

func (c *Cached) ConversionRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	cacheKey := "rate:" + key(from, to)

	if s, err := c.rdb.Get(ctx, cacheKey).Result(); err == nil {
		if r, derr := decimal.NewFromString(s); derr == nil {
			return r, nil
		}
	} else if err != redis.Nil {
		c.log.Warn("rate cache read failed", zap.String("key", cacheKey), zap.Error(err))
	}

	r, err := c.next.ConversionRate(ctx, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	if err := c.rdb.Set(ctx, cacheKey, r.String(), c.ttl).Err(); err != nil {
		c.log.Warn("rate cache write failed", zap.String("key", cacheKey), zap.Error(err))
	}
	return r, nil
}

func (c *Cached) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("close rate cache: %w", err)
	}
	return nil
}
