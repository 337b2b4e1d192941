package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache using plain Redis strings with a
// server-side TTL. Letting Redis own expiry keeps every process reading the
// same freshness window.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

// GetFloat returns the cached value for key. A missing or expired key is a
// miss (ok == false), not an error.
func (pc *PriceCache) GetFloat(ctx context.Context, key string) (float64, bool, error) {
	raw, err := pc.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: parse %s value %q: %w", key, raw, err)
	}
	return v, true, nil
}

// SetFloat stores v under key with the given TTL.
func (pc *PriceCache) SetFloat(ctx context.Context, key string, v float64, ttl time.Duration) error {
	raw := strconv.FormatFloat(v, 'f', -1, 64)
	if err := pc.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}
