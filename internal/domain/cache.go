package domain

import (
	"context"
	"time"
)

// PriceCache is a short-TTL cache in front of the market-data feeds. A miss
// returns ok == false with a nil error.
type PriceCache interface {
	GetFloat(ctx context.Context, key string) (v float64, ok bool, err error)
	SetFloat(ctx context.Context, key string, v float64, ttl time.Duration) error
}
