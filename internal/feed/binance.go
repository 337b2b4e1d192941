// Package feed fetches market data from the external sources the strategy
// consumes: Binance spot prices, TAAPI indicators, and Dexscreener pair
// prices. Every feed sits behind the Redis price cache so a burst of
// evaluation ticks does not hammer the upstream APIs.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// BinanceSource serves the CEX reference price for the traded pair.
type BinanceSource struct {
	client *binance.Client
	symbol string
	cache  domain.PriceCache
	ttl    time.Duration
	logger *slog.Logger
}

func NewBinanceSource(symbol string, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *BinanceSource {
	// Public market-data endpoints need no credentials.
	return &BinanceSource{
		client: binance.NewClient("", ""),
		symbol: symbol,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "binance_feed")),
	}
}

// SpotPrice returns the latest traded price for the configured symbol.
func (s *BinanceSource) SpotPrice(ctx context.Context) (float64, error) {
	key := "price:binance:" + s.symbol
	if v, ok, err := s.cache.GetFloat(ctx, key); err != nil {
		s.logger.Warn("cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return v, nil
	}

	prices, err := s.client.NewListPricesService().Symbol(s.symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("feed: binance price %s: %w: %w", s.symbol, domain.ErrUnavailable, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("feed: binance returned no price for %s: %w", s.symbol, domain.ErrUnavailable)
	}
	v, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("feed: parse binance price %q: %w", prices[0].Price, err)
	}

	if err := s.cache.SetFloat(ctx, key, v, s.ttl); err != nil {
		s.logger.Warn("cache write failed", slog.String("error", err.Error()))
	}
	return v, nil
}
