package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

const dexscreenerBaseURL = "https://api.dexscreener.com/latest/dex/pairs"

// DexscreenerSource serves the on-chain pair price from Dexscreener. The
// exit monitors poll this price; it is cheaper and faster than quoting the
// router for every poll.
type DexscreenerSource struct {
	http    *http.Client
	baseURL string
	pair    string // "<chain>/<pairAddress>", e.g. "bsc/0x..."
	cache   domain.PriceCache
	ttl     time.Duration
	logger  *slog.Logger
}

func NewDexscreenerSource(pair string, timeout time.Duration, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *DexscreenerSource {
	return &DexscreenerSource{
		http:    &http.Client{Timeout: timeout},
		baseURL: dexscreenerBaseURL,
		pair:    pair,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "dexscreener_feed")),
	}
}

type dexscreenerResponse struct {
	Pairs []struct {
		PriceUSD string `json:"priceUsd"`
	} `json:"pairs"`
}

// DexPrice returns the pair's latest USD price.
func (s *DexscreenerSource) DexPrice(ctx context.Context) (float64, error) {
	key := "price:dexscreener:" + s.pair
	if v, ok, err := s.cache.GetFloat(ctx, key); err != nil {
		s.logger.Warn("cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return v, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+s.pair, nil)
	if err != nil {
		return 0, fmt.Errorf("feed: build dexscreener request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feed: dexscreener %s: %w: %w", s.pair, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed: dexscreener returned %d: %w", resp.StatusCode, domain.ErrUnavailable)
	}

	var body dexscreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("feed: decode dexscreener response: %w", err)
	}
	if len(body.Pairs) == 0 {
		return 0, fmt.Errorf("feed: dexscreener has no data for %s: %w", s.pair, domain.ErrUnavailable)
	}
	v, err := strconv.ParseFloat(body.Pairs[0].PriceUSD, 64)
	if err != nil {
		return 0, fmt.Errorf("feed: parse dexscreener price %q: %w", body.Pairs[0].PriceUSD, err)
	}

	if err := s.cache.SetFloat(ctx, key, v, s.ttl); err != nil {
		s.logger.Warn("cache write failed", slog.String("error", err.Error()))
	}
	return v, nil
}
