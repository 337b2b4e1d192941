package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

const taapiBaseURL = "https://api.taapi.io"

// TaapiSource serves technical indicators (RSI, EMA, MACD histogram) from
// taapi.io. Responses are cached per indicator; a missing MACD value is
// reported as domain.ErrUnavailable so the evaluator can degrade instead of
// aborting the tick.
type TaapiSource struct {
	http     *http.Client
	baseURL  string
	secret   string
	exchange string
	symbol   string
	interval string
	cache    domain.PriceCache
	ttl      time.Duration
	logger   *slog.Logger
}

// TaapiConfig carries the taapi.io request parameters.
type TaapiConfig struct {
	Secret   string
	Exchange string
	Symbol   string
	Interval string
	Timeout  time.Duration
}

func NewTaapiSource(cfg TaapiConfig, cache domain.PriceCache, ttl time.Duration, logger *slog.Logger) *TaapiSource {
	return &TaapiSource{
		http:     &http.Client{Timeout: cfg.Timeout},
		baseURL:  taapiBaseURL,
		secret:   cfg.Secret,
		exchange: cfg.Exchange,
		symbol:   cfg.Symbol,
		interval: cfg.Interval,
		cache:    cache,
		ttl:      ttl,
		logger:   logger.With(slog.String("component", "taapi_feed")),
	}
}

// RSI returns the latest RSI value.
func (s *TaapiSource) RSI(ctx context.Context) (float64, error) {
	return s.indicator(ctx, "rsi", "value")
}

// EMA returns the latest EMA value.
func (s *TaapiSource) EMA(ctx context.Context) (float64, error) {
	return s.indicator(ctx, "ema", "value")
}

// MACDHist returns the latest MACD histogram value.
func (s *TaapiSource) MACDHist(ctx context.Context) (float64, error) {
	return s.indicator(ctx, "macd", "valueMACDHist")
}

func (s *TaapiSource) indicator(ctx context.Context, name, field string) (float64, error) {
	key := fmt.Sprintf("indicator:%s:%s:%s", name, s.symbol, s.interval)
	if v, ok, err := s.cache.GetFloat(ctx, key); err != nil {
		s.logger.Warn("cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return v, nil
	}

	q := url.Values{}
	q.Set("secret", s.secret)
	q.Set("exchange", s.exchange)
	q.Set("symbol", s.symbol)
	q.Set("interval", s.interval)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+name+"?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("feed: build taapi request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("feed: taapi %s: %w: %w", name, domain.ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("feed: taapi %s returned %d: %w", name, resp.StatusCode, domain.ErrUnavailable)
	}

	var body map[string]*float64
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("feed: decode taapi %s: %w", name, err)
	}
	v := body[field]
	if v == nil {
		return 0, fmt.Errorf("feed: taapi %s missing field %s: %w", name, field, domain.ErrUnavailable)
	}

	if err := s.cache.SetFloat(ctx, key, *v, s.ttl); err != nil {
		s.logger.Warn("cache write failed", slog.String("error", err.Error()))
	}
	return *v, nil
}
