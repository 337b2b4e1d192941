// Package strategy decides whether the current market state warrants a
// trade. It compares the DEX price against the centralized-exchange spot
// price and filters the spread through RSI and MACD-histogram zones.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// Indicators serves technical indicators for the traded symbol.
// *feed.TaapiSource satisfies it.
type Indicators interface {
	RSI(ctx context.Context) (float64, error)
	EMA(ctx context.Context) (float64, error)
	MACDHist(ctx context.Context) (float64, error)
}

// SpotFeed serves the centralized-exchange reference price.
// *feed.BinanceSource satisfies it.
type SpotFeed interface {
	SpotPrice(ctx context.Context) (float64, error)
}

// DexFeed serves the aggregator-side DEX price. *feed.DexscreenerSource
// satisfies it.
type DexFeed interface {
	DexPrice(ctx context.Context) (float64, error)
}

// BalanceSource reads the wallet's current token balances.
// *chain.BalanceReader satisfies it.
type BalanceSource interface {
	Balances(ctx context.Context) (domain.WalletBalances, error)
}

// Config holds the signal thresholds.
type Config struct {
	MinSpreadPct float64
	RSIBuyBelow  float64
	RSISellAbove float64
	MACDFilter   bool
}

// Hist threshold fallback when MACD data is missing: the spread has to
// clear this on its own before a buy goes through.
const missingMACDSpreadPct = 1.0

// Evaluator produces at most one Signal per call. A missing required feed
// is treated as "no signal this tick", never as a hard failure.
type Evaluator struct {
	spot       SpotFeed
	dex        DexFeed
	indicators Indicators
	balances   BalanceSource
	venues     []string
	cfg        Config
	logger     *slog.Logger
}

func NewEvaluator(spot SpotFeed, dex DexFeed, indicators Indicators, balances BalanceSource, venues []string, cfg Config, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		spot:       spot,
		dex:        dex,
		indicators: indicators,
		balances:   balances,
		venues:     venues,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "strategy")),
	}
}

// market is one tick's worth of inputs, fetched concurrently.
type market struct {
	dexPrice     float64
	binancePrice float64
	rsi          float64
	ema          float64
	macdHist     *float64
	balances     domain.WalletBalances
}

// Evaluate fetches prices, indicators, and balances concurrently and
// applies the threshold rules. It returns (nil, nil) when no trade is
// warranted or when a required feed is unavailable this tick.
func (e *Evaluator) Evaluate(ctx context.Context) (*domain.Signal, error) {
	m, err := e.fetch(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUnavailable) {
			e.logger.Warn("market data unavailable, skipping tick", slog.String("error", err.Error()))
			return nil, nil
		}
		return nil, err
	}

	spread := (m.binancePrice - m.dexPrice) / m.binancePrice * 100

	action, reason := e.decide(m, spread)
	if action == "" {
		return nil, nil
	}

	sig := &domain.Signal{
		ID:           uuid.NewString(),
		Action:       action,
		DexPrice:     m.dexPrice,
		BinancePrice: m.binancePrice,
		SpreadPct:    spread,
		RSI:          m.rsi,
		EMA:          m.ema,
		MACDHist:     m.macdHist,
		Venues:       e.venueOrder(action),
		CreatedAt:    time.Now().UTC(),
	}

	e.logger.Info("signal",
		slog.String("action", string(action)),
		slog.String("reason", reason),
		slog.Float64("dex_price", m.dexPrice),
		slog.Float64("binance_price", m.binancePrice),
		slog.Float64("spread_pct", spread),
		slog.Float64("rsi", m.rsi),
	)
	return sig, nil
}

func (e *Evaluator) fetch(ctx context.Context) (market, error) {
	var m market

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := e.dex.DexPrice(gctx)
		if err != nil {
			return fmt.Errorf("strategy: dex price: %w", err)
		}
		m.dexPrice = v
		return nil
	})
	g.Go(func() error {
		v, err := e.spot.SpotPrice(gctx)
		if err != nil {
			return fmt.Errorf("strategy: spot price: %w", err)
		}
		m.binancePrice = v
		return nil
	})
	g.Go(func() error {
		v, err := e.indicators.RSI(gctx)
		if err != nil {
			return fmt.Errorf("strategy: rsi: %w", err)
		}
		m.rsi = v
		return nil
	})
	g.Go(func() error {
		v, err := e.indicators.EMA(gctx)
		if err != nil {
			return fmt.Errorf("strategy: ema: %w", err)
		}
		m.ema = v
		return nil
	})
	g.Go(func() error {
		// MACD is optional; a missing value degrades the buy filter
		// instead of skipping the tick.
		v, err := e.indicators.MACDHist(gctx)
		if errors.Is(err, domain.ErrUnavailable) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("strategy: macd: %w", err)
		}
		m.macdHist = &v
		return nil
	})
	g.Go(func() error {
		b, err := e.balances.Balances(gctx)
		if err != nil {
			return fmt.Errorf("strategy: balances: %w", err)
		}
		m.balances = b
		return nil
	})

	if err := g.Wait(); err != nil {
		return market{}, err
	}
	if m.binancePrice <= 0 || m.dexPrice <= 0 {
		return market{}, fmt.Errorf("strategy: non-positive price: %w", domain.ErrUnavailable)
	}
	return m, nil
}

// decide applies the threshold rules. Buys need the DEX trading at a
// discount to the reference price while RSI sits in the oversold zone;
// sells only need the overbought RSI zone. The returned reason is for the
// log line only.
func (e *Evaluator) decide(m market, spread float64) (domain.SignalAction, string) {
	if m.rsi < e.cfg.RSIBuyBelow && spread >= e.cfg.MinSpreadPct {
		if m.balances.Quote <= 0 {
			return "", ""
		}
		if ok, reason := e.macdAllowsBuy(m, spread); !ok {
			e.logger.Debug("buy filtered", slog.String("reason", reason))
			return "", ""
		}
		return domain.SignalBuy, fmt.Sprintf("rsi %.1f below %.1f, spread %.2f%%", m.rsi, e.cfg.RSIBuyBelow, spread)
	}

	if m.rsi > e.cfg.RSISellAbove {
		if m.balances.Base <= 0 {
			return "", ""
		}
		return domain.SignalSell, fmt.Sprintf("rsi %.1f above %.1f", m.rsi, e.cfg.RSISellAbove)
	}

	return "", ""
}

// macdAllowsBuy rejects buys against strongly negative momentum. The
// threshold scales with price (0.1%) but stays inside [10, 100] so it
// behaves sanely across very cheap and very expensive symbols. Without
// MACD data the spread alone has to be convincing.
func (e *Evaluator) macdAllowsBuy(m market, spread float64) (bool, string) {
	if !e.cfg.MACDFilter {
		return true, ""
	}
	if m.macdHist == nil {
		if spread > missingMACDSpreadPct {
			return true, ""
		}
		return false, fmt.Sprintf("macd unavailable and spread %.2f%% below %.1f%%", spread, missingMACDSpreadPct)
	}

	threshold := clamp(m.dexPrice*0.001, 10, 100)
	if *m.macdHist < -threshold {
		return false, fmt.Sprintf("macd hist %.2f below -%.2f", *m.macdHist, threshold)
	}
	return true, ""
}

// venueOrder returns the candidate venues best-first for buys and reversed
// for sells, so a failed top choice falls back to the next most favorable.
func (e *Evaluator) venueOrder(action domain.SignalAction) []string {
	out := make([]string, len(e.venues))
	copy(out, e.venues)
	if action == domain.SignalSell {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
