// Package risk sizes positions from realised volatility and enforces the
// loss circuit breakers.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// TradeHistory is the realised-performance surface the governor reads.
// *postgres.TradeStore satisfies it.
type TradeHistory interface {
	RecentProfitPcts(ctx context.Context, limit int) ([]float64, error)
	ProfitUSDSeries(ctx context.Context, limit int) ([]float64, error)
	DailyProfitUSD(ctx context.Context, day time.Time) (float64, error)
}

// Config holds sizing and circuit-breaker parameters.
type Config struct {
	MaxTradePct     float64
	MinTradePct     float64
	VolatilityScale float64
	Lookback        int
	MaxDailyLossPct float64
	CoolOffLosses   int
}

// minSamples is the trade count below which sizing falls back to the
// maximum: with too little history a volatility estimate is noise.
const minSamples = 5

// Governor derives position size from recent outcome volatility and halts
// trading when the daily-loss or consecutive-loss breaker trips.
type Governor struct {
	trades TradeHistory
	cfg    Config
	logger *slog.Logger
}

func NewGovernor(trades TradeHistory, cfg Config, logger *slog.Logger) *Governor {
	return &Governor{
		trades: trades,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// PositionPct returns the percent of quote balance to commit to the next
// trade. Calm recent outcomes size up toward MaxTradePct, volatile ones
// shrink toward MinTradePct.
func (g *Governor) PositionPct(ctx context.Context) (float64, error) {
	pcts, err := g.trades.RecentProfitPcts(ctx, g.cfg.Lookback)
	if err != nil {
		return 0, fmt.Errorf("risk: load profit history: %w", err)
	}
	if len(pcts) < minSamples {
		return g.cfg.MaxTradePct, nil
	}

	vol := sampleStdev(pcts)
	if vol == 0 {
		return g.cfg.MaxTradePct, nil
	}

	k := 1 / (vol * g.cfg.VolatilityScale)
	pct := clamp(g.cfg.MaxTradePct*k, g.cfg.MinTradePct, g.cfg.MaxTradePct)

	g.logger.Debug("position size computed",
		slog.Float64("volatility", vol),
		slog.Float64("pct", pct),
		slog.Int("samples", len(pcts)),
	)
	return pct, nil
}

// ConsecutiveLosses counts the run of strictly negative USD outcomes at the
// head of the most-recent-first trade series. A zero-profit trade breaks
// the run.
func (g *Governor) ConsecutiveLosses(ctx context.Context) (int, error) {
	series, err := g.trades.ProfitUSDSeries(ctx, g.cfg.Lookback)
	if err != nil {
		return 0, fmt.Errorf("risk: load profit series: %w", err)
	}

	losses := 0
	for _, p := range series {
		if p >= 0 {
			break
		}
		losses++
	}
	return losses, nil
}

// CheckGates returns domain.ErrDailyLossLimit or domain.ErrCoolOff when a
// circuit breaker has tripped, nil otherwise.
func (g *Governor) CheckGates(ctx context.Context, now time.Time) error {
	daily, err := g.trades.DailyProfitUSD(ctx, now)
	if err != nil {
		return fmt.Errorf("risk: load daily profit: %w", err)
	}
	if daily <= -g.cfg.MaxDailyLossPct {
		g.logger.Warn("daily loss limit tripped", slog.Float64("daily_profit_usd", daily))
		return fmt.Errorf("risk: daily profit %.2f: %w", daily, domain.ErrDailyLossLimit)
	}

	losses, err := g.ConsecutiveLosses(ctx)
	if err != nil {
		return err
	}
	if losses >= g.cfg.CoolOffLosses {
		g.logger.Warn("cool-off tripped", slog.Int("consecutive_losses", losses))
		return fmt.Errorf("risk: %d consecutive losses: %w", losses, domain.ErrCoolOff)
	}
	return nil
}

// sampleStdev is the n-1 standard deviation.
func sampleStdev(xs []float64) float64 {
	n := float64(len(xs))
	if n < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n

	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / (n - 1))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
