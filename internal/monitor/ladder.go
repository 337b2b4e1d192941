package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// SellExecutor submits an exit for a quantity of the base token.
// *executor.Executor satisfies it.
type SellExecutor interface {
	SellExact(ctx context.Context, qty, refPrice float64) (domain.Trade, error)
}

// PriceFeed serves the DEX-side price the exit monitors poll.
type PriceFeed interface {
	DexPrice(ctx context.Context) (float64, error)
}

// LadderConfig holds the take-profit rung thresholds, each a percent gain
// over the entry price.
type LadderConfig struct {
	Interval time.Duration
	TP1Pct   float64
	TP2Pct   float64
	TP3Pct   float64
}

// Ladder scales out of open positions in three rungs: half the remaining
// quantity at TP1, half again at TP2, everything at TP3. The TP1/TP2
// latches on the position make each rung fire at most once even if price
// oscillates back through a threshold.
type Ladder struct {
	positions domain.PositionStore
	exec      SellExecutor
	prices    PriceFeed
	cfg       LadderConfig
	logger    *slog.Logger
}

func NewLadder(positions domain.PositionStore, exec SellExecutor, prices PriceFeed, cfg LadderConfig, logger *slog.Logger) *Ladder {
	return &Ladder{
		positions: positions,
		exec:      exec,
		prices:    prices,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "tp_ladder")),
	}
}

// Run executes the ladder loop until ctx is cancelled.
func (l *Ladder) Run(ctx context.Context) error {
	l.logger.Info("take-profit ladder started", slog.Duration("interval", l.cfg.Interval))
	defer l.logger.Info("take-profit ladder stopped")

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := l.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				l.logger.Error("ladder tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick evaluates every open position once. A failed exit on one position
// logs and moves on; the rung stays unlatched and retries next tick.
func (l *Ladder) Tick(ctx context.Context) error {
	positions, err := l.positions.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("monitor: list positions: %w", err)
	}
	if len(positions) == 0 {
		return nil
	}

	price, err := l.prices.DexPrice(ctx)
	if err != nil {
		return fmt.Errorf("monitor: ladder price: %w", err)
	}

	for _, pos := range positions {
		if err := l.evaluate(ctx, pos, price); err != nil {
			l.logger.Error("ladder exit failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// evaluate fires at most one rung per position per tick. The rungs are
// strictly ordered: TP2 is only reachable once TP1 has latched, TP3 once
// TP2 has. A price gapping straight through TP3 therefore walks the ladder
// over consecutive ticks rather than dumping the whole position at once.
func (l *Ladder) evaluate(ctx context.Context, pos domain.Position, price float64) error {
	if pos.QtyLeft <= 0 {
		return nil
	}

	tp1 := pos.EntryPrice * (1 + l.cfg.TP1Pct/100)
	tp2 := pos.EntryPrice * (1 + l.cfg.TP2Pct/100)
	tp3 := pos.EntryPrice * (1 + l.cfg.TP3Pct/100)

	switch {
	case pos.TP2Hit && price >= tp3:
		return l.closeOut(ctx, pos, price)
	case pos.TP1Hit && !pos.TP2Hit && price >= tp2:
		return l.scaleOut(ctx, pos, price, 2)
	case !pos.TP1Hit && price >= tp1:
		return l.scaleOut(ctx, pos, price, 1)
	}
	return nil
}

func (l *Ladder) scaleOut(ctx context.Context, pos domain.Position, price float64, rung int) error {
	qty := pos.QtyLeft / 2
	if _, err := l.exec.SellExact(ctx, qty, price); err != nil {
		return err
	}

	left := pos.QtyLeft - qty
	tp1 := pos.TP1Hit || rung >= 1
	tp2 := pos.TP2Hit || rung >= 2
	if err := l.positions.UpdateQty(ctx, pos.ID, left, tp1, tp2); err != nil {
		return err
	}

	l.logger.Info("take-profit rung filled",
		slog.String("position_id", pos.ID),
		slog.Int("rung", rung),
		slog.Float64("price", price),
		slog.Float64("qty_sold", qty),
		slog.Float64("qty_left", left),
	)
	return nil
}

func (l *Ladder) closeOut(ctx context.Context, pos domain.Position, price float64) error {
	if _, err := l.exec.SellExact(ctx, pos.QtyLeft, price); err != nil {
		return err
	}
	if err := l.positions.Delete(ctx, pos.ID); err != nil {
		return err
	}

	l.logger.Info("position fully exited at final rung",
		slog.String("position_id", pos.ID),
		slog.Float64("price", price),
		slog.Float64("qty_sold", pos.QtyLeft),
	)
	return nil
}
