package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// TrailingConfig holds the stop parameters. HardStopPct anchors to the
// entry price, TrailPct to the running peak.
type TrailingConfig struct {
	Interval    time.Duration
	TrailPct    float64
	HardStopPct float64
}

// TrailingSet runs one trailing-stop watcher goroutine per open position.
// Watchers are registered by the executor's position hook on new buys and
// by Resume for positions that survived a restart; Run cancels and drains
// all of them on shutdown.
type TrailingSet struct {
	positions domain.PositionStore
	exec      SellExecutor
	prices    PriceFeed
	cfg       TrailingConfig
	logger    *slog.Logger

	mu      sync.Mutex
	baseCtx context.Context
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewTrailingSet(positions domain.PositionStore, exec SellExecutor, prices PriceFeed, cfg TrailingConfig, logger *slog.Logger) *TrailingSet {
	return &TrailingSet{
		positions: positions,
		exec:      exec,
		prices:    prices,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "trailing_stop")),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Run parks until ctx is cancelled, then stops every watcher and waits for
// them to drain. Watch calls before Run starts queue against a background
// context and are re-parented here.
func (s *TrailingSet) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.logger.Info("trailing-stop set started")
	<-ctx.Done()

	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("trailing-stop set stopped")
	return nil
}

// Resume arms a watcher for every position already open in the store. Run
// this once at startup so positions from a previous process keep their
// stops.
func (s *TrailingSet) Resume(ctx context.Context) error {
	positions, err := s.positions.ListOpen(ctx)
	if err != nil {
		return err
	}
	for _, pos := range positions {
		s.Watch(pos)
	}
	if len(positions) > 0 {
		s.logger.Info("resumed trailing stops", slog.Int("count", len(positions)))
	}
	return nil
}

// Watch arms a trailing stop for pos. Arming the same position twice is a
// no-op.
func (s *TrailingSet) Watch(pos domain.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cancels[pos.ID]; exists {
		return
	}

	base := s.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	s.cancels[pos.ID] = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(pos.ID)
		s.watch(ctx, pos)
	}()
}

func (s *TrailingSet) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}

// watch polls the price and exits the remaining quantity when either stop
// trips. The peak only ever rises; the trailing threshold follows it up.
func (s *TrailingSet) watch(ctx context.Context, pos domain.Position) {
	logger := s.logger.With(slog.String("position_id", pos.ID))
	logger.Info("trailing stop armed",
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("qty", pos.QtyLeft),
	)

	hardStop := pos.EntryPrice * (1 - s.cfg.HardStopPct/100)
	peak := pos.EntryPrice

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		price, err := s.prices.DexPrice(ctx)
		if err != nil {
			logger.Warn("price poll failed", slog.String("error", err.Error()))
			continue
		}
		if price > peak {
			peak = price
		}

		var reason string
		switch {
		case price <= hardStop:
			reason = "hard_stop"
		case price <= peak*(1-s.cfg.TrailPct/100):
			reason = "trailing_stop"
		default:
			continue
		}

		if s.exit(ctx, pos.ID, price, reason, logger) {
			return
		}
		// Exit failed; keep watching and retry on the next tick.
	}
}

// exit sells whatever the position still holds. It re-reads the store
// because the ladder may have scaled the position down (or closed it)
// since the watcher was armed. Returns true when the watcher is done.
func (s *TrailingSet) exit(ctx context.Context, id string, price float64, reason string, logger *slog.Logger) bool {
	current, err := s.positions.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Info("position already closed elsewhere")
		return true
	}
	if err != nil {
		logger.Error("position lookup failed", slog.String("error", err.Error()))
		return false
	}
	if current.QtyLeft <= 0 {
		_ = s.positions.Delete(ctx, id)
		return true
	}

	if _, err := s.exec.SellExact(ctx, current.QtyLeft, price); err != nil {
		logger.Error("stop exit failed",
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := s.positions.Delete(ctx, id); err != nil {
		logger.Error("position delete failed", slog.String("error", err.Error()))
	}

	logger.Info("stop exit filled",
		slog.String("reason", reason),
		slog.Float64("price", price),
		slog.Float64("qty_sold", current.QtyLeft),
	)
	return true
}
