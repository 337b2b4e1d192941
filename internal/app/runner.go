package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/metrics"
	"github.com/alanyoungcy/dexbot/internal/server/ws"
)

// SignalSource produces at most one signal per tick. *strategy.Evaluator
// satisfies it.
type SignalSource interface {
	Evaluate(ctx context.Context) (*domain.Signal, error)
}

// TradeSubmitter executes a sized signal. *executor.Executor satisfies it.
type TradeSubmitter interface {
	Execute(ctx context.Context, sig domain.Signal) (domain.Trade, error)
}

// RiskControl sizes trades and gates each tick. *risk.Governor satisfies
// it.
type RiskControl interface {
	PositionPct(ctx context.Context) (float64, error)
	CheckGates(ctx context.Context, now time.Time) error
}

// Broadcaster pushes live events to dashboard clients. *ws.Hub satisfies
// it; a nil Broadcaster disables the pushes.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// Alerter delivers operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// RunnerConfig controls the orchestrator loop.
type RunnerConfig struct {
	Interval  time.Duration
	AutoStart bool
}

// Runner is the orchestrator: each tick it checks the risk gates, asks the
// strategy for a signal, sizes it, and hands it to the executor. A tripped
// gate halts the run until an operator starts it again; any other failure
// is logged to the error store and the loop continues.
type Runner struct {
	strategy SignalSource
	exec     TradeSubmitter
	risk     RiskControl
	signals  domain.SignalStore
	trades   domain.TradeStore
	errs     domain.ErrorStore
	hub      Broadcaster
	alerts   Alerter
	cfg      RunnerConfig
	logger   *slog.Logger

	mu           sync.Mutex
	baseCtx      context.Context
	cancelLoop   context.CancelFunc
	loopDone     chan struct{}
	state        domain.BotState
	haltReason   string
	startedAt    time.Time
	lastSignalAt time.Time
	tickCount    int64
}

func NewRunner(
	strategy SignalSource,
	exec TradeSubmitter,
	risk RiskControl,
	signals domain.SignalStore,
	trades domain.TradeStore,
	errs domain.ErrorStore,
	hub Broadcaster,
	alerts Alerter,
	cfg RunnerConfig,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		strategy: strategy,
		exec:     exec,
		risk:     risk,
		signals:  signals,
		trades:   trades,
		errs:     errs,
		hub:      hub,
		alerts:   alerts,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "runner")),
		state:    domain.BotStopped,
	}
}

// Run parks until ctx is cancelled, optionally auto-starting the trading
// loop first. The API's start/stop calls drive the loop in between.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.baseCtx = ctx
	r.mu.Unlock()

	if r.cfg.AutoStart {
		if err := r.Start(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	r.stopLoop()
	return nil
}

// Start launches the trading loop. It fails with ErrBotRunning when the
// loop is already live. Starting a halted run clears the halt.
func (r *Runner) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state == domain.BotRunning {
		return domain.ErrBotRunning
	}

	base := r.baseCtx
	if base == nil {
		base = context.Background()
	}
	loopCtx, cancel := context.WithCancel(base)
	r.cancelLoop = cancel
	r.loopDone = make(chan struct{})
	r.state = domain.BotRunning
	r.haltReason = ""
	r.startedAt = time.Now().UTC()
	r.tickCount = 0

	go r.loop(loopCtx, r.loopDone)

	r.logger.Info("trading loop started", slog.Duration("interval", r.cfg.Interval))
	r.broadcastStatus()
	return nil
}

// Stop halts the trading loop and waits for the in-flight tick to finish.
// Position monitors keep running; Stop only stops new entries.
func (r *Runner) Stop(_ context.Context) error {
	r.mu.Lock()
	if r.state != domain.BotRunning {
		r.mu.Unlock()
		return domain.ErrBotStopped
	}
	cancel := r.cancelLoop
	done := r.loopDone
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.state = domain.BotStopped
	r.mu.Unlock()

	r.logger.Info("trading loop stopped")
	r.broadcastStatus()
	return nil
}

// Status returns a snapshot of the orchestrator state.
func (r *Runner) Status() domain.BotStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.BotStatus{
		State:        r.state,
		HaltReason:   r.haltReason,
		LastSignalAt: r.lastSignalAt,
		StartedAt:    r.startedAt,
		TickCount:    r.tickCount,
	}
}

func (r *Runner) stopLoop() {
	r.mu.Lock()
	cancel := r.cancelLoop
	done := r.loopDone
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// loop runs a tick immediately, then on every interval. It exits on
// cancellation or when a risk gate trips.
func (r *Runner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if halted := r.tick(ctx); halted {
		return
	}

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if halted := r.tick(ctx); halted {
				return
			}
		}
	}
}

// tick runs one orchestrator iteration. It returns true only when a risk
// gate tripped and the run must halt; every other failure is recorded and
// swallowed so the loop keeps going.
func (r *Runner) tick(ctx context.Context) bool {
	r.mu.Lock()
	r.tickCount++
	r.mu.Unlock()

	if err := r.risk.CheckGates(ctx, time.Now().UTC()); err != nil {
		if errors.Is(err, domain.ErrDailyLossLimit) || errors.Is(err, domain.ErrCoolOff) {
			r.halt(ctx, err)
			return true
		}
		r.recordError(ctx, "risk", err)
		return false
	}

	sig, err := r.strategy.Evaluate(ctx)
	if err != nil {
		r.recordError(ctx, "strategy", err)
		return false
	}
	if sig == nil {
		return false
	}

	pct, err := r.risk.PositionPct(ctx)
	if err != nil {
		r.recordError(ctx, "risk", err)
		return false
	}
	sig.PositionPct = pct

	if err := r.signals.Insert(ctx, *sig); err != nil {
		r.logger.Error("signal insert failed", slog.String("error", err.Error()))
	}
	metrics.IncSignal(string(sig.Action))
	r.publish(ws.ChannelSignals, sig)

	r.mu.Lock()
	r.lastSignalAt = sig.CreatedAt
	r.mu.Unlock()

	trade, err := r.exec.Execute(ctx, *sig)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		r.recordError(ctx, "executor", err)
		return false
	}

	r.publish(ws.ChannelTrades, trade)
	r.refreshProfitGauge(ctx)
	return false
}

// halt stops the run after a tripped gate. Manual restart required.
func (r *Runner) halt(ctx context.Context, cause error) {
	reason := "daily loss limit reached"
	if errors.Is(cause, domain.ErrCoolOff) {
		reason = "consecutive loss cool-off"
	}

	r.mu.Lock()
	r.state = domain.BotHalted
	r.haltReason = reason
	r.mu.Unlock()

	r.logger.Error("trading halted by risk gate", slog.String("reason", reason))
	r.recordError(ctx, "risk", cause)
	if r.alerts != nil {
		msg := fmt.Sprintf("trading halted: %s; manual restart required", reason)
		if err := r.alerts.Notify(ctx, "risk_halt", "Trading halted", msg); err != nil {
			r.logger.Warn("halt alert delivery failed", slog.String("error", err.Error()))
		}
	}
	r.broadcastStatus()
}

func (r *Runner) recordError(ctx context.Context, scope string, cause error) {
	r.logger.Error("tick failed",
		slog.String("context", scope),
		slog.String("error", cause.Error()),
	)
	metrics.IncError(scope)

	entry := domain.ErrorEntry{
		ID:        uuid.NewString(),
		Context:   scope,
		Message:   cause.Error(),
		Timestamp: time.Now().UTC(),
	}
	if err := r.errs.Insert(ctx, entry); err != nil {
		r.logger.Warn("error insert failed", slog.String("error", err.Error()))
	}
}

func (r *Runner) refreshProfitGauge(ctx context.Context) {
	stats, err := r.trades.Stats(ctx, time.Now().UTC())
	if err != nil {
		r.logger.Warn("stats refresh failed", slog.String("error", err.Error()))
		return
	}
	metrics.SetTotalProfitUSD(stats.TotalProfitUSD)
}

func (r *Runner) publish(channel string, payload any) {
	if r.hub != nil {
		r.hub.Broadcast(channel, payload)
	}
}

func (r *Runner) broadcastStatus() {
	r.publish(ws.ChannelStatus, r.Status())
}
