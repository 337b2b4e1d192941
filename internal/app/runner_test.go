package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

type fakeStrategy struct {
	sig *domain.Signal
	err error
}

func (f *fakeStrategy) Evaluate(_ context.Context) (*domain.Signal, error) {
	return f.sig, f.err
}

type fakeExecutor struct {
	got   []domain.Signal
	trade domain.Trade
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, sig domain.Signal) (domain.Trade, error) {
	f.got = append(f.got, sig)
	return f.trade, f.err
}

type fakeRisk struct {
	pct     float64
	pctErr  error
	gateErr error
}

func (f *fakeRisk) PositionPct(_ context.Context) (float64, error) { return f.pct, f.pctErr }

func (f *fakeRisk) CheckGates(_ context.Context, _ time.Time) error { return f.gateErr }

type memSignals struct {
	domain.SignalStore

	rows []domain.Signal
}

func (m *memSignals) Insert(_ context.Context, s domain.Signal) error {
	m.rows = append(m.rows, s)
	return nil
}

type memErrors struct {
	domain.ErrorStore

	rows []domain.ErrorEntry
}

func (m *memErrors) Insert(_ context.Context, e domain.ErrorEntry) error {
	m.rows = append(m.rows, e)
	return nil
}

type stubTrades struct {
	domain.TradeStore
}

func (stubTrades) Stats(_ context.Context, _ time.Time) (domain.TradeStats, error) {
	return domain.TradeStats{}, nil
}

type fakeRunnerAlerts struct {
	mu     sync.Mutex
	events []string
}

func (a *fakeRunnerAlerts) Notify(_ context.Context, event, _, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *fakeRunnerAlerts) snapshot() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.events...)
}

type runnerFixture struct {
	runner   *Runner
	strategy *fakeStrategy
	exec     *fakeExecutor
	risk     *fakeRisk
	signals  *memSignals
	errs     *memErrors
	alerts   *fakeRunnerAlerts
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		strategy: &fakeStrategy{},
		exec:     &fakeExecutor{},
		risk:     &fakeRisk{pct: 7.5},
		signals:  &memSignals{},
		errs:     &memErrors{},
		alerts:   &fakeRunnerAlerts{},
	}
	f.runner = NewRunner(
		f.strategy, f.exec, f.risk,
		f.signals, stubTrades{}, f.errs,
		nil, f.alerts,
		RunnerConfig{Interval: 10 * time.Millisecond},
		slog.New(slog.DiscardHandler),
	)
	return f
}

func buySignal() *domain.Signal {
	return &domain.Signal{
		ID:        "sig-1",
		Action:    domain.SignalBuy,
		DexPrice:  59520,
		CreatedAt: time.Now().UTC(),
	}
}

func TestTickSizesAndExecutesSignal(t *testing.T) {
	f := newRunnerFixture()
	f.strategy.sig = buySignal()

	halted := f.runner.tick(context.Background())

	assert.False(t, halted)
	require.Len(t, f.exec.got, 1)
	assert.Equal(t, 7.5, f.exec.got[0].PositionPct)
	require.Len(t, f.signals.rows, 1)
	assert.Equal(t, "sig-1", f.signals.rows[0].ID)
	assert.Equal(t, 7.5, f.signals.rows[0].PositionPct)
	assert.Empty(t, f.errs.rows)
}

func TestTickNoSignalDoesNothing(t *testing.T) {
	f := newRunnerFixture()

	halted := f.runner.tick(context.Background())

	assert.False(t, halted)
	assert.Empty(t, f.exec.got)
	assert.Empty(t, f.signals.rows)
}

func TestTickHaltsOnRiskGate(t *testing.T) {
	f := newRunnerFixture()
	f.risk.gateErr = domain.ErrCoolOff

	require.NoError(t, f.runner.Start(context.Background()))
	require.Eventually(t, func() bool {
		return f.runner.Status().State == domain.BotHalted && len(f.alerts.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	status := f.runner.Status()
	assert.Equal(t, "consecutive loss cool-off", status.HaltReason)
	assert.Equal(t, []string{"risk_halt"}, f.alerts.snapshot())
	require.NotEmpty(t, f.errs.rows)
	assert.Equal(t, "risk", f.errs.rows[0].Context)

	// A halted run restarts only by explicit operator action.
	f.risk.gateErr = nil
	require.NoError(t, f.runner.Start(context.Background()))
	assert.Equal(t, domain.BotRunning, f.runner.Status().State)
	require.NoError(t, f.runner.Stop(context.Background()))
}

func TestTickExecutorFailureKeepsRunning(t *testing.T) {
	f := newRunnerFixture()
	f.strategy.sig = buySignal()
	f.exec.err = errors.New("no route")

	halted := f.runner.tick(context.Background())

	assert.False(t, halted)
	require.Len(t, f.errs.rows, 1)
	assert.Equal(t, "executor", f.errs.rows[0].Context)
}

func TestStartStopLifecycle(t *testing.T) {
	f := newRunnerFixture()

	require.NoError(t, f.runner.Start(context.Background()))
	assert.Equal(t, domain.BotRunning, f.runner.Status().State)
	assert.ErrorIs(t, f.runner.Start(context.Background()), domain.ErrBotRunning)

	require.NoError(t, f.runner.Stop(context.Background()))
	assert.Equal(t, domain.BotStopped, f.runner.Status().State)
	assert.ErrorIs(t, f.runner.Stop(context.Background()), domain.ErrBotStopped)
}

func TestStrategyFailureIsRecorded(t *testing.T) {
	f := newRunnerFixture()
	f.strategy.err = errors.New("rpc down")

	halted := f.runner.tick(context.Background())

	assert.False(t, halted)
	assert.Empty(t, f.exec.got)
	require.Len(t, f.errs.rows, 1)
	assert.Equal(t, "strategy", f.errs.rows[0].Context)
}
