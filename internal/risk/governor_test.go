package risk

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

type fakeHistory struct {
	pcts  []float64
	usd   []float64
	daily float64
	err   error
}

func (f *fakeHistory) RecentProfitPcts(context.Context, int) ([]float64, error) {
	return f.pcts, f.err
}
func (f *fakeHistory) ProfitUSDSeries(context.Context, int) ([]float64, error) {
	return f.usd, f.err
}
func (f *fakeHistory) DailyProfitUSD(context.Context, time.Time) (float64, error) {
	return f.daily, f.err
}

var testCfg = Config{
	MaxTradePct:     10,
	MinTradePct:     2,
	VolatilityScale: 10,
	Lookback:        20,
	MaxDailyLossPct: 5,
	CoolOffLosses:   3,
}

func newGovernor(h *fakeHistory) *Governor {
	return NewGovernor(h, testCfg, slog.New(slog.DiscardHandler))
}

func TestPositionPctFewSamplesUsesMax(t *testing.T) {
	g := newGovernor(&fakeHistory{pcts: []float64{1, -1, 2, -2}})

	pct, err := g.PositionPct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, pct)
}

func TestPositionPctZeroVolatilityUsesMax(t *testing.T) {
	g := newGovernor(&fakeHistory{pcts: []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}})

	pct, err := g.PositionPct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, pct)
}

func TestPositionPctShrinksWithVolatility(t *testing.T) {
	// stdev of alternating +-2 is slightly above 2, so k < 1/20 and the
	// raw size falls below the floor.
	g := newGovernor(&fakeHistory{pcts: []float64{2, -2, 2, -2, 2, -2}})

	pct, err := g.PositionPct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, pct, "noisy history must clamp to the minimum")
}

func TestPositionPctClampsToMaxWhenCalm(t *testing.T) {
	// Tiny but nonzero volatility drives k above 1; size must not exceed max.
	g := newGovernor(&fakeHistory{pcts: []float64{0.01, 0.02, 0.01, 0.02, 0.01, 0.02}})

	pct, err := g.PositionPct(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, pct)
}

func TestPositionPctPropagatesStoreError(t *testing.T) {
	g := newGovernor(&fakeHistory{err: errors.New("pool closed")})

	_, err := g.PositionPct(context.Background())
	assert.Error(t, err)
}

func TestConsecutiveLossesStopsAtFirstWin(t *testing.T) {
	cases := []struct {
		name   string
		series []float64 // most recent first
		want   int
	}{
		{"recent win breaks immediately", []float64{2, -1, -1, -1}, 0},
		{"two losses then win", []float64{-1, -1, 2, -1}, 2},
		{"all losses", []float64{-1, -2, -3}, 3},
		{"zero profit is not a loss", []float64{0, -1, -1}, 0},
		{"buy between losing sells resets the run", []float64{-2, 0, -3, -4}, 1},
		{"empty history", nil, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newGovernor(&fakeHistory{usd: tc.series})
			got, err := g.ConsecutiveLosses(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCheckGatesDailyLoss(t *testing.T) {
	g := newGovernor(&fakeHistory{daily: -5})

	err := g.CheckGates(context.Background(), time.Now())
	assert.ErrorIs(t, err, domain.ErrDailyLossLimit)
}

func TestCheckGatesDailyLossJustAbove(t *testing.T) {
	g := newGovernor(&fakeHistory{daily: -4.99})

	assert.NoError(t, g.CheckGates(context.Background(), time.Now()))
}

func TestCheckGatesCoolOff(t *testing.T) {
	g := newGovernor(&fakeHistory{usd: []float64{-1, -1, -1}})

	err := g.CheckGates(context.Background(), time.Now())
	assert.ErrorIs(t, err, domain.ErrCoolOff)
}

func TestCheckGatesTwoLossesIsFine(t *testing.T) {
	g := newGovernor(&fakeHistory{usd: []float64{-1, -1, 5, -1}})

	assert.NoError(t, g.CheckGates(context.Background(), time.Now()))
}
