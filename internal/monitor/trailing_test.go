package monitor

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// scriptedPrices walks through a fixed sequence of prices, repeating the
// last one forever. It lets a test force the watcher to observe a peak
// before the drawdown.
type scriptedPrices struct {
	mu  sync.Mutex
	seq []float64
	i   int
}

func (p *scriptedPrices) DexPrice(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price := p.seq[p.i]
	if p.i < len(p.seq)-1 {
		p.i++
	}
	return price, nil
}

func (s *TrailingSet) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cancels)
}

func trailingPosition() domain.Position {
	return domain.Position{
		ID:         "pos-1",
		Side:       "long",
		EntryPrice: 100,
		QtyTotal:   4,
		QtyLeft:    4,
		CreatedAt:  time.Now(),
	}
}

func newTrailingFixture(positions *memPositions, seller *fakeSeller, prices PriceFeed) *TrailingSet {
	cfg := TrailingConfig{
		Interval:    2 * time.Millisecond,
		TrailPct:    0.5,
		HardStopPct: 2,
	}
	return NewTrailingSet(positions, seller, prices, cfg, slog.New(slog.DiscardHandler))
}

func TestTrailingHardStopExitsRemaining(t *testing.T) {
	pos := trailingPosition()
	positions := newMemPositions(pos)
	seller := &fakeSeller{}
	prices := &scriptedPrices{seq: []float64{99, 97.5}}
	// Trail wide enough (95 from the entry peak) that only the hard stop
	// at 98 can trip on the scripted drawdown.
	cfg := TrailingConfig{
		Interval:    2 * time.Millisecond,
		TrailPct:    5,
		HardStopPct: 2,
	}
	set := NewTrailingSet(positions, seller, prices, cfg, slog.New(slog.DiscardHandler))

	set.Watch(pos)

	require.Eventually(t, func() bool { return seller.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	seller.mu.Lock()
	call := seller.calls[0]
	seller.mu.Unlock()
	assert.Equal(t, 4.0, call.qty)
	assert.Equal(t, 97.5, call.price)

	assert.Eventually(t, func() bool {
		_, ok := positions.get("pos-1")
		return !ok && set.activeCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrailingStopFollowsPeakUp(t *testing.T) {
	pos := trailingPosition()
	positions := newMemPositions(pos)
	seller := &fakeSeller{}
	// Peak 110 puts the trail at 109.45; 109.6 holds, 109.4 trips.
	prices := &scriptedPrices{seq: []float64{105, 110, 109.6, 109.4}}
	set := newTrailingFixture(positions, seller, prices)

	set.Watch(pos)

	require.Eventually(t, func() bool { return seller.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	seller.mu.Lock()
	call := seller.calls[0]
	seller.mu.Unlock()
	assert.Equal(t, 109.4, call.price)
	assert.Eventually(t, func() bool {
		_, ok := positions.get("pos-1")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrailingSellsOnlyWhatLadderLeft(t *testing.T) {
	pos := trailingPosition()
	positions := newMemPositions(pos)
	// The ladder scaled the position down after the watcher was armed.
	require.NoError(t, positions.UpdateQty(context.Background(), pos.ID, 1.5, true, false))

	seller := &fakeSeller{}
	prices := &scriptedPrices{seq: []float64{97}}
	set := newTrailingFixture(positions, seller, prices)

	set.Watch(pos)

	require.Eventually(t, func() bool { return seller.callCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	seller.mu.Lock()
	call := seller.calls[0]
	seller.mu.Unlock()
	assert.Equal(t, 1.5, call.qty)
}

func TestTrailingClosedElsewhereIsNoOp(t *testing.T) {
	pos := trailingPosition()
	positions := newMemPositions() // already deleted by the ladder
	seller := &fakeSeller{}
	prices := &scriptedPrices{seq: []float64{95}}
	set := newTrailingFixture(positions, seller, prices)

	set.Watch(pos)

	require.Eventually(t, func() bool { return set.activeCount() == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, seller.callCount())
}

func TestTrailingWatchIsIdempotent(t *testing.T) {
	pos := trailingPosition()
	positions := newMemPositions(pos)
	seller := &fakeSeller{}
	prices := &scriptedPrices{seq: []float64{101}}
	set := newTrailingFixture(positions, seller, prices)

	set.Watch(pos)
	set.Watch(pos)

	assert.Equal(t, 1, set.activeCount())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = set.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("trailing set did not shut down")
	}
	assert.Zero(t, seller.callCount())
}

func TestTrailingResumeArmsOpenPositions(t *testing.T) {
	first := trailingPosition()
	second := trailingPosition()
	second.ID = "pos-2"
	positions := newMemPositions(first, second)
	seller := &fakeSeller{}
	prices := &scriptedPrices{seq: []float64{100.5}}
	set := newTrailingFixture(positions, seller, prices)

	require.NoError(t, set.Resume(context.Background()))
	assert.Equal(t, 2, set.activeCount())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = set.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	assert.Zero(t, set.activeCount())
}
