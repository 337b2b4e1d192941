package monitor

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

type memPositions struct {
	mu   sync.Mutex
	rows map[string]domain.Position
}

func newMemPositions(positions ...domain.Position) *memPositions {
	m := &memPositions{rows: make(map[string]domain.Position)}
	for _, p := range positions {
		m.rows[p.ID] = p
	}
	return m
}

func (m *memPositions) Create(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.ID] = p
	return nil
}

func (m *memPositions) Get(_ context.Context, id string) (domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) ListOpen(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.rows {
		out = append(out, p)
	}
	return out, nil
}

func (m *memPositions) UpdateQty(_ context.Context, id string, qtyLeft float64, tp1Hit, tp2Hit bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.QtyLeft = qtyLeft
	p.TP1Hit = tp1Hit
	p.TP2Hit = tp2Hit
	m.rows[id] = p
	return nil
}

func (m *memPositions) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memPositions) get(id string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	return p, ok
}

type sellCall struct {
	qty   float64
	price float64
}

type fakeSeller struct {
	mu    sync.Mutex
	calls []sellCall
	err   error
}

func (s *fakeSeller) SellExact(_ context.Context, qty, refPrice float64) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Trade{}, s.err
	}
	s.calls = append(s.calls, sellCall{qty: qty, price: refPrice})
	return domain.Trade{Type: domain.TradeSell, Amount: qty}, nil
}

func (s *fakeSeller) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type fakePrices struct {
	mu    sync.Mutex
	price float64
	err   error
}

func (p *fakePrices) DexPrice(_ context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.price, p.err
}

func (p *fakePrices) set(price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.price = price
}

func ladderPosition() domain.Position {
	return domain.Position{
		ID:         "pos-1",
		Side:       "long",
		EntryPrice: 100,
		QtyTotal:   8,
		QtyLeft:    8,
		CreatedAt:  time.Now(),
	}
}

func newLadderFixture(positions *memPositions, seller *fakeSeller, prices *fakePrices) *Ladder {
	cfg := LadderConfig{
		Interval: time.Second,
		TP1Pct:   0.8,
		TP2Pct:   1.5,
		TP3Pct:   3.0,
	}
	return NewLadder(positions, seller, prices, cfg, slog.New(slog.DiscardHandler))
}

func TestLadderBelowFirstRungDoesNothing(t *testing.T) {
	positions := newMemPositions(ladderPosition())
	seller := &fakeSeller{}
	prices := &fakePrices{price: 100.5}
	ladder := newLadderFixture(positions, seller, prices)

	require.NoError(t, ladder.Tick(context.Background()))

	assert.Zero(t, seller.callCount())
	pos, _ := positions.get("pos-1")
	assert.Equal(t, 8.0, pos.QtyLeft)
}

func TestLadderScalesOutRungByRung(t *testing.T) {
	positions := newMemPositions(ladderPosition())
	seller := &fakeSeller{}
	prices := &fakePrices{price: 100.8}
	ladder := newLadderFixture(positions, seller, prices)

	// TP1 sells half.
	require.NoError(t, ladder.Tick(context.Background()))
	require.Len(t, seller.calls, 1)
	assert.Equal(t, 4.0, seller.calls[0].qty)
	pos, _ := positions.get("pos-1")
	assert.Equal(t, 4.0, pos.QtyLeft)
	assert.True(t, pos.TP1Hit)
	assert.False(t, pos.TP2Hit)

	// TP2 sells half of what is left.
	prices.set(101.5)
	require.NoError(t, ladder.Tick(context.Background()))
	require.Len(t, seller.calls, 2)
	assert.Equal(t, 2.0, seller.calls[1].qty)
	pos, _ = positions.get("pos-1")
	assert.Equal(t, 2.0, pos.QtyLeft)
	assert.True(t, pos.TP2Hit)

	// TP3 closes the rest and deletes the position.
	prices.set(103)
	require.NoError(t, ladder.Tick(context.Background()))
	require.Len(t, seller.calls, 3)
	assert.Equal(t, 2.0, seller.calls[2].qty)
	_, ok := positions.get("pos-1")
	assert.False(t, ok)
}

func TestLadderRungLatchesAgainstOscillation(t *testing.T) {
	positions := newMemPositions(ladderPosition())
	seller := &fakeSeller{}
	prices := &fakePrices{price: 100.9}
	ladder := newLadderFixture(positions, seller, prices)

	require.NoError(t, ladder.Tick(context.Background()))
	require.Equal(t, 1, seller.callCount())

	// Price dips below TP1 and comes back; the rung must not refire.
	prices.set(100.2)
	require.NoError(t, ladder.Tick(context.Background()))
	prices.set(100.9)
	require.NoError(t, ladder.Tick(context.Background()))

	assert.Equal(t, 1, seller.callCount())
}

func TestLadderGapThroughFinalRungWalksOneRungPerTick(t *testing.T) {
	positions := newMemPositions(ladderPosition())
	seller := &fakeSeller{}
	prices := &fakePrices{price: 104}
	ladder := newLadderFixture(positions, seller, prices)

	// First tick only latches TP1; the deeper rungs need their
	// predecessors latched first.
	require.NoError(t, ladder.Tick(context.Background()))
	require.Len(t, seller.calls, 1)
	assert.Equal(t, 4.0, seller.calls[0].qty)
	pos, _ := positions.get("pos-1")
	assert.True(t, pos.TP1Hit)
	assert.False(t, pos.TP2Hit)

	require.NoError(t, ladder.Tick(context.Background()))
	require.Len(t, seller.calls, 2)
	assert.Equal(t, 2.0, seller.calls[1].qty)

	require.NoError(t, ladder.Tick(context.Background()))
	require.Len(t, seller.calls, 3)
	assert.Equal(t, 2.0, seller.calls[2].qty)
	_, ok := positions.get("pos-1")
	assert.False(t, ok)
}

func TestLadderFinalRungNeedsSecondLatch(t *testing.T) {
	positions := newMemPositions(ladderPosition())
	seller := &fakeSeller{}
	prices := &fakePrices{price: 101.6}
	ladder := newLadderFixture(positions, seller, prices)

	// Past TP2 but TP1 never latched: only the first rung fires.
	require.NoError(t, ladder.Tick(context.Background()))

	require.Len(t, seller.calls, 1)
	assert.Equal(t, 4.0, seller.calls[0].qty)
	pos, _ := positions.get("pos-1")
	assert.Equal(t, 4.0, pos.QtyLeft)
	assert.True(t, pos.TP1Hit)
	assert.False(t, pos.TP2Hit)
}

func TestLadderFailedExitDoesNotLatch(t *testing.T) {
	positions := newMemPositions(ladderPosition())
	seller := &fakeSeller{err: errors.New("no liquidity")}
	prices := &fakePrices{price: 100.9}
	ladder := newLadderFixture(positions, seller, prices)

	require.NoError(t, ladder.Tick(context.Background()))

	pos, _ := positions.get("pos-1")
	assert.False(t, pos.TP1Hit)
	assert.Equal(t, 8.0, pos.QtyLeft)

	// Next tick retries once the venue recovers.
	seller.err = nil
	require.NoError(t, ladder.Tick(context.Background()))
	assert.Equal(t, 1, seller.callCount())
	pos, _ = positions.get("pos-1")
	assert.True(t, pos.TP1Hit)
}

func TestLadderPriceFeedFailureSkipsTick(t *testing.T) {
	positions := newMemPositions(ladderPosition())
	seller := &fakeSeller{}
	prices := &fakePrices{err: errors.New("feed down")}
	ladder := newLadderFixture(positions, seller, prices)

	err := ladder.Tick(context.Background())
	require.Error(t, err)
	assert.Zero(t, seller.callCount())
}
