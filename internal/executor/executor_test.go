package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexbot/internal/chain"
	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/quote"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	baseAddr   = common.HexToAddress("0x01")
	quoteAddr  = common.HexToAddress("0x02")
	routerAddr = common.HexToAddress("0x10")
)

type fakeChain struct {
	gasPrice *big.Int
	estGas   uint64
	estErr   error
	sent     []*types.Transaction
}

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estErr != nil {
		return 0, f.estErr
	}
	return f.estGas, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

type fakeToken struct {
	addr      common.Address
	dec       int32
	bal       *big.Int
	allowance *big.Int
}

func (f *fakeToken) Address() common.Address { return f.addr }
func (f *fakeToken) Decimals() int32         { return f.dec }

func (f *fakeToken) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.bal), nil
}

func (f *fakeToken) Allowance(context.Context, common.Address, common.Address) (*big.Int, error) {
	return new(big.Int).Set(f.allowance), nil
}

func (f *fakeToken) ApproveCalldata(common.Address, *big.Int) ([]byte, error) {
	return []byte{0xaa}, nil
}

type fakeNonces struct {
	next  uint64
	calls int
}

func (f *fakeNonces) Next(context.Context) (uint64, error) {
	n := f.next
	f.next++
	f.calls++
	return n, nil
}

type venueQuote struct {
	out *big.Int
	err error
}

type fakeQuoter struct {
	order  []string
	quotes map[string]venueQuote
	lastIn *big.Int
}

func (f *fakeQuoter) VenueOrder() []string { return f.order }

func (f *fakeQuoter) Resolve(_ context.Context, venue string, _ domain.SignalAction, amountIn *big.Int) (*quote.Route, error) {
	f.lastIn = new(big.Int).Set(amountIn)
	q, ok := f.quotes[venue]
	if !ok {
		return nil, fmt.Errorf("quote: unknown venue %q: %w", venue, domain.ErrRouteUnavailable)
	}
	if q.err != nil {
		return nil, q.err
	}
	return &quote.Route{Venue: venue, Router: routerAddr, Out: new(big.Int).Set(q.out)}, nil
}

func (f *fakeQuoter) SwapCalldata(*quote.Route, *big.Int, *big.Int, common.Address, *big.Int) ([]byte, error) {
	return []byte{0xbb}, nil
}

type memTrades struct {
	domain.TradeStore
	rows []domain.Trade
}

func (m *memTrades) Insert(_ context.Context, t domain.Trade) error {
	m.rows = append(m.rows, t)
	return nil
}

type memPending struct {
	domain.PendingTxStore
	rows []domain.PendingTx
}

func (m *memPending) Insert(_ context.Context, tx domain.PendingTx) error {
	m.rows = append(m.rows, tx)
	return nil
}

type memPositions struct {
	domain.PositionStore
	created []domain.Position
}

func (m *memPositions) Create(_ context.Context, p domain.Position) error {
	m.created = append(m.created, p)
	return nil
}

type fixture struct {
	exec      *Executor
	chain     *fakeChain
	nonces    *fakeNonces
	quoter    *fakeQuoter
	trades    *memTrades
	pending   *memPending
	positions *memPositions
	baseTok   *fakeToken
	quoteTok  *fakeToken
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	wallet, err := chain.NewWallet(testKey, 56)
	require.NoError(t, err)

	f := &fixture{
		chain:  &fakeChain{gasPrice: chain.GweiToWei(3), estGas: 200_000},
		nonces: &fakeNonces{},
		quoter: &fakeQuoter{
			order: []string{"pancake"},
			// 100 quote in, 0.002 base out.
			quotes: map[string]venueQuote{"pancake": {out: chain.ToWei(0.002, 18)}},
		},
		trades:    &memTrades{},
		pending:   &memPending{},
		positions: &memPositions{},
		baseTok:   &fakeToken{addr: baseAddr, dec: 18, bal: chain.ToWei(0.05, 18), allowance: chain.MaxApproval},
		quoteTok:  &fakeToken{addr: quoteAddr, dec: 18, bal: chain.ToWei(1000, 18), allowance: chain.MaxApproval},
	}

	f.exec = New(
		f.chain, wallet, f.nonces, f.baseTok, f.quoteTok, f.quoter,
		f.trades, f.pending, f.positions,
		Config{
			SlippagePct:     0.2,
			DefaultTradePct: 10,
			MaxGasPrice:     chain.GweiToWei(5),
			MaxGasFee:       chain.ToWei(0.003, 18),
			SwapDeadline:    time.Minute,
			SwapGasFallback: 400_000,
			ApproveGasLimit: 60_000,
		},
		slog.New(slog.DiscardHandler),
	)
	return f
}

func buySignal() domain.Signal {
	return domain.Signal{
		ID:          "sig-1",
		Action:      domain.SignalBuy,
		DexPrice:    50_000,
		PositionPct: 10,
	}
}

func TestExecuteBuySizesAndFloorsOutput(t *testing.T) {
	f := newFixture(t)

	trade, err := f.exec.Execute(context.Background(), buySignal())
	require.NoError(t, err)

	// 10% of 1000 quote is a 100 notional; 0.002 quoted out floored by
	// 0.2% slippage.
	assert.Equal(t, domain.TradeBuy, trade.Type)
	assert.InDelta(t, 0.002*0.998, trade.Amount, 1e-12)
	assert.InDelta(t, 0.002, trade.ExpectedOut, 1e-12, "expected_out keeps the pre-slippage quote")
	assert.Equal(t, 50_000.0, trade.EntryPrice)

	require.Len(t, f.chain.sent, 1)
	require.Len(t, f.pending.rows, 1)
	assert.Equal(t, uint64(0), f.pending.rows[0].Nonce)
	assert.Equal(t, domain.TxPending, f.pending.rows[0].Status)
	assert.Equal(t, f.chain.sent[0].Hash().Hex(), f.pending.rows[0].TxHash)
}

func TestExecuteBuyOpensPositionAndFiresHook(t *testing.T) {
	f := newFixture(t)

	var hooked []domain.Position
	f.exec.SetPositionHook(func(p domain.Position) { hooked = append(hooked, p) })

	trade, err := f.exec.Execute(context.Background(), buySignal())
	require.NoError(t, err)

	require.Len(t, f.positions.created, 1)
	pos := f.positions.created[0]
	assert.Equal(t, trade.Amount, pos.QtyTotal)
	assert.Equal(t, pos.QtyTotal, pos.QtyLeft)
	assert.False(t, pos.TP1Hit)
	assert.False(t, pos.TP2Hit)
	assert.Equal(t, trade.EntryPrice, pos.EntryPrice)

	require.Len(t, hooked, 1)
	assert.Equal(t, pos.ID, hooked[0].ID)
}

func TestExecuteGasPriceCeilingConsumesNoNonce(t *testing.T) {
	f := newFixture(t)
	f.chain.gasPrice = chain.GweiToWei(6)

	_, err := f.exec.Execute(context.Background(), buySignal())
	assert.ErrorIs(t, err, domain.ErrGasPriceExceeded)
	assert.Zero(t, f.nonces.calls, "a rejected trade must not consume a nonce")
	assert.Empty(t, f.chain.sent)
	assert.Empty(t, f.pending.rows)
}

func TestExecuteFeeCeilingConsumesNoNonce(t *testing.T) {
	f := newFixture(t)
	// 3 gwei * 2,000,000 gas = 0.006 native, above the 0.003 ceiling.
	f.chain.estGas = 2_000_000

	_, err := f.exec.Execute(context.Background(), buySignal())
	assert.ErrorIs(t, err, domain.ErrGasFeeExceeded)
	assert.Zero(t, f.nonces.calls)
	assert.Empty(t, f.chain.sent)
}

func TestExecuteEstimateFailureFallsBackToConfiguredLimit(t *testing.T) {
	f := newFixture(t)
	f.chain.estErr = errors.New("execution reverted")

	// 3 gwei * 400,000 fallback gas = 0.0012 native, under the ceiling.
	_, err := f.exec.Execute(context.Background(), buySignal())
	require.NoError(t, err)
	require.Len(t, f.chain.sent, 1)
	assert.Equal(t, uint64(400_000), f.chain.sent[0].Gas())
}

func TestExecuteMissingAllowanceApprovesFirst(t *testing.T) {
	f := newFixture(t)
	f.quoteTok.allowance = big.NewInt(0)

	_, err := f.exec.Execute(context.Background(), buySignal())
	require.NoError(t, err)

	require.Len(t, f.chain.sent, 2, "approve then swap")
	approve, swap := f.chain.sent[0], f.chain.sent[1]
	assert.Equal(t, quoteAddr, *approve.To())
	assert.Equal(t, routerAddr, *swap.To())
	assert.Equal(t, uint64(0), approve.Nonce())
	assert.Equal(t, uint64(1), swap.Nonce())
	assert.Len(t, f.pending.rows, 2, "both submissions must be tracked")
}

func TestExecuteFallsBackOnLiquidityErrorOnly(t *testing.T) {
	f := newFixture(t)
	f.quoter.order = []string{"pancake", "biswap"}
	f.quoter.quotes = map[string]venueQuote{
		"pancake": {err: fmt.Errorf("quote: dry: %w", domain.ErrInsufficientLiquidity)},
		"biswap":  {out: chain.ToWei(0.002, 18)},
	}

	sig := buySignal()
	sig.Venues = []string{"pancake", "biswap"}
	trade, err := f.exec.Execute(context.Background(), sig)
	require.NoError(t, err)
	assert.NotEmpty(t, trade.TxHash)
}

func TestExecuteDoesNotFallBackOnRPCError(t *testing.T) {
	f := newFixture(t)
	f.quoter.order = []string{"pancake", "biswap"}
	f.quoter.quotes = map[string]venueQuote{
		"pancake": {err: errors.New("connection reset")},
		"biswap":  {out: chain.ToWei(0.002, 18)},
	}

	sig := buySignal()
	sig.Venues = []string{"pancake", "biswap"}
	_, err := f.exec.Execute(context.Background(), sig)
	require.Error(t, err)
	assert.Empty(t, f.chain.sent)
}

func TestExecuteAllVenuesDry(t *testing.T) {
	f := newFixture(t)
	f.quoter.quotes = map[string]venueQuote{
		"pancake": {err: fmt.Errorf("quote: dry: %w", domain.ErrInsufficientLiquidity)},
	}

	_, err := f.exec.Execute(context.Background(), buySignal())
	assert.ErrorIs(t, err, domain.ErrRouteUnavailable)
}

func TestExecuteZeroBalance(t *testing.T) {
	f := newFixture(t)
	f.quoteTok.bal = big.NewInt(0)

	_, err := f.exec.Execute(context.Background(), buySignal())
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}

func TestExecuteUnsizedSignalUsesDefaultPct(t *testing.T) {
	f := newFixture(t)

	sig := buySignal()
	sig.PositionPct = 0
	_, err := f.exec.Execute(context.Background(), sig)
	require.NoError(t, err)

	// The 10% default over the 1000 quote balance sizes a 100 notional.
	assert.Equal(t, 0, f.quoter.lastIn.Cmp(chain.ToWei(100, 18)))
}

func TestSellExactComputesRealisedProfit(t *testing.T) {
	f := newFixture(t)
	// Selling 0.002 base at ref price 50,000 is a 100 notional; quote out
	// 101 before the slippage floor.
	f.quoter.quotes = map[string]venueQuote{"pancake": {out: chain.ToWei(101, 18)}}

	trade, err := f.exec.SellExact(context.Background(), 0.002, 50_000)
	require.NoError(t, err)

	assert.Equal(t, domain.TradeSell, trade.Type)
	assert.Equal(t, 0.002, trade.Amount)
	assert.InDelta(t, 101, trade.ExpectedOut, 1e-9, "expected_out keeps the pre-slippage quote")
	assert.InDelta(t, 1.0, trade.ProfitUSD, 1e-9)
	assert.InDelta(t, 1.0, trade.ProfitPct, 1e-9)
	assert.Empty(t, f.positions.created, "sells must not open positions")
}
