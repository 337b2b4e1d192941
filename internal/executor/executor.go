// Package executor submits swap transactions: sizing, slippage floors, gas
// ceilings, allowance management, nonce sequencing, and venue fallback.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/alanyoungcy/dexbot/internal/chain"
	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/metrics"
	"github.com/alanyoungcy/dexbot/internal/quote"
)

// Chain is the node surface the executor submits through.
type Chain interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Token is the per-token contract surface. *chain.ERC20 satisfies it.
type Token interface {
	Address() common.Address
	Decimals() int32
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error)
	ApproveCalldata(spender common.Address, amount *big.Int) ([]byte, error)
}

// Signer signs legacy transactions for the trading account. *chain.Wallet
// satisfies it.
type Signer interface {
	Address() common.Address
	SignLegacy(nonce uint64, to common.Address, value, gasPrice *big.Int, gasLimit uint64, data []byte) (*types.Transaction, error)
}

// NonceSource issues the account's transaction nonces. *nonce.Sequencer
// satisfies it.
type NonceSource interface {
	Next(ctx context.Context) (uint64, error)
}

// Quoter resolves routes and packs swap calldata. *quote.Resolver satisfies
// it.
type Quoter interface {
	VenueOrder() []string
	Resolve(ctx context.Context, venue string, action domain.SignalAction, amountIn *big.Int) (*quote.Route, error)
	SwapCalldata(route *quote.Route, amountIn, minOut *big.Int, to common.Address, deadline *big.Int) ([]byte, error)
}

// Config holds the executor's guard parameters. Gas ceilings are absolute:
// a quote above either one rejects the trade outright rather than waiting
// for conditions to improve.
type Config struct {
	SlippagePct     float64
	DefaultTradePct float64  // used when the signal carries no position size
	MaxGasPrice     *big.Int // wei
	MaxGasFee       *big.Int // wei
	SwapDeadline    time.Duration
	SwapGasFallback uint64
	ApproveGasLimit uint64
}

// Executor turns signals into submitted swaps.
type Executor struct {
	chain     Chain
	signer    Signer
	nonces    NonceSource
	baseTok   Token
	quoteTok  Token
	quoter    Quoter
	trades    domain.TradeStore
	pending   domain.PendingTxStore
	positions domain.PositionStore
	cfg       Config
	logger    *slog.Logger

	onPositionOpened func(domain.Position)
}

func New(
	ch Chain,
	signer Signer,
	nonces NonceSource,
	baseTok, quoteTok Token,
	quoter Quoter,
	trades domain.TradeStore,
	pending domain.PendingTxStore,
	positions domain.PositionStore,
	cfg Config,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		chain:     ch,
		signer:    signer,
		nonces:    nonces,
		baseTok:   baseTok,
		quoteTok:  quoteTok,
		quoter:    quoter,
		trades:    trades,
		pending:   pending,
		positions: positions,
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "executor")),
	}
}

// SetPositionHook registers the callback invoked after a buy opens a
// position. The trailing-stop monitor set hangs off this.
func (e *Executor) SetPositionHook(fn func(domain.Position)) {
	e.onPositionOpened = fn
}

// Execute sizes a trade from the signal's position percent and submits it
// on the first venue with liquidity. An unsized signal falls back to the
// configured default percent. Venue fallback applies only to liquidity
// failures; any other error aborts immediately.
func (e *Executor) Execute(ctx context.Context, sig domain.Signal) (domain.Trade, error) {
	pct := sig.PositionPct
	if pct <= 0 {
		pct = e.cfg.DefaultTradePct
	}
	if pct <= 0 {
		return domain.Trade{}, fmt.Errorf("executor: signal carries no position size")
	}

	inTok := e.quoteTok
	if sig.Action == domain.SignalSell {
		inTok = e.baseTok
	}

	bal, err := inTok.BalanceOf(ctx, e.signer.Address())
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: read balance: %w", err)
	}
	amountIn := chain.PortionPct(bal, pct)
	if amountIn.Sign() <= 0 {
		return domain.Trade{}, fmt.Errorf("executor: %s balance %s too small: %w",
			sig.Action, bal, domain.ErrInsufficientBalance)
	}

	venues := sig.Venues
	if len(venues) == 0 {
		venues = e.quoter.VenueOrder()
	}

	for _, venue := range venues {
		trade, err := e.swapOn(ctx, venue, sig.Action, amountIn, sig.DexPrice)
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			e.logger.Warn("venue has no liquidity, trying next",
				slog.String("venue", venue),
				slog.String("action", string(sig.Action)),
			)
			continue
		}
		if err != nil {
			return domain.Trade{}, err
		}
		if sig.Action == domain.SignalBuy {
			e.openPosition(ctx, trade)
		}
		return trade, nil
	}
	return domain.Trade{}, fmt.Errorf("executor: all venues dry for %s: %w", sig.Action, domain.ErrRouteUnavailable)
}

// SellExact exits qty of the base token at the given reference price. The
// take-profit ladder and stop monitors call this with quantities they own;
// position bookkeeping stays with the caller.
func (e *Executor) SellExact(ctx context.Context, qty, refPrice float64) (domain.Trade, error) {
	amountIn := chain.ToWei(qty, e.baseTok.Decimals())
	if amountIn.Sign() <= 0 {
		return domain.Trade{}, fmt.Errorf("executor: sell quantity %g rounds to zero", qty)
	}

	for _, venue := range e.quoter.VenueOrder() {
		trade, err := e.swapOn(ctx, venue, domain.SignalSell, amountIn, refPrice)
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			e.logger.Warn("venue has no liquidity for exit, trying next", slog.String("venue", venue))
			continue
		}
		return trade, err
	}
	return domain.Trade{}, fmt.Errorf("executor: all venues dry for exit: %w", domain.ErrRouteUnavailable)
}

// swapOn runs the full guard sequence on one venue. Order matters: the
// quote and both gas ceilings come before any nonce is drawn, so a rejected
// trade consumes nothing from the sequence.
func (e *Executor) swapOn(ctx context.Context, venue string, action domain.SignalAction, amountIn *big.Int, refPrice float64) (domain.Trade, error) {
	route, err := e.quoter.Resolve(ctx, venue, action, amountIn)
	if err != nil {
		return domain.Trade{}, err
	}

	minOut := applySlippage(route.Out, e.cfg.SlippagePct)

	gasPrice, err := e.chain.SuggestGasPrice(ctx)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: suggest gas price: %w", err)
	}
	if gasPrice.Cmp(e.cfg.MaxGasPrice) > 0 {
		return domain.Trade{}, fmt.Errorf("executor: gas price %s > ceiling %s: %w",
			gasPrice, e.cfg.MaxGasPrice, domain.ErrGasPriceExceeded)
	}

	inTok := e.quoteTok
	if action == domain.SignalSell {
		inTok = e.baseTok
	}

	deadline := big.NewInt(time.Now().Add(e.cfg.SwapDeadline).Unix())
	calldata, err := e.quoter.SwapCalldata(route, amountIn, minOut, e.signer.Address(), deadline)
	if err != nil {
		return domain.Trade{}, fmt.Errorf("executor: pack swap: %w", err)
	}

	from := e.signer.Address()
	gasLimit, err := e.chain.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &route.Router, Data: calldata})
	if err != nil {
		// Estimation fails when the allowance is not yet in place; the
		// fallback limit keeps the fee ceiling enforceable.
		e.logger.Warn("gas estimation failed, using fallback limit",
			slog.String("error", err.Error()),
			slog.Uint64("fallback", e.cfg.SwapGasFallback),
		)
		gasLimit = e.cfg.SwapGasFallback
	}

	fee := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	if fee.Cmp(e.cfg.MaxGasFee) > 0 {
		return domain.Trade{}, fmt.Errorf("executor: fee %s > ceiling %s: %w",
			fee, e.cfg.MaxGasFee, domain.ErrGasFeeExceeded)
	}

	if err := e.ensureAllowance(ctx, inTok, route.Router, amountIn, gasPrice); err != nil {
		return domain.Trade{}, err
	}

	tx, err := e.submit(ctx, route.Router, calldata, gasLimit, gasPrice)
	if err != nil {
		return domain.Trade{}, err
	}

	trade := e.buildTrade(action, amountIn, route.Out, minOut, refPrice, tx.Hash().Hex())
	if err := e.trades.Insert(ctx, trade); err != nil {
		// The swap is already on the wire; a bookkeeping failure must not
		// surface as a failed trade.
		e.logger.Error("trade row insert failed",
			slog.String("tx_hash", trade.TxHash),
			slog.String("error", err.Error()),
		)
	}
	metrics.IncTrade(string(trade.Type))

	e.logger.Info("swap submitted",
		slog.String("venue", venue),
		slog.String("action", string(action)),
		slog.String("tx_hash", trade.TxHash),
		slog.Float64("amount", trade.Amount),
		slog.Float64("expected_out", trade.ExpectedOut),
	)
	return trade, nil
}

// ensureAllowance approves the router for the unlimited amount when the
// current allowance cannot cover amountIn. The approval draws its own nonce
// ahead of the swap so both land in sequence.
func (e *Executor) ensureAllowance(ctx context.Context, tok Token, spender common.Address, amountIn, gasPrice *big.Int) error {
	allowance, err := tok.Allowance(ctx, e.signer.Address(), spender)
	if err != nil {
		return fmt.Errorf("executor: read allowance: %w", err)
	}
	if allowance.Cmp(amountIn) >= 0 {
		return nil
	}

	calldata, err := tok.ApproveCalldata(spender, chain.MaxApproval)
	if err != nil {
		return err
	}
	tx, err := e.submit(ctx, tok.Address(), calldata, e.cfg.ApproveGasLimit, gasPrice)
	if err != nil {
		return fmt.Errorf("executor: approve %s for %s: %w", tok.Address().Hex(), spender.Hex(), err)
	}

	e.logger.Info("approval submitted",
		slog.String("token", tok.Address().Hex()),
		slog.String("spender", spender.Hex()),
		slog.String("tx_hash", tx.Hash().Hex()),
	)
	return nil
}

// submit draws a nonce, signs, broadcasts, and records the pending row.
func (e *Executor) submit(ctx context.Context, to common.Address, calldata []byte, gasLimit uint64, gasPrice *big.Int) (*types.Transaction, error) {
	n, err := e.nonces.Next(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := e.signer.SignLegacy(n, to, big.NewInt(0), gasPrice, gasLimit, calldata)
	if err != nil {
		return nil, err
	}
	if err := e.chain.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("executor: broadcast nonce %d: %w", n, err)
	}

	row := domain.PendingTx{
		TxHash:   tx.Hash().Hex(),
		Nonce:    n,
		GasPrice: gasPrice.Uint64(),
		SentAt:   time.Now().UTC(),
		Status:   domain.TxPending,
	}
	if err := e.pending.Insert(ctx, row); err != nil {
		e.logger.Error("pending tx insert failed",
			slog.Uint64("nonce", n),
			slog.String("error", err.Error()),
		)
	}
	return tx, nil
}

// buildTrade records the submitted swap. ExpectedOut is the venue's quoted
// output before the slippage floor; sell profit is computed from it. A
// buy's Amount is the floored minimum the swap is guaranteed to fill.
func (e *Executor) buildTrade(action domain.SignalAction, amountIn, quotedOut, minOut *big.Int, refPrice float64, txHash string) domain.Trade {
	now := time.Now().UTC()
	if action == domain.SignalBuy {
		return domain.Trade{
			ID:          uuid.NewString(),
			Type:        domain.TradeBuy,
			Amount:      chain.FromWei(minOut, e.baseTok.Decimals()),
			EntryPrice:  refPrice,
			ExpectedOut: chain.FromWei(quotedOut, e.baseTok.Decimals()),
			TxHash:      txHash,
			Timestamp:   now,
		}
	}

	qtyIn := chain.FromWei(amountIn, e.baseTok.Decimals())
	outHuman := chain.FromWei(quotedOut, e.quoteTok.Decimals())
	notional := qtyIn * refPrice
	profitUSD := outHuman - notional
	profitPct := 0.0
	if notional > 0 {
		profitPct = profitUSD / notional * 100
	}
	return domain.Trade{
		ID:          uuid.NewString(),
		Type:        domain.TradeSell,
		Amount:      qtyIn,
		ExitPrice:   refPrice,
		ProfitPct:   profitPct,
		ProfitUSD:   profitUSD,
		ExpectedOut: outHuman,
		TxHash:      txHash,
		Timestamp:   now,
	}
}

func (e *Executor) openPosition(ctx context.Context, trade domain.Trade) {
	pos := domain.Position{
		ID:         uuid.NewString(),
		Side:       "long",
		EntryPrice: trade.EntryPrice,
		QtyTotal:   trade.Amount,
		QtyLeft:    trade.Amount,
		CreatedAt:  trade.Timestamp,
	}
	if err := e.positions.Create(ctx, pos); err != nil {
		e.logger.Error("position create failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if e.onPositionOpened != nil {
		e.onPositionOpened(pos)
	}
}

// applySlippage floors out by the tolerance using integer math:
// out * (1e6 - pct*1e4) / 1e6, rounded down.
func applySlippage(out *big.Int, slippagePct float64) *big.Int {
	ppm := int64(slippagePct * 10_000)
	if ppm <= 0 {
		return new(big.Int).Set(out)
	}
	v := new(big.Int).Mul(out, big.NewInt(1_000_000-ppm))
	return v.Div(v, big.NewInt(1_000_000))
}
