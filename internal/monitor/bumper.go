// Package monitor runs the post-submission loops: replace-by-fee bumping,
// the take-profit ladder, and per-position trailing stops.
package monitor

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

	"github.com/alanyoungcy/dexbot/internal/chain"
	"github.com/alanyoungcy/dexbot/internal/domain"
	"github.com/alanyoungcy/dexbot/internal/metrics"
)

// BumperChain is the node surface the bumper needs.
type BumperChain interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Resigner re-signs a transaction with a higher gas price. *chain.Wallet
// satisfies it.
type Resigner interface {
	Resign(tx *types.Transaction, gasPrice *big.Int) (*types.Transaction, error)
}

// Alerter delivers operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// BumperConfig holds the replace-by-fee parameters.
type BumperConfig struct {
	Interval   time.Duration
	Timeout    time.Duration
	BumpFactor float64
	MaxBumps   int
}

// Bumper watches submitted transactions. Mined ones are marked terminal;
// ones that linger past the timeout are rebroadcast at a higher gas price
// with the same nonce, up to the bump budget. A transaction that exhausts
// the budget is marked stuck and alerted on, never silently dropped.
type Bumper struct {
	chain   BumperChain
	signer  Resigner
	pending domain.PendingTxStore
	alerts  Alerter
	cfg     BumperConfig
	logger  *slog.Logger
}

func NewBumper(ch BumperChain, signer Resigner, pending domain.PendingTxStore, alerts Alerter, cfg BumperConfig, logger *slog.Logger) *Bumper {
	return &Bumper{
		chain:   ch,
		signer:  signer,
		pending: pending,
		alerts:  alerts,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "bumper")),
	}
}

// Run executes the bump loop until ctx is cancelled.
func (b *Bumper) Run(ctx context.Context) error {
	b.logger.Info("bumper started", slog.Duration("interval", b.cfg.Interval))
	defer b.logger.Info("bumper stopped")

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := b.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				b.logger.Error("bump tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick processes every pending transaction once.
func (b *Bumper) Tick(ctx context.Context) error {
	rows, err := b.pending.ListPending(ctx)
	if err != nil {
		return fmt.Errorf("monitor: list pending: %w", err)
	}

	for _, row := range rows {
		if err := b.process(ctx, row); err != nil {
			b.logger.Error("pending tx check failed",
				slog.Uint64("nonce", row.Nonce),
				slog.String("tx_hash", row.TxHash),
				slog.String("error", err.Error()),
			)
		}
	}

	b.publishCounts(ctx)
	return nil
}

func (b *Bumper) process(ctx context.Context, row domain.PendingTx) error {
	receipt, err := b.chain.TransactionReceipt(ctx, common.HexToHash(row.TxHash))
	switch {
	case err == nil:
		// Reverted transactions are mined too; the nonce is spent either
		// way and must stop being tracked.
		if receipt.Status != types.ReceiptStatusSuccessful {
			b.logger.Warn("transaction reverted",
				slog.Uint64("nonce", row.Nonce),
				slog.String("tx_hash", row.TxHash),
			)
		}
		return b.pending.MarkMined(ctx, row.Nonce)
	case errors.Is(err, ethereum.NotFound):
		// Still in the mempool (or evicted); fall through to age checks.
	default:
		return fmt.Errorf("monitor: receipt %s: %w", row.TxHash, err)
	}

	if time.Since(row.SentAt) < b.cfg.Timeout {
		return nil
	}

	if row.Bumps >= b.cfg.MaxBumps {
		return b.markStuck(ctx, row)
	}
	return b.bump(ctx, row)
}

// bump rebroadcasts the transaction with gas price multiplied by the bump
// factor. The nonce is unchanged, so the replacement supersedes the
// original and the store row is updated in place.
func (b *Bumper) bump(ctx context.Context, row domain.PendingTx) error {
	tx, _, err := b.chain.TransactionByHash(ctx, common.HexToHash(row.TxHash))
	if err != nil {
		return fmt.Errorf("monitor: fetch tx %s for bump: %w", row.TxHash, err)
	}

	newPrice := chain.ApplyFactor(tx.GasPrice(), b.cfg.BumpFactor)
	replacement, err := b.signer.Resign(tx, newPrice)
	if err != nil {
		return fmt.Errorf("monitor: resign nonce %d: %w", row.Nonce, err)
	}
	if err := b.chain.SendTransaction(ctx, replacement); err != nil {
		return fmt.Errorf("monitor: rebroadcast nonce %d: %w", row.Nonce, err)
	}

	bumps := row.Bumps + 1
	if err := b.pending.RecordBump(ctx, row.Nonce, replacement.Hash().Hex(), newPrice.Uint64(), bumps); err != nil {
		return err
	}
	metrics.IncGasBump()

	b.logger.Info("transaction bumped",
		slog.Uint64("nonce", row.Nonce),
		slog.String("old_hash", row.TxHash),
		slog.String("new_hash", replacement.Hash().Hex()),
		slog.Uint64("gas_price", newPrice.Uint64()),
		slog.Int("bumps", bumps),
	)
	return nil
}

func (b *Bumper) markStuck(ctx context.Context, row domain.PendingTx) error {
	if err := b.pending.MarkStuck(ctx, row.Nonce); err != nil {
		return err
	}

	b.logger.Error("transaction stuck after bump budget",
		slog.Uint64("nonce", row.Nonce),
		slog.String("tx_hash", row.TxHash),
		slog.Int("bumps", row.Bumps),
	)
	if b.alerts != nil {
		msg := fmt.Sprintf("tx %s (nonce %d) unmined after %d bumps; manual intervention needed",
			row.TxHash, row.Nonce, row.Bumps)
		if err := b.alerts.Notify(ctx, "tx_stuck", "Transaction stuck", msg); err != nil {
			b.logger.Warn("stuck alert delivery failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (b *Bumper) publishCounts(ctx context.Context) {
	counts, err := b.pending.CountByStatus(ctx)
	if err != nil {
		b.logger.Warn("pending tx count failed", slog.String("error", err.Error()))
		return
	}
	for _, status := range []domain.PendingTxStatus{domain.TxPending, domain.TxMined, domain.TxStuck} {
		metrics.SetPendingTxs(string(status), float64(counts[status]))
	}
}
