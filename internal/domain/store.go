package domain

import (
	"context"
	"time"
)

// ListOpts carries pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// SignalStore persists strategy signals.
type SignalStore interface {
	Insert(ctx context.Context, s Signal) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Signal, error)
}

// TradeStore persists executed trades and serves the aggregates the risk
// governor and stats endpoints need.
type TradeStore interface {
	Insert(ctx context.Context, t Trade) error
	ListRecent(ctx context.Context, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// RecentProfitPcts returns up to limit profit percentages across all
	// trades, most recent first. Buys contribute zeros.
	RecentProfitPcts(ctx context.Context, limit int) ([]float64, error)
	// ProfitUSDSeries returns USD outcomes across all trades, most recent
	// first. A buy's zero breaks a loss run.
	ProfitUSDSeries(ctx context.Context, limit int) ([]float64, error)
	DailyProfitUSD(ctx context.Context, day time.Time) (float64, error)
	Stats(ctx context.Context, day time.Time) (TradeStats, error)
	EquityCurve(ctx context.Context) ([]EquityPoint, error)
}

// PendingTxStore persists the replace-by-fee tracking rows. Rows are keyed
// by nonce; bump updates swap in the replacement hash and gas price and
// restart the age window.
type PendingTxStore interface {
	Insert(ctx context.Context, tx PendingTx) error
	ListPending(ctx context.Context) ([]PendingTx, error)
	MarkMined(ctx context.Context, nonce uint64) error
	MarkStuck(ctx context.Context, nonce uint64) error
	RecordBump(ctx context.Context, nonce uint64, newHash string, gasPrice uint64, bumps int) error
	CountByStatus(ctx context.Context) (map[PendingTxStatus]int64, error)
}

// PositionStore persists open positions worked by the take-profit ladder
// and the trailing-stop monitors.
type PositionStore interface {
	Create(ctx context.Context, p Position) error
	Get(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	UpdateQty(ctx context.Context, id string, qtyLeft float64, tp1Hit, tp2Hit bool) error
	Delete(ctx context.Context, id string) error
}

// ErrorStore persists operational errors.
type ErrorStore interface {
	Insert(ctx context.Context, e ErrorEntry) error
	ListRecent(ctx context.Context, opts ListOpts) ([]ErrorEntry, error)
	ListBefore(ctx context.Context, cutoff time.Time) ([]ErrorEntry, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
