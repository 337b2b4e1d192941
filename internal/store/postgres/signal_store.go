package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id, action, dex_price, binance_price, spread_pct,
	rsi, ema, macd_hist, position_pct, created_at`

func scanSignalRows(rows pgx.Rows) ([]domain.Signal, error) {
	var signals []domain.Signal
	for rows.Next() {
		var s domain.Signal
		if err := rows.Scan(
			&s.ID, &s.Action, &s.DexPrice, &s.BinancePrice, &s.SpreadPct,
			&s.RSI, &s.EMA, &s.MACDHist, &s.PositionPct, &s.CreatedAt,
		); err != nil {
			return nil, err
		}
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// Insert persists a signal.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) error {
	const query = `
		INSERT INTO signals (
			id, action, dex_price, binance_price, spread_pct,
			rsi, ema, macd_hist, position_pct, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.Action, sig.DexPrice, sig.BinancePrice, sig.SpreadPct,
		sig.RSI, sig.EMA, sig.MACDHist, sig.PositionPct, sig.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal: %w", err)
	}
	return nil
}

// ListRecent returns signals ordered newest first.
func (s *SignalStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Signal, error) {
	query := fmt.Sprintf(`SELECT %s FROM signals ORDER BY created_at DESC LIMIT $1 OFFSET $2`, signalSelectCols)

	rows, err := s.pool.Query(ctx, query, normalizeLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	signals, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan signals: %w", err)
	}
	return signals, nil
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
