package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, type, amount, entry_price, exit_price,
	profit_pct, profit_usd, expected_out, tx_hash, timestamp`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.Type, &t.Amount, &t.EntryPrice, &t.ExitPrice,
			&t.ProfitPct, &t.ProfitUSD, &t.ExpectedOut, &t.TxHash, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert persists an executed trade.
func (s *TradeStore) Insert(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, type, amount, entry_price, exit_price,
			profit_pct, profit_usd, expected_out, tx_hash, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.Type, t.Amount, t.EntryPrice, t.ExitPrice,
		t.ProfitPct, t.ProfitUSD, t.ExpectedOut, t.TxHash, t.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade: %w", err)
	}
	return nil
}

// ListRecent returns trades ordered newest first.
func (s *TradeStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades ORDER BY timestamp DESC LIMIT $1 OFFSET $2`, tradeSelectCols)

	rows, err := s.pool.Query(ctx, query, normalizeLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns all trades older than cutoff, oldest first. The S3
// archiver consumes this.
func (s *TradeStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.Trade, error) {
	query := fmt.Sprintf(`SELECT %s FROM trades WHERE timestamp < $1 ORDER BY timestamp ASC`, tradeSelectCols)

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", cutoff, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// DeleteBefore removes trades older than cutoff and reports how many rows
// were deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// RecentProfitPcts returns the profit percentages of the most recent
// trades, newest first. Buys are included: their zero outcome dampens the
// volatility estimate the sizer feeds on.
func (s *TradeStore) RecentProfitPcts(ctx context.Context, limit int) ([]float64, error) {
	const query = `
		SELECT profit_pct FROM trades
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: recent profit pcts: %w", err)
	}
	defer rows.Close()

	return scanFloats(rows)
}

// ProfitUSDSeries returns USD outcomes of the most recent trades, newest
// first. Buys carry a zero here, which is what lets them break a
// consecutive-loss run.
func (s *TradeStore) ProfitUSDSeries(ctx context.Context, limit int) ([]float64, error) {
	const query = `
		SELECT profit_usd FROM trades
		ORDER BY timestamp DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: profit usd series: %w", err)
	}
	defer rows.Close()

	return scanFloats(rows)
}

func scanFloats(rows pgx.Rows) ([]float64, error) {
	var out []float64
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("postgres: scan float: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// DailyProfitUSD sums realised USD profit for the UTC day containing day.
func (s *TradeStore) DailyProfitUSD(ctx context.Context, day time.Time) (float64, error) {
	const query = `
		SELECT COALESCE(SUM(profit_usd), 0) FROM trades
		WHERE type = 'sell'
		  AND timestamp >= $1
		  AND timestamp < $1 + INTERVAL '1 day'`

	start := day.UTC().Truncate(24 * time.Hour)
	var total float64
	if err := s.pool.QueryRow(ctx, query, start).Scan(&total); err != nil {
		return 0, fmt.Errorf("postgres: daily profit: %w", err)
	}
	return total, nil
}

// Stats aggregates realised performance for the stats endpoint.
func (s *TradeStore) Stats(ctx context.Context, day time.Time) (domain.TradeStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(profit_usd) FILTER (WHERE type = 'sell'), 0),
			COALESCE(AVG(profit_usd) FILTER (WHERE type = 'sell'), 0),
			COALESCE(
				COUNT(*) FILTER (WHERE type = 'sell' AND profit_usd > 0)::float
					/ NULLIF(COUNT(*) FILTER (WHERE type = 'sell'), 0),
				0)
		FROM trades`

	var st domain.TradeStats
	if err := s.pool.QueryRow(ctx, query).Scan(
		&st.TotalTrades, &st.TotalProfitUSD, &st.AvgProfitUSD, &st.WinRate,
	); err != nil {
		return domain.TradeStats{}, fmt.Errorf("postgres: trade stats: %w", err)
	}

	daily, err := s.DailyProfitUSD(ctx, day)
	if err != nil {
		return domain.TradeStats{}, err
	}
	st.DailyProfitUSD = daily
	return st, nil
}

// EquityCurve returns the cumulative realised-profit series over all sells,
// oldest first.
func (s *TradeStore) EquityCurve(ctx context.Context) ([]domain.EquityPoint, error) {
	const query = `
		SELECT timestamp, SUM(profit_usd) OVER (ORDER BY timestamp) AS equity
		FROM trades
		WHERE type = 'sell'
		ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: equity curve: %w", err)
	}
	defer rows.Close()

	var points []domain.EquityPoint
	for rows.Next() {
		var p domain.EquityPoint
		if err := rows.Scan(&p.Timestamp, &p.Equity); err != nil {
			return nil, fmt.Errorf("postgres: scan equity point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
