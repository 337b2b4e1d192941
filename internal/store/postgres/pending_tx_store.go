package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// PendingTxStore implements domain.PendingTxStore using PostgreSQL. Rows are
// keyed by nonce so a fee bump updates in place instead of inserting a
// second row for the replacement hash.
type PendingTxStore struct {
	pool *pgxpool.Pool
}

// NewPendingTxStore creates a PendingTxStore backed by the given pool.
func NewPendingTxStore(pool *pgxpool.Pool) *PendingTxStore {
	return &PendingTxStore{pool: pool}
}

// Insert records a freshly submitted transaction.
func (s *PendingTxStore) Insert(ctx context.Context, tx domain.PendingTx) error {
	const query = `
		INSERT INTO pending_txs (nonce, tx_hash, gas_price, sent_at, bumps, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		int64(tx.Nonce), tx.TxHash, int64(tx.GasPrice), tx.SentAt, tx.Bumps, tx.Status,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert pending tx nonce %d: %w", tx.Nonce, err)
	}
	return nil
}

// ListPending returns unmined transactions, oldest submission first.
func (s *PendingTxStore) ListPending(ctx context.Context) ([]domain.PendingTx, error) {
	const query = `
		SELECT nonce, tx_hash, gas_price, sent_at, bumps, status
		FROM pending_txs
		WHERE status = 'pending'
		ORDER BY sent_at ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pending txs: %w", err)
	}
	defer rows.Close()

	var txs []domain.PendingTx
	for rows.Next() {
		var (
			t        domain.PendingTx
			nonce    int64
			gasPrice int64
		)
		if err := rows.Scan(&nonce, &t.TxHash, &gasPrice, &t.SentAt, &t.Bumps, &t.Status); err != nil {
			return nil, fmt.Errorf("postgres: scan pending tx: %w", err)
		}
		t.Nonce = uint64(nonce)
		t.GasPrice = uint64(gasPrice)
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

// MarkMined transitions the row for nonce to mined.
func (s *PendingTxStore) MarkMined(ctx context.Context, nonce uint64) error {
	return s.setStatus(ctx, nonce, domain.TxMined)
}

// MarkStuck transitions the row for nonce to stuck. Stuck rows are left for
// operator intervention and excluded from further bumping.
func (s *PendingTxStore) MarkStuck(ctx context.Context, nonce uint64) error {
	return s.setStatus(ctx, nonce, domain.TxStuck)
}

func (s *PendingTxStore) setStatus(ctx context.Context, nonce uint64, status domain.PendingTxStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_txs SET status = $2 WHERE nonce = $1`,
		int64(nonce), status,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark nonce %d %s: %w", nonce, status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: mark nonce %d %s: %w", nonce, status, domain.ErrNotFound)
	}
	return nil
}

// RecordBump replaces the tracked hash and gas price after a fee bump.
func (s *PendingTxStore) RecordBump(ctx context.Context, nonce uint64, newHash string, gasPrice uint64, bumps int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_txs SET tx_hash = $2, gas_price = $3, bumps = $4, sent_at = now() WHERE nonce = $1`,
		int64(nonce), newHash, int64(gasPrice), bumps,
	)
	if err != nil {
		return fmt.Errorf("postgres: record bump nonce %d: %w", nonce, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: record bump nonce %d: %w", nonce, domain.ErrNotFound)
	}
	return nil
}

// CountByStatus returns row counts per lifecycle state for metrics and the
// status endpoint.
func (s *PendingTxStore) CountByStatus(ctx context.Context) (map[domain.PendingTxStatus]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM pending_txs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("postgres: count pending txs: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.PendingTxStatus]int64)
	for rows.Next() {
		var (
			status domain.PendingTxStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan status count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
