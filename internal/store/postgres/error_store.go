package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// ErrorStore implements domain.ErrorStore using PostgreSQL.
type ErrorStore struct {
	pool *pgxpool.Pool
}

// NewErrorStore creates an ErrorStore backed by the given pool.
func NewErrorStore(pool *pgxpool.Pool) *ErrorStore {
	return &ErrorStore{pool: pool}
}

// Insert persists an operational error.
func (s *ErrorStore) Insert(ctx context.Context, e domain.ErrorEntry) error {
	const query = `INSERT INTO errors (id, context, message, timestamp) VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, query, e.ID, e.Context, e.Message, e.Timestamp); err != nil {
		return fmt.Errorf("postgres: insert error entry: %w", err)
	}
	return nil
}

// ListRecent returns error entries ordered newest first.
func (s *ErrorStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.ErrorEntry, error) {
	const query = `
		SELECT id, context, message, timestamp FROM errors
		ORDER BY timestamp DESC LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, normalizeLimit(opts.Limit), opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list errors: %w", err)
	}
	defer rows.Close()

	return scanErrorRows(rows)
}

// ListBefore returns error entries older than cutoff, oldest first.
func (s *ErrorStore) ListBefore(ctx context.Context, cutoff time.Time) ([]domain.ErrorEntry, error) {
	const query = `
		SELECT id, context, message, timestamp FROM errors
		WHERE timestamp < $1 ORDER BY timestamp ASC`

	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("postgres: list errors before %s: %w", cutoff, err)
	}
	defer rows.Close()

	return scanErrorRows(rows)
}

func scanErrorRows(rows pgx.Rows) ([]domain.ErrorEntry, error) {
	var entries []domain.ErrorEntry
	for rows.Next() {
		var e domain.ErrorEntry
		if err := rows.Scan(&e.ID, &e.Context, &e.Message, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan error entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes error entries older than cutoff.
func (s *ErrorStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM errors WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete errors before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}
