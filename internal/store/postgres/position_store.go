package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, side, entry_price, qty_total, qty_left, tp1_hit, tp2_hit, created_at`

// Create persists a new open position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	const query = `
		INSERT INTO positions (id, side, entry_price, qty_total, qty_left, tp1_hit, tp2_hit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		p.ID, p.Side, p.EntryPrice, p.QtyTotal, p.QtyLeft, p.TP1Hit, p.TP2Hit, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position: %w", err)
	}
	return nil
}

// Get returns one position, or domain.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, id string) (domain.Position, error) {
	query := fmt.Sprintf(`SELECT %s FROM positions WHERE id = $1`, positionSelectCols)

	var p domain.Position
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Side, &p.EntryPrice, &p.QtyTotal, &p.QtyLeft, &p.TP1Hit, &p.TP2Hit, &p.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: position %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns all positions, oldest first.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	query := fmt.Sprintf(`SELECT %s FROM positions ORDER BY created_at ASC`, positionSelectCols)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		if err := rows.Scan(
			&p.ID, &p.Side, &p.EntryPrice, &p.QtyTotal, &p.QtyLeft, &p.TP1Hit, &p.TP2Hit, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// UpdateQty writes back the remaining quantity and take-profit latches
// after a ladder exit.
func (s *PositionStore) UpdateQty(ctx context.Context, id string, qtyLeft float64, tp1Hit, tp2Hit bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET qty_left = $2, tp1_hit = $3, tp2_hit = $4 WHERE id = $1`,
		id, qtyLeft, tp1Hit, tp2Hit,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update position %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Delete removes a fully closed position. Deleting an already-removed
// position is not an error: the ladder and a trailing stop can race to
// close the same position and the loser's delete is a no-op.
func (s *PositionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres: delete position %s: %w", id, err)
	}
	return nil
}
