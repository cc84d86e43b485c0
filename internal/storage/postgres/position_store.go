package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// PositionStore implements storage.PositionStore using PostgreSQL.
type PositionStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.PositionStore = (*PositionStore)(nil)

const positionColumns = `
	broker, strategy, symbol, quantity, latest_price, cost_basis,
	underlying_latest_price, underlying_volatility, last_updated
`

// Upsert inserts or replaces the row for (broker, strategy, symbol).
func (s *PositionStore) Upsert(ctx context.Context, p *domain.Position) error {
	if p == nil || p.Broker == "" || p.Strategy == "" || p.Symbol == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO positions (` + positionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (broker, strategy, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			latest_price = EXCLUDED.latest_price,
			cost_basis = EXCLUDED.cost_basis,
			underlying_latest_price = EXCLUDED.underlying_latest_price,
			underlying_volatility = EXCLUDED.underlying_volatility,
			last_updated = EXCLUDED.last_updated
	`

	_, err := s.q.Exec(ctx, query,
		p.Broker, p.Strategy, p.Symbol, p.Quantity, p.LatestPrice, p.CostBasis,
		p.UnderlyingLatestPrice, p.UnderlyingVolatility, p.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}
	return nil
}

// Get retrieves one row. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(ctx context.Context, broker, strategy, symbol string) (*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE broker = $1 AND strategy = $2 AND symbol = $3
	`

	row := s.q.QueryRow(ctx, query, broker, strategy, symbol)
	p, err := scanPosition(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

// GetBySymbol retrieves all strategies' rows for (broker, symbol).
func (s *PositionStore) GetBySymbol(ctx context.Context, broker, symbol string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE broker = $1 AND symbol = $2
		ORDER BY strategy ASC
	`

	rows, err := s.q.Query(ctx, query, broker, symbol)
	if err != nil {
		return nil, fmt.Errorf("get positions by symbol: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByBroker retrieves all rows for a broker across strategies.
func (s *PositionStore) GetByBroker(ctx context.Context, broker string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE broker = $1
		ORDER BY symbol ASC, strategy ASC
	`

	rows, err := s.q.Query(ctx, query, broker)
	if err != nil {
		return nil, fmt.Errorf("get positions by broker: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetByStrategy retrieves all rows for (broker, strategy).
func (s *PositionStore) GetByStrategy(ctx context.Context, broker, strategy string) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		WHERE broker = $1 AND strategy = $2
		ORDER BY symbol ASC
	`

	rows, err := s.q.Query(ctx, query, broker, strategy)
	if err != nil {
		return nil, fmt.Errorf("get positions by strategy: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// GetAll retrieves every position row.
func (s *PositionStore) GetAll(ctx context.Context) ([]*domain.Position, error) {
	query := `
		SELECT ` + positionColumns + `
		FROM positions
		ORDER BY broker ASC, symbol ASC, strategy ASC
	`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all positions: %w", err)
	}
	defer rows.Close()

	return scanPositions(rows)
}

// Delete removes one row; deleting an absent row is not an error.
func (s *PositionStore) Delete(ctx context.Context, broker, strategy, symbol string) error {
	query := `DELETE FROM positions WHERE broker = $1 AND strategy = $2 AND symbol = $3`

	if _, err := s.q.Exec(ctx, query, broker, strategy, symbol); err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

// scanPosition scans a single row into a Position.
func scanPosition(row pgx.Row) (*domain.Position, error) {
	var p domain.Position

	err := row.Scan(
		&p.Broker, &p.Strategy, &p.Symbol, &p.Quantity, &p.LatestPrice, &p.CostBasis,
		&p.UnderlyingLatestPrice, &p.UnderlyingVolatility, &p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// scanPositions scans multiple rows into a slice of Position.
func scanPositions(rows pgx.Rows) ([]*domain.Position, error) {
	var positions []*domain.Position

	for rows.Next() {
		var p domain.Position

		err := rows.Scan(
			&p.Broker, &p.Strategy, &p.Symbol, &p.Quantity, &p.LatestPrice, &p.CostBasis,
			&p.UnderlyingLatestPrice, &p.UnderlyingVolatility, &p.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("scan position row: %w", err)
		}

		positions = append(positions, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate position rows: %w", err)
	}

	return positions, nil
}
