package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
type TradeStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	id, symbol, quantity, price, executed_price,
	side, order_type, execution_style, status, timestamp,
	broker, strategy, profit_loss, success, broker_order_id
`

// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := s.q.Exec(ctx, query,
		t.ID, t.Symbol, t.Quantity, t.Price, t.ExecutedPrice,
		t.Side, t.OrderType, t.ExecutionStyle, t.Status, t.Timestamp,
		t.Broker, t.Strategy, t.ProfitLoss, t.Success, t.BrokerOrderID,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetByID retrieves a trade by id. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(ctx context.Context, id string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`

	row := s.q.QueryRow(ctx, query, id)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by id: %w", err)
	}
	return t, nil
}

// GetOpen retrieves all trades with non-terminal status, oldest first.
func (s *TradeStore) GetOpen(ctx context.Context) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE status = $1
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.q.Query(ctx, query, domain.StatusOpen)
	if err != nil {
		return nil, fmt.Errorf("get open trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// GetByBroker retrieves all trades for a broker, newest first.
func (s *TradeStore) GetByBroker(ctx context.Context, broker string) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE broker = $1
		ORDER BY timestamp DESC, id ASC
	`

	rows, err := s.q.Query(ctx, query, broker)
	if err != nil {
		return nil, fmt.Errorf("get trades by broker: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// UpdateStatus transitions a trade's lifecycle status.
func (s *TradeStore) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE trades SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update trade status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MarkFilled records a fill: status, executed price, realized PnL and
// the success flag in one statement.
func (s *TradeStore) MarkFilled(ctx context.Context, id string, executedPrice float64, profitLoss *float64) error {
	query := `
		UPDATE trades
		SET status = $2, executed_price = $3, profit_loss = $4, success = TRUE
		WHERE id = $1
	`

	tag, err := s.q.Exec(ctx, query, id, domain.StatusFilled, executedPrice, profitLoss)
	if err != nil {
		return fmt.Errorf("mark trade filled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade

	err := row.Scan(
		&t.ID, &t.Symbol, &t.Quantity, &t.Price, &t.ExecutedPrice,
		&t.Side, &t.OrderType, &t.ExecutionStyle, &t.Status, &t.Timestamp,
		&t.Broker, &t.Strategy, &t.ProfitLoss, &t.Success, &t.BrokerOrderID,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		var t domain.Trade

		err := rows.Scan(
			&t.ID, &t.Symbol, &t.Quantity, &t.Price, &t.ExecutedPrice,
			&t.Side, &t.OrderType, &t.ExecutionStyle, &t.Status, &t.Timestamp,
			&t.Broker, &t.Strategy, &t.ProfitLoss, &t.Success, &t.BrokerOrderID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		trades = append(trades, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
