package clickhouse

import (
	"context"
	"fmt"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// BalanceHistoryStore implements storage.BalanceHistoryStore using
// ClickHouse. The archive is written once per reconciliation cycle and
// serves dashboard history queries without touching the ledger.
type BalanceHistoryStore struct {
	conn *Conn
}

// NewBalanceHistoryStore creates a new BalanceHistoryStore.
func NewBalanceHistoryStore(conn *Conn) *BalanceHistoryStore {
	return &BalanceHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BalanceHistoryStore = (*BalanceHistoryStore)(nil)

// InsertBulk appends snapshots; the batch fails as a whole.
func (s *BalanceHistoryStore) InsertBulk(ctx context.Context, balances []*domain.Balance) error {
	if len(balances) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO balance_history (
			broker, strategy, type, balance, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range balances {
		err = batch.Append(b.Broker, b.Strategy, string(b.Type), b.Balance, b.Timestamp)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByStrategy retrieves archived snapshots for (broker, strategy),
// ordered by timestamp ASC.
func (s *BalanceHistoryStore) GetByStrategy(ctx context.Context, broker, strategy string) ([]*domain.Balance, error) {
	query := `
		SELECT broker, strategy, type, balance, timestamp
		FROM balance_history
		WHERE broker = ? AND strategy = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, broker, strategy)
	if err != nil {
		return nil, fmt.Errorf("get balance history: %w", err)
	}
	defer rows.Close()

	var balances []*domain.Balance
	for rows.Next() {
		var b domain.Balance
		var typ string
		if err := rows.Scan(&b.Broker, &b.Strategy, &typ, &b.Balance, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("scan balance history row: %w", err)
		}
		b.Type = domain.BalanceType(typ)
		balances = append(balances, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance history rows: %w", err)
	}

	return balances, nil
}
