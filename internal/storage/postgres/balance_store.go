package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// BalanceStore implements storage.BalanceStore using PostgreSQL. The
// balances table is append-only; rows are never updated or deleted.
type BalanceStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.BalanceStore = (*BalanceStore)(nil)

// Insert appends a new snapshot.
func (s *BalanceStore) Insert(ctx context.Context, b *domain.Balance) error {
	if b == nil || b.Broker == "" || b.Strategy == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO balances (broker, strategy, type, balance, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := s.q.QueryRow(ctx, query, b.Broker, b.Strategy, b.Type, b.Balance, b.Timestamp).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

// GetLatest retrieves the most recent snapshot for the key.
func (s *BalanceStore) GetLatest(ctx context.Context, broker, strategy string, typ domain.BalanceType) (*domain.Balance, error) {
	query := `
		SELECT id, broker, strategy, type, balance, timestamp
		FROM balances
		WHERE broker = $1 AND strategy = $2 AND type = $3
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`

	row := s.q.QueryRow(ctx, query, broker, strategy, typ)
	b, err := scanBalance(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest balance: %w", err)
	}
	return b, nil
}

// Brokers lists the distinct brokers with any snapshot.
func (s *BalanceStore) Brokers(ctx context.Context) ([]string, error) {
	rows, err := s.q.Query(ctx, `SELECT DISTINCT broker FROM balances ORDER BY broker ASC`)
	if err != nil {
		return nil, fmt.Errorf("list balance brokers: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// Strategies lists the distinct strategies with snapshots for a broker.
func (s *BalanceStore) Strategies(ctx context.Context, broker string) ([]string, error) {
	query := `SELECT DISTINCT strategy FROM balances WHERE broker = $1 ORDER BY strategy ASC`

	rows, err := s.q.Query(ctx, query, broker)
	if err != nil {
		return nil, fmt.Errorf("list balance strategies: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// GetSince retrieves snapshots at or after the given time.
func (s *BalanceStore) GetSince(ctx context.Context, broker, strategy string, since time.Time) ([]*domain.Balance, error) {
	query := `
		SELECT id, broker, strategy, type, balance, timestamp
		FROM balances
		WHERE broker = $1 AND strategy = $2 AND timestamp >= $3
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := s.q.Query(ctx, query, broker, strategy, since)
	if err != nil {
		return nil, fmt.Errorf("get balances since: %w", err)
	}
	defer rows.Close()

	var balances []*domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := rows.Scan(&b.ID, &b.Broker, &b.Strategy, &b.Type, &b.Balance, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("scan balance row: %w", err)
		}
		balances = append(balances, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}

	return balances, nil
}

// scanBalance scans a single row into a Balance.
func scanBalance(row pgx.Row) (*domain.Balance, error) {
	var b domain.Balance
	if err := row.Scan(&b.ID, &b.Broker, &b.Strategy, &b.Type, &b.Balance, &b.Timestamp); err != nil {
		return nil, err
	}
	return &b, nil
}

// scanStrings collects a single-column string result.
func scanStrings(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan string row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate string rows: %w", err)
	}
	return out, nil
}
