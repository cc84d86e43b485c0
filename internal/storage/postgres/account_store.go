package postgres

import (
	"context"
	"fmt"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// AccountStore implements storage.AccountStore using PostgreSQL.
type AccountStore struct {
	q querier
}

// Compile-time interface check.
var _ storage.AccountStore = (*AccountStore)(nil)

// Upsert records the latest account value for a broker.
func (s *AccountStore) Upsert(ctx context.Context, snap *domain.AccountSnapshot) error {
	if snap == nil || snap.Broker == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO account_info (broker, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (broker) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.q.Exec(ctx, query, snap.Broker, snap.Value, snap.UpdatedAt); err != nil {
		return fmt.Errorf("upsert account info: %w", err)
	}
	return nil
}

// Get retrieves a broker's snapshot. Returns ErrNotFound if absent.
func (s *AccountStore) Get(ctx context.Context, broker string) (*domain.AccountSnapshot, error) {
	query := `SELECT broker, value, updated_at FROM account_info WHERE broker = $1`

	var snap domain.AccountSnapshot
	err := s.q.QueryRow(ctx, query, broker).Scan(&snap.Broker, &snap.Value, &snap.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get account info: %w", err)
	}
	return &snap, nil
}
