package memory

import (
	"context"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// AccountStore is the in-memory implementation of storage.AccountStore.
type AccountStore struct {
	l *Ledger
}

// Upsert records the latest account value for a broker.
func (s *AccountStore) Upsert(_ context.Context, snap *domain.AccountSnapshot) error {
	if snap == nil || snap.Broker == "" {
		return storage.ErrInvalidInput
	}

	s.l.lock()
	defer s.l.unlock()

	copy := *snap
	s.l.state.accounts[snap.Broker] = &copy
	return nil
}

// Get retrieves a broker's snapshot. Returns ErrNotFound if absent.
func (s *AccountStore) Get(_ context.Context, broker string) (*domain.AccountSnapshot, error) {
	s.l.rlock()
	defer s.l.runlock()

	snap, exists := s.l.state.accounts[broker]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *snap
	return &copy, nil
}
