package memory

import (
	"context"
	"sort"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// PositionStore is the in-memory implementation of storage.PositionStore.
type PositionStore struct {
	l *Ledger
}

// Upsert inserts or replaces the row for (broker, strategy, symbol).
func (s *PositionStore) Upsert(_ context.Context, p *domain.Position) error {
	if p == nil || p.Broker == "" || p.Strategy == "" || p.Symbol == "" {
		return storage.ErrInvalidInput
	}

	s.l.lock()
	defer s.l.unlock()

	copy := *p
	s.l.state.positions[positionKey{p.Broker, p.Strategy, p.Symbol}] = &copy
	return nil
}

// Get retrieves one row. Returns ErrNotFound if not exists.
func (s *PositionStore) Get(_ context.Context, broker, strategy, symbol string) (*domain.Position, error) {
	s.l.rlock()
	defer s.l.runlock()

	p, exists := s.l.state.positions[positionKey{broker, strategy, symbol}]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *p
	return &copy, nil
}

// GetBySymbol retrieves all strategies' rows for (broker, symbol).
func (s *PositionStore) GetBySymbol(_ context.Context, broker, symbol string) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool {
		return p.Broker == broker && p.Symbol == symbol
	}), nil
}

// GetByBroker retrieves all rows for a broker across strategies.
func (s *PositionStore) GetByBroker(_ context.Context, broker string) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool {
		return p.Broker == broker
	}), nil
}

// GetByStrategy retrieves all rows for (broker, strategy).
func (s *PositionStore) GetByStrategy(_ context.Context, broker, strategy string) ([]*domain.Position, error) {
	return s.filter(func(p *domain.Position) bool {
		return p.Broker == broker && p.Strategy == strategy
	}), nil
}

// GetAll retrieves every position row.
func (s *PositionStore) GetAll(_ context.Context) ([]*domain.Position, error) {
	return s.filter(func(*domain.Position) bool { return true }), nil
}

// Delete removes one row; deleting an absent row is not an error.
func (s *PositionStore) Delete(_ context.Context, broker, strategy, symbol string) error {
	s.l.lock()
	defer s.l.unlock()

	delete(s.l.state.positions, positionKey{broker, strategy, symbol})
	return nil
}

func (s *PositionStore) filter(keep func(*domain.Position) bool) []*domain.Position {
	s.l.rlock()
	defer s.l.runlock()

	var result []*domain.Position
	for _, p := range s.l.state.positions {
		if keep(p) {
			copy := *p
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Broker != result[j].Broker {
			return result[i].Broker < result[j].Broker
		}
		if result[i].Symbol != result[j].Symbol {
			return result[i].Symbol < result[j].Symbol
		}
		return result[i].Strategy < result[j].Strategy
	})
	return result
}
