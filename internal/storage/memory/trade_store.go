package memory

import (
	"context"
	"sort"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// TradeStore is the in-memory implementation of storage.TradeStore.
type TradeStore struct {
	l *Ledger
}

// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.ID == "" {
		return storage.ErrInvalidInput
	}

	s.l.lock()
	defer s.l.unlock()

	if _, exists := s.l.state.trades[t.ID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *t
	s.l.state.trades[t.ID] = &copy
	return nil
}

// GetByID retrieves a trade by id. Returns ErrNotFound if not exists.
func (s *TradeStore) GetByID(_ context.Context, id string) (*domain.Trade, error) {
	s.l.rlock()
	defer s.l.runlock()

	t, exists := s.l.state.trades[id]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *t
	return &copy, nil
}

// GetOpen retrieves all trades with non-terminal status, oldest first.
func (s *TradeStore) GetOpen(_ context.Context) ([]*domain.Trade, error) {
	s.l.rlock()
	defer s.l.runlock()

	var result []*domain.Trade
	for _, t := range s.l.state.trades {
		if t.Status == domain.StatusOpen {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetByBroker retrieves all trades for a broker, newest first.
func (s *TradeStore) GetByBroker(_ context.Context, broker string) ([]*domain.Trade, error) {
	s.l.rlock()
	defer s.l.runlock()

	var result []*domain.Trade
	for _, t := range s.l.state.trades {
		if t.Broker == broker {
			copy := *t
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.After(result[j].Timestamp)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// UpdateStatus transitions a trade's lifecycle status.
func (s *TradeStore) UpdateStatus(_ context.Context, id string, status domain.OrderStatus) error {
	s.l.lock()
	defer s.l.unlock()

	t, exists := s.l.state.trades[id]
	if !exists {
		return storage.ErrNotFound
	}
	t.Status = status
	return nil
}

// MarkFilled records a fill: status, executed price, realized PnL and
// the success flag.
func (s *TradeStore) MarkFilled(_ context.Context, id string, executedPrice float64, profitLoss *float64) error {
	s.l.lock()
	defer s.l.unlock()

	t, exists := s.l.state.trades[id]
	if !exists {
		return storage.ErrNotFound
	}

	t.Status = domain.StatusFilled
	t.ExecutedPrice = &executedPrice
	t.ProfitLoss = profitLoss
	success := true
	t.Success = &success
	return nil
}
