package memory

import (
	"context"
	"sort"
	"time"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

// BalanceStore is the in-memory implementation of storage.BalanceStore.
type BalanceStore struct {
	l *Ledger
}

// Insert appends a new snapshot.
func (s *BalanceStore) Insert(_ context.Context, b *domain.Balance) error {
	if b == nil || b.Broker == "" || b.Strategy == "" {
		return storage.ErrInvalidInput
	}

	s.l.lock()
	defer s.l.unlock()

	copy := *b
	copy.ID = s.l.state.nextBalanceID
	s.l.state.nextBalanceID++
	s.l.state.balances = append(s.l.state.balances, &copy)
	b.ID = copy.ID
	return nil
}

// GetLatest retrieves the most recent snapshot for the key.
func (s *BalanceStore) GetLatest(_ context.Context, broker, strategy string, typ domain.BalanceType) (*domain.Balance, error) {
	s.l.rlock()
	defer s.l.runlock()

	var latest *domain.Balance
	for _, b := range s.l.state.balances {
		if b.Broker != broker || b.Strategy != strategy || b.Type != typ {
			continue
		}
		if latest == nil || b.Timestamp.After(latest.Timestamp) ||
			(b.Timestamp.Equal(latest.Timestamp) && b.ID > latest.ID) {
			latest = b
		}
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}

	copy := *latest
	return &copy, nil
}

// Brokers lists the distinct brokers with any snapshot.
func (s *BalanceStore) Brokers(_ context.Context) ([]string, error) {
	s.l.rlock()
	defer s.l.runlock()

	seen := make(map[string]struct{})
	var brokers []string
	for _, b := range s.l.state.balances {
		if _, ok := seen[b.Broker]; !ok {
			seen[b.Broker] = struct{}{}
			brokers = append(brokers, b.Broker)
		}
	}
	sort.Strings(brokers)
	return brokers, nil
}

// Strategies lists the distinct strategies with snapshots for a broker.
func (s *BalanceStore) Strategies(_ context.Context, broker string) ([]string, error) {
	s.l.rlock()
	defer s.l.runlock()

	seen := make(map[string]struct{})
	var strategies []string
	for _, b := range s.l.state.balances {
		if b.Broker != broker {
			continue
		}
		if _, ok := seen[b.Strategy]; !ok {
			seen[b.Strategy] = struct{}{}
			strategies = append(strategies, b.Strategy)
		}
	}
	sort.Strings(strategies)
	return strategies, nil
}

// GetSince retrieves snapshots at or after the given time.
func (s *BalanceStore) GetSince(_ context.Context, broker, strategy string, since time.Time) ([]*domain.Balance, error) {
	s.l.rlock()
	defer s.l.runlock()

	var result []*domain.Balance
	for _, b := range s.l.state.balances {
		if b.Broker == broker && b.Strategy == strategy && !b.Timestamp.Before(since) {
			copy := *b
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
