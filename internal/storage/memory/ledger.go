// Package memory provides an in-memory storage.Ledger used by tests
// and the paper-trading mode.
package memory

import (
	"context"
	"sync"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

type positionKey struct {
	broker   string
	strategy string
	symbol   string
}

// state holds every persisted entity. Value copies go in and out so
// callers can never alias stored rows.
type state struct {
	trades        map[string]*domain.Trade
	positions     map[positionKey]*domain.Position
	balances      []*domain.Balance
	nextBalanceID int64
	accounts      map[string]*domain.AccountSnapshot
}

func newState() *state {
	return &state{
		trades:        make(map[string]*domain.Trade),
		positions:     make(map[positionKey]*domain.Position),
		nextBalanceID: 1,
		accounts:      make(map[string]*domain.AccountSnapshot),
	}
}

// clone deep-copies the state for transaction rollback.
func (s *state) clone() *state {
	c := &state{
		trades:        make(map[string]*domain.Trade, len(s.trades)),
		positions:     make(map[positionKey]*domain.Position, len(s.positions)),
		balances:      make([]*domain.Balance, len(s.balances)),
		nextBalanceID: s.nextBalanceID,
		accounts:      make(map[string]*domain.AccountSnapshot, len(s.accounts)),
	}
	for id, t := range s.trades {
		copy := *t
		c.trades[id] = &copy
	}
	for k, p := range s.positions {
		copy := *p
		c.positions[k] = &copy
	}
	for i, b := range s.balances {
		copy := *b
		c.balances[i] = &copy
	}
	for k, a := range s.accounts {
		copy := *a
		c.accounts[k] = &copy
	}
	return c
}

// Ledger is an in-memory implementation of storage.Ledger. A single
// mutex serializes units of work; InTx snapshots the state and restores
// it when the callback fails, mirroring transactional rollback.
type Ledger struct {
	mu    sync.RWMutex
	state *state

	// inTx disables locking on the transactional view handed to the
	// InTx callback; the outer call already holds the write lock.
	inTx bool
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{state: newState()}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Trades returns the trade store bound to the current scope.
func (l *Ledger) Trades() storage.TradeStore { return &TradeStore{l: l} }

// Positions returns the position store bound to the current scope.
func (l *Ledger) Positions() storage.PositionStore { return &PositionStore{l: l} }

// Balances returns the balance store bound to the current scope.
func (l *Ledger) Balances() storage.BalanceStore { return &BalanceStore{l: l} }

// Accounts returns the account store bound to the current scope.
func (l *Ledger) Accounts() storage.AccountStore { return &AccountStore{l: l} }

// InTx runs fn against a transactional view, restoring the prior state
// when fn returns an error. Nested calls join the enclosing scope.
func (l *Ledger) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Ledger) error) error {
	if l.inTx {
		return fn(ctx, l)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	snapshot := l.state.clone()
	tx := &Ledger{state: l.state, inTx: true}

	if err := fn(ctx, tx); err != nil {
		l.state = snapshot
		return err
	}
	return nil
}

func (l *Ledger) rlock() {
	if !l.inTx {
		l.mu.RLock()
	}
}

func (l *Ledger) runlock() {
	if !l.inTx {
		l.mu.RUnlock()
	}
}

func (l *Ledger) lock() {
	if !l.inTx {
		l.mu.Lock()
	}
}

func (l *Ledger) unlock() {
	if !l.inTx {
		l.mu.Unlock()
	}
}
