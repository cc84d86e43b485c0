package postgres

import (
	"context"
	"fmt"

	"github.com/r0fls/soad-sub000/internal/storage"
)

// Ledger implements storage.Ledger using PostgreSQL. Outside InTx the
// stores run against the pool with auto-commit; InTx scopes every store
// operation of the callback to one pgx transaction.
type Ledger struct {
	pool *Pool
	q    querier
}

// NewLedger creates a Ledger backed by the given pool.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{pool: pool, q: pool.Pool}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Trades returns the trade store bound to the current scope.
func (l *Ledger) Trades() storage.TradeStore { return &TradeStore{q: l.q} }

// Positions returns the position store bound to the current scope.
func (l *Ledger) Positions() storage.PositionStore { return &PositionStore{q: l.q} }

// Balances returns the balance store bound to the current scope.
func (l *Ledger) Balances() storage.BalanceStore { return &BalanceStore{q: l.q} }

// Accounts returns the account store bound to the current scope.
func (l *Ledger) Accounts() storage.AccountStore { return &AccountStore{q: l.q} }

// InTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise. Nested calls join the enclosing transaction.
func (l *Ledger) InTx(ctx context.Context, fn func(ctx context.Context, tx storage.Ledger) error) error {
	if _, nested := l.q.(interface{ Commit(context.Context) error }); nested {
		return fn(ctx, l)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &Ledger{pool: l.pool, q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
