package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

func TestLedger_InTxCommit(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	led := NewLedger(pool)
	ctx := context.Background()

	ts := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

	err := led.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		if err := tx.Positions().Upsert(ctx, testPosition("tradier", "alpha", "AAPL")); err != nil {
			return err
		}
		return tx.Balances().Insert(ctx, testBalance("tradier", "alpha", domain.BalanceTypeCash, 5000.0, ts))
	})
	require.NoError(t, err)

	pos, err := led.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 10.0, pos.Quantity)

	bal, err := led.Balances().GetLatest(ctx, "tradier", "alpha", domain.BalanceTypeCash)
	require.NoError(t, err)
	assert.Equal(t, 5000.0, bal.Balance)
}

func TestLedger_InTxRollback(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	led := NewLedger(pool)
	ctx := context.Background()

	require.NoError(t, led.Positions().Upsert(ctx, testPosition("tradier", "alpha", "AAPL")))

	boom := errors.New("boom")
	err := led.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		if err := tx.Positions().Delete(ctx, "tradier", "alpha", "AAPL"); err != nil {
			return err
		}
		ts := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)
		if err := tx.Balances().Insert(ctx, testBalance("tradier", "alpha", domain.BalanceTypeCash, 5000.0, ts)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// The delete rolled back.
	_, err = led.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	assert.NoError(t, err)

	// The insert rolled back.
	_, err = led.Balances().GetLatest(ctx, "tradier", "alpha", domain.BalanceTypeCash)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLedger_InTxSeesOwnWrites(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	led := NewLedger(pool)
	ctx := context.Background()

	err := led.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		if err := tx.Positions().Upsert(ctx, testPosition("tradier", "alpha", "AAPL")); err != nil {
			return err
		}
		pos, err := tx.Positions().Get(ctx, "tradier", "alpha", "AAPL")
		if err != nil {
			return err
		}
		pos.Quantity = 20
		return tx.Positions().Upsert(ctx, pos)
	})
	require.NoError(t, err)

	pos, err := led.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 20.0, pos.Quantity)
}

func TestLedger_InTxNestedJoinsTransaction(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	led := NewLedger(pool)
	ctx := context.Background()

	boom := errors.New("boom")
	err := led.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		if err := tx.Positions().Upsert(ctx, testPosition("tradier", "alpha", "AAPL")); err != nil {
			return err
		}
		return tx.InTx(ctx, func(ctx context.Context, inner storage.Ledger) error {
			if err := inner.Positions().Upsert(ctx, testPosition("tradier", "beta", "MSFT")); err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	// Both writes belong to the same transaction and rolled back together.
	_, err = led.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = led.Positions().Get(ctx, "tradier", "beta", "MSFT")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
