package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
)

func TestAccountStore_UpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedger(pool).Accounts()
	ctx := context.Background()

	ts := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

	err := store.Upsert(ctx, &domain.AccountSnapshot{
		Broker:    "tradier",
		Value:     10000.0,
		UpdatedAt: ts,
	})
	require.NoError(t, err)

	snap, err := store.Get(ctx, "tradier")
	require.NoError(t, err)

	assert.Equal(t, "tradier", snap.Broker)
	assert.Equal(t, 10000.0, snap.Value)
	assert.True(t, ts.Equal(snap.UpdatedAt))
}

func TestAccountStore_UpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedger(pool).Accounts()
	ctx := context.Background()

	ts := time.Date(2024, 6, 3, 14, 30, 0, 0, time.UTC)

	require.NoError(t, store.Upsert(ctx, &domain.AccountSnapshot{
		Broker:    "tradier",
		Value:     10000.0,
		UpdatedAt: ts,
	}))
	require.NoError(t, store.Upsert(ctx, &domain.AccountSnapshot{
		Broker:    "tradier",
		Value:     10500.0,
		UpdatedAt: ts.Add(time.Hour),
	}))

	snap, err := store.Get(ctx, "tradier")
	require.NoError(t, err)

	assert.Equal(t, 10500.0, snap.Value)
	assert.True(t, ts.Add(time.Hour).Equal(snap.UpdatedAt))
}

func TestAccountStore_GetNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewLedger(pool).Accounts()
	ctx := context.Background()

	_, err := store.Get(ctx, "nonexistent")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
