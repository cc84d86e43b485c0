package storage

import (
	"context"
	"time"

	"github.com/r0fls/soad-sub000/internal/domain"
)

// TradeStore provides access to the trades table.
type TradeStore interface {
	// Insert adds a new trade. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetByID retrieves a trade by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, id string) (*domain.Trade, error)

	// GetOpen retrieves all trades whose status is non-terminal,
	// ordered by submission time ASC.
	GetOpen(ctx context.Context) ([]*domain.Trade, error)

	// GetByBroker retrieves all trades for a broker, newest first.
	GetByBroker(ctx context.Context, broker string) ([]*domain.Trade, error)

	// UpdateStatus transitions a trade's lifecycle status.
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error

	// MarkFilled records a fill: status, executed price, realized
	// profit/loss (nil when undefined) and the success flag.
	MarkFilled(ctx context.Context, id string, executedPrice float64, profitLoss *float64) error
}

// PositionStore provides access to the positions table. Rows are keyed
// by (broker, strategy, symbol); zero-quantity rows are deleted, never
// stored.
type PositionStore interface {
	// Upsert inserts or replaces the row for the position's key.
	Upsert(ctx context.Context, p *domain.Position) error

	// Get retrieves one row. Returns ErrNotFound if not exists.
	Get(ctx context.Context, broker, strategy, symbol string) (*domain.Position, error)

	// GetBySymbol retrieves all strategies' rows for (broker, symbol).
	GetBySymbol(ctx context.Context, broker, symbol string) ([]*domain.Position, error)

	// GetByBroker retrieves all rows for a broker across strategies.
	GetByBroker(ctx context.Context, broker string) ([]*domain.Position, error)

	// GetByStrategy retrieves all rows for (broker, strategy).
	GetByStrategy(ctx context.Context, broker, strategy string) ([]*domain.Position, error)

	// GetAll retrieves every position row.
	GetAll(ctx context.Context) ([]*domain.Position, error)

	// Delete removes one row; deleting an absent row is not an error.
	Delete(ctx context.Context, broker, strategy, symbol string) error
}

// BalanceStore provides access to the append-only balances table.
type BalanceStore interface {
	// Insert appends a new snapshot.
	Insert(ctx context.Context, b *domain.Balance) error

	// GetLatest retrieves the most recent snapshot for the key.
	// Returns ErrNotFound when no snapshot exists.
	GetLatest(ctx context.Context, broker, strategy string, typ domain.BalanceType) (*domain.Balance, error)

	// Brokers lists the distinct brokers with any snapshot.
	Brokers(ctx context.Context) ([]string, error)

	// Strategies lists the distinct strategies with snapshots for a
	// broker, including the uncategorized bucket.
	Strategies(ctx context.Context, broker string) ([]string, error)

	// GetSince retrieves snapshots for (broker, strategy) at or after
	// the given time, ordered by timestamp ASC.
	GetSince(ctx context.Context, broker, strategy string, since time.Time) ([]*domain.Balance, error)
}

// AccountStore provides access to per-broker account snapshots.
type AccountStore interface {
	// Upsert records the latest account value for a broker.
	Upsert(ctx context.Context, s *domain.AccountSnapshot) error

	// Get retrieves a broker's snapshot. Returns ErrNotFound if absent.
	Get(ctx context.Context, broker string) (*domain.AccountSnapshot, error)
}

// Ledger is the unit-of-work entry point over all persisted entities.
// InTx runs fn against a transactional view: every store mutation inside
// fn commits atomically when fn returns nil and rolls back in full on
// error, so a partial reconciliation can never leave a position updated
// without its paired balance or a trade filled without its position.
type Ledger interface {
	Trades() TradeStore
	Positions() PositionStore
	Balances() BalanceStore
	Accounts() AccountStore

	InTx(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error
}

// BalanceHistoryStore archives balance snapshots outside the ledger for
// dashboard history queries. Append-only.
type BalanceHistoryStore interface {
	// InsertBulk appends snapshots; the batch fails as a whole.
	InsertBulk(ctx context.Context, balances []*domain.Balance) error

	// GetByStrategy retrieves archived snapshots for (broker,
	// strategy), ordered by timestamp ASC.
	GetByStrategy(ctx context.Context, broker, strategy string) ([]*domain.Balance, error)
}
