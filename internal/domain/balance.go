package domain

import "time"

// BalanceType distinguishes cash snapshots from position-value snapshots.
type BalanceType string

const (
	BalanceTypeCash      BalanceType = "cash"
	BalanceTypePositions BalanceType = "positions"
)

// Balance is an append-only snapshot of one (broker, strategy, type).
// Only the most recent row per key is authoritative; older rows are
// retained for history.
type Balance struct {
	ID        int64 // assigned by the store
	Broker    string
	Strategy  string
	Type      BalanceType
	Balance   float64
	Timestamp time.Time
}
