package domain

import "time"

// StrategyUncategorized is the reserved bucket for broker inventory not
// claimed by any named strategy.
const StrategyUncategorized = "uncategorized"

// Position is the current holding of one symbol by one (broker, strategy)
// pair. A position row exists iff its quantity is non-zero: a full close
// deletes the row rather than leaving a zero-quantity entry.
type Position struct {
	Broker      string
	Strategy    string
	Symbol      string
	Quantity    float64
	LatestPrice float64
	CostBasis   float64 // total cost of the open quantity, not per share

	// Underlying enrichment, set only for derivative symbols.
	UnderlyingLatestPrice *float64
	UnderlyingVolatility  *float64

	LastUpdated time.Time
}
