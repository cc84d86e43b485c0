package domain

import "time"

// OrderStatus is the lifecycle state of a trade.
type OrderStatus string

const (
	StatusOpen      OrderStatus = "open"
	StatusFilled    OrderStatus = "filled"
	StatusRejected  OrderStatus = "rejected"
	StatusCancelled OrderStatus = "cancelled"
	StatusStale     OrderStatus = "stale"
)

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusRejected, StatusCancelled, StatusStale:
		return true
	}
	return false
}

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the pricing style of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// ExecutionStylePegged marks orders whose price tracks the market mid
// and must be cancel-replaced when unfilled past a short timeout.
const ExecutionStylePegged = "pegged"

// Trade is a single order attempt. Rows are created when an order is
// submitted and mutated only by order reconciliation (status, executed
// price, profit/loss); they are never deleted.
type Trade struct {
	ID             string // uuid
	Symbol         string
	Quantity       float64 // always positive; Side carries direction
	Price          float64 // requested price
	ExecutedPrice  *float64
	Side           Side
	OrderType      OrderType
	ExecutionStyle string // "" or ExecutionStylePegged
	Status         OrderStatus
	Timestamp      time.Time // submission time, UTC
	Broker         string
	Strategy       *string // nil until categorized
	ProfitLoss     *float64
	Success        *bool
	BrokerOrderID  *string // nil when submission never got an id back
}
