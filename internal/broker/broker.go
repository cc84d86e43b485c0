// Package broker defines the capability surface the reconciliation engine
// needs from a brokerage. Vendor adapters implement this interface out of
// tree; the stub and paper implementations in subpackages cover tests and
// dry runs.
package broker

import (
	"context"
	"errors"

	"github.com/r0fls/soad-sub000/internal/domain"
)

// ErrUnavailable marks a transient brokerage API failure. Callers treat it
// as retryable and never let it abort a whole pass.
var ErrUnavailable = errors.New("broker unavailable")

// Broker-side order status strings as reported by GetOrderStatus.
const (
	OrderStatusOpen      = "open"
	OrderStatusFilled    = "filled"
	OrderStatusRejected  = "rejected"
	OrderStatusCancelled = "cancelled"
)

// AccountInfo is the brokerage's view of the account.
type AccountInfo struct {
	Cash        float64
	BuyingPower float64
	TotalValue  float64
}

// Position is a brokerage-reported holding. CostBasis is the total basis
// for the whole quantity, not per share.
type Position struct {
	Quantity  float64
	CostBasis float64
}

// Order is a placement request. LimitPrice is ignored for market orders.
type Order struct {
	Symbol     string
	Quantity   float64
	Side       domain.Side
	OrderType  domain.OrderType
	LimitPrice float64
}

// Receipt acknowledges a placement. BrokerOrderID is the brokerage's own
// identifier and may legitimately be empty when the API lost the order.
type Receipt struct {
	BrokerOrderID string
	Status        string
}

// Broker is the brokerage capability interface.
type Broker interface {
	GetAccountInfo(ctx context.Context) (*AccountInfo, error)
	GetPositions(ctx context.Context) (map[string]Position, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetMidPrice(ctx context.Context, symbol string) (float64, error)
	PlaceOrder(ctx context.Context, order *Order) (*Receipt, error)
	IsOrderFilled(ctx context.Context, brokerOrderID string) (bool, error)
	GetOrderStatus(ctx context.Context, brokerOrderID string) (string, error)
	CancelOrder(ctx context.Context, brokerOrderID string) error
}
