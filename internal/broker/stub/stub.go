// Package stub provides a configurable in-memory broker for tests.
package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/r0fls/soad-sub000/internal/broker"
)

// Broker implements broker.Broker for testing. Fields are exported so
// tests can seed account state, holdings, prices and order outcomes
// directly; Err, when set, fails every call.
type Broker struct {
	mu sync.Mutex

	Account  broker.AccountInfo
	Holdings map[string]broker.Position
	Prices   map[string]float64
	Mids     map[string]float64
	Fills    map[string]bool
	Statuses map[string]string

	PlacedOrders []*broker.Order
	Receipts     []*broker.Receipt
	CancelledIDs []string

	Err    error
	nextID int
}

// NewBroker creates a new stub broker.
func NewBroker() *Broker {
	return &Broker{
		Holdings: make(map[string]broker.Position),
		Prices:   make(map[string]float64),
		Mids:     make(map[string]float64),
		Fills:    make(map[string]bool),
		Statuses: make(map[string]string),
	}
}

// GetAccountInfo returns the seeded account snapshot.
func (b *Broker) GetAccountInfo(_ context.Context) (*broker.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	acct := b.Account
	return &acct, nil
}

// GetPositions returns a copy of the seeded holdings.
func (b *Broker) GetPositions(_ context.Context) (map[string]broker.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}
	out := make(map[string]broker.Position, len(b.Holdings))
	for sym, pos := range b.Holdings {
		out[sym] = pos
	}
	return out, nil
}

// GetCurrentPrice returns the seeded price for a symbol.
func (b *Broker) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return 0, b.Err
	}
	price, ok := b.Prices[symbol]
	if !ok {
		return 0, fmt.Errorf("price for %s: %w", symbol, broker.ErrUnavailable)
	}
	return price, nil
}

// GetMidPrice returns the seeded mid for a symbol, falling back to the
// seeded last price.
func (b *Broker) GetMidPrice(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return 0, b.Err
	}
	if mid, ok := b.Mids[symbol]; ok {
		return mid, nil
	}
	if price, ok := b.Prices[symbol]; ok {
		return price, nil
	}
	return 0, fmt.Errorf("mid for %s: %w", symbol, broker.ErrUnavailable)
}

// PlaceOrder records the order and returns a receipt with a generated id.
func (b *Broker) PlaceOrder(_ context.Context, order *broker.Order) (*broker.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return nil, b.Err
	}

	b.nextID++
	receipt := &broker.Receipt{
		BrokerOrderID: fmt.Sprintf("stub-%d", b.nextID),
		Status:        broker.OrderStatusOpen,
	}
	copy := *order
	b.PlacedOrders = append(b.PlacedOrders, &copy)
	b.Receipts = append(b.Receipts, receipt)
	return receipt, nil
}

// IsOrderFilled reports the seeded fill flag for the order id.
func (b *Broker) IsOrderFilled(_ context.Context, brokerOrderID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return false, b.Err
	}
	return b.Fills[brokerOrderID], nil
}

// GetOrderStatus reports the seeded status for the order id, defaulting
// to open.
func (b *Broker) GetOrderStatus(_ context.Context, brokerOrderID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return "", b.Err
	}
	if status, ok := b.Statuses[brokerOrderID]; ok {
		return status, nil
	}
	return broker.OrderStatusOpen, nil
}

// CancelOrder records the cancellation.
func (b *Broker) CancelOrder(_ context.Context, brokerOrderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Err != nil {
		return b.Err
	}
	b.CancelledIDs = append(b.CancelledIDs, brokerOrderID)
	return nil
}

var _ broker.Broker = (*Broker)(nil)
