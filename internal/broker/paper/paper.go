// Package paper provides an in-memory broker for dry runs. Orders never
// touch an exchange; fills are simulated against the latest known price.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/symbols"
)

// Quoter supplies live mid prices. Satisfied by marketdata.QuoteStream.
type Quoter interface {
	Mid(symbol string) (float64, bool)
}

// Options configures a paper broker.
type Options struct {
	Cash   float64            // starting cash balance
	Quotes Quoter             // optional live quote source
	Prices map[string]float64 // static fallback prices
	Log    *slog.Logger
}

type paperOrder struct {
	order    broker.Order
	status   string
	executed float64
	placedAt time.Time
}

// Broker simulates an account with cash and holdings. Limit orders rest
// until the simulated market reaches the limit price; market orders fill
// immediately.
type Broker struct {
	mu        sync.Mutex
	cash      float64
	holdings  map[string]broker.Position
	orders    map[string]*paperOrder
	quotes    Quoter
	prices    map[string]float64
	log       *slog.Logger
}

// NewBroker creates a paper broker with the configured starting cash.
func NewBroker(opts Options) *Broker {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	prices := opts.Prices
	if prices == nil {
		prices = make(map[string]float64)
	}
	return &Broker{
		cash:     opts.Cash,
		holdings: make(map[string]broker.Position),
		orders:   make(map[string]*paperOrder),
		quotes:   opts.Quotes,
		prices:   prices,
		log:      log,
	}
}

// SetPrice updates the static fallback price for a symbol.
func (b *Broker) SetPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[symbol] = price
}

func (b *Broker) priceLocked(symbol string) (float64, error) {
	if b.quotes != nil {
		if mid, ok := b.quotes.Mid(symbol); ok {
			return mid, nil
		}
	}
	if price, ok := b.prices[symbol]; ok {
		return price, nil
	}
	return 0, fmt.Errorf("no price for %s: %w", symbol, broker.ErrUnavailable)
}

// GetAccountInfo reports cash plus the marked value of all holdings.
func (b *Broker) GetAccountInfo(_ context.Context) (*broker.AccountInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	value := b.cash
	for sym, pos := range b.holdings {
		price, err := b.priceLocked(sym)
		if err != nil {
			continue
		}
		value += pos.Quantity * price * symbols.Multiplier(b.log, sym)
	}
	return &broker.AccountInfo{
		Cash:        b.cash,
		BuyingPower: b.cash,
		TotalValue:  value,
	}, nil
}

// GetPositions returns a copy of current holdings.
func (b *Broker) GetPositions(_ context.Context) (map[string]broker.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]broker.Position, len(b.holdings))
	for sym, pos := range b.holdings {
		out[sym] = pos
	}
	return out, nil
}

// GetCurrentPrice returns the latest simulated price for a symbol.
func (b *Broker) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.priceLocked(symbol)
}

// GetMidPrice returns the same price source; the paper market has no
// spread.
func (b *Broker) GetMidPrice(_ context.Context, symbol string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.priceLocked(symbol)
}

// PlaceOrder accepts the order. Market orders and marketable limit orders
// fill immediately; other limit orders rest until the price reaches the
// limit.
func (b *Broker) PlaceOrder(_ context.Context, order *broker.Order) (*broker.Receipt, error) {
	if order.Quantity <= 0 {
		return nil, fmt.Errorf("quantity must be positive")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	po := &paperOrder{
		order:    *order,
		status:   broker.OrderStatusOpen,
		placedAt: time.Now().UTC(),
	}
	id := uuid.New().String()
	b.orders[id] = po
	b.tryFillLocked(po)

	return &broker.Receipt{BrokerOrderID: id, Status: po.status}, nil
}

// tryFillLocked fills an open order if the current price makes it
// marketable.
func (b *Broker) tryFillLocked(po *paperOrder) {
	if po.status != broker.OrderStatusOpen {
		return
	}
	price, err := b.priceLocked(po.order.Symbol)
	if err != nil {
		return
	}

	fill := price
	if po.order.OrderType == domain.OrderTypeLimit {
		switch po.order.Side {
		case domain.SideBuy:
			if price > po.order.LimitPrice {
				return
			}
		case domain.SideSell:
			if price < po.order.LimitPrice {
				return
			}
		}
		fill = po.order.LimitPrice
	}

	mult := symbols.Multiplier(b.log, po.order.Symbol)
	notional := po.order.Quantity * fill * mult
	pos := b.holdings[po.order.Symbol]
	switch po.order.Side {
	case domain.SideBuy:
		b.cash -= notional
		pos.Quantity += po.order.Quantity
		pos.CostBasis += notional
		b.holdings[po.order.Symbol] = pos
	case domain.SideSell:
		b.cash += notional
		if pos.Quantity > 0 {
			pos.CostBasis -= pos.CostBasis / pos.Quantity * po.order.Quantity
		}
		pos.Quantity -= po.order.Quantity
		if pos.Quantity <= 0 {
			delete(b.holdings, po.order.Symbol)
		} else {
			b.holdings[po.order.Symbol] = pos
		}
	}

	po.status = broker.OrderStatusFilled
	po.executed = fill
	b.log.Debug("paper fill",
		"symbol", po.order.Symbol,
		"side", po.order.Side,
		"quantity", po.order.Quantity,
		"price", fill)
}

// IsOrderFilled re-checks resting orders against the current price before
// answering.
func (b *Broker) IsOrderFilled(_ context.Context, brokerOrderID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	po, ok := b.orders[brokerOrderID]
	if !ok {
		return false, fmt.Errorf("order %s: %w", brokerOrderID, broker.ErrUnavailable)
	}
	b.tryFillLocked(po)
	return po.status == broker.OrderStatusFilled, nil
}

// GetOrderStatus reports the order's lifecycle status.
func (b *Broker) GetOrderStatus(_ context.Context, brokerOrderID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	po, ok := b.orders[brokerOrderID]
	if !ok {
		return "", fmt.Errorf("order %s: %w", brokerOrderID, broker.ErrUnavailable)
	}
	b.tryFillLocked(po)
	return po.status, nil
}

// CancelOrder cancels a resting order. Cancelling a filled order fails.
func (b *Broker) CancelOrder(_ context.Context, brokerOrderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	po, ok := b.orders[brokerOrderID]
	if !ok {
		return fmt.Errorf("order %s: %w", brokerOrderID, broker.ErrUnavailable)
	}
	if po.status == broker.OrderStatusFilled {
		return fmt.Errorf("order %s already filled", brokerOrderID)
	}
	po.status = broker.OrderStatusCancelled
	return nil
}

var _ broker.Broker = (*Broker)(nil)
