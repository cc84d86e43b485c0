// Package orders implements the order reconciliation state machine. Each
// pass walks the open trades and drives them toward a terminal status
// using brokerage signals, tolerating unreliable APIs: every order is
// processed in isolation and every transition commits in one transaction.
package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/ledger"
	"github.com/r0fls/soad-sub000/internal/observability"
	"github.com/r0fls/soad-sub000/internal/storage"
	"github.com/r0fls/soad-sub000/internal/symbols"
)

// Defaults for lifecycle thresholds.
const (
	DefaultStaleAfter     = 48 * time.Hour
	DefaultPegCancelAfter = 15 * time.Second
	DefaultConcurrency    = 4
)

// Options configures a Manager.
type Options struct {
	Ledger  storage.Ledger
	Brokers map[string]broker.Broker
	// StaleAfter is the age past which an open order is written off.
	StaleAfter time.Duration
	// PegCancelAfter is the age past which a pegged order is repriced.
	PegCancelAfter time.Duration
	Concurrency    int
	Log            *slog.Logger
	Metrics        *observability.Metrics
	// Now overrides the clock; tests use it.
	Now func() time.Time
}

// Manager runs order passes.
type Manager struct {
	ledger         storage.Ledger
	brokers        map[string]broker.Broker
	staleAfter     time.Duration
	pegCancelAfter time.Duration
	concurrency    int
	log            *slog.Logger
	metrics        *observability.Metrics
	now            func() time.Time
}

// NewManager creates an order manager.
func NewManager(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	pegCancelAfter := opts.PegCancelAfter
	if pegCancelAfter <= 0 {
		pegCancelAfter = DefaultPegCancelAfter
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Manager{
		ledger:         opts.Ledger,
		brokers:        opts.Brokers,
		staleAfter:     staleAfter,
		pegCancelAfter: pegCancelAfter,
		concurrency:    concurrency,
		log:            log,
		metrics:        opts.Metrics,
		now:            now,
	}
}

// Run executes one pass over all open trades. Per-order errors are
// logged, counted and collected; they never stop the pass.
func (m *Manager) Run(ctx context.Context) error {
	start := time.Now()

	open, err := m.ledger.Trades().GetOpen(ctx)
	if err != nil {
		m.metrics.RecordCycle("orders", "error", time.Since(start).Seconds())
		return fmt.Errorf("load open trades: %w", err)
	}
	m.metrics.SetOpenOrders(len(open))

	var (
		mu   sync.Mutex
		errs []error
	)
	sem := make(chan struct{}, m.concurrency)
	var wg sync.WaitGroup

	for _, trade := range open {
		wg.Add(1)
		sem <- struct{}{}
		go func(trade *domain.Trade) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := m.processTrade(ctx, trade); err != nil {
				m.log.Error("order processing failed",
					"trade_id", trade.ID,
					"broker", trade.Broker,
					"symbol", trade.Symbol,
					"error", err)
				m.metrics.RecordOrderPassError()
				mu.Lock()
				errs = append(errs, fmt.Errorf("trade %s: %w", trade.ID, err))
				mu.Unlock()
			}
		}(trade)
	}
	wg.Wait()

	status := "ok"
	if len(errs) > 0 {
		status = "error"
	} else if m.metrics != nil {
		m.metrics.LastSuccessfulOrderPass.SetToCurrentTime()
	}
	m.metrics.RecordCycle("orders", status, time.Since(start).Seconds())

	return errors.Join(errs...)
}

// processTrade drives one open trade through the state machine. Checks
// run in priority order: lost broker id, stale age, fill, rejection, then
// pegged repricing.
func (m *Manager) processTrade(ctx context.Context, trade *domain.Trade) error {
	now := m.now()
	age := now.Sub(trade.Timestamp)

	if trade.BrokerOrderID == nil || *trade.BrokerOrderID == "" {
		m.log.Warn("order has no broker id, writing off as stale", "trade_id", trade.ID)
		return m.transition(ctx, trade.ID, domain.StatusStale)
	}
	if age > m.staleAfter {
		m.log.Warn("order exceeded stale threshold",
			"trade_id", trade.ID, "age", age.String())
		return m.transition(ctx, trade.ID, domain.StatusStale)
	}

	b, ok := m.brokers[trade.Broker]
	if !ok {
		return fmt.Errorf("no broker adapter for %s", trade.Broker)
	}
	brokerOrderID := *trade.BrokerOrderID

	// Two independent fill signals; either one confirms the fill, so a
	// flaky status endpoint cannot hide an execution.
	filled, fillErr := b.IsOrderFilled(ctx, brokerOrderID)
	status, statusErr := b.GetOrderStatus(ctx, brokerOrderID)
	if fillErr != nil && statusErr != nil {
		m.metrics.RecordBrokerError(trade.Broker)
		return fmt.Errorf("query order %s: %w", brokerOrderID, errors.Join(fillErr, statusErr))
	}

	if (fillErr == nil && filled) || (statusErr == nil && status == broker.OrderStatusFilled) {
		return m.fill(ctx, trade, now)
	}
	if statusErr == nil && status == broker.OrderStatusRejected {
		return m.transition(ctx, trade.ID, domain.StatusRejected)
	}
	if trade.ExecutionStyle == domain.ExecutionStylePegged && age > m.pegCancelAfter {
		return m.reprice(ctx, b, trade, brokerOrderID, now)
	}
	return nil
}

// transition moves a trade to a terminal status in its own transaction.
func (m *Manager) transition(ctx context.Context, tradeID string, status domain.OrderStatus) error {
	err := m.ledger.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		return tx.Trades().UpdateStatus(ctx, tradeID, status)
	})
	if err != nil {
		return fmt.Errorf("mark %s: %w", status, err)
	}
	m.metrics.RecordOrderTransition(string(status))
	return nil
}

// fill records an execution: cost-basis application, the trade's fill
// fields and the strategy's cash adjustment commit together.
func (m *Manager) fill(ctx context.Context, trade *domain.Trade, now time.Time) error {
	executed := trade.Price
	strat := domain.StrategyUncategorized
	if trade.Strategy != nil && *trade.Strategy != "" {
		strat = *trade.Strategy
	}

	err := m.ledger.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		var current *domain.Position
		row, err := tx.Positions().Get(ctx, trade.Broker, strat, trade.Symbol)
		switch {
		case err == nil:
			current = row
		case errors.Is(err, storage.ErrNotFound):
		default:
			return fmt.Errorf("load position: %w", err)
		}

		filled := *trade
		filled.ExecutedPrice = &executed
		if filled.Strategy == nil {
			filled.Strategy = &strat
		}

		var pnl *float64
		res, err := ledger.Apply(m.log, &filled, current, now)
		switch {
		case err == nil:
			pnl = res.RealizedPnL
			if res.Delete {
				if err := tx.Positions().Delete(ctx, trade.Broker, strat, trade.Symbol); err != nil {
					return fmt.Errorf("close position: %w", err)
				}
			} else if res.Position != nil {
				if err := tx.Positions().Upsert(ctx, res.Position); err != nil {
					return fmt.Errorf("update position: %w", err)
				}
			}
		case errors.Is(err, ledger.ErrNoPosition):
			// The brokerage filled a sell we have no basis for. Record
			// the fill with unknown PnL; the next reconcile pass will
			// square the holdings.
			m.log.Error("fill without ledger position",
				"trade_id", trade.ID, "symbol", trade.Symbol, "strategy", strat)
		default:
			return fmt.Errorf("apply fill: %w", err)
		}

		if err := tx.Trades().MarkFilled(ctx, trade.ID, executed, pnl); err != nil {
			return fmt.Errorf("mark filled: %w", err)
		}

		return m.adjustCash(ctx, tx, trade, executed, strat, now)
	})
	if err != nil {
		return err
	}
	m.metrics.RecordOrderTransition(string(domain.StatusFilled))
	return nil
}

// adjustCash debits buys and credits sells against the strategy's latest
// cash snapshot.
func (m *Manager) adjustCash(ctx context.Context, tx storage.Ledger, trade *domain.Trade, executed float64, strat string, now time.Time) error {
	delta := trade.Quantity * executed * symbols.Multiplier(m.log, trade.Symbol)
	if trade.Side == domain.SideBuy {
		delta = -delta
	}

	var prev float64
	latest, err := tx.Balances().GetLatest(ctx, trade.Broker, strat, domain.BalanceTypeCash)
	switch {
	case err == nil:
		prev = latest.Balance
	case errors.Is(err, storage.ErrNotFound):
	default:
		return fmt.Errorf("latest cash: %w", err)
	}

	if err := tx.Balances().Insert(ctx, &domain.Balance{
		Broker:    trade.Broker,
		Strategy:  strat,
		Type:      domain.BalanceTypeCash,
		Balance:   prev + delta,
		Timestamp: now,
	}); err != nil {
		return fmt.Errorf("insert cash adjustment: %w", err)
	}
	return nil
}

// reprice cancels an aged pegged order and replaces it at the current mid
// price, rounded to cents. The replacement is a brand-new trade row.
func (m *Manager) reprice(ctx context.Context, b broker.Broker, trade *domain.Trade, brokerOrderID string, now time.Time) error {
	mid, err := b.GetMidPrice(ctx, trade.Symbol)
	if err != nil {
		m.metrics.RecordBrokerError(trade.Broker)
		return fmt.Errorf("mid price for %s: %w", trade.Symbol, err)
	}
	newPrice := math.Round(mid*100) / 100

	if err := b.CancelOrder(ctx, brokerOrderID); err != nil {
		m.metrics.RecordBrokerError(trade.Broker)
		return fmt.Errorf("cancel order %s: %w", brokerOrderID, err)
	}

	receipt, placeErr := b.PlaceOrder(ctx, &broker.Order{
		Symbol:     trade.Symbol,
		Quantity:   trade.Quantity,
		Side:       trade.Side,
		OrderType:  domain.OrderTypeLimit,
		LimitPrice: newPrice,
	})
	if placeErr != nil {
		m.metrics.RecordBrokerError(trade.Broker)
	}

	err = m.ledger.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		if err := tx.Trades().UpdateStatus(ctx, trade.ID, domain.StatusCancelled); err != nil {
			return fmt.Errorf("mark cancelled: %w", err)
		}
		if placeErr != nil {
			// The old order is gone either way; the replacement failed
			// and there is nothing to track.
			return nil
		}

		replacement := &domain.Trade{
			ID:             uuid.New().String(),
			Symbol:         trade.Symbol,
			Quantity:       trade.Quantity,
			Price:          newPrice,
			Side:           trade.Side,
			OrderType:      domain.OrderTypeLimit,
			ExecutionStyle: domain.ExecutionStylePegged,
			Status:         domain.StatusOpen,
			Timestamp:      now,
			Broker:         trade.Broker,
			Strategy:       trade.Strategy,
			BrokerOrderID:  &receipt.BrokerOrderID,
		}
		if err := tx.Trades().Insert(ctx, replacement); err != nil {
			return fmt.Errorf("insert replacement: %w", err)
		}
		m.log.Info("repriced pegged order",
			"trade_id", trade.ID,
			"replacement_id", replacement.ID,
			"old_price", trade.Price,
			"new_price", newPrice)
		return nil
	})
	if err != nil {
		return err
	}

	m.metrics.RecordOrderTransition(string(domain.StatusCancelled))
	if placeErr != nil {
		return fmt.Errorf("replacement order: %w", placeErr)
	}
	return nil
}
