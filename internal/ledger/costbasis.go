// Package ledger implements the cost-basis bookkeeping applied when a
// filled trade is committed against a position.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/symbols"
)

// ErrNoPosition is returned when a sell has no matching position.
var ErrNoPosition = errors.New("no matching position for sell")

// Result is the outcome of applying a filled trade to a position.
type Result struct {
	// Position is the new position state, or nil when the position is
	// fully closed (or never existed, for zero-quantity trades).
	Position *domain.Position

	// RealizedPnL is set only for sells; nil for buys.
	RealizedPnL *float64

	// Delete indicates the existing position row must be removed.
	Delete bool
}

// Apply computes the position state and realized PnL that follow from a
// filled trade. current is nil when no position exists for the trade's
// (broker, strategy, symbol). Apply is pure: it never touches storage.
func Apply(log *slog.Logger, trade *domain.Trade, current *domain.Position, now time.Time) (*Result, error) {
	if trade.ExecutedPrice == nil {
		return nil, fmt.Errorf("trade %s has no executed price", trade.ID)
	}
	if trade.Quantity == 0 {
		// Zero-quantity trades neither create nor mutate positions.
		return &Result{}, nil
	}

	executed := *trade.ExecutedPrice

	switch trade.Side {
	case domain.SideBuy:
		return applyBuy(trade, current, executed, now), nil
	case domain.SideSell:
		return applySell(log, trade, current, executed, now)
	default:
		return nil, fmt.Errorf("unknown trade side %q", trade.Side)
	}
}

func applyBuy(trade *domain.Trade, current *domain.Position, executed float64, now time.Time) *Result {
	strategy := domain.StrategyUncategorized
	if trade.Strategy != nil {
		strategy = *trade.Strategy
	}

	if current == nil {
		return &Result{Position: &domain.Position{
			Broker:      trade.Broker,
			Strategy:    strategy,
			Symbol:      trade.Symbol,
			Quantity:    trade.Quantity,
			LatestPrice: executed,
			CostBasis:   trade.Quantity * executed,
			LastUpdated: now,
		}}
	}

	next := *current
	next.Quantity += trade.Quantity
	next.CostBasis += trade.Quantity * executed
	next.LatestPrice = executed
	next.LastUpdated = now
	return &Result{Position: &next}
}

func applySell(log *slog.Logger, trade *domain.Trade, current *domain.Position, executed float64, now time.Time) (*Result, error) {
	if current == nil || current.Quantity <= 0 {
		log.Error("sell without matching position",
			"trade_id", trade.ID, "symbol", trade.Symbol, "broker", trade.Broker)
		return nil, ErrNoPosition
	}

	multiplier := symbols.Multiplier(log, trade.Symbol)

	perShare := current.CostBasis / current.Quantity

	if trade.Quantity >= current.Quantity {
		// Full close: the row is removed entirely so that "position
		// exists" stays equivalent to "quantity > 0".
		pnl := (executed - perShare) * current.Quantity * multiplier
		return &Result{RealizedPnL: &pnl, Delete: true}, nil
	}

	pnl := (executed - perShare) * trade.Quantity * multiplier

	next := *current
	next.Quantity -= trade.Quantity
	next.CostBasis -= perShare * trade.Quantity
	next.LatestPrice = executed
	next.LastUpdated = now
	return &Result{Position: &next, RealizedPnL: &pnl}, nil
}
