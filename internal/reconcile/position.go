// Package reconcile implements the bookkeeping passes that keep the
// ledger consistent with brokerage ground truth: position attribution,
// balance snapshots and price/volatility enrichment.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/observability"
	"github.com/r0fls/soad-sub000/internal/storage"
	"github.com/r0fls/soad-sub000/internal/strategy"
)

// PositionReconciler aligns ledger position rows with brokerage holdings.
// The brokerage is ground truth for quantities; strategy policies decide
// attribution.
type PositionReconciler struct {
	ledger  storage.Ledger
	log     *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPositionReconciler creates a position reconciler.
func NewPositionReconciler(ledger storage.Ledger, log *slog.Logger, metrics *observability.Metrics) *PositionReconciler {
	return &PositionReconciler{
		ledger:  ledger,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ReconcileBroker reconciles all position rows for one broker in a single
// transaction. Policies map strategy names to their should-own callbacks;
// the reserved uncategorized strategy must not appear in it.
func (r *PositionReconciler) ReconcileBroker(ctx context.Context, name string, b broker.Broker, policies map[string]strategy.Policy) error {
	holdings, err := b.GetPositions(ctx)
	if err != nil {
		r.metrics.RecordBrokerError(name)
		return fmt.Errorf("fetch holdings from %s: %w", name, err)
	}

	// Fetch all marks before opening the transaction. A price failure
	// aborts the broker; allocations are never applied partially.
	prices := make(map[string]float64, len(holdings))
	for symbol := range holdings {
		price, err := b.GetCurrentPrice(ctx, symbol)
		if err != nil {
			r.metrics.RecordBrokerError(name)
			return fmt.Errorf("fetch price for %s from %s: %w", symbol, name, err)
		}
		prices[symbol] = price
	}

	names := make([]string, 0, len(policies))
	for s := range policies {
		names = append(names, s)
	}
	sort.Strings(names)

	return r.ledger.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		rows, err := tx.Positions().GetByBroker(ctx, name)
		if err != nil {
			return fmt.Errorf("load ledger positions for %s: %w", name, err)
		}

		existing := make(map[string]map[string]*domain.Position) // symbol -> strategy -> row
		for _, row := range rows {
			if existing[row.Symbol] == nil {
				existing[row.Symbol] = make(map[string]*domain.Position)
			}
			existing[row.Symbol][row.Strategy] = row
		}

		// Symbols the brokerage no longer holds are removed across all
		// strategies.
		for symbol, byStrategy := range existing {
			if _, held := holdings[symbol]; held {
				continue
			}
			for strat := range byStrategy {
				if err := tx.Positions().Delete(ctx, name, strat, symbol); err != nil {
					return fmt.Errorf("delete stale position %s/%s: %w", strat, symbol, err)
				}
				r.metrics.RecordPositionDeleted()
				r.log.Info("removed position absent at brokerage",
					"broker", name, "strategy", strat, "symbol", symbol)
			}
		}

		symbols := make([]string, 0, len(holdings))
		for symbol := range holdings {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)

		now := r.now()
		for _, symbol := range symbols {
			held := holdings[symbol]
			if err := r.reconcileSymbol(ctx, tx, name, symbol, held, prices[symbol], names, policies, existing[symbol], now); err != nil {
				return err
			}
		}
		return nil
	})
}

// reconcileSymbol attributes one brokerage holding across strategies.
// Named strategies claim first, in name order, drawing from the shared
// brokerage quantity; whatever remains becomes (or stays) uncategorized.
func (r *PositionReconciler) reconcileSymbol(
	ctx context.Context,
	tx storage.Ledger,
	brokerName, symbol string,
	held broker.Position,
	price float64,
	names []string,
	policies map[string]strategy.Policy,
	rows map[string]*domain.Position,
	now time.Time,
) error {
	remaining := held.Quantity

	for _, strat := range names {
		var existingRow *domain.Position
		if rows != nil {
			existingRow = rows[strat]
		}

		target, claimed, err := policies[strat](ctx, symbol, price)
		if err != nil {
			return fmt.Errorf("policy %s for %s: %w", strat, symbol, err)
		}

		// A silent policy keeps whatever the ledger already attributes
		// to the strategy.
		want := target
		if !claimed {
			want = 0
			if existingRow != nil {
				want = existingRow.Quantity
			}
		}

		claim := want
		if claim > remaining {
			claim = remaining
		}

		if claim <= 0 {
			if existingRow != nil {
				if err := tx.Positions().Delete(ctx, brokerName, strat, symbol); err != nil {
					return fmt.Errorf("delete position %s/%s: %w", strat, symbol, err)
				}
			}
			continue
		}

		row := &domain.Position{
			Broker:      brokerName,
			Strategy:    strat,
			Symbol:      symbol,
			Quantity:    claim,
			LatestPrice: price,
			CostBasis:   prorateBasis(held, claim),
			LastUpdated: now,
		}
		if existingRow != nil {
			// An unchanged claim keeps the strategy's own cost basis and
			// enrichment fields; only the mark is refreshed.
			if existingRow.Quantity == claim {
				row.CostBasis = existingRow.CostBasis
			}
			row.UnderlyingLatestPrice = existingRow.UnderlyingLatestPrice
			row.UnderlyingVolatility = existingRow.UnderlyingVolatility
		}
		if err := tx.Positions().Upsert(ctx, row); err != nil {
			return fmt.Errorf("upsert position %s/%s: %w", strat, symbol, err)
		}
		remaining -= claim
	}

	// Overflow beyond named claims.
	uncatRow := rows[domain.StrategyUncategorized]
	if remaining <= 0 {
		if uncatRow != nil {
			if err := tx.Positions().Delete(ctx, brokerName, domain.StrategyUncategorized, symbol); err != nil {
				return fmt.Errorf("delete uncategorized %s: %w", symbol, err)
			}
		}
		return nil
	}

	row := &domain.Position{
		Broker:      brokerName,
		Strategy:    domain.StrategyUncategorized,
		Symbol:      symbol,
		Quantity:    remaining,
		LatestPrice: price,
		CostBasis:   prorateBasis(held, remaining),
		LastUpdated: now,
	}
	if uncatRow != nil {
		row.UnderlyingLatestPrice = uncatRow.UnderlyingLatestPrice
		row.UnderlyingVolatility = uncatRow.UnderlyingVolatility
	}
	if err := tx.Positions().Upsert(ctx, row); err != nil {
		return fmt.Errorf("upsert uncategorized %s: %w", symbol, err)
	}
	return nil
}

// prorateBasis allocates a share of the brokerage-reported cost basis
// proportional to the claimed quantity.
func prorateBasis(held broker.Position, quantity float64) float64 {
	if held.Quantity == 0 {
		return 0
	}
	return held.CostBasis * quantity / held.Quantity
}
