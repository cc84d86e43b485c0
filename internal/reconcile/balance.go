package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/observability"
	"github.com/r0fls/soad-sub000/internal/storage"
	"github.com/r0fls/soad-sub000/internal/symbols"
)

// BalanceReconciler writes per-strategy cash and positions snapshots and
// squares the uncategorized bucket against total account value. Runs
// strictly after the position reconciler so snapshots see fresh rows.
type BalanceReconciler struct {
	ledger  storage.Ledger
	archive storage.BalanceHistoryStore // optional
	log     *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewBalanceReconciler creates a balance reconciler. archive may be nil;
// when set, committed snapshots are copied to it best-effort.
func NewBalanceReconciler(ledger storage.Ledger, archive storage.BalanceHistoryStore, log *slog.Logger, metrics *observability.Metrics) *BalanceReconciler {
	return &BalanceReconciler{
		ledger:  ledger,
		archive: archive,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ReconcileBroker snapshots balances for one broker. knownStrategies
// seeds the named-strategy set; strategies found in prior balance rows
// are included as well.
func (r *BalanceReconciler) ReconcileBroker(ctx context.Context, name string, b broker.Broker, knownStrategies []string) error {
	acct, err := b.GetAccountInfo(ctx)
	if err != nil {
		r.metrics.RecordBrokerError(name)
		return fmt.Errorf("fetch account info from %s: %w", name, err)
	}

	holdings, err := b.GetPositions(ctx)
	if err != nil {
		r.metrics.RecordBrokerError(name)
		return fmt.Errorf("fetch holdings from %s: %w", name, err)
	}

	now := r.now()
	var written []*domain.Balance

	err = r.ledger.InTx(ctx, func(ctx context.Context, tx storage.Ledger) error {
		written = written[:0]

		if err := tx.Accounts().Upsert(ctx, &domain.AccountSnapshot{
			Broker:    name,
			Value:     acct.TotalValue,
			UpdatedAt: now,
		}); err != nil {
			return fmt.Errorf("upsert account snapshot for %s: %w", name, err)
		}

		named, err := r.namedStrategies(ctx, tx, name, knownStrategies)
		if err != nil {
			return err
		}

		var namedTotal float64
		for _, strat := range named {
			cash, err := r.carryForwardCash(ctx, tx, name, strat, now)
			if err != nil {
				return err
			}

			posValue, err := r.positionsValue(ctx, tx, name, strat, holdings)
			if err != nil {
				return err
			}
			posRow := &domain.Balance{
				Broker:    name,
				Strategy:  strat,
				Type:      domain.BalanceTypePositions,
				Balance:   posValue,
				Timestamp: now,
			}
			if err := tx.Balances().Insert(ctx, posRow); err != nil {
				return fmt.Errorf("insert positions balance %s/%s: %w", name, strat, err)
			}

			written = append(written, cash, posRow)
			namedTotal += cash.Balance + posValue
		}

		uncatPositions, err := r.positionsValue(ctx, tx, name, domain.StrategyUncategorized, holdings)
		if err != nil {
			return err
		}
		uncatPosRow := &domain.Balance{
			Broker:    name,
			Strategy:  domain.StrategyUncategorized,
			Type:      domain.BalanceTypePositions,
			Balance:   uncatPositions,
			Timestamp: now,
		}
		if err := tx.Balances().Insert(ctx, uncatPosRow); err != nil {
			return fmt.Errorf("insert uncategorized positions balance for %s: %w", name, err)
		}

		uncatCash := acct.TotalValue - namedTotal - uncatPositions
		if uncatCash < 0 {
			r.log.Error("uncategorized cash negative, clamping to zero",
				"broker", name,
				"account_value", acct.TotalValue,
				"named_total", namedTotal,
				"uncategorized_positions", uncatPositions,
				"deficit", uncatCash)
			r.metrics.RecordUncategorizedClamp()
			uncatCash = 0
		}
		uncatCashRow := &domain.Balance{
			Broker:    name,
			Strategy:  domain.StrategyUncategorized,
			Type:      domain.BalanceTypeCash,
			Balance:   uncatCash,
			Timestamp: now,
		}
		if err := tx.Balances().Insert(ctx, uncatCashRow); err != nil {
			return fmt.Errorf("insert uncategorized cash balance for %s: %w", name, err)
		}

		written = append(written, uncatPosRow, uncatCashRow)
		return nil
	})
	if err != nil {
		return err
	}

	if r.archive != nil && len(written) > 0 {
		if err := r.archive.InsertBulk(ctx, written); err != nil {
			r.log.Warn("balance history archive write failed", "broker", name, "error", err)
		}
	}
	return nil
}

// namedStrategies merges configured strategies with those seen in prior
// balance rows, excluding the uncategorized bucket.
func (r *BalanceReconciler) namedStrategies(ctx context.Context, tx storage.Ledger, name string, known []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, strat := range known {
		if strat != domain.StrategyUncategorized {
			seen[strat] = struct{}{}
		}
	}

	prior, err := tx.Balances().Strategies(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list strategies for %s: %w", name, err)
	}
	for _, strat := range prior {
		if strat != domain.StrategyUncategorized {
			seen[strat] = struct{}{}
		}
	}

	named := make([]string, 0, len(seen))
	for strat := range seen {
		named = append(named, strat)
	}
	sort.Strings(named)
	return named, nil
}

// carryForwardCash inserts a cash snapshot equal to the previous one,
// or 0.0 when the strategy has no cash history yet.
func (r *BalanceReconciler) carryForwardCash(ctx context.Context, tx storage.Ledger, name, strat string, now time.Time) (*domain.Balance, error) {
	var prev float64
	latest, err := tx.Balances().GetLatest(ctx, name, strat, domain.BalanceTypeCash)
	switch {
	case err == nil:
		prev = latest.Balance
	case errors.Is(err, storage.ErrNotFound):
		prev = 0.0
	default:
		return nil, fmt.Errorf("latest cash for %s/%s: %w", name, strat, err)
	}

	row := &domain.Balance{
		Broker:    name,
		Strategy:  strat,
		Type:      domain.BalanceTypeCash,
		Balance:   prev,
		Timestamp: now,
	}
	if err := tx.Balances().Insert(ctx, row); err != nil {
		return nil, fmt.Errorf("insert cash balance %s/%s: %w", name, strat, err)
	}
	return row, nil
}

// positionsValue marks a strategy's rows to market, skipping rows the
// brokerage no longer confirms.
func (r *BalanceReconciler) positionsValue(ctx context.Context, tx storage.Ledger, name, strat string, holdings map[string]broker.Position) (float64, error) {
	rows, err := tx.Positions().GetByStrategy(ctx, name, strat)
	if err != nil {
		return 0, fmt.Errorf("positions for %s/%s: %w", name, strat, err)
	}

	var total float64
	for _, row := range rows {
		if _, held := holdings[row.Symbol]; !held {
			r.log.Warn("skipping unconfirmed position in balance snapshot",
				"broker", name, "strategy", strat, "symbol", row.Symbol)
			continue
		}
		total += row.Quantity * row.LatestPrice * symbols.Multiplier(r.log, row.Symbol)
	}
	return total, nil
}
