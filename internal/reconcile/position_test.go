package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/broker/stub"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
	"github.com/r0fls/soad-sub000/internal/storage/memory"
	"github.com/r0fls/soad-sub000/internal/strategy"
)

var reconcileNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func discardLog() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newPositionReconciler(l storage.Ledger) *PositionReconciler {
	r := NewPositionReconciler(l, discardLog(), nil)
	r.now = func() time.Time { return reconcileNow }
	return r
}

func TestPositionReconciler_ClaimAndOverflow(t *testing.T) {
	l := memory.NewLedger()
	b := stub.NewBroker()
	b.Holdings["AAPL"] = broker.Position{Quantity: 15, CostBasis: 2250}
	b.Prices["AAPL"] = 160

	policies := map[string]strategy.Policy{
		"alpha": strategy.Static(map[string]float64{"AAPL": 10}),
	}

	r := newPositionReconciler(l)
	if err := r.ReconcileBroker(context.Background(), "tradier", b, policies); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	alpha, err := l.Positions().Get(context.Background(), "tradier", "alpha", "AAPL")
	if err != nil {
		t.Fatalf("alpha row: %v", err)
	}
	if alpha.Quantity != 10 || alpha.LatestPrice != 160 {
		t.Errorf("alpha = qty %v price %v, want 10/160", alpha.Quantity, alpha.LatestPrice)
	}
	if alpha.CostBasis != 1500 {
		t.Errorf("alpha cost basis = %v, want prorated 1500", alpha.CostBasis)
	}

	uncat, err := l.Positions().Get(context.Background(), "tradier", domain.StrategyUncategorized, "AAPL")
	if err != nil {
		t.Fatalf("uncategorized row: %v", err)
	}
	if uncat.Quantity != 5 || uncat.CostBasis != 750 {
		t.Errorf("uncategorized = qty %v basis %v, want 5/750", uncat.Quantity, uncat.CostBasis)
	}
}

func TestPositionReconciler_NamedClaimAbsorbsUncategorized(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	seed := &domain.Position{
		Broker: "tradier", Strategy: domain.StrategyUncategorized, Symbol: "AAPL",
		Quantity: 10, LatestPrice: 150, CostBasis: 1500, LastUpdated: reconcileNow,
	}
	if err := l.Positions().Upsert(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := stub.NewBroker()
	b.Holdings["AAPL"] = broker.Position{Quantity: 10, CostBasis: 1500}
	b.Prices["AAPL"] = 155

	policies := map[string]strategy.Policy{
		"alpha": strategy.Static(map[string]float64{"AAPL": 10}),
	}

	r := newPositionReconciler(l)
	if err := r.ReconcileBroker(ctx, "tradier", b, policies); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	if _, err := l.Positions().Get(ctx, "tradier", domain.StrategyUncategorized, "AAPL"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("uncategorized row survived absorption: %v", err)
	}
	alpha, err := l.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	if err != nil {
		t.Fatalf("alpha row: %v", err)
	}
	if alpha.Quantity != 10 {
		t.Errorf("alpha quantity = %v, want 10", alpha.Quantity)
	}
}

func TestPositionReconciler_DeletesRowsAbsentAtBrokerage(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	for _, strat := range []string{"alpha", domain.StrategyUncategorized} {
		if err := l.Positions().Upsert(ctx, &domain.Position{
			Broker: "tradier", Strategy: strat, Symbol: "GONE",
			Quantity: 5, LatestPrice: 10, LastUpdated: reconcileNow,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	b := stub.NewBroker() // holds nothing

	r := newPositionReconciler(l)
	if err := r.ReconcileBroker(ctx, "tradier", b, nil); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	rows, err := l.Positions().GetByBroker(ctx, "tradier")
	if err != nil {
		t.Fatalf("GetByBroker: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected all rows deleted, got %d", len(rows))
	}
}

func TestPositionReconciler_SilentPolicyKeepsExistingRow(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	if err := l.Positions().Upsert(ctx, &domain.Position{
		Broker: "tradier", Strategy: "alpha", Symbol: "MSFT",
		Quantity: 4, LatestPrice: 400, CostBasis: 1600, LastUpdated: reconcileNow.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := stub.NewBroker()
	b.Holdings["MSFT"] = broker.Position{Quantity: 4, CostBasis: 1650}
	b.Prices["MSFT"] = 410

	// The policy only knows about AAPL; MSFT attribution must not move.
	policies := map[string]strategy.Policy{
		"alpha": strategy.Static(map[string]float64{"AAPL": 10}),
	}

	r := newPositionReconciler(l)
	if err := r.ReconcileBroker(ctx, "tradier", b, policies); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	row, err := l.Positions().Get(ctx, "tradier", "alpha", "MSFT")
	if err != nil {
		t.Fatalf("alpha MSFT row: %v", err)
	}
	if row.Quantity != 4 {
		t.Errorf("quantity = %v, want 4", row.Quantity)
	}
	// Unchanged claim keeps the strategy's own cost basis.
	if row.CostBasis != 1600 {
		t.Errorf("cost basis = %v, want 1600", row.CostBasis)
	}
	if row.LatestPrice != 410 {
		t.Errorf("latest price = %v, want refreshed 410", row.LatestPrice)
	}
}

func TestPositionReconciler_HoldingsFailureAbortsBrokerOnly(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	if err := l.Positions().Upsert(ctx, &domain.Position{
		Broker: "tradier", Strategy: "alpha", Symbol: "AAPL",
		Quantity: 10, LatestPrice: 150, CostBasis: 1500, LastUpdated: reconcileNow,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := stub.NewBroker()
	b.Err = errors.New("api down")

	r := newPositionReconciler(l)
	if err := r.ReconcileBroker(ctx, "tradier", b, nil); err == nil {
		t.Fatal("expected error when holdings fetch fails")
	}

	// Nothing applied.
	row, err := l.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	if err != nil {
		t.Fatalf("row lost: %v", err)
	}
	if row.Quantity != 10 {
		t.Errorf("quantity = %v, want untouched 10", row.Quantity)
	}
}
