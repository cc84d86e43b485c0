package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/broker/stub"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage"
	"github.com/r0fls/soad-sub000/internal/storage/memory"
)

func newBalanceReconciler(l storage.Ledger, at time.Time) *BalanceReconciler {
	r := NewBalanceReconciler(l, nil, discardLog(), nil)
	r.now = func() time.Time { return at }
	return r
}

func TestBalanceReconciler_SnapshotsAndUncategorizedCash(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	// alpha holds 10 AAPL at 150; prior alpha cash is 2000.
	if err := l.Positions().Upsert(ctx, &domain.Position{
		Broker: "tradier", Strategy: "alpha", Symbol: "AAPL",
		Quantity: 10, LatestPrice: 150, CostBasis: 1500, LastUpdated: reconcileNow,
	}); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	if err := l.Balances().Insert(ctx, &domain.Balance{
		Broker: "tradier", Strategy: "alpha", Type: domain.BalanceTypeCash,
		Balance: 2000, Timestamp: reconcileNow.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed cash: %v", err)
	}

	b := stub.NewBroker()
	b.Account = broker.AccountInfo{Cash: 6500, TotalValue: 10000}
	b.Holdings["AAPL"] = broker.Position{Quantity: 10, CostBasis: 1500}

	r := newBalanceReconciler(l, reconcileNow)
	if err := r.ReconcileBroker(ctx, "tradier", b, []string{"alpha"}); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	cash, err := l.Balances().GetLatest(ctx, "tradier", "alpha", domain.BalanceTypeCash)
	if err != nil {
		t.Fatalf("alpha cash: %v", err)
	}
	if cash.Balance != 2000 {
		t.Errorf("alpha cash = %v, want carried-forward 2000", cash.Balance)
	}

	positions, err := l.Balances().GetLatest(ctx, "tradier", "alpha", domain.BalanceTypePositions)
	if err != nil {
		t.Fatalf("alpha positions: %v", err)
	}
	if positions.Balance != 1500 {
		t.Errorf("alpha positions = %v, want 1500", positions.Balance)
	}

	// 10000 - (2000 cash + 1500 positions) - 0 uncategorized positions.
	uncatCash, err := l.Balances().GetLatest(ctx, "tradier", domain.StrategyUncategorized, domain.BalanceTypeCash)
	if err != nil {
		t.Fatalf("uncategorized cash: %v", err)
	}
	if uncatCash.Balance != 6500 {
		t.Errorf("uncategorized cash = %v, want 6500", uncatCash.Balance)
	}

	snap, err := l.Accounts().Get(ctx, "tradier")
	if err != nil {
		t.Fatalf("account snapshot: %v", err)
	}
	if snap.Value != 10000 {
		t.Errorf("account value = %v, want 10000", snap.Value)
	}
}

func TestBalanceReconciler_NegativeUncategorizedCashClampsToZero(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	// Named strategy balances exceed account equity.
	if err := l.Balances().Insert(ctx, &domain.Balance{
		Broker: "tradier", Strategy: "alpha", Type: domain.BalanceTypeCash,
		Balance: 12000, Timestamp: reconcileNow.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("seed cash: %v", err)
	}

	b := stub.NewBroker()
	b.Account = broker.AccountInfo{TotalValue: 10000}

	r := newBalanceReconciler(l, reconcileNow)
	if err := r.ReconcileBroker(ctx, "tradier", b, []string{"alpha"}); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	uncatCash, err := l.Balances().GetLatest(ctx, "tradier", domain.StrategyUncategorized, domain.BalanceTypeCash)
	if err != nil {
		t.Fatalf("uncategorized cash: %v", err)
	}
	if uncatCash.Balance != 0 {
		t.Errorf("uncategorized cash = %v, want clamped 0", uncatCash.Balance)
	}
}

func TestBalanceReconciler_FirstRunCashIsZero(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	b := stub.NewBroker()
	b.Account = broker.AccountInfo{TotalValue: 5000}

	r := newBalanceReconciler(l, reconcileNow)
	if err := r.ReconcileBroker(ctx, "tradier", b, []string{"alpha"}); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	cash, err := l.Balances().GetLatest(ctx, "tradier", "alpha", domain.BalanceTypeCash)
	if err != nil {
		t.Fatalf("alpha cash: %v", err)
	}
	if cash.Balance != 0 {
		t.Errorf("alpha cash = %v, want 0 on first run", cash.Balance)
	}

	uncatCash, err := l.Balances().GetLatest(ctx, "tradier", domain.StrategyUncategorized, domain.BalanceTypeCash)
	if err != nil {
		t.Fatalf("uncategorized cash: %v", err)
	}
	if uncatCash.Balance != 5000 {
		t.Errorf("uncategorized cash = %v, want full account value", uncatCash.Balance)
	}
}

func TestBalanceReconciler_SkipsUnconfirmedPositions(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	if err := l.Positions().Upsert(ctx, &domain.Position{
		Broker: "tradier", Strategy: "alpha", Symbol: "GONE",
		Quantity: 10, LatestPrice: 100, LastUpdated: reconcileNow,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := stub.NewBroker()
	b.Account = broker.AccountInfo{TotalValue: 1000}

	r := newBalanceReconciler(l, reconcileNow)
	if err := r.ReconcileBroker(ctx, "tradier", b, []string{"alpha"}); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	positions, err := l.Balances().GetLatest(ctx, "tradier", "alpha", domain.BalanceTypePositions)
	if err != nil {
		t.Fatalf("alpha positions: %v", err)
	}
	if positions.Balance != 0 {
		t.Errorf("positions = %v, want 0 with unconfirmed symbol skipped", positions.Balance)
	}
}

func TestBalanceReconciler_OptionPositionUsesMultiplier(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	const opt = "AAPL240621C00150000"
	if err := l.Positions().Upsert(ctx, &domain.Position{
		Broker: "tradier", Strategy: "alpha", Symbol: opt,
		Quantity: 2, LatestPrice: 5, LastUpdated: reconcileNow,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := stub.NewBroker()
	b.Account = broker.AccountInfo{TotalValue: 10000}
	b.Holdings[opt] = broker.Position{Quantity: 2, CostBasis: 900}

	r := newBalanceReconciler(l, reconcileNow)
	if err := r.ReconcileBroker(ctx, "tradier", b, []string{"alpha"}); err != nil {
		t.Fatalf("ReconcileBroker: %v", err)
	}

	positions, err := l.Balances().GetLatest(ctx, "tradier", "alpha", domain.BalanceTypePositions)
	if err != nil {
		t.Fatalf("alpha positions: %v", err)
	}
	if positions.Balance != 2*5*100 {
		t.Errorf("positions = %v, want 1000", positions.Balance)
	}
}
