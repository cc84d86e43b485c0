package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/r0fls/soad-sub000/internal/broker"
	"github.com/r0fls/soad-sub000/internal/broker/stub"
	"github.com/r0fls/soad-sub000/internal/domain"
	"github.com/r0fls/soad-sub000/internal/storage/memory"
)

type fakeHistory struct {
	closes map[string][]float64
}

func (f *fakeHistory) DailyCloses(_ context.Context, symbol string, _ time.Duration) ([]float64, error) {
	closes, ok := f.closes[symbol]
	if !ok {
		return nil, fmt.Errorf("no history for %s", symbol)
	}
	return closes, nil
}

func TestEnricher_SetsVolatility(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	if err := l.Positions().Upsert(ctx, &domain.Position{
		Broker: "tradier", Strategy: "alpha", Symbol: "AAPL",
		Quantity: 10, LatestPrice: 150, LastUpdated: reconcileNow,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := stub.NewBroker()
	b.Prices["AAPL"] = 150

	history := &fakeHistory{closes: map[string][]float64{
		"AAPL": {100, 100, 100, 100, 100},
	}}

	e := NewEnricher(l, history, map[string]broker.Broker{"tradier": b}, discardLog())
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	row, err := l.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.UnderlyingVolatility == nil {
		t.Fatal("volatility not set")
	}
	if *row.UnderlyingVolatility != 0 {
		t.Errorf("volatility = %v, want 0 for a flat series", *row.UnderlyingVolatility)
	}
	// Underlying price is only refreshed for derivatives.
	if row.UnderlyingLatestPrice != nil {
		t.Error("underlying price set for a plain equity")
	}
}

func TestEnricher_RefreshesLatestPrice(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	// The stored mark is stale relative to the broker's current price.
	if err := l.Positions().Upsert(ctx, &domain.Position{
		Broker: "tradier", Strategy: "alpha", Symbol: "AAPL",
		Quantity: 10, LatestPrice: 140, LastUpdated: reconcileNow,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	b := stub.NewBroker()
	b.Prices["AAPL"] = 151.5

	history := &fakeHistory{closes: map[string][]float64{
		"AAPL": {100, 101, 100, 101, 100},
	}}

	e := NewEnricher(l, history, map[string]broker.Broker{"tradier": b}, discardLog())
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	row, err := l.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.LatestPrice != 151.5 {
		t.Errorf("latest price = %v, want 151.5", row.LatestPrice)
	}
}

func TestEnricher_DerivativeGetsUnderlyingPrice(t *testing.T) {
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
	b.Prices[opt] = 5.25
	b.Prices["AAPL"] = 152.5

	history := &fakeHistory{closes: map[string][]float64{
		"AAPL": {100, 101, 100, 101, 100},
	}}

	e := NewEnricher(l, history, map[string]broker.Broker{"tradier": b}, discardLog())
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	row, err := l.Positions().Get(ctx, "tradier", "alpha", opt)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.LatestPrice != 5.25 {
		t.Errorf("latest price = %v, want 5.25", row.LatestPrice)
	}
	if row.UnderlyingLatestPrice == nil || *row.UnderlyingLatestPrice != 152.5 {
		t.Errorf("underlying price = %v, want 152.5", row.UnderlyingLatestPrice)
	}
	if row.UnderlyingVolatility == nil || *row.UnderlyingVolatility == 0 {
		t.Error("volatility not set for derivative underlying")
	}
}

func TestEnricher_FailuresAreSkipped(t *testing.T) {
	l := memory.NewLedger()
	ctx := context.Background()

	// One symbol has history, the other does not.
	for _, sym := range []string{"AAPL", "NOHIST"} {
		if err := l.Positions().Upsert(ctx, &domain.Position{
			Broker: "tradier", Strategy: "alpha", Symbol: sym,
			Quantity: 1, LatestPrice: 100, LastUpdated: reconcileNow,
		}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	b := stub.NewBroker()
	b.Prices["AAPL"] = 100
	b.Prices["NOHIST"] = 100

	history := &fakeHistory{closes: map[string][]float64{
		"AAPL": {100, 100, 100},
	}}

	e := NewEnricher(l, history, map[string]broker.Broker{"tradier": b}, discardLog())
	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	enriched, _ := l.Positions().Get(ctx, "tradier", "alpha", "AAPL")
	if enriched.UnderlyingVolatility == nil {
		t.Error("healthy symbol not enriched")
	}
	skipped, _ := l.Positions().Get(ctx, "tradier", "alpha", "NOHIST")
	if skipped.UnderlyingVolatility != nil {
		t.Error("failed symbol unexpectedly enriched")
	}
}
