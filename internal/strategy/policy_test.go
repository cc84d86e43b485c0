package strategy

import (
	"context"
	"errors"
	"testing"
)

func TestStatic_ClaimsConfiguredSymbols(t *testing.T) {
	policy := Static(map[string]float64{"AAPL": 10, "MSFT": 5})
	ctx := context.Background()

	target, claimed, err := policy(ctx, "AAPL", 150.0)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if !claimed || target != 10 {
		t.Errorf("AAPL: target=%v claimed=%v, want 10/true", target, claimed)
	}

	_, claimed, err = policy(ctx, "TSLA", 200.0)
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if claimed {
		t.Error("TSLA claimed without a configured target")
	}
}

func TestStatic_CopiesTargets(t *testing.T) {
	targets := map[string]float64{"AAPL": 10}
	policy := Static(targets)
	targets["AAPL"] = 99

	target, _, _ := policy(context.Background(), "AAPL", 150.0)
	if target != 10 {
		t.Errorf("target = %v, want the value at construction time", target)
	}
}

func TestRegistry_Get(t *testing.T) {
	reg := Registry{"alpha": Static(map[string]float64{"AAPL": 10})}

	if _, err := reg.Get("alpha"); err != nil {
		t.Errorf("Get alpha: %v", err)
	}
	if _, err := reg.Get("missing"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("expected ErrUnknownStrategy, got %v", err)
	}
}
