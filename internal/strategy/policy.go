// Package strategy defines the should-own callback the position
// reconciler consults when attributing brokerage holdings to strategies.
// Decision logic itself lives outside this repository; the engine only
// needs the claim surface.
package strategy

import (
	"context"
	"errors"
)

// ErrUnknownStrategy is returned when a registry lookup misses.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Policy reports whether a strategy claims a holding in symbol at the
// given mark price, and the quantity it wants to own. claimed=false
// means the strategy has no opinion on the symbol at all.
type Policy func(ctx context.Context, symbol string, price float64) (target float64, claimed bool, err error)

// Static returns a Policy that claims fixed per-symbol targets. Symbols
// absent from the map are not claimed.
func Static(targets map[string]float64) Policy {
	// Copy so later mutation of the caller's map cannot change claims.
	own := make(map[string]float64, len(targets))
	for sym, qty := range targets {
		own[sym] = qty
	}

	return func(_ context.Context, symbol string, _ float64) (float64, bool, error) {
		target, ok := own[symbol]
		if !ok {
			return 0, false, nil
		}
		return target, true, nil
	}
}

// Registry maps strategy names to their policies.
type Registry map[string]Policy

// Get looks up a policy by strategy name.
func (r Registry) Get(name string) (Policy, error) {
	policy, ok := r[name]
	if !ok {
		return nil, ErrUnknownStrategy
	}
	return policy, nil
}

// Names returns the registered strategy names in map order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	return names
}
