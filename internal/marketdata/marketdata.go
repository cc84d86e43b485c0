// Package marketdata provides the price history and live quote sources
// used by the enricher and the pegged-order repricer.
package marketdata

import (
	"context"
	"time"
)

// History supplies daily closing prices for a symbol, oldest first.
type History interface {
	DailyCloses(ctx context.Context, symbol string, lookback time.Duration) ([]float64, error)
}
