package marketdata

import (
	"fmt"
	"math"
)

// tradingDaysPerYear annualizes daily return volatility.
const tradingDaysPerYear = 252

// AnnualizedVolatility computes the sample standard deviation of daily
// percentage returns, scaled by sqrt(252). Needs at least two closes to
// form one return; a constant series yields 0.
func AnnualizedVolatility(closes []float64) (float64, error) {
	if len(closes) < 2 {
		return 0, fmt.Errorf("need at least 2 closes, got %d", len(closes))
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if prev == 0 {
			return 0, fmt.Errorf("zero close at index %d", i-1)
		}
		returns = append(returns, closes[i]/prev-1)
	}
	if len(returns) < 2 {
		return 0, nil
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var sumSq float64
	for _, r := range returns {
		d := r - mean
		sumSq += d * d
	}
	// Sample variance (n-1 denominator).
	variance := sumSq / float64(len(returns)-1)

	return math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear), nil
}
