package formulas

import (
	"fmt"
	"math"
)

// LogReturns converts a price path into scaled log returns:
// r[i] = scale * ln(p[i+1] / p[i]). A scale of 100 yields percentage returns,
// which keeps variance parameters of daily data away from zero.
func LogReturns(prices []float64, scale float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("need at least 2 prices, got %d", len(prices))
	}
	if scale == 0 {
		scale = 1
	}
	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev, cur := prices[i-1], prices[i]
		if prev <= 0 || cur <= 0 || math.IsNaN(prev) || math.IsNaN(cur) {
			return nil, fmt.Errorf("non-positive or missing price at index %d", i)
		}
		returns[i-1] = scale * math.Log(cur/prev)
	}
	return returns, nil
}
