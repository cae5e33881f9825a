// Package formulas holds small numeric helpers shared by the estimation packages.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance of a slice of float64 values
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// MeanSquare returns the average of x², the variance about zero.
func MeanSquare(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	var s float64
	for _, v := range data {
		s += v * v
	}
	return s / float64(len(data))
}

// AllFinite reports whether every value is neither NaN nor ±Inf.
func AllFinite(data []float64) bool {
	for _, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// EWMABackcast returns the exponentially weighted average of the first
// min(window, len) squared values with decay lambda, newest weight first.
// It seeds pre-sample variance terms of recursive volatility filters.
func EWMABackcast(resids []float64, window int, lambda float64) float64 {
	n := len(resids)
	if n == 0 {
		return 0
	}
	if window > n {
		window = n
	}
	var num, den float64
	w := 1.0
	for i := 0; i < window; i++ {
		num += w * resids[i] * resids[i]
		den += w
		w *= lambda
	}
	return num / den
}
