package garch

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGARCHProcess_FilterMatchesRecursion(t *testing.T) {
	eps := []float64{0.5, -1.0, 0.2, -0.3}
	theta := []float64{0.1, 0.05, 0.1, 0.8} // omega, alpha, gamma, beta
	backcast := 0.4

	proc, err := newVarianceProcess(Candidate{Orders: Orders{P: 1, O: 1, Q: 1}, Volatility: GARCH}, len(eps), 0)
	require.NoError(t, err)
	require.True(t, proc.feasible(theta))

	sigma2 := make([]float64, len(eps))
	require.True(t, proc.filter(theta, eps, backcast, sigma2))

	want := 0.1 + 0.05*backcast + 0.5*0.1*backcast + 0.8*backcast
	assert.InDelta(t, want, sigma2[0], 1e-12)
	for i := 1; i < len(eps); i++ {
		want = 0.1 + 0.05*eps[i-1]*eps[i-1] + 0.8*sigma2[i-1]
		if eps[i-1] < 0 {
			want += 0.1 * eps[i-1] * eps[i-1]
		}
		assert.InDelta(t, want, sigma2[i], 1e-12)
	}
}

func TestGARCHProcess_Feasibility(t *testing.T) {
	proc, err := newVarianceProcess(Candidate{Orders: Orders{P: 1, Q: 1}, Volatility: GARCH}, 10, 0)
	require.NoError(t, err)

	assert.True(t, proc.feasible([]float64{0.1, 0.1, 0.85}))
	assert.False(t, proc.feasible([]float64{0.1, 0.2, 0.85}), "persistence >= 1")
	assert.False(t, proc.feasible([]float64{-0.1, 0.1, 0.5}), "omega <= 0")
	assert.False(t, proc.feasible([]float64{0.1, -0.1, 0.5}), "negative alpha")
}

func TestARCHProcess_IgnoresQAndO(t *testing.T) {
	proc, err := newVarianceProcess(Candidate{Orders: Orders{P: 2, O: 1, Q: 1}, Volatility: ARCH}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"omega", "alpha[1]", "alpha[2]"}, proc.names())
}

func TestFIGARCHProcess_WeightsSumToLongRunFraction(t *testing.T) {
	proc, err := newVarianceProcess(Candidate{Orders: Orders{P: 1, Q: 1}, Volatility: FIGARCH}, 100, 5000)
	require.NoError(t, err)
	fig := proc.(*figarchProcess)
	assert.Equal(t, []string{"omega", "phi", "d", "beta"}, fig.names())

	// d = 1 collapses to IGARCH-like weights summing to one as the lag grows.
	fig.weights(0.2, 1.0, 0.5)
	assert.InDelta(t, 1.0, fig.tail[0], 1e-3)

	for _, l := range fig.lambda[:50] {
		assert.GreaterOrEqual(t, l, 0.0)
	}
}

func TestFIGARCHProcess_FilterMatchesLagSum(t *testing.T) {
	eps := []float64{0.5, -1.0, 0.2, -0.3, 1.4, -0.7, 0.1, 0.9, -1.2, 0.3, 0.6, -0.4}
	theta := []float64{0.1, 0.1, 0.4, 0.3} // omega, phi, d, beta
	backcast := 0.5
	const trunc = 5

	proc, err := newVarianceProcess(Candidate{Orders: Orders{P: 1, Q: 1}, Volatility: FIGARCH}, len(eps), trunc)
	require.NoError(t, err)
	require.True(t, proc.feasible(theta))

	sigma2 := make([]float64, len(eps))
	require.True(t, proc.filter(theta, eps, backcast, sigma2))

	fig := proc.(*figarchProcess)
	for ts := range eps {
		want := 0.1 / (1 - 0.3)
		for k := 0; k < trunc; k++ {
			if lag := ts - k - 1; lag >= 0 {
				want += fig.lambda[k] * eps[lag] * eps[lag]
			} else {
				want += fig.lambda[k] * backcast
			}
		}
		assert.InDelta(t, want, sigma2[ts], 1e-12, "t=%d", ts)
	}
}

func TestFIGARCHProcess_Feasibility(t *testing.T) {
	proc, _ := newVarianceProcess(Candidate{Orders: Orders{P: 1, Q: 1}, Volatility: FIGARCH}, 100, 100)
	assert.True(t, proc.feasible([]float64{0.1, 0.1, 0.4, 0.3}))
	assert.False(t, proc.feasible([]float64{0.1, 0.4, 0.4, 0.3}), "phi > (1-d)/2")
	assert.False(t, proc.feasible([]float64{0.1, 0.1, 0.4, 0.6}), "beta > d+phi")
	assert.False(t, proc.feasible([]float64{0.1, 0.1, 1.2, 0.3}), "d > 1")
}

func TestHARCHProcess_UsesAveragedResiduals(t *testing.T) {
	eps := []float64{1, 2, 3, 4}
	proc, err := newVarianceProcess(Candidate{Orders: Orders{P: 2}, Volatility: HARCH}, len(eps), 0)
	require.NoError(t, err)

	theta := []float64{0.1, 0.2, 0.3}
	sigma2 := make([]float64, len(eps))
	require.True(t, proc.filter(theta, eps, 1.5, sigma2))

	assert.InDelta(t, 0.1+0.2*1.5+0.3*1.5, sigma2[0], 1e-12)
	assert.InDelta(t, 0.1+0.2*1+0.3*1.5, sigma2[1], 1e-12)
	assert.InDelta(t, 0.1+0.2*4+0.3*2.25, sigma2[2], 1e-12)
	assert.InDelta(t, 0.1+0.2*9+0.3*6.25, sigma2[3], 1e-12)
}

func TestEGARCHProcess_StaysPositive(t *testing.T) {
	eps := []float64{3, -4, 0.1, -0.2, 5}
	proc, err := newVarianceProcess(Candidate{Orders: Orders{P: 1, O: 1, Q: 1}, Volatility: EGARCH}, len(eps), 0)
	require.NoError(t, err)

	theta := []float64{-0.1, 0.2, -0.1, 0.9}
	sigma2 := make([]float64, len(eps))
	require.True(t, proc.filter(theta, eps, 1.0, sigma2))
	for _, s := range sigma2 {
		assert.Greater(t, s, 0.0)
		assert.False(t, math.IsInf(s, 0))
	}
}

func TestAPARCHProcess_DeltaTwoWithoutAsymmetryIsGARCH(t *testing.T) {
	eps := []float64{0.5, -1.0, 0.2}
	aparch, _ := newVarianceProcess(Candidate{Orders: Orders{P: 1, Q: 1}, Volatility: APARCH}, len(eps), 0)
	garch, _ := newVarianceProcess(Candidate{Orders: Orders{P: 1, Q: 1}, Volatility: GARCH}, len(eps), 0)

	a := make([]float64, len(eps))
	g := make([]float64, len(eps))
	require.True(t, aparch.filter([]float64{0.1, 0.1, 0.8, 2}, eps, 0.5, a))
	require.True(t, garch.filter([]float64{0.1, 0.1, 0.8}, eps, 0.5, g))
	assert.InDeltaSlice(t, g, a, 1e-12)
}
