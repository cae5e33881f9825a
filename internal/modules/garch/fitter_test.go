package garch

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// simulateGARCH draws a GARCH(1,1) path with normal innovations.
func simulateGARCH(T int, mu, omega, alpha, beta float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	y := make([]float64, T)
	sigma2 := omega / (1 - alpha - beta)
	eps := 0.0
	for t := range y {
		if t > 0 {
			sigma2 = omega + alpha*eps*eps + beta*sigma2
		}
		eps = math.Sqrt(sigma2) * rng.NormFloat64()
		y[t] = mu + eps
	}
	return y
}

func garchSpec(p, o, q int, family VolatilityFamily, mean MeanModel, dist Distribution) ModelSpec {
	return ModelSpec{
		Candidate:    Candidate{Orders: Orders{P: p, O: o, Q: q}, Volatility: family},
		Mean:         mean,
		Distribution: dist,
	}
}

func TestQMLEFitter_RecoversGARCH11(t *testing.T) {
	y := simulateGARCH(3000, 0.05, 0.05, 0.08, 0.90, 7)
	spec := garchSpec(1, 0, 1, GARCH, MeanConstant, Normal)

	model, err := NewQMLEFitter().Fit(context.Background(), y, spec)
	require.NoError(t, err)

	assert.Equal(t, []string{"mu", "omega", "alpha[1]", "beta[1]"}, model.ParamNames)
	require.Len(t, model.Params, 4)
	assert.InDelta(t, 0.05, model.Params[0], 0.05)
	assert.InDelta(t, 0.08, model.Params[2], 0.04)
	assert.InDelta(t, 0.90, model.Params[3], 0.05)

	assert.Equal(t, 4, model.NumParams)
	assert.Equal(t, 3000, model.NumObs)
	assert.Len(t, model.ConditionalVolatility, 3000)
	assert.Len(t, model.StandardizedResiduals, 3000)
	assert.InDelta(t, -2*model.LogLikelihood+4*math.Log(3000), model.BIC, 1e-9)
	assert.InDelta(t, -2*model.LogLikelihood+8, model.AIC, 1e-9)

	for t2, v := range model.ConditionalVolatility {
		require.Greater(t, v, 0.0)
		assert.InDelta(t, model.Residuals[t2]/v, model.StandardizedResiduals[t2], 1e-12)
	}
	for _, se := range model.StdErrors[1:] {
		if !math.IsNaN(se) {
			assert.Greater(t, se, 0.0)
		}
	}
}

func TestQMLEFitter_PrefersTrueOrderByBIC(t *testing.T) {
	y := simulateGARCH(2000, 0, 0.05, 0.10, 0.85, 11)
	fitter := NewQMLEFitter()

	garch11, err := fitter.Fit(context.Background(), y, garchSpec(1, 0, 1, GARCH, MeanZero, Normal))
	require.NoError(t, err)
	arch1, err := fitter.Fit(context.Background(), y, garchSpec(1, 0, 0, GARCH, MeanZero, Normal))
	require.NoError(t, err)

	assert.Less(t, garch11.BIC, arch1.BIC)
}

func TestQMLEFitter_FamiliesProduceWellFormedFitsOrTypedErrors(t *testing.T) {
	y := simulateGARCH(800, 0.02, 0.05, 0.08, 0.88, 3)
	fitter := &QMLEFitter{MaxIterations: 3000, FIGARCHTruncation: 200}

	specs := []ModelSpec{
		garchSpec(1, 1, 1, GARCH, MeanConstant, Normal),
		garchSpec(2, 0, 0, ARCH, MeanZero, Normal),
		garchSpec(1, 1, 1, EGARCH, MeanConstant, Normal),
		garchSpec(1, 1, 1, APARCH, MeanConstant, Normal),
		garchSpec(1, 0, 1, FIGARCH, MeanConstant, Normal),
		garchSpec(3, 0, 0, HARCH, MeanConstant, Normal),
		garchSpec(1, 0, 1, GARCH, MeanAR, StudentsT),
		garchSpec(1, 0, 1, GARCH, MeanHAR, SkewT),
		garchSpec(1, 0, 1, GARCH, MeanConstant, GED),
	}
	for _, spec := range specs {
		t.Run(spec.String(), func(t *testing.T) {
			model, err := fitter.Fit(context.Background(), y, spec)
			if err != nil {
				assert.True(t,
					errorsIsAny(err, ErrNonConvergence, ErrIllConditioned),
					"unexpected error type: %v", err)
				return
			}
			assert.Equal(t, len(model.ParamNames), model.NumParams)
			assert.Len(t, model.Params, model.NumParams)
			assert.Len(t, model.StdErrors, model.NumParams)
			assert.False(t, math.IsNaN(model.LogLikelihood))
			for _, v := range model.ConditionalVolatility {
				require.Greater(t, v, 0.0)
			}
		})
	}
}

func TestQMLEFitter_InsufficientData(t *testing.T) {
	fitter := NewQMLEFitter()
	spec := garchSpec(1, 0, 1, GARCH, MeanConstant, Normal)

	_, err := fitter.Fit(context.Background(), []float64{0.1, -0.2, 0.3}, spec)
	assert.ErrorIs(t, err, ErrInsufficientData)

	y := simulateGARCH(200, 0, 0.05, 0.08, 0.9, 1)
	y[10] = math.NaN()
	_, err = fitter.Fit(context.Background(), y, spec)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestQMLEFitter_RejectsConstantSeries(t *testing.T) {
	fitter := NewQMLEFitter()
	zeros := make([]float64, 200)
	level := make([]float64, 200)
	for i := range level {
		level[i] = 0.25
	}

	specs := []ModelSpec{
		garchSpec(1, 0, 1, EGARCH, MeanZero, Normal),
		garchSpec(1, 0, 1, GARCH, MeanConstant, Normal),
		garchSpec(1, 0, 1, GARCH, MeanAR, StudentsT),
	}
	for _, series := range [][]float64{zeros, level} {
		for _, spec := range specs {
			t.Run(spec.String(), func(t *testing.T) {
				_, err := fitter.Fit(context.Background(), series, spec)
				assert.ErrorIs(t, err, ErrInsufficientData)
			})
		}
	}
}

func TestQMLEFitter_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	y := simulateGARCH(500, 0, 0.05, 0.08, 0.9, 5)
	_, err := NewQMLEFitter().Fit(ctx, y, garchSpec(1, 0, 1, GARCH, MeanConstant, Normal))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQMLEFitter_IterationBudgetExhausted(t *testing.T) {
	y := simulateGARCH(500, 0, 0.05, 0.08, 0.9, 9)
	fitter := &QMLEFitter{MaxIterations: 2}

	_, err := fitter.Fit(context.Background(), y, garchSpec(1, 0, 1, GARCH, MeanConstant, StudentsT))
	assert.ErrorIs(t, err, ErrNonConvergence)
}

func TestInformationCriteria(t *testing.T) {
	aic, bic := InformationCriteria(-100, 3, 250)
	assert.InDelta(t, 206, aic, 1e-12)
	assert.InDelta(t, 200+3*math.Log(250), bic, 1e-12)
}

func errorsIsAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
