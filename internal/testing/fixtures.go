package testing

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
)

// FixtureStart is the first timestamp of generated series.
var FixtureStart = time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)

// NewReturnSeriesFixtures simulates a DCC process and returns one daily
// indexed series per asset, named A, B, C, ...
func NewReturnSeriesFixtures(assets, steps int, seed uint64) ([]garch.ReturnSeries, error) {
	cfg := dcc.DefaultSimulationConfig()
	cfg.Assets = assets
	cfg.Steps = steps
	cfg.Seed = seed
	sim, err := dcc.Simulate(cfg)
	if err != nil {
		return nil, err
	}

	index := make([]time.Time, steps)
	for i := range index {
		index[i] = FixtureStart.AddDate(0, 0, i)
	}
	series := make([]garch.ReturnSeries, assets)
	for j := range series {
		values := make([]float64, steps)
		for t := range values {
			values[t] = sim.Returns.At(t, j)
		}
		series[j] = garch.ReturnSeries{Name: string(rune('A' + j)), Index: index, Values: values}
	}
	return series, nil
}

// NewFittedModelFixture returns a plausible GARCH(1,1) fit with a flat
// volatility path.
func NewFittedModelFixture(spec garch.ModelSpec, bic float64, steps int) *garch.FittedModel {
	vol := make([]float64, steps)
	std := make([]float64, steps)
	rng := rand.New(rand.NewPCG(uint64(steps), uint64(math.Float64bits(bic))))
	for t := range vol {
		vol[t] = 1
		std[t] = rng.NormFloat64()
	}
	return &garch.FittedModel{
		Spec:                  spec,
		ParamNames:            []string{"mu", "omega", "alpha[1]", "beta[1]"},
		Params:                []float64{0.01, 0.05, 0.08, 0.9},
		StdErrors:             []float64{0.01, 0.02, math.NaN(), 0.03},
		Residuals:             std,
		ConditionalVolatility: vol,
		StandardizedResiduals: std,
		LogLikelihood:         -bic / 2,
		NumParams:             4,
		NumObs:                steps,
		BIC:                   bic,
		AIC:                   bic - 1,
	}
}

// NewSelectionFixture returns a selection over GARCH(1,0,0) and GARCH(1,0,1)
// where the second wins.
func NewSelectionFixture(asset string, steps int) *garch.SelectionResult {
	arch := garch.ModelSpec{
		Candidate:    garch.Candidate{Orders: garch.Orders{P: 1}, Volatility: garch.GARCH},
		Mean:         garch.MeanConstant,
		Distribution: garch.Normal,
	}
	g11 := arch
	g11.Q = 1

	worse := NewFittedModelFixture(arch, 120.0, steps)
	best := NewFittedModelFixture(g11, 95.5, steps)
	return &garch.SelectionResult{
		Series: asset,
		Models: map[garch.ModelSpec]*garch.FittedModel{arch: worse, g11: best},
		Order:  []garch.ModelSpec{arch, g11},
		Excluded: []garch.Exclusion{{
			Spec: garch.ModelSpec{Candidate: garch.Candidate{Orders: garch.Orders{P: 2, Q: 1}, Volatility: garch.GARCH}},
			Err:  garch.ErrNonConvergence,
		}},
		BestSpec: g11,
		Best:     best,
	}
}

// NewDCCResultFixture returns a small finished estimation with identity
// correlations.
func NewDCCResultFixture(assets []string, steps int) *dcc.Result {
	n := len(assets)
	identity := func() *mat.SymDense {
		m := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			m.SetSym(i, i, 1)
		}
		return m
	}
	states := make([]dcc.State, steps)
	for t := range states {
		states[t] = dcc.State{Correlation: identity(), Covariance: identity()}
	}
	selections := make([]*garch.SelectionResult, n)
	for i, a := range assets {
		selections[i] = NewSelectionFixture(a, steps)
	}
	index := make([]time.Time, steps)
	for i := range index {
		index[i] = FixtureStart.AddDate(0, 0, i)
	}
	return &dcc.Result{
		Assets:          assets,
		Index:           index,
		Params:          dcc.Params{Alpha: 0.05, Beta: 0.9},
		LogLikelihood:   -1234.5,
		States:          states,
		CorrBar:         identity(),
		CovBar:          identity(),
		Selections:      selections,
		Iterations:      42,
		FuncEvaluations: 90,
		Status:          "FunctionConvergence",
		CreatedAt:       FixtureStart,
		Duration:        1500 * time.Millisecond,
	}
}

// StubFitter returns canned fits keyed by spec. Specs without an entry fail
// with garch.ErrNonConvergence.
type StubFitter struct {
	mu     sync.Mutex
	Models map[garch.ModelSpec]*garch.FittedModel
	Errors map[garch.ModelSpec]error
	calls  int
}

// Fit implements garch.Fitter.
func (s *StubFitter) Fit(ctx context.Context, series []float64, spec garch.ModelSpec) (*garch.FittedModel, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.Errors[spec]; ok {
		return nil, err
	}
	if m, ok := s.Models[spec]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("%w: no stub for %s", garch.ErrNonConvergence, spec)
}

// Calls returns the number of Fit invocations.
func (s *StubFitter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
