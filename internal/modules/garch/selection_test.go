package garch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFitter returns canned BICs keyed by the ARCH order of the spec.
type stubFitter struct {
	mu    sync.Mutex
	bic   map[int]float64
	fail  map[int]error
	delay time.Duration
	calls int
}

func (f *stubFitter) Fit(ctx context.Context, series []float64, spec ModelSpec) (*FittedModel, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[spec.P]; ok {
		return nil, err
	}
	bic, ok := f.bic[spec.P]
	if !ok {
		return nil, fmt.Errorf("%w: no canned result for %s", ErrNonConvergence, spec)
	}
	return &FittedModel{Spec: spec, BIC: bic, NumObs: len(series)}, nil
}

func archGrid() SearchConfig {
	return SearchConfig{
		MaxP:       3,
		MaxQ:       0,
		Volatility: []VolatilityFamily{GARCH},
	}
}

func testSeries() ReturnSeries {
	return ReturnSeries{Name: "AAA", Values: make([]float64, 100)}
}

func TestSelectBest_PicksLowestBIC(t *testing.T) {
	fitter := &stubFitter{bic: map[int]float64{1: 120.0, 2: 95.5, 3: 200.1}}
	selector := NewSelector(fitter, NewWorkerPool(3), zerolog.Nop())

	result, err := selector.SelectBest(context.Background(), testSeries(), archGrid())
	require.NoError(t, err)

	assert.Equal(t, 2, result.BestSpec.P)
	assert.Equal(t, 95.5, result.Best.BIC)
	assert.Len(t, result.Models, 3)
	assert.Empty(t, result.Excluded)
	assert.Equal(t, 3, fitter.calls)
}

func TestSelectBest_ExcludesFailedFits(t *testing.T) {
	fitter := &stubFitter{
		bic:  map[int]float64{1: 120.0, 2: 95.5, 3: 200.1},
		fail: map[int]error{2: ErrNonConvergence},
	}
	selector := NewSelector(fitter, NewWorkerPool(2), zerolog.Nop())

	result, err := selector.SelectBest(context.Background(), testSeries(), archGrid())
	require.NoError(t, err)

	assert.Equal(t, 1, result.BestSpec.P)
	assert.Equal(t, 120.0, result.Best.BIC)
	require.Len(t, result.Excluded, 1)
	assert.Equal(t, 2, result.Excluded[0].Spec.P)
	assert.ErrorIs(t, result.Excluded[0].Err, ErrNonConvergence)
	assert.NotContains(t, result.Models, result.Excluded[0].Spec)
}

func TestSelectBest_NoViableModel(t *testing.T) {
	fitter := &stubFitter{fail: map[int]error{
		1: ErrNonConvergence,
		2: ErrIllConditioned,
		3: ErrNonConvergence,
	}}
	selector := NewSelector(fitter, NewWorkerPool(2), zerolog.Nop())

	result, err := selector.SelectBest(context.Background(), testSeries(), archGrid())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoViableModel)
	require.NotNil(t, result)
	assert.Len(t, result.Excluded, 3)
}

func TestSelectBest_ConstantSeriesHasNoViableModel(t *testing.T) {
	cfg := SearchConfig{
		MaxP:          1,
		MaxQ:          1,
		Volatility:    []VolatilityFamily{GARCH, EGARCH},
		Means:         []MeanModel{MeanZero, MeanConstant},
		Distributions: []Distribution{Normal},
	}
	selector := NewSelector(NewQMLEFitter(), NewWorkerPool(2), zerolog.Nop())

	result, err := selector.SelectBest(context.Background(), ReturnSeries{Name: "flat", Values: make([]float64, 200)}, cfg)
	require.ErrorIs(t, err, ErrNoViableModel)
	require.NotNil(t, result)
	assert.Nil(t, result.Best)
	for _, ex := range result.Excluded {
		assert.ErrorIs(t, ex.Err, ErrInsufficientData, ex.Spec.String())
	}
}

func TestSelectBest_TieKeepsFirstEnumerated(t *testing.T) {
	fitter := &stubFitter{bic: map[int]float64{1: 150.0, 2: 100.0, 3: 100.0}}

	// Completion order must not matter, so run with several workers repeatedly.
	for i := 0; i < 20; i++ {
		selector := NewSelector(fitter, NewWorkerPool(3), zerolog.Nop())
		result, err := selector.SelectBest(context.Background(), testSeries(), archGrid())
		require.NoError(t, err)
		assert.Equal(t, 2, result.BestSpec.P)
	}
}

func TestSelectBest_SequentialMatchesParallel(t *testing.T) {
	fitter := &stubFitter{bic: map[int]float64{1: 3.0, 2: 1.0, 3: 2.0}}

	seq, err := NewSelector(fitter, NewWorkerPool(1), zerolog.Nop()).
		SelectBest(context.Background(), testSeries(), archGrid())
	require.NoError(t, err)
	par, err := NewSelector(fitter, NewWorkerPool(4), zerolog.Nop()).
		SelectBest(context.Background(), testSeries(), archGrid())
	require.NoError(t, err)

	assert.Equal(t, seq.BestSpec, par.BestSpec)
	assert.Equal(t, seq.Order, par.Order)
}

func TestSelectBest_InvalidConfiguration(t *testing.T) {
	selector := NewSelector(&stubFitter{}, NewWorkerPool(1), zerolog.Nop())

	_, err := selector.SelectBest(context.Background(), testSeries(), SearchConfig{MaxP: 0, MaxQ: 1})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	_, err = selector.SelectBest(context.Background(), testSeries(), SearchConfig{
		MaxP:  1,
		Means: []MeanModel{"Spline"},
	})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestSelectBest_FitTimeoutExcludesCandidate(t *testing.T) {
	fitter := &stubFitter{
		bic:   map[int]float64{1: 10.0},
		delay: 200 * time.Millisecond,
	}
	selector := NewSelector(fitter, NewWorkerPool(1), zerolog.Nop())
	cfg := SearchConfig{MaxP: 1, FitTimeout: 10 * time.Millisecond}

	_, err := selector.SelectBest(context.Background(), testSeries(), cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoViableModel)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestSearchConfig_Specs(t *testing.T) {
	cfg := SearchConfig{
		MaxP:          1,
		MaxQ:          1,
		Volatility:    []VolatilityFamily{GARCH},
		Means:         []MeanModel{MeanZero, MeanConstant},
		Distributions: []Distribution{Normal, StudentsT},
	}
	specs, err := cfg.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 8)
	assert.Equal(t, ModelSpec{
		Candidate:    Candidate{Orders: Orders{P: 1}, Volatility: GARCH},
		Mean:         MeanZero,
		Distribution: Normal,
	}, specs[0])
	assert.Equal(t, StudentsT, specs[1].Distribution)
	assert.Equal(t, MeanConstant, specs[2].Mean)

	cfg.MaxCandidates = 3
	specs, err = cfg.Specs()
	require.NoError(t, err)
	assert.Len(t, specs, 3)
}

func TestSelectionResult_TableSortedByBIC(t *testing.T) {
	fitter := &stubFitter{bic: map[int]float64{1: 120.0, 2: 95.5, 3: 200.1}}
	result, err := NewSelector(fitter, NewWorkerPool(2), zerolog.Nop()).
		SelectBest(context.Background(), testSeries(), archGrid())
	require.NoError(t, err)

	table := result.Table()
	require.Len(t, table, 3)
	assert.Equal(t, []float64{95.5, 120.0, 200.1}, []float64{table[0].BIC, table[1].BIC, table[2].BIC})
	assert.True(t, table[0].Selected)
	assert.False(t, table[1].Selected)
}
