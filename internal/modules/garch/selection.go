package garch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// SearchConfig bounds the candidate grid searched for one series.
type SearchConfig struct {
	MaxP          int                `json:"max_p" yaml:"max_p"`
	MaxQ          int                `json:"max_q" yaml:"max_q"`
	MaxO          int                `json:"max_o" yaml:"max_o"`
	Volatility    []VolatilityFamily `json:"volatility" yaml:"volatility"`
	Means         []MeanModel        `json:"means" yaml:"means"`
	Distributions []Distribution     `json:"distributions" yaml:"distributions"`
	// MaxCandidates truncates the enumerated specs when positive.
	MaxCandidates int           `json:"max_candidates" yaml:"max_candidates"`
	FitTimeout    time.Duration `json:"fit_timeout" yaml:"fit_timeout"`
}

// DefaultSearchConfig returns GARCH(p, 0, q) up to (3, 3) with a constant
// mean and normal errors.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		MaxP:          3,
		MaxQ:          3,
		MaxO:          0,
		Volatility:    []VolatilityFamily{GARCH},
		Means:         []MeanModel{MeanConstant},
		Distributions: []Distribution{Normal},
	}
}

// Specs expands the configuration into the ordered list of model specs:
// generator order, then mean model, then distribution.
func (c SearchConfig) Specs() ([]ModelSpec, error) {
	candidates, err := GenerateCandidates(c.MaxP, c.MaxQ, c.MaxO, c.Volatility)
	if err != nil {
		return nil, err
	}
	means := c.Means
	if len(means) == 0 {
		means = []MeanModel{MeanConstant}
	}
	dists := c.Distributions
	if len(dists) == 0 {
		dists = []Distribution{Normal}
	}
	for _, m := range means {
		if !m.Valid() {
			return nil, fmt.Errorf("%w: unknown mean model %q", ErrInvalidConfiguration, m)
		}
	}
	for _, d := range dists {
		if !d.Valid() {
			return nil, fmt.Errorf("%w: unknown distribution %q", ErrInvalidConfiguration, d)
		}
	}

	var specs []ModelSpec
	for cand := range candidates {
		for _, m := range means {
			for _, d := range dists {
				if c.MaxCandidates > 0 && len(specs) >= c.MaxCandidates {
					return specs, nil
				}
				specs = append(specs, ModelSpec{Candidate: cand, Mean: m, Distribution: d})
			}
		}
	}
	return specs, nil
}

// Exclusion records a spec whose fit failed and why.
type Exclusion struct {
	Spec ModelSpec
	Err  error
}

// SelectionResult holds every successful fit for one series and the winner.
type SelectionResult struct {
	Series string
	Models map[ModelSpec]*FittedModel
	// Order lists the successfully fitted specs in enumeration order.
	Order    []ModelSpec
	Excluded []Exclusion
	BestSpec ModelSpec
	Best     *FittedModel
}

// TableRow is one line of the BIC comparison table.
type TableRow struct {
	Spec          ModelSpec `json:"spec"`
	BIC           float64   `json:"bic"`
	AIC           float64   `json:"aic"`
	LogLikelihood float64   `json:"log_likelihood"`
	NumParams     int       `json:"num_params"`
	Selected      bool      `json:"selected"`
}

// Table returns the fitted specs sorted by ascending BIC, ties kept in
// enumeration order.
func (r *SelectionResult) Table() []TableRow {
	rows := make([]TableRow, 0, len(r.Order))
	for _, spec := range r.Order {
		m := r.Models[spec]
		rows = append(rows, TableRow{
			Spec:          spec,
			BIC:           m.BIC,
			AIC:           m.AIC,
			LogLikelihood: m.LogLikelihood,
			NumParams:     m.NumParams,
			Selected:      spec == r.BestSpec,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].BIC < rows[j].BIC
	})
	return rows
}

// Selector runs the BIC search for one series at a time.
type Selector struct {
	fitter Fitter
	pool   *WorkerPool
	log    zerolog.Logger
}

// NewSelector creates a selector that fits candidates with fitter on pool.
func NewSelector(fitter Fitter, pool *WorkerPool, log zerolog.Logger) *Selector {
	return &Selector{
		fitter: fitter,
		pool:   pool,
		log:    log.With().Str("component", "garch_selector").Logger(),
	}
}

// SelectBest fits every spec of cfg on series and returns the one with the
// lowest BIC. Failed fits are excluded; ErrNoViableModel is returned when
// none succeed. Ties keep the spec enumerated first.
func (s *Selector) SelectBest(ctx context.Context, series ReturnSeries, cfg SearchConfig) (*SelectionResult, error) {
	specs, err := cfg.Specs()
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: search grid is empty", ErrInvalidConfiguration)
	}
	if series.Index != nil && len(series.Index) != len(series.Values) {
		return nil, fmt.Errorf("%w: series %q has %d index entries for %d values",
			ErrInvalidConfiguration, series.Name, len(series.Index), len(series.Values))
	}

	log := s.log.With().Str("series", series.Name).Int("candidates", len(specs)).Logger()
	start := time.Now()

	outcomes := s.pool.FitBatch(ctx, s.fitter, series.Values, specs, cfg.FitTimeout)

	result := &SelectionResult{
		Series: series.Name,
		Models: make(map[ModelSpec]*FittedModel, len(specs)),
	}
	bestIdx := -1
	for i, outcome := range outcomes {
		spec := specs[i]
		if outcome.Err != nil {
			result.Excluded = append(result.Excluded, Exclusion{Spec: spec, Err: outcome.Err})
			log.Debug().
				Str("spec", spec.String()).
				Err(outcome.Err).
				Msg("Candidate excluded")
			continue
		}
		result.Models[spec] = outcome.Model
		result.Order = append(result.Order, spec)
		if bestIdx < 0 || outcome.Model.BIC < outcomes[bestIdx].Model.BIC {
			bestIdx = i
		}
	}

	if bestIdx < 0 {
		cause := ctx.Err()
		if cause == nil && len(result.Excluded) > 0 {
			cause = result.Excluded[0].Err
		}
		log.Warn().Err(cause).Msg("No candidate converged")
		if cause == nil {
			return result, fmt.Errorf("%w: series %q", ErrNoViableModel, series.Name)
		}
		return result, fmt.Errorf("%w: series %q, %d candidates failed, first: %w",
			ErrNoViableModel, series.Name, len(specs), cause)
	}

	result.BestSpec = specs[bestIdx]
	result.Best = outcomes[bestIdx].Model
	log.Info().
		Str("best", result.BestSpec.String()).
		Float64("bic", result.Best.BIC).
		Int("fitted", len(result.Order)).
		Int("excluded", len(result.Excluded)).
		Dur("duration", time.Since(start)).
		Msg("Model selection complete")
	return result, nil
}
