package dcc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/volcorr/internal/metrics"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/utils"
)

// Result is a complete DCC estimation.
type Result struct {
	ID              string
	Assets          []string
	Index           []time.Time
	Params          Params
	LogLikelihood   float64
	States          []State
	CorrBar         *mat.SymDense
	CovBar          *mat.SymDense
	Selections      []*garch.SelectionResult
	Iterations      int
	FuncEvaluations int
	Status          string
	CreatedAt       time.Time
	Duration        time.Duration
}

// Models returns the selected univariate model of every asset, in asset order.
func (r *Result) Models() []*garch.FittedModel {
	models := make([]*garch.FittedModel, len(r.Selections))
	for i, sel := range r.Selections {
		models[i] = sel.Best
	}
	return models
}

// RunRecorder persists finished estimations and returns their identifier.
type RunRecorder interface {
	SaveRun(ctx context.Context, result *Result) (string, error)
}

// ServiceConfig holds the knobs of a full estimation.
type ServiceConfig struct {
	Search            garch.SearchConfig
	Optimizer         OptimizerConfig
	SeriesConcurrency int
}

// Service runs per-series model selection followed by DCC estimation.
type Service struct {
	selector *garch.Selector
	cfg      ServiceConfig
	recorder RunRecorder
	log      zerolog.Logger
}

// NewService creates the orchestrator. recorder may be nil.
func NewService(selector *garch.Selector, cfg ServiceConfig, recorder RunRecorder, log zerolog.Logger) *Service {
	if cfg.SeriesConcurrency <= 0 {
		cfg.SeriesConcurrency = 1
	}
	return &Service{
		selector: selector,
		cfg:      cfg,
		recorder: recorder,
		log:      log.With().Str("component", "dcc_service").Logger(),
	}
}

// Config returns the service defaults.
func (s *Service) Config() ServiceConfig {
	return s.cfg
}

// Fit estimates the DCC model for series with the service defaults.
func (s *Service) Fit(ctx context.Context, series []garch.ReturnSeries) (*Result, error) {
	return s.FitWith(ctx, series, s.cfg.Search, s.cfg.Optimizer)
}

// FitWith estimates the DCC model for series with an explicit search grid and
// optimizer configuration.
func (s *Service) FitWith(ctx context.Context, series []garch.ReturnSeries, search garch.SearchConfig, optCfg OptimizerConfig) (result *Result, err error) {
	start := time.Now()
	defer func() {
		metrics.DCCFits.WithLabelValues(metrics.Outcome(err)).Inc()
		metrics.DCCFitDuration.Observe(time.Since(start).Seconds())
	}()
	defer utils.OperationTimer("dcc_fit", s.log)()

	if err := CheckAlignment(series); err != nil {
		return nil, err
	}
	if _, err := search.Specs(); err != nil {
		return nil, err
	}

	selections, err := s.selectAll(ctx, series, search)
	if err != nil {
		return nil, err
	}

	in, err := stackPanels(series, selections)
	if err != nil {
		return nil, err
	}

	est, err := NewOptimizer(optCfg, s.log).Optimize(ctx, in)
	if err != nil {
		return nil, err
	}

	assets := make([]string, len(series))
	for i, rs := range series {
		assets[i] = rs.Name
	}
	result = &Result{
		Assets:          assets,
		Index:           series[0].Index,
		Params:          est.Params,
		LogLikelihood:   est.LogLikelihood,
		States:          est.States,
		CorrBar:         in.CorrBar,
		CovBar:          in.CovBar,
		Selections:      selections,
		Iterations:      est.Iterations,
		FuncEvaluations: est.FuncEvaluations,
		Status:          est.Status,
		CreatedAt:       start.UTC(),
		Duration:        time.Since(start),
	}

	s.log.Info().
		Int("assets", len(assets)).
		Int("observations", series[0].Len()).
		Float64("alpha", result.Params.Alpha).
		Float64("beta", result.Params.Beta).
		Float64("log_likelihood", result.LogLikelihood).
		Msg("DCC fit complete")

	if s.recorder != nil {
		id, err := s.recorder.SaveRun(ctx, result)
		if err != nil {
			// The estimate stands even if it cannot be stored.
			s.log.Error().Err(err).Msg("Failed to persist DCC run")
		} else {
			result.ID = id
		}
	}
	return result, nil
}

// selectAll runs model selection for every series concurrently, bounded by
// SeriesConcurrency. The first failing series cancels the rest.
func (s *Service) selectAll(ctx context.Context, series []garch.ReturnSeries, search garch.SearchConfig) ([]*garch.SelectionResult, error) {
	selections := make([]*garch.SelectionResult, len(series))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.SeriesConcurrency)
	for i, rs := range series {
		g.Go(func() error {
			sel, err := s.selector.SelectBest(gctx, rs, search)
			if err != nil {
				return fmt.Errorf("series %q: %w", rs.Name, err)
			}
			selections[i] = sel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return selections, nil
}

// CheckAlignment verifies that there are at least two series, all of the
// same length and, when indexed, sharing the same time index.
func CheckAlignment(series []garch.ReturnSeries) error {
	if len(series) < 2 {
		return fmt.Errorf("%w: need at least 2 series, got %d", ErrSeriesMisaligned, len(series))
	}
	ref := series[0]
	if ref.Index != nil && len(ref.Index) != ref.Len() {
		return fmt.Errorf("%w: series %q has %d index entries for %d values",
			ErrSeriesMisaligned, ref.Name, len(ref.Index), ref.Len())
	}
	for _, rs := range series[1:] {
		if rs.Len() != ref.Len() {
			return fmt.Errorf("%w: series %q has %d observations, %q has %d",
				ErrSeriesMisaligned, rs.Name, rs.Len(), ref.Name, ref.Len())
		}
		if (rs.Index == nil) != (ref.Index == nil) {
			return fmt.Errorf("%w: series %q and %q mix indexed and positional data",
				ErrSeriesMisaligned, rs.Name, ref.Name)
		}
		for t := range rs.Index {
			if !rs.Index[t].Equal(ref.Index[t]) {
				return fmt.Errorf("%w: series %q and %q differ at position %d (%s vs %s)",
					ErrSeriesMisaligned, rs.Name, ref.Name, t,
					rs.Index[t].Format(time.RFC3339), ref.Index[t].Format(time.RFC3339))
			}
		}
	}
	return nil
}

// stackPanels builds the T×n return, standardized residual and volatility
// panels from the selected models.
func stackPanels(series []garch.ReturnSeries, selections []*garch.SelectionResult) (*Inputs, error) {
	n := len(series)
	T := series[0].Len()
	returns := mat.NewDense(T, n, nil)
	residuals := mat.NewDense(T, n, nil)
	volatility := mat.NewDense(T, n, nil)
	for j, rs := range series {
		best := selections[j].Best
		if len(best.StandardizedResiduals) != T || len(best.ConditionalVolatility) != T {
			return nil, fmt.Errorf("%w: model for %q covers %d of %d observations",
				ErrSeriesMisaligned, rs.Name, len(best.ConditionalVolatility), T)
		}
		for t := 0; t < T; t++ {
			returns.Set(t, j, rs.Values[t])
			residuals.Set(t, j, best.StandardizedResiduals[t])
			volatility.Set(t, j, best.ConditionalVolatility[t])
		}
	}
	return NewInputs(returns, residuals, volatility)
}
