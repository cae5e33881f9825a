package dcc

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/volcorr/internal/metrics"
	"github.com/aristath/volcorr/internal/utils"
)

// OptimizerConfig controls the (alpha, beta) search.
type OptimizerConfig struct {
	InitialAlpha  float64       `json:"initial_alpha" yaml:"initial_alpha"`
	InitialBeta   float64       `json:"initial_beta" yaml:"initial_beta"`
	MaxIterations int           `json:"max_iterations" yaml:"max_iterations"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultOptimizerConfig starts from (0.10, 0.85) with a 1000 iteration budget.
func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		InitialAlpha:  0.10,
		InitialBeta:   0.85,
		MaxIterations: 1000,
	}
}

// Estimate is the maximum-likelihood (alpha, beta) with its state path.
type Estimate struct {
	Params          Params
	LogLikelihood   float64
	States          []State
	Iterations      int
	FuncEvaluations int
	Status          string
}

// Optimizer maximizes the DCC log-likelihood over the stationary region.
type Optimizer struct {
	cfg OptimizerConfig
	log zerolog.Logger
}

// NewOptimizer creates an optimizer. Zero fields of cfg take their defaults.
func NewOptimizer(cfg OptimizerConfig, log zerolog.Logger) *Optimizer {
	def := DefaultOptimizerConfig()
	if cfg.InitialAlpha == 0 && cfg.InitialBeta == 0 {
		cfg.InitialAlpha, cfg.InitialBeta = def.InitialAlpha, def.InitialBeta
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("component", "dcc_optimizer").Logger(),
	}
}

// Optimize minimizes the negative joint log-likelihood over (alpha, beta).
// Infeasible or singular trial points score +Inf. The returned parameters
// always satisfy Params.Valid.
func (o *Optimizer) Optimize(ctx context.Context, in *Inputs) (*Estimate, error) {
	initial := Params{Alpha: o.cfg.InitialAlpha, Beta: o.cfg.InitialBeta}
	if !initial.Valid() {
		return nil, fmt.Errorf("%w: initial guess alpha=%v beta=%v", ErrInvalidParams, initial.Alpha, initial.Beta)
	}
	if o.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
		defer cancel()
	}

	T, _ := in.Dims()
	rec := NewRecursion(in)
	evaluations := 0
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			evaluations++
			ll, err := rec.LogLikelihood(Params{Alpha: x[0], Beta: x[1]})
			if err != nil {
				return math.Inf(1)
			}
			return -ll / float64(T)
		},
	}
	if math.IsInf(problem.Func([]float64{initial.Alpha, initial.Beta}), 1) {
		return nil, fmt.Errorf("%w: likelihood is degenerate at the initial guess: %w", ErrOptimizationFailed, ErrSingularCovariance)
	}

	x0 := []float64{initial.Alpha, initial.Beta}
	result, err := o.minimize(ctx, problem, x0)
	if err != nil {
		return nil, err
	}
	iterations := result.Stats.MajorIterations
	if !utils.Converged(result.Status) {
		o.log.Warn().
			Str("status", result.Status.String()).
			Float64("alpha", result.X[0]).
			Float64("beta", result.X[1]).
			Msg("DCC optimizer did not converge, restarting from best point")
		result, err = o.minimize(ctx, problem, result.X)
		if err != nil {
			return nil, err
		}
		iterations += result.Stats.MajorIterations
		if !utils.Converged(result.Status) {
			return nil, fmt.Errorf("%w: status=%v after %d iterations", ErrOptimizationFailed, result.Status, iterations)
		}
	}
	metrics.LikelihoodEvaluations.WithLabelValues("dcc").Add(float64(evaluations))

	params := Params{Alpha: result.X[0], Beta: result.X[1]}
	if !params.Valid() {
		return nil, fmt.Errorf("%w: optimum alpha=%v beta=%v outside the stationary region",
			ErrOptimizationFailed, params.Alpha, params.Beta)
	}

	states, ll, err := rec.Run(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptimizationFailed, err)
	}

	o.log.Debug().
		Float64("alpha", params.Alpha).
		Float64("beta", params.Beta).
		Float64("log_likelihood", ll).
		Int("iterations", iterations).
		Int("evaluations", evaluations).
		Msg("DCC parameters estimated")

	return &Estimate{
		Params:          params,
		LogLikelihood:   ll,
		States:          states,
		Iterations:      iterations,
		FuncEvaluations: evaluations,
		Status:          result.Status.String(),
	}, nil
}

func (o *Optimizer) minimize(ctx context.Context, problem optimize.Problem, x0 []float64) (*optimize.Result, error) {
	// Keep the initial simplex inside the stationary region.
	slack := 1 - x0[0] - x0[1]
	size := math.Min(0.05, 0.45*slack)
	size = math.Min(size, 0.9*math.Min(x0[0], x0[1]))

	settings := &optimize.Settings{
		MajorIterations: o.cfg.MaxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-10,
			Relative:   1e-10,
			Iterations: 100,
		},
		Recorder: utils.ContextRecorder{Ctx: ctx},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: size})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrOptimizationFailed, ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrOptimizationFailed, err)
	}
	return result, nil
}
