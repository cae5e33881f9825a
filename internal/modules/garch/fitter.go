package garch

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/volcorr/internal/utils"
	"github.com/aristath/volcorr/pkg/formulas"
)

const (
	// DefaultMaxIterations is the Nelder-Mead iteration budget per fit.
	DefaultMaxIterations = 5000
	// DefaultFIGARCHTruncation is the ARCH(∞) lag truncation of FIGARCH.
	DefaultFIGARCHTruncation = 1000

	backcastWindow  = 75
	backcastLambda  = 0.94
	minObservations = 30
	minVariance     = 1e-12
	hessianStep     = 1e-4
	maxCondition    = 1e14
)

// Fitter estimates one model specification on one return series.
// Implementations must be safe for concurrent use on distinct inputs.
type Fitter interface {
	Fit(ctx context.Context, series []float64, spec ModelSpec) (*FittedModel, error)
}

// QMLEFitter fits models by maximizing the likelihood of the chosen error
// distribution with Nelder-Mead, then derives standard errors from a
// finite-difference Hessian.
type QMLEFitter struct {
	MaxIterations     int
	FIGARCHTruncation int
}

// NewQMLEFitter returns a fitter with the default iteration budget.
func NewQMLEFitter() *QMLEFitter {
	return &QMLEFitter{
		MaxIterations:     DefaultMaxIterations,
		FIGARCHTruncation: DefaultFIGARCHTruncation,
	}
}

// likelihood evaluates one model on one series. It owns the residual and
// variance buffers and is used by a single goroutine.
type likelihood struct {
	y        []float64
	mean     *meanDesign
	vol      varianceProcess
	dens     density
	km, kv   int
	backcast float64
	eps      []float64
	sigma2   []float64
}

func newLikelihood(y []float64, spec ModelSpec, truncation int) (*likelihood, error) {
	mean, err := newMeanDesign(spec.Mean, y)
	if err != nil {
		return nil, err
	}
	vol, err := newVarianceProcess(spec.Candidate, len(y), truncation)
	if err != nil {
		return nil, err
	}
	dens, err := newDensity(spec.Distribution)
	if err != nil {
		return nil, err
	}
	return &likelihood{
		y:      y,
		mean:   mean,
		vol:    vol,
		dens:   dens,
		km:     mean.size(),
		kv:     len(vol.names()),
		eps:    make([]float64, len(y)),
		sigma2: make([]float64, len(y)),
	}, nil
}

func (l *likelihood) names() []string {
	names := append([]string(nil), l.mean.names...)
	names = append(names, l.vol.names()...)
	return append(names, l.dens.names()...)
}

// start returns starting values and scales for the full parameter vector and
// fixes the variance backcast from the starting residuals.
func (l *likelihood) start() ([]float64, []float64) {
	values, scales := l.mean.start(l.y)
	l.mean.residuals(values, l.y, l.eps)
	l.backcast = formulas.EWMABackcast(l.eps, backcastWindow, backcastLambda)
	if !(l.backcast > 0) {
		l.backcast = 1e-8
	}

	variance := formulas.MeanSquare(l.eps)
	if !(variance > 0) {
		variance = 1e-8
	}
	v, s := l.vol.start(variance)
	values = append(values, v...)
	scales = append(scales, s...)

	v, s = l.dens.start()
	values = append(values, v...)
	scales = append(scales, s...)
	return values, scales
}

// logLik returns the log-likelihood at theta, or false when theta is
// infeasible or the variance path breaks down.
func (l *likelihood) logLik(theta []float64) (float64, bool) {
	l.mean.residuals(theta[:l.km], l.y, l.eps)
	vol := theta[l.km : l.km+l.kv]
	if !l.vol.feasible(vol) || !l.dens.setShape(theta[l.km+l.kv:]) {
		return 0, false
	}
	if !l.vol.filter(vol, l.eps, l.backcast, l.sigma2) {
		return 0, false
	}
	var ll float64
	for t, e := range l.eps {
		s2 := l.sigma2[t]
		ll += l.dens.logPDF(e/math.Sqrt(s2)) - 0.5*math.Log(s2)
	}
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return 0, false
	}
	return ll, true
}

// Fit estimates spec on series.
func (f *QMLEFitter) Fit(ctx context.Context, series []float64, spec ModelSpec) (*FittedModel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(series) < minObservations {
		return nil, fmt.Errorf("%w: %d observations, need at least %d", ErrInsufficientData, len(series), minObservations)
	}
	if !formulas.AllFinite(series) {
		return nil, fmt.Errorf("%w: series contains non-finite values", ErrInsufficientData)
	}
	if v := formulas.Variance(series); v <= minVariance {
		return nil, fmt.Errorf("%w: series is constant (variance %g)", ErrInsufficientData, v)
	}

	truncation := f.FIGARCHTruncation
	if truncation <= 0 {
		truncation = DefaultFIGARCHTruncation
	}
	if truncation > len(series) {
		truncation = len(series)
	}
	l, err := newLikelihood(series, spec, truncation)
	if err != nil {
		return nil, err
	}

	start, scales := l.start()
	k := len(start)
	T := len(series)
	if T <= 2*k {
		return nil, fmt.Errorf("%w: %d observations for %d parameters", ErrInsufficientData, T, k)
	}
	if _, ok := l.logLik(start); !ok {
		return nil, fmt.Errorf("%w: %s infeasible at starting values", ErrNonConvergence, spec)
	}

	theta := make([]float64, k)
	toTheta := func(x []float64) []float64 {
		for i := range theta {
			theta[i] = x[i] * scales[i]
		}
		return theta
	}
	negLogLik := func(x []float64) float64 {
		ll, ok := l.logLik(toTheta(x))
		if !ok {
			return math.Inf(1)
		}
		return -ll
	}

	x0 := make([]float64, k)
	for i := range x0 {
		x0[i] = start[i] / scales[i]
	}

	maxIter := f.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	result, err := f.minimize(ctx, negLogLik, T, x0, maxIter)
	if err != nil {
		return nil, err
	}
	iterations := result.Stats.MajorIterations
	evaluations := result.Stats.FuncEvaluations
	if !utils.Converged(result.Status) {
		// Restart once from the best point with a fresh simplex
		restart, err := f.minimize(ctx, negLogLik, T, result.X, maxIter)
		if err != nil {
			return nil, err
		}
		iterations += restart.Stats.MajorIterations
		evaluations += restart.Stats.FuncEvaluations
		if !utils.Converged(restart.Status) {
			return nil, fmt.Errorf("%w: %s status=%v after %d iterations", ErrNonConvergence, spec, restart.Status, iterations)
		}
		result = restart
	}

	xHat := append([]float64(nil), result.X...)
	stdErrs, err := standardErrors(negLogLik, xHat, scales)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", spec, err)
	}

	params := append([]float64(nil), toTheta(xHat)...)
	ll, ok := l.logLik(params)
	if !ok {
		return nil, fmt.Errorf("%w: %s optimum is infeasible", ErrNonConvergence, spec)
	}

	model := &FittedModel{
		Spec:                  spec,
		ParamNames:            l.names(),
		Params:                params,
		StdErrors:             stdErrs,
		Residuals:             append([]float64(nil), l.eps...),
		ConditionalVolatility: make([]float64, T),
		StandardizedResiduals: make([]float64, T),
		LogLikelihood:         ll,
		NumParams:             k,
		NumObs:                T,
		Iterations:            iterations,
		FuncEvaluations:       evaluations,
	}
	for t, s2 := range l.sigma2 {
		sd := math.Sqrt(s2)
		model.ConditionalVolatility[t] = sd
		model.StandardizedResiduals[t] = l.eps[t] / sd
	}
	model.AIC, model.BIC = InformationCriteria(ll, k, T)
	return model, nil
}

func (f *QMLEFitter) minimize(ctx context.Context, negLogLik func([]float64) float64, T int, x0 []float64, maxIter int) (*optimize.Result, error) {
	problem := optimize.Problem{
		// Averaged so the convergence tolerance does not depend on T
		Func: func(x []float64) float64 {
			return negLogLik(x) / float64(T)
		},
	}
	settings := &optimize.Settings{
		MajorIterations: maxIter,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Relative:   1e-9,
			Iterations: 200,
		},
		Recorder: utils.ContextRecorder{Ctx: ctx},
	}
	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrNonConvergence, err)
	}
	return result, nil
}

// standardErrors inverts the finite-difference Hessian of the negative
// log-likelihood in scaled coordinates. Parameters whose curvature cannot be
// evaluated (they sit on a constraint boundary) get NaN.
func standardErrors(negLogLik func([]float64) float64, xHat, scales []float64) ([]float64, error) {
	k := len(xHat)
	hess := mat.NewSymDense(k, nil)
	fd.Hessian(hess, negLogLik, xHat, &fd.Settings{Step: hessianStep})

	interior := interiorIndices(hess)
	stdErrs := make([]float64, k)
	for i := range stdErrs {
		stdErrs[i] = math.NaN()
	}
	if len(interior) == 0 {
		return stdErrs, nil
	}

	sub := mat.NewSymDense(len(interior), nil)
	for a, i := range interior {
		for b := a; b < len(interior); b++ {
			sub.SetSym(a, b, hess.At(i, interior[b]))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sub); !ok {
		return nil, fmt.Errorf("%w: hessian is not positive definite", ErrIllConditioned)
	}
	if cond := chol.Cond(); cond > maxCondition || math.IsNaN(cond) {
		return nil, fmt.Errorf("%w: hessian condition number %.3g", ErrIllConditioned, cond)
	}
	var cov mat.SymDense
	if err := chol.InverseTo(&cov); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllConditioned, err)
	}
	for a, i := range interior {
		stdErrs[i] = scales[i] * math.Sqrt(cov.At(a, a))
	}
	return stdErrs, nil
}

// interiorIndices drops parameters with non-finite curvature, worst first,
// until the remaining Hessian block is finite.
func interiorIndices(hess *mat.SymDense) []int {
	k := hess.SymmetricDim()
	keep := make([]bool, k)
	for i := range keep {
		keep[i] = isFinite(hess.At(i, i))
	}
	for {
		worst, worstCount := -1, 0
		for i := 0; i < k; i++ {
			if !keep[i] {
				continue
			}
			count := 0
			for j := 0; j < k; j++ {
				if keep[j] && !isFinite(hess.At(i, j)) {
					count++
				}
			}
			if count > worstCount {
				worst, worstCount = i, count
			}
		}
		if worst < 0 {
			break
		}
		keep[worst] = false
	}

	var idx []int
	for i, ok := range keep {
		if ok {
			idx = append(idx, i)
		}
	}
	return idx
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
