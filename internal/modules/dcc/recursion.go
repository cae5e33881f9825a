// Package dcc estimates Dynamic Conditional Correlation models on top of the
// univariate volatility fits selected by the garch package.
//
// All panels are time-major: row t holds the cross-section of the n assets
// at time t, so each step of the recursion reads one contiguous row.
package dcc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const log2Pi = 1.83787706640934548356 // ln(2π)

// Params are the DCC news (Alpha) and persistence (Beta) coefficients.
type Params struct {
	Alpha float64 `json:"alpha" msgpack:"alpha"`
	Beta  float64 `json:"beta" msgpack:"beta"`
}

// Valid reports whether p lies in the stationary region alpha > 0, beta > 0,
// alpha + beta < 1.
func (p Params) Valid() bool {
	return p.Alpha > 0 && p.Beta > 0 && p.Alpha+p.Beta < 1
}

// State is the conditional correlation R_t and covariance H_t at one step.
type State struct {
	Correlation *mat.SymDense
	Covariance  *mat.SymDense
}

// Inputs are the panels consumed by the recursion. Returns, Residuals and
// Volatility are T×n; CorrBar and CovBar are the sample correlation and
// covariance of Residuals.
type Inputs struct {
	Returns    *mat.Dense
	Residuals  *mat.Dense
	Volatility *mat.Dense
	CorrBar    *mat.SymDense
	CovBar     *mat.SymDense
}

// NewInputs validates the panels and computes the unconditional moments of
// the standardized residuals.
func NewInputs(returns, residuals, volatility *mat.Dense) (*Inputs, error) {
	if returns == nil || residuals == nil || volatility == nil {
		return nil, fmt.Errorf("%w: nil panel", ErrInvalidParams)
	}
	T, n := residuals.Dims()
	if rT, rn := returns.Dims(); rT != T || rn != n {
		return nil, fmt.Errorf("%w: returns are %dx%d, residuals %dx%d", ErrSeriesMisaligned, rT, rn, T, n)
	}
	if vT, vn := volatility.Dims(); vT != T || vn != n {
		return nil, fmt.Errorf("%w: volatility is %dx%d, residuals %dx%d", ErrSeriesMisaligned, vT, vn, T, n)
	}
	if T < 2 {
		return nil, fmt.Errorf("%w: need at least 2 observations, got %d", ErrInvalidParams, T)
	}
	for t := 0; t < T; t++ {
		for i, v := range volatility.RawRowView(t) {
			if !(v > 0) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: volatility[%d][%d] = %v", ErrInvalidParams, t, i, v)
			}
		}
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, residuals, nil)
	corr := mat.NewSymDense(n, nil)
	stat.CorrelationMatrix(corr, residuals, nil)
	for i := 0; i < n; i++ {
		if !(cov.At(i, i) > 0) {
			return nil, fmt.Errorf("%w: residual column %d has zero variance", ErrSingularCovariance, i)
		}
		corr.SetSym(i, i, 1)
	}

	return &Inputs{
		Returns:    returns,
		Residuals:  residuals,
		Volatility: volatility,
		CorrBar:    corr,
		CovBar:     cov,
	}, nil
}

// Dims returns the number of time steps and assets.
func (in *Inputs) Dims() (T, n int) {
	return in.Residuals.Dims()
}

// Recursion evaluates the DCC recursion on fixed inputs. It keeps scratch
// buffers between calls and is not safe for concurrent use.
type Recursion struct {
	in   *Inputs
	n, T int

	rbar []float64 // row-major copy of CorrBar
	q    []float64 // Q_t accumulator, updated in place
	d    []float64 // diag(Q_t)^(-1/2)
	corr *mat.SymDense
	cov  *mat.SymDense
	chol mat.Cholesky
	ret  []float64
	rv   *mat.VecDense
	sol  *mat.VecDense
}

// NewRecursion allocates the scratch state for in.
func NewRecursion(in *Inputs) *Recursion {
	T, n := in.Dims()
	rbar := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			rbar[i*n+j] = in.CorrBar.At(i, j)
		}
	}
	ret := make([]float64, n)
	return &Recursion{
		in:   in,
		n:    n,
		T:    T,
		rbar: rbar,
		q:    make([]float64, n*n),
		d:    make([]float64, n),
		corr: mat.NewSymDense(n, nil),
		cov:  mat.NewSymDense(n, nil),
		ret:  ret,
		rv:   mat.NewVecDense(n, ret),
		sol:  mat.NewVecDense(n, nil),
	}
}

// LogLikelihood returns the joint Gaussian log-likelihood of the returns
// under p without materializing the state sequence.
func (r *Recursion) LogLikelihood(p Params) (float64, error) {
	return r.run(p, nil)
}

// Run returns every state R_t, H_t for t = 0..T-1 and the joint
// log-likelihood under p.
func (r *Recursion) Run(p Params) ([]State, float64, error) {
	states := make([]State, 0, r.T)
	ll, err := r.run(p, func(corr, cov *mat.SymDense) {
		states = append(states, State{
			Correlation: mat.NewSymDense(r.n, append([]float64(nil), corr.RawSymmetric().Data...)),
			Covariance:  mat.NewSymDense(r.n, append([]float64(nil), cov.RawSymmetric().Data...)),
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return states, ll, nil
}

// run advances
//
//	Q_t = (1-α-β)R̄ + α e_{t-1}e_{t-1}' + β Q_{t-1},  Q_0 = R̄
//	R_t = diag(Q_t)^(-1/2) Q_t diag(Q_t)^(-1/2),     R_0 = R̄
//	H_t = D_t R_t D_t
//
// and accumulates ll_t = -n/2 ln 2π - 1/2 (ln|H_t| + r_t' H_t^-1 r_t).
// visit, when set, sees every (R_t, H_t) and must copy what it keeps.
func (r *Recursion) run(p Params, visit func(corr, cov *mat.SymDense)) (float64, error) {
	if !p.Valid() {
		return 0, fmt.Errorf("%w: alpha=%v beta=%v", ErrInvalidParams, p.Alpha, p.Beta)
	}
	n := r.n
	a, b := p.Alpha, p.Beta
	c := 1 - a - b
	copy(r.q, r.rbar)

	var ll float64
	for t := 0; t < r.T; t++ {
		if t > 0 {
			e := r.in.Residuals.RawRowView(t - 1)
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					v := c*r.rbar[i*n+j] + a*e[i]*e[j] + b*r.q[i*n+j]
					r.q[i*n+j] = v
					r.q[j*n+i] = v
				}
			}
		}

		for i := 0; i < n; i++ {
			qii := r.q[i*n+i]
			if !(qii > 0) {
				return 0, fmt.Errorf("%w: Q[%d][%d] = %v at t=%d", ErrSingularCovariance, i, i, qii, t)
			}
			r.d[i] = 1 / math.Sqrt(qii)
		}
		for i := 0; i < n; i++ {
			r.corr.SetSym(i, i, 1)
			for j := i + 1; j < n; j++ {
				if t == 0 {
					r.corr.SetSym(i, j, r.rbar[i*n+j])
				} else {
					r.corr.SetSym(i, j, r.q[i*n+j]*r.d[i]*r.d[j])
				}
			}
		}

		v := r.in.Volatility.RawRowView(t)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				r.cov.SetSym(i, j, v[i]*r.corr.At(i, j)*v[j])
			}
		}

		if ok := r.chol.Factorize(r.cov); !ok {
			return 0, fmt.Errorf("%w: factorization failed at t=%d", ErrSingularCovariance, t)
		}
		logDet := r.chol.LogDet()
		copy(r.ret, r.in.Returns.RawRowView(t))
		if err := r.chol.SolveVecTo(r.sol, r.rv); err != nil {
			return 0, fmt.Errorf("%w: solve failed at t=%d: %v", ErrSingularCovariance, t, err)
		}
		quad := mat.Dot(r.rv, r.sol)
		step := -0.5 * (float64(n)*log2Pi + logDet + quad)
		if math.IsNaN(step) || math.IsInf(step, 0) {
			return 0, fmt.Errorf("%w: non-finite likelihood at t=%d", ErrSingularCovariance, t)
		}
		ll += step

		if visit != nil {
			visit(r.corr, r.cov)
		}
	}
	return ll, nil
}
