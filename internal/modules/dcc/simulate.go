package dcc

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SimulationConfig describes a synthetic DCC process with GARCH(1,1)
// marginals.
type SimulationConfig struct {
	Params Params
	Assets int
	Steps  int
	// Correlation is the unconditional correlation target; nil selects an
	// equicorrelation of 0.4.
	Correlation *mat.SymDense
	// Marginal GARCH(1,1) coefficients shared by every asset.
	Omega, GarchAlpha, GarchBeta float64
	Seed                         uint64
}

// DefaultSimulationConfig returns a four-asset process with alpha=0.08,
// beta=0.90 and persistent marginals.
func DefaultSimulationConfig() SimulationConfig {
	return SimulationConfig{
		Params:     Params{Alpha: 0.08, Beta: 0.90},
		Assets:     4,
		Steps:      3000,
		Omega:      0.05,
		GarchAlpha: 0.08,
		GarchBeta:  0.90,
		Seed:       1,
	}
}

// Simulation holds the generated panels (T×n) and the true correlation path.
type Simulation struct {
	Returns      *mat.Dense
	Residuals    *mat.Dense
	Volatility   *mat.Dense
	Correlations []*mat.SymDense
}

// Simulate draws a path of the DCC process described by cfg.
func Simulate(cfg SimulationConfig) (*Simulation, error) {
	if !cfg.Params.Valid() {
		return nil, fmt.Errorf("%w: alpha=%v beta=%v", ErrInvalidParams, cfg.Params.Alpha, cfg.Params.Beta)
	}
	if cfg.Assets < 1 || cfg.Steps < 2 {
		return nil, fmt.Errorf("%w: need at least 1 asset and 2 steps", ErrInvalidParams)
	}
	if !(cfg.Omega > 0) || cfg.GarchAlpha < 0 || cfg.GarchBeta < 0 || cfg.GarchAlpha+cfg.GarchBeta >= 1 {
		return nil, fmt.Errorf("%w: marginal GARCH(1,1) is not stationary", ErrInvalidParams)
	}
	n, T := cfg.Assets, cfg.Steps

	target := cfg.Correlation
	if target == nil {
		target = mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				if i == j {
					target.SetSym(i, j, 1)
				} else {
					target.SetSym(i, j, 0.4)
				}
			}
		}
	}
	if target.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: correlation is %dx%d for %d assets", ErrInvalidParams, target.SymmetricDim(), target.SymmetricDim(), n)
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(cfg.Seed, cfg.Seed^0xda3e39cb94b95bdb)}
	sim := &Simulation{
		Returns:      mat.NewDense(T, n, nil),
		Residuals:    mat.NewDense(T, n, nil),
		Volatility:   mat.NewDense(T, n, nil),
		Correlations: make([]*mat.SymDense, T),
	}

	a, b := cfg.Params.Alpha, cfg.Params.Beta
	q := mat.NewSymDense(n, nil)
	q.CopySym(target)
	sigma2 := make([]float64, n)
	for i := range sigma2 {
		sigma2[i] = cfg.Omega / (1 - cfg.GarchAlpha - cfg.GarchBeta)
	}

	u := mat.NewVecDense(n, nil)
	z := mat.NewVecDense(n, nil)
	var lower mat.TriDense
	var chol mat.Cholesky
	for t := 0; t < T; t++ {
		if t > 0 {
			e := sim.Residuals.RawRowView(t - 1)
			r := sim.Returns.RawRowView(t - 1)
			for i := 0; i < n; i++ {
				for j := i; j < n; j++ {
					q.SetSym(i, j, (1-a-b)*target.At(i, j)+a*e[i]*e[j]+b*q.At(i, j))
				}
				sigma2[i] = cfg.Omega + cfg.GarchAlpha*r[i]*r[i] + cfg.GarchBeta*sigma2[i]
			}
		}

		corr := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				corr.SetSym(i, j, q.At(i, j)/math.Sqrt(q.At(i, i)*q.At(j, j)))
			}
		}
		if ok := chol.Factorize(corr); !ok {
			return nil, fmt.Errorf("%w: simulated correlation not positive definite at t=%d", ErrSingularCovariance, t)
		}
		chol.LTo(&lower)
		for i := 0; i < n; i++ {
			u.SetVec(i, normal.Rand())
		}
		z.MulVec(&lower, u)

		sim.Correlations[t] = corr
		for i := 0; i < n; i++ {
			sd := math.Sqrt(sigma2[i])
			sim.Residuals.Set(t, i, z.AtVec(i))
			sim.Volatility.Set(t, i, sd)
			sim.Returns.Set(t, i, sd*z.AtVec(i))
		}
	}
	return sim, nil
}
