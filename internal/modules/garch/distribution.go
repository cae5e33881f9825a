package garch

import (
	"fmt"
	"math"
)

const logSqrt2Pi = 0.91893853320467274178 // ln(√(2π))

// density evaluates the log density of a unit-variance innovation. setShape
// precomputes the shape-dependent constants once per likelihood evaluation.
type density interface {
	names() []string
	start() (values, scales []float64)
	setShape(shape []float64) bool
	logPDF(z float64) float64
}

func newDensity(d Distribution) (density, error) {
	switch d {
	case Normal:
		return normalDensity{}, nil
	case StudentsT:
		return &studentsTDensity{}, nil
	case SkewT:
		return &skewTDensity{}, nil
	case GED:
		return &gedDensity{}, nil
	}
	return nil, fmt.Errorf("%w: unknown distribution %q", ErrInvalidConfiguration, d)
}

type normalDensity struct{}

func (normalDensity) names() []string               { return nil }
func (normalDensity) start() ([]float64, []float64) { return nil, nil }
func (normalDensity) setShape([]float64) bool       { return true }
func (normalDensity) logPDF(z float64) float64      { return -logSqrt2Pi - 0.5*z*z }

// studentsTDensity is Student's t rescaled to unit variance (nu > 2).
type studentsTDensity struct {
	nu, c, k float64
}

func (d *studentsTDensity) names() []string { return []string{"nu"} }

func (d *studentsTDensity) start() ([]float64, []float64) {
	return []float64{8}, []float64{4}
}

func (d *studentsTDensity) setShape(shape []float64) bool {
	nu := shape[0]
	if !(nu > 2.05 && nu < 500) {
		return false
	}
	lg1, _ := math.Lgamma((nu + 1) / 2)
	lg2, _ := math.Lgamma(nu / 2)
	d.nu = nu
	d.c = lg1 - lg2 - 0.5*math.Log(math.Pi*(nu-2))
	d.k = (nu + 1) / 2
	return true
}

func (d *studentsTDensity) logPDF(z float64) float64 {
	return d.c - d.k*math.Log1p(z*z/(d.nu-2))
}

// skewTDensity is Hansen's (1994) skewed t with unit variance.
type skewTDensity struct {
	nu, lambda     float64
	logBC, a, b, k float64
}

func (d *skewTDensity) names() []string { return []string{"eta", "lambda"} }

func (d *skewTDensity) start() ([]float64, []float64) {
	return []float64{8, 0}, []float64{4, 0.1}
}

func (d *skewTDensity) setShape(shape []float64) bool {
	nu, lambda := shape[0], shape[1]
	if !(nu > 2.05 && nu < 500) || !(lambda > -0.99 && lambda < 0.99) {
		return false
	}
	lg1, _ := math.Lgamma((nu + 1) / 2)
	lg2, _ := math.Lgamma(nu / 2)
	c := math.Exp(lg1 - lg2 - 0.5*math.Log(math.Pi*(nu-2)))
	a := 4 * lambda * c * (nu - 2) / (nu - 1)
	b2 := 1 + 3*lambda*lambda - a*a
	if b2 <= 0 {
		return false
	}
	d.nu, d.lambda = nu, lambda
	d.a = a
	d.b = math.Sqrt(b2)
	d.logBC = math.Log(d.b * c)
	d.k = (nu + 1) / 2
	return true
}

func (d *skewTDensity) logPDF(z float64) float64 {
	side := 1 + d.lambda
	if z < -d.a/d.b {
		side = 1 - d.lambda
	}
	u := (d.b*z + d.a) / side
	return d.logBC - d.k*math.Log1p(u*u/(d.nu-2))
}

// gedDensity is the generalized error distribution with unit variance (nu > 1).
type gedDensity struct {
	nu, lambda, c float64
}

func (d *gedDensity) names() []string { return []string{"nu"} }

func (d *gedDensity) start() ([]float64, []float64) {
	return []float64{1.5}, []float64{0.5}
}

func (d *gedDensity) setShape(shape []float64) bool {
	nu := shape[0]
	if !(nu > 1.01 && nu < 500) {
		return false
	}
	lg1, _ := math.Lgamma(1 / nu)
	lg3, _ := math.Lgamma(3 / nu)
	logLambda := 0.5 * (-2/nu*math.Ln2 + lg1 - lg3)
	d.nu = nu
	d.lambda = math.Exp(logLambda)
	d.c = math.Log(nu) - (1+1/nu)*math.Ln2 - lg1 - logLambda
	return true
}

func (d *gedDensity) logPDF(z float64) float64 {
	return d.c - 0.5*math.Pow(math.Abs(z/d.lambda), d.nu)
}
