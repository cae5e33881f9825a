// Package garch selects univariate conditional-heteroskedasticity models by BIC.
//
// Candidate (p, o, q, family) tuples are enumerated under structural constraints,
// combined with mean models and error distributions, fitted by quasi-maximum
// likelihood across a bounded worker pool, and ranked by the Bayesian
// Information Criterion.
package garch

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// VolatilityFamily is the conditional variance process of a candidate.
type VolatilityFamily string

const (
	GARCH   VolatilityFamily = "GARCH"
	ARCH    VolatilityFamily = "ARCH"
	EGARCH  VolatilityFamily = "EGARCH"
	FIGARCH VolatilityFamily = "FIGARCH"
	APARCH  VolatilityFamily = "APARCH"
	HARCH   VolatilityFamily = "HARCH"
)

// AllVolatilityFamilies lists every supported family in canonical order.
var AllVolatilityFamilies = []VolatilityFamily{GARCH, ARCH, EGARCH, FIGARCH, APARCH, HARCH}

// Valid reports whether f is a supported family.
func (f VolatilityFamily) Valid() bool {
	for _, known := range AllVolatilityFamilies {
		if f == known {
			return true
		}
	}
	return false
}

// ParseVolatilityFamily parses a family tag case-insensitively.
func ParseVolatilityFamily(s string) (VolatilityFamily, error) {
	f := VolatilityFamily(strings.ToUpper(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("%w: unknown volatility family %q", ErrInvalidConfiguration, s)
	}
	return f, nil
}

// MeanModel is the conditional mean specification.
type MeanModel string

const (
	MeanZero     MeanModel = "Zero"
	MeanConstant MeanModel = "Constant"
	MeanAR       MeanModel = "AR"
	MeanHAR      MeanModel = "HAR"
)

// AllMeanModels lists every supported mean model.
var AllMeanModels = []MeanModel{MeanZero, MeanConstant, MeanAR, MeanHAR}

// Valid reports whether m is a supported mean model.
func (m MeanModel) Valid() bool {
	switch m {
	case MeanZero, MeanConstant, MeanAR, MeanHAR:
		return true
	}
	return false
}

// ParseMeanModel parses a mean tag. Exogenous variants (ARX, HARX, LS) map to
// their endogenous counterparts since no regressors are supplied.
func ParseMeanModel(s string) (MeanModel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "zero":
		return MeanZero, nil
	case "constant", "ls":
		return MeanConstant, nil
	case "ar", "arx":
		return MeanAR, nil
	case "har", "harx":
		return MeanHAR, nil
	}
	return "", fmt.Errorf("%w: unknown mean model %q", ErrInvalidConfiguration, s)
}

// Distribution is the standardized error distribution.
type Distribution string

const (
	Normal    Distribution = "normal"
	StudentsT Distribution = "studentst"
	SkewT     Distribution = "skewt"
	GED       Distribution = "ged"
)

// AllDistributions lists every supported distribution.
var AllDistributions = []Distribution{Normal, StudentsT, SkewT, GED}

// Valid reports whether d is a supported distribution.
func (d Distribution) Valid() bool {
	switch d {
	case Normal, StudentsT, SkewT, GED:
		return true
	}
	return false
}

// ParseDistribution parses a distribution tag, accepting the common aliases.
func ParseDistribution(s string) (Distribution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal", "gaussian":
		return Normal, nil
	case "t", "studentst":
		return StudentsT, nil
	case "skewt", "skewstudent":
		return SkewT, nil
	case "ged", "generalized error":
		return GED, nil
	}
	return "", fmt.Errorf("%w: unknown distribution %q", ErrInvalidConfiguration, s)
}

// Orders are the lag orders of the variance process: P symmetric innovation
// lags, O asymmetric lags and Q lagged variance terms.
type Orders struct {
	P int `json:"p" msgpack:"p"`
	O int `json:"o" msgpack:"o"`
	Q int `json:"q" msgpack:"q"`
}

func (o Orders) String() string {
	return fmt.Sprintf("%d,%d,%d", o.P, o.O, o.Q)
}

// Candidate is one feasible (orders, family) tuple yielded by the generator.
type Candidate struct {
	Orders
	Volatility VolatilityFamily `json:"volatility" msgpack:"volatility"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s(%s)", c.Volatility, c.Orders)
}

// ModelSpec fully identifies a fit: candidate, mean model and distribution.
// It is comparable and used as the key of selection results.
type ModelSpec struct {
	Candidate
	Mean         MeanModel    `json:"mean" msgpack:"mean"`
	Distribution Distribution `json:"distribution" msgpack:"distribution"`
}

func (s ModelSpec) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Candidate, s.Mean, s.Distribution)
}

// ReturnSeries is the time-ordered return history of one asset.
// Index is optional; when set it must be as long as Values.
type ReturnSeries struct {
	Name   string
	Index  []time.Time
	Values []float64
}

// Len returns the number of observations.
func (s ReturnSeries) Len() int {
	return len(s.Values)
}

// FittedModel is the immutable outcome of one successful candidate fit.
type FittedModel struct {
	Spec                  ModelSpec
	ParamNames            []string
	Params                []float64
	StdErrors             []float64
	Residuals             []float64
	ConditionalVolatility []float64
	StandardizedResiduals []float64
	LogLikelihood         float64
	NumParams             int
	NumObs                int
	AIC                   float64
	BIC                   float64
	Iterations            int
	FuncEvaluations       int
}

// InformationCriteria returns AIC = -2LL + 2k and BIC = -2LL + k ln(T).
func InformationCriteria(logLik float64, numParams, numObs int) (aic, bic float64) {
	k := float64(numParams)
	aic = -2*logLik + 2*k
	bic = -2*logLik + k*math.Log(float64(numObs))
	return aic, bic
}
