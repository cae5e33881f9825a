package garch

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/volcorr/pkg/formulas"
)

// harLags are the averaging horizons of the HAR mean (day, week, month).
var harLags = []int{1, 5, 22}

// meanDesign holds the regressors of a linear conditional mean, one column
// per parameter, each of length T. Lags reaching before the sample are
// filled with the sample mean so the residual path keeps length T.
type meanDesign struct {
	names   []string
	columns [][]float64
}

func newMeanDesign(model MeanModel, y []float64) (*meanDesign, error) {
	T := len(y)
	switch model {
	case MeanZero:
		return &meanDesign{}, nil
	case MeanConstant:
		return &meanDesign{names: []string{"mu"}, columns: [][]float64{ones(T)}}, nil
	case MeanAR:
		return &meanDesign{
			names:   []string{"mu", "phi[1]"},
			columns: [][]float64{ones(T), lagged(y, 1, formulas.Mean(y))},
		}, nil
	case MeanHAR:
		d := &meanDesign{names: []string{"mu"}, columns: [][]float64{ones(T)}}
		for _, l := range harLags {
			d.names = append(d.names, fmt.Sprintf("har[%d]", l))
			d.columns = append(d.columns, laggedAverage(y, l))
		}
		return d, nil
	}
	return nil, fmt.Errorf("%w: unknown mean model %q", ErrInvalidConfiguration, model)
}

func (d *meanDesign) size() int {
	return len(d.columns)
}

// start returns least-squares starting values and per-parameter scales.
func (d *meanDesign) start(y []float64) ([]float64, []float64) {
	k := d.size()
	if k == 0 {
		return nil, nil
	}
	T := len(y)
	X := mat.NewDense(T, k, nil)
	for j, col := range d.columns {
		for t := 0; t < T; t++ {
			X.Set(t, j, col[t])
		}
	}

	theta := make([]float64, k)
	var beta mat.VecDense
	if err := beta.SolveVec(X, mat.NewVecDense(T, append([]float64(nil), y...))); err == nil {
		for j := range theta {
			theta[j] = beta.AtVec(j)
		}
	} else {
		theta[0] = formulas.Mean(y)
	}

	sd := math.Sqrt(formulas.Variance(y))
	scales := make([]float64, k)
	scales[0] = math.Max(math.Abs(theta[0]), 0.1*sd)
	for j := 1; j < k; j++ {
		scales[j] = 0.1
	}
	return theta, scales
}

// residuals writes y - Xθ into dst.
func (d *meanDesign) residuals(theta, y, dst []float64) {
	copy(dst, y)
	for j, col := range d.columns {
		c := theta[j]
		for t := range dst {
			dst[t] -= c * col[t]
		}
	}
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

func lagged(y []float64, lag int, fill float64) []float64 {
	out := make([]float64, len(y))
	for t := range out {
		if t-lag < 0 {
			out[t] = fill
		} else {
			out[t] = y[t-lag]
		}
	}
	return out
}

// laggedAverage returns avg(y[t-lag..t-1]) for every t, using the sample
// mean for pre-sample values.
func laggedAverage(y []float64, lag int) []float64 {
	fill := formulas.Mean(y)
	if lag == 1 {
		return lagged(y, 1, fill)
	}
	pad := harLags[len(harLags)-1]
	padded := make([]float64, pad+len(y))
	for i := 0; i < pad; i++ {
		padded[i] = fill
	}
	copy(padded[pad:], y)

	sma := talib.Sma(padded, lag)
	out := make([]float64, len(y))
	for t := range out {
		out[t] = sma[pad+t-1]
	}
	return out
}
