// Package runs stores finished DCC estimations and their model-selection
// tables so they can be listed and inspected later.
package runs

import (
	"errors"
	"time"

	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/utils"
)

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// Summary is the list view of a stored run.
type Summary struct {
	ID              string        `json:"id"`
	CreatedAt       time.Time     `json:"created_at"`
	Assets          []string      `json:"assets"`
	NumObs          int           `json:"num_obs"`
	Alpha           float64       `json:"alpha"`
	Beta            float64       `json:"beta"`
	LogLikelihood   float64       `json:"log_likelihood"`
	Iterations      int           `json:"iterations"`
	FuncEvaluations int           `json:"func_evaluations"`
	Status          string        `json:"status"`
	Duration        time.Duration `json:"duration_ns"`
}

// SelectionRow is one fitted candidate of one asset.
type SelectionRow struct {
	Asset         string  `json:"asset"`
	Spec          string  `json:"spec"`
	BIC           float64 `json:"bic"`
	AIC           float64 `json:"aic"`
	LogLikelihood float64 `json:"log_likelihood"`
	NumParams     int     `json:"num_params"`
	Selected      bool    `json:"selected"`
}

// AssetModel is the selected univariate model of one asset.
type AssetModel struct {
	Asset      string          `json:"asset" msgpack:"asset"`
	Spec       garch.ModelSpec `json:"spec" msgpack:"spec"`
	ParamNames []string        `json:"param_names" msgpack:"param_names"`
	Params     []float64       `json:"params" msgpack:"params"`
	StdErrors  utils.Floats    `json:"std_errors" msgpack:"std_errors"`
	BIC        float64         `json:"bic" msgpack:"bic"`
}

// Payload is the msgpack-encoded body of a run. Matrices are stored as
// row-major n×n slices, one per time step for the state path.
type Payload struct {
	Index        []int64      `json:"index,omitempty" msgpack:"index"`
	CorrBar      []float64    `json:"corr_bar" msgpack:"corr_bar"`
	CovBar       []float64    `json:"cov_bar" msgpack:"cov_bar"`
	Correlations [][]float64  `json:"correlations" msgpack:"correlations"`
	Covariances  [][]float64  `json:"covariances" msgpack:"covariances"`
	Models       []AssetModel `json:"models" msgpack:"models"`
}

// Detail is a stored run with its selection tables and state path.
type Detail struct {
	Summary
	Selections []SelectionRow `json:"selections"`
	Payload    *Payload       `json:"payload"`
}
