package handlers

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/utils"
)

type modelResponse struct {
	Spec                  garch.ModelSpec `json:"spec"`
	Name                  string          `json:"name"`
	ParamNames            []string        `json:"param_names"`
	Params                utils.Floats    `json:"params"`
	StdErrors             utils.Floats    `json:"std_errors"`
	LogLikelihood         float64         `json:"log_likelihood"`
	AIC                   float64         `json:"aic"`
	BIC                   float64         `json:"bic"`
	NumParams             int             `json:"num_params"`
	NumObs                int             `json:"num_obs"`
	Iterations            int             `json:"iterations"`
	ConditionalVolatility utils.Floats    `json:"conditional_volatility,omitempty"`
	StandardizedResiduals utils.Floats    `json:"standardized_residuals,omitempty"`
}

func newModelResponse(m *garch.FittedModel, full bool) *modelResponse {
	if m == nil {
		return nil
	}
	resp := &modelResponse{
		Spec:          m.Spec,
		Name:          m.Spec.String(),
		ParamNames:    m.ParamNames,
		Params:        m.Params,
		StdErrors:     m.StdErrors,
		LogLikelihood: m.LogLikelihood,
		AIC:           m.AIC,
		BIC:           m.BIC,
		NumParams:     m.NumParams,
		NumObs:        m.NumObs,
		Iterations:    m.Iterations,
	}
	if full {
		resp.ConditionalVolatility = m.ConditionalVolatility
		resp.StandardizedResiduals = m.StandardizedResiduals
	}
	return resp
}

type tableRowResponse struct {
	Spec          string  `json:"spec"`
	BIC           float64 `json:"bic"`
	AIC           float64 `json:"aic"`
	LogLikelihood float64 `json:"log_likelihood"`
	NumParams     int     `json:"num_params"`
	Selected      bool    `json:"selected"`
}

type exclusionResponse struct {
	Spec  string `json:"spec"`
	Error string `json:"error"`
}

type selectionResponse struct {
	Series   string              `json:"series"`
	Best     *modelResponse      `json:"best,omitempty"`
	Table    []tableRowResponse  `json:"table"`
	Excluded []exclusionResponse `json:"excluded"`
}

func newSelectionResponse(sel *garch.SelectionResult, full bool) selectionResponse {
	rows := sel.Table()
	resp := selectionResponse{
		Series:   sel.Series,
		Best:     newModelResponse(sel.Best, full),
		Table:    make([]tableRowResponse, len(rows)),
		Excluded: make([]exclusionResponse, len(sel.Excluded)),
	}
	for i, row := range rows {
		resp.Table[i] = tableRowResponse{
			Spec:          row.Spec.String(),
			BIC:           row.BIC,
			AIC:           row.AIC,
			LogLikelihood: row.LogLikelihood,
			NumParams:     row.NumParams,
			Selected:      row.Selected,
		}
	}
	for i, ex := range sel.Excluded {
		resp.Excluded[i] = exclusionResponse{Spec: ex.Spec.String(), Error: ex.Err.Error()}
	}
	return resp
}

type fitResponse struct {
	ID              string              `json:"id,omitempty"`
	Assets          []string            `json:"assets"`
	Alpha           float64             `json:"alpha"`
	Beta            float64             `json:"beta"`
	Persistence     float64             `json:"persistence"`
	LogLikelihood   float64             `json:"log_likelihood"`
	Iterations      int                 `json:"iterations"`
	FuncEvaluations int                 `json:"func_evaluations"`
	Status          string              `json:"status"`
	DurationMs      int64               `json:"duration_ms"`
	CorrBar         [][]float64         `json:"corr_bar"`
	CovBar          [][]float64         `json:"cov_bar"`
	LastCorrelation [][]float64         `json:"last_correlation"`
	LastCovariance  [][]float64         `json:"last_covariance"`
	Selections      []selectionResponse `json:"selections"`
	Index           []time.Time         `json:"index,omitempty"`
	Correlations    [][][]float64       `json:"correlations,omitempty"`
	Covariances     [][][]float64       `json:"covariances,omitempty"`
}

func newFitResponse(res *dcc.Result, full bool) fitResponse {
	resp := fitResponse{
		ID:              res.ID,
		Assets:          res.Assets,
		Alpha:           res.Params.Alpha,
		Beta:            res.Params.Beta,
		Persistence:     res.Params.Alpha + res.Params.Beta,
		LogLikelihood:   res.LogLikelihood,
		Iterations:      res.Iterations,
		FuncEvaluations: res.FuncEvaluations,
		Status:          res.Status,
		DurationMs:      res.Duration.Milliseconds(),
		CorrBar:         rows(res.CorrBar),
		CovBar:          rows(res.CovBar),
		Selections:      make([]selectionResponse, len(res.Selections)),
	}
	for i, sel := range res.Selections {
		resp.Selections[i] = newSelectionResponse(sel, full)
	}
	if n := len(res.States); n > 0 {
		resp.LastCorrelation = rows(res.States[n-1].Correlation)
		resp.LastCovariance = rows(res.States[n-1].Covariance)
	}
	if full {
		resp.Index = res.Index
		resp.Correlations = make([][][]float64, len(res.States))
		resp.Covariances = make([][][]float64, len(res.States))
		for t, s := range res.States {
			resp.Correlations[t] = rows(s.Correlation)
			resp.Covariances[t] = rows(s.Covariance)
		}
	}
	return resp
}

// rows copies a matrix into nested row slices.
func rows(m mat.Matrix) [][]float64 {
	if m == nil {
		return nil
	}
	r, c := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = make([]float64, c)
		for j := range out[i] {
			out[i][j] = m.At(i, j)
		}
	}
	return out
}
