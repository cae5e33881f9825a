package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
)

var validate = validator.New()

// errBadRequest marks malformed or invalid request bodies.
var errBadRequest = errors.New("bad request")

type seriesRequest struct {
	Name   string      `json:"name" validate:"required"`
	Index  []time.Time `json:"index,omitempty"`
	Values []float64   `json:"values" validate:"required,min=2"`
}

func (s seriesRequest) toSeries() garch.ReturnSeries {
	return garch.ReturnSeries{Name: s.Name, Index: s.Index, Values: s.Values}
}

// searchRequest overrides the configured search grid. Unset fields keep the
// service defaults.
type searchRequest struct {
	MaxP          *int     `json:"max_p" validate:"omitempty,gte=0,lte=10"`
	MaxQ          *int     `json:"max_q" validate:"omitempty,gte=0,lte=10"`
	MaxO          *int     `json:"max_o" validate:"omitempty,gte=0,lte=10"`
	Volatility    []string `json:"volatility"`
	Means         []string `json:"means"`
	Distributions []string `json:"distributions"`
	MaxCandidates int      `json:"max_candidates" validate:"gte=0"`
	FitTimeout    string   `json:"fit_timeout"`
}

func (s *searchRequest) apply(base garch.SearchConfig) (garch.SearchConfig, error) {
	cfg := base
	if s == nil {
		return cfg, nil
	}
	if s.MaxP != nil {
		cfg.MaxP = *s.MaxP
	}
	if s.MaxQ != nil {
		cfg.MaxQ = *s.MaxQ
	}
	if s.MaxO != nil {
		cfg.MaxO = *s.MaxO
	}
	if len(s.Volatility) > 0 {
		cfg.Volatility = make([]garch.VolatilityFamily, 0, len(s.Volatility))
		for _, v := range s.Volatility {
			f, err := garch.ParseVolatilityFamily(v)
			if err != nil {
				return cfg, err
			}
			cfg.Volatility = append(cfg.Volatility, f)
		}
	}
	if len(s.Means) > 0 {
		cfg.Means = make([]garch.MeanModel, 0, len(s.Means))
		for _, v := range s.Means {
			m, err := garch.ParseMeanModel(v)
			if err != nil {
				return cfg, err
			}
			cfg.Means = append(cfg.Means, m)
		}
	}
	if len(s.Distributions) > 0 {
		cfg.Distributions = make([]garch.Distribution, 0, len(s.Distributions))
		for _, v := range s.Distributions {
			d, err := garch.ParseDistribution(v)
			if err != nil {
				return cfg, err
			}
			cfg.Distributions = append(cfg.Distributions, d)
		}
	}
	if s.MaxCandidates > 0 {
		cfg.MaxCandidates = s.MaxCandidates
	}
	if s.FitTimeout != "" {
		d, err := time.ParseDuration(s.FitTimeout)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("%w: fit_timeout %q", garch.ErrInvalidConfiguration, s.FitTimeout)
		}
		cfg.FitTimeout = d
	}
	return cfg, nil
}

type optimizerRequest struct {
	InitialAlpha  *float64 `json:"initial_alpha" validate:"omitempty,gt=0,lt=1"`
	InitialBeta   *float64 `json:"initial_beta" validate:"omitempty,gte=0,lt=1"`
	MaxIterations int      `json:"max_iterations" validate:"gte=0"`
	Timeout       string   `json:"timeout"`
}

func (o *optimizerRequest) apply(base dcc.OptimizerConfig) (dcc.OptimizerConfig, error) {
	cfg := base
	if o == nil {
		return cfg, nil
	}
	if o.InitialAlpha != nil {
		cfg.InitialAlpha = *o.InitialAlpha
	}
	if o.InitialBeta != nil {
		cfg.InitialBeta = *o.InitialBeta
	}
	if o.MaxIterations > 0 {
		cfg.MaxIterations = o.MaxIterations
	}
	if o.Timeout != "" {
		d, err := time.ParseDuration(o.Timeout)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("%w: timeout %q", errBadRequest, o.Timeout)
		}
		cfg.Timeout = d
	}
	if !(dcc.Params{Alpha: cfg.InitialAlpha, Beta: cfg.InitialBeta}).Valid() {
		return cfg, fmt.Errorf("%w: initial alpha + beta must be below 1", dcc.ErrInvalidParams)
	}
	return cfg, nil
}

type selectRequest struct {
	Series seriesRequest  `json:"series"`
	Search *searchRequest `json:"search" validate:"omitempty"`
	Detail string         `json:"detail" default:"summary" validate:"oneof=summary full"`
}

type fitRequest struct {
	Series    []seriesRequest   `json:"series" validate:"required,min=2,dive"`
	Search    *searchRequest    `json:"search" validate:"omitempty"`
	Optimizer *optimizerRequest `json:"optimizer" validate:"omitempty"`
	Detail    string            `json:"detail" default:"summary" validate:"oneof=summary full"`
}

type listRunsQuery struct {
	Limit int `default:"50" validate:"gte=1,lte=500"`
}

// decodeRequest reads a JSON body into req, fills defaults and validates it.
func decodeRequest(r *http.Request, req interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return check(r.Context(), req)
}

func check(ctx context.Context, req interface{}) error {
	if err := defaults.Set(req); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := validate.StructCtx(ctx, req); err != nil {
		return fmt.Errorf("%w: %s", errBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", e.Namespace(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", e.Namespace(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
