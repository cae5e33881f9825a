// Package handlers provides HTTP handlers for model selection and DCC estimation.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/modules/runs"
)

// Handler handles selection, estimation and run history requests
type Handler struct {
	service  *dcc.Service
	selector *garch.Selector
	runs     *runs.Repository
	log      zerolog.Logger
}

// NewHandler creates a new DCC handler. repo may be nil, in which case the
// run history routes answer 503.
func NewHandler(
	service *dcc.Service,
	selector *garch.Selector,
	repo *runs.Repository,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		selector: selector,
		runs:     repo,
		log:      log.With().Str("handler", "dcc").Logger(),
	}
}

// HandleSelect handles POST /api/garch/select
func (h *Handler) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	search, err := req.Search.apply(h.service.Config().Search)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	result, err := h.selector.SelectBest(r.Context(), req.Series.toSeries(), search)
	if err != nil {
		h.log.Warn().Err(err).Str("series", req.Series.Name).Msg("Model selection failed")
		if result != nil {
			h.writeJSON(w, statusFor(err), map[string]interface{}{
				"error":    err.Error(),
				"excluded": newSelectionResponse(result, false).Excluded,
			})
			return
		}
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, newSelectionResponse(result, req.Detail == "full"))
}

// HandleFit handles POST /api/dcc/fit
func (h *Handler) HandleFit(w http.ResponseWriter, r *http.Request) {
	var req fitRequest
	if err := decodeRequest(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	defaultsCfg := h.service.Config()
	search, err := req.Search.apply(defaultsCfg.Search)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	optCfg, err := req.Optimizer.apply(defaultsCfg.Optimizer)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	series := make([]garch.ReturnSeries, len(req.Series))
	for i, s := range req.Series {
		series[i] = s.toSeries()
	}

	result, err := h.service.FitWith(r.Context(), series, search, optCfg)
	if err != nil {
		h.log.Warn().Err(err).Int("assets", len(series)).Msg("DCC fit failed")
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, newFitResponse(result, req.Detail == "full"))
}

// HandleListRuns handles GET /api/dcc/runs
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.historyAvailable(w) {
		return
	}

	var query listRunsQuery
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		query.Limit = limit
	}
	if err := check(r.Context(), &query); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	summaries, err := h.runs.List(r.Context(), query.Limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		h.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  summaries,
		"count": len(summaries),
	})
}

// HandleGetRun handles GET /api/dcc/runs/{id}
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request, id string) {
	if !h.historyAvailable(w) {
		return
	}

	detail, err := h.runs.Get(r.Context(), id)
	if err != nil {
		if !errors.Is(err, runs.ErrNotFound) {
			h.log.Error().Err(err).Str("run_id", id).Msg("Failed to get run")
		}
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, detail)
}

// HandleDeleteRun handles DELETE /api/dcc/runs/{id}
func (h *Handler) HandleDeleteRun(w http.ResponseWriter, r *http.Request, id string) {
	if !h.historyAvailable(w) {
		return
	}

	if err := h.runs.Delete(r.Context(), id); err != nil {
		if !errors.Is(err, runs.ErrNotFound) {
			h.log.Error().Err(err).Str("run_id", id).Msg("Failed to delete run")
		}
		h.writeError(w, statusFor(err), err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleSelectedModels handles GET /api/garch/assets/{asset}/selected
func (h *Handler) HandleSelectedModels(w http.ResponseWriter, r *http.Request, asset string) {
	if !h.historyAvailable(w) {
		return
	}

	counts, err := h.runs.SelectedModels(r.Context(), asset)
	if err != nil {
		h.log.Error().Err(err).Str("asset", asset).Msg("Failed to get selected models")
		h.writeError(w, http.StatusInternalServerError, "Failed to get selected models")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"asset":  asset,
		"counts": counts,
	})
}

func (h *Handler) historyAvailable(w http.ResponseWriter) bool {
	if h.runs == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Run history is not configured")
		return false
	}
	return true
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, garch.ErrInvalidConfiguration),
		errors.Is(err, garch.ErrInsufficientData),
		errors.Is(err, dcc.ErrSeriesMisaligned),
		errors.Is(err, dcc.ErrInvalidParams):
		return http.StatusBadRequest
	case errors.Is(err, runs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, garch.ErrNoViableModel),
		errors.Is(err, dcc.ErrOptimizationFailed),
		errors.Is(err, dcc.ErrSingularCovariance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
