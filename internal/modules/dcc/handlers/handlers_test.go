package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/modules/runs"
	testingpkg "github.com/aristath/volcorr/internal/testing"
)

type testEnv struct {
	router http.Handler
	repo   *runs.Repository
}

// newTestEnv wires a stubbed selector for /garch routes and a real QMLE
// fitter behind the DCC service, both recording into an in-memory database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	fixture := testingpkg.NewSelectionFixture("A", 50)
	stub := &testingpkg.StubFitter{Models: fixture.Models}
	stubSelector := garch.NewSelector(stub, garch.NewWorkerPool(2), log)

	repo := runs.NewRepository(testingpkg.NewMemoryDB(t, "runs"), log)
	realSelector := garch.NewSelector(garch.NewQMLEFitter(), garch.NewWorkerPool(2), log)
	service := dcc.NewService(realSelector, dcc.ServiceConfig{
		Search: garch.SearchConfig{
			MaxP:       1,
			MaxQ:       1,
			Volatility: []garch.VolatilityFamily{garch.GARCH},
			Means:      []garch.MeanModel{garch.MeanConstant},
		},
		Optimizer:         dcc.DefaultOptimizerConfig(),
		SeriesConcurrency: 2,
	}, repo, log)

	handler := NewHandler(service, stubSelector, repo, log)
	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)

	return &testEnv{router: router, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func series(name string, n int) map[string]interface{} {
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i%7) - 3
	}
	return map[string]interface{}{"name": name, "values": values}
}

func TestRegisterRoutes(t *testing.T) {
	env := newTestEnv(t)

	testCases := []struct {
		method string
		path   string
		name   string
	}{
		{"POST", "/api/garch/select", "Select"},
		{"GET", "/api/garch/assets/A/selected", "SelectedModels"},
		{"POST", "/api/dcc/fit", "Fit"},
		{"GET", "/api/dcc/runs", "ListRuns"},
		{"GET", "/api/dcc/runs/missing", "GetRun"},
		{"DELETE", "/api/dcc/runs/missing", "DeleteRun"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString("{}"))
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)

			assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code, "Route %s %s should be registered", tc.method, tc.path)
			if tc.name != "GetRun" && tc.name != "DeleteRun" {
				assert.NotEqual(t, http.StatusNotFound, rec.Code, "Route %s %s should be registered", tc.method, tc.path)
			}
		})
	}
}

func TestHandleSelect(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		validate       func(*testing.T, *httptest.ResponseRecorder)
	}{
		{
			name:           "selects lowest BIC",
			body:           map[string]interface{}{"series": series("A", 50)},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp selectionResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Equal(t, "A", resp.Series)
				require.NotNil(t, resp.Best)
				assert.Equal(t, "GARCH(1,0,1)/Constant/normal", resp.Best.Name)
				assert.Equal(t, 95.5, resp.Best.BIC)
				require.Len(t, resp.Table, 2)
				assert.True(t, resp.Table[0].Selected)
				assert.Empty(t, resp.Best.ConditionalVolatility)
			},
		},
		{
			name: "full detail includes volatility path",
			body: map[string]interface{}{
				"series": series("A", 50),
				"detail": "full",
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp selectionResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				require.NotNil(t, resp.Best)
				assert.Len(t, resp.Best.ConditionalVolatility, 50)
				// the fixture's boundary standard error encodes as null
				assert.Contains(t, w.Body.String(), "null")
			},
		},
		{
			name: "unstubbed family has no viable model",
			body: map[string]interface{}{
				"series": series("A", 50),
				"search": map[string]interface{}{"volatility": []string{"egarch"}},
			},
			expectedStatus: http.StatusUnprocessableEntity,
			validate: func(t *testing.T, w *httptest.ResponseRecorder) {
				var resp struct {
					Error    string              `json:"error"`
					Excluded []exclusionResponse `json:"excluded"`
				}
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.Contains(t, resp.Error, garch.ErrNoViableModel.Error())
				assert.Len(t, resp.Excluded, 2)
			},
		},
		{
			name: "unknown family",
			body: map[string]interface{}{
				"series": series("A", 50),
				"search": map[string]interface{}{"volatility": []string{"TARCH"}},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "negative order",
			body: map[string]interface{}{
				"series": series("A", 50),
				"search": map[string]interface{}{"max_q": -1},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing name",
			body:           map[string]interface{}{"series": map[string]interface{}{"values": []float64{1, 2, 3}}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown detail",
			body: map[string]interface{}{
				"series": series("A", 50),
				"detail": "everything",
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			body:           map[string]interface{}{"series": series("A", 50), "bogus": true},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/garch/select", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.validate != nil {
				tt.validate(t, w)
			}
		})
	}
}

func TestHandleFit_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
	}{
		{
			name:           "single series",
			body:           map[string]interface{}{"series": []interface{}{series("A", 100)}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "length mismatch",
			body:           map[string]interface{}{"series": []interface{}{series("A", 100), series("B", 90)}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "non-stationary initial guess",
			body: map[string]interface{}{
				"series":    []interface{}{series("A", 100), series("B", 100)},
				"optimizer": map[string]interface{}{"initial_alpha": 0.5, "initial_beta": 0.6},
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad timeout",
			body: map[string]interface{}{
				"series":    []interface{}{series("A", 100), series("B", 100)},
				"optimizer": map[string]interface{}{"timeout": "soon"},
			},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/api/dcc/fit", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
		})
	}
}

func TestHandleFit_PersistsRun(t *testing.T) {
	if testing.Short() {
		t.Skip("full estimation")
	}
	env := newTestEnv(t)

	fixtures, err := testingpkg.NewReturnSeriesFixtures(2, 1200, 7)
	require.NoError(t, err)
	body := map[string]interface{}{"series": []interface{}{
		map[string]interface{}{"name": fixtures[0].Name, "index": fixtures[0].Index, "values": fixtures[0].Values},
		map[string]interface{}{"name": fixtures[1].Name, "index": fixtures[1].Index, "values": fixtures[1].Values},
	}}

	w := env.do(t, "POST", "/api/dcc/fit", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp fitResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, []string{"A", "B"}, resp.Assets)
	assert.Less(t, resp.Persistence, 1.0)
	assert.GreaterOrEqual(t, resp.Alpha, 0.0)
	require.Len(t, resp.LastCorrelation, 2)
	assert.InDelta(t, 1.0, resp.LastCorrelation[0][0], 1e-12)
	assert.InDelta(t, 1.0, resp.LastCorrelation[1][1], 1e-12)
	assert.Len(t, resp.Selections, 2)
	assert.Empty(t, resp.Correlations)

	w = env.do(t, "GET", "/api/dcc/runs/"+resp.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail runs.Detail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	assert.Equal(t, resp.ID, detail.ID)
	assert.InDelta(t, resp.Alpha, detail.Alpha, 1e-12)
	assert.Len(t, detail.Payload.Correlations, 1200)
}

func TestRunHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.repo.SaveRun(ctx, testingpkg.NewDCCResultFixture([]string{"A", "B"}, 5))
	require.NoError(t, err)
	_, err = env.repo.SaveRun(ctx, testingpkg.NewDCCResultFixture([]string{"A", "C"}, 5))
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		w := env.do(t, "GET", "/api/dcc/runs", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Runs  []runs.Summary `json:"runs"`
			Count int            `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
	})

	t.Run("list with limit", func(t *testing.T) {
		w := env.do(t, "GET", "/api/dcc/runs?limit=1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"count":1`)
	})

	t.Run("invalid limit", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/dcc/runs?limit=abc", nil).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(t, "GET", "/api/dcc/runs?limit=1000", nil).Code)
	})

	t.Run("selected models", func(t *testing.T) {
		w := env.do(t, "GET", "/api/garch/assets/A/selected", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Asset  string         `json:"asset"`
			Counts map[string]int `json:"counts"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, map[string]int{"GARCH(1,0,1)/Constant/normal": 2}, resp.Counts)
	})

	t.Run("get and delete", func(t *testing.T) {
		w := env.do(t, "GET", "/api/dcc/runs/"+first, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"selections"`)

		w = env.do(t, "DELETE", "/api/dcc/runs/"+first, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(t, "GET", "/api/dcc/runs/"+first, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		w = env.do(t, "DELETE", "/api/dcc/runs/"+first, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRunHistory_NotConfigured(t *testing.T) {
	handler := NewHandler(nil, nil, nil, zerolog.Nop())
	router := chi.NewRouter()
	router.Route("/api", handler.RegisterRoutes)

	req := httptest.NewRequest("GET", "/api/dcc/runs", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{garch.ErrInvalidConfiguration, http.StatusBadRequest},
		{dcc.ErrSeriesMisaligned, http.StatusBadRequest},
		{garch.ErrNoViableModel, http.StatusUnprocessableEntity},
		{dcc.ErrOptimizationFailed, http.StatusUnprocessableEntity},
		{runs.ErrNotFound, http.StatusNotFound},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
