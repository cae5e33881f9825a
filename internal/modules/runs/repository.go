package runs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/volcorr/internal/database"
	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/utils"
)

// runColumns is the column list shared by List and Get.
// Column order must match scanSummary().
const runColumns = `id, created_at, assets, num_obs, alpha, beta, log_likelihood,
iterations, func_evaluations, status, duration_ms`

// Repository persists DCC runs in runs.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a run repository on an already migrated database.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "runs").Logger(),
	}
}

// SaveRun stores result with its selection tables and returns the new run id.
func (r *Repository) SaveRun(ctx context.Context, result *dcc.Result) (string, error) {
	done := utils.MeasureDBQuery("runs.save", r.log)

	payload, err := msgpack.Marshal(buildPayload(result))
	if err != nil {
		return "", fmt.Errorf("failed to encode run payload: %w", err)
	}

	id := uuid.New().String()
	createdAt := result.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	numObs := len(result.States)

	var rows int64
	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dcc_runs
			(id, created_at, assets, num_assets, num_obs, alpha, beta, log_likelihood,
			 iterations, func_evaluations, status, duration_ms, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			id,
			createdAt.Unix(),
			strings.Join(result.Assets, ","),
			len(result.Assets),
			numObs,
			result.Params.Alpha,
			result.Params.Beta,
			result.LogLikelihood,
			result.Iterations,
			result.FuncEvaluations,
			result.Status,
			result.Duration.Milliseconds(),
			payload,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run: %w", err)
		}
		rows++

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO model_selections
			(run_id, asset, spec, bic, aic, log_likelihood, num_params, selected)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare selection insert: %w", err)
		}
		defer stmt.Close()

		for _, sel := range result.Selections {
			for _, row := range sel.Table() {
				if _, err := stmt.ExecContext(ctx,
					id,
					sel.Series,
					row.Spec.String(),
					row.BIC,
					row.AIC,
					row.LogLikelihood,
					row.NumParams,
					boolToInt(row.Selected),
				); err != nil {
					return fmt.Errorf("failed to insert selection %s/%s: %w", sel.Series, row.Spec, err)
				}
				rows++
			}
		}
		return nil
	})
	done(rows)
	if err != nil {
		return "", err
	}

	r.log.Info().
		Str("run_id", id).
		Int("assets", len(result.Assets)).
		Int("payload_bytes", len(payload)).
		Msg("DCC run stored")
	return id, nil
}

// List returns the most recent runs first. limit <= 0 returns all runs.
func (r *Repository) List(ctx context.Context, limit int) ([]Summary, error) {
	query := "SELECT " + runColumns + " FROM dcc_runs ORDER BY created_at DESC, id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

// Get returns one run with its selection table and decoded payload.
func (r *Repository) Get(ctx context.Context, id string) (*Detail, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+runColumns+", payload FROM dcc_runs WHERE id = ?", id)

	var (
		detail  Detail
		assets  string
		created int64
		durMS   int64
		payload []byte
	)
	err := row.Scan(
		&detail.ID, &created, &assets, &detail.NumObs, &detail.Alpha, &detail.Beta,
		&detail.LogLikelihood, &detail.Iterations, &detail.FuncEvaluations, &detail.Status,
		&durMS, &payload,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	detail.CreatedAt = time.Unix(created, 0).UTC()
	detail.Assets = utils.ParseCSV(assets)
	detail.Duration = time.Duration(durMS) * time.Millisecond

	detail.Payload = &Payload{}
	if err := msgpack.Unmarshal(payload, detail.Payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload of run %s: %w", id, err)
	}

	detail.Selections, err = r.selections(ctx, id)
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// SelectedModels returns how often each spec won the selection for asset.
func (r *Repository) SelectedModels(ctx context.Context, asset string) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT spec, COUNT(*) FROM model_selections
		WHERE asset = ? AND selected = 1
		GROUP BY spec
	`, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to query selected models: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var spec string
		var n int
		if err := rows.Scan(&spec, &n); err != nil {
			return nil, fmt.Errorf("failed to scan selected model: %w", err)
		}
		counts[spec] = n
	}
	return counts, rows.Err()
}

// Delete removes a run and its selection rows.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM dcc_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// foreign_keys may be off on connections not opened through database.New
	_, err = r.db.ExecContext(ctx, "DELETE FROM model_selections WHERE run_id = ?", id)
	return err
}

func (r *Repository) selections(ctx context.Context, id string) ([]SelectionRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT asset, spec, bic, aic, log_likelihood, num_params, selected
		FROM model_selections
		WHERE run_id = ?
		ORDER BY asset, bic
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query selections of run %s: %w", id, err)
	}
	defer rows.Close()

	result := []SelectionRow{}
	for rows.Next() {
		var s SelectionRow
		var selected int
		if err := rows.Scan(&s.Asset, &s.Spec, &s.BIC, &s.AIC, &s.LogLikelihood, &s.NumParams, &selected); err != nil {
			return nil, fmt.Errorf("failed to scan selection: %w", err)
		}
		s.Selected = selected == 1
		result = append(result, s)
	}
	return result, rows.Err()
}

func scanSummary(rows *sql.Rows) (Summary, error) {
	var (
		s       Summary
		assets  string
		created int64
		durMS   int64
	)
	err := rows.Scan(
		&s.ID, &created, &assets, &s.NumObs, &s.Alpha, &s.Beta,
		&s.LogLikelihood, &s.Iterations, &s.FuncEvaluations, &s.Status, &durMS,
	)
	if err != nil {
		return s, fmt.Errorf("failed to scan run: %w", err)
	}
	s.CreatedAt = time.Unix(created, 0).UTC()
	s.Assets = utils.ParseCSV(assets)
	s.Duration = time.Duration(durMS) * time.Millisecond
	return s, nil
}

func buildPayload(result *dcc.Result) *Payload {
	p := &Payload{
		CorrBar:      flatten(result.CorrBar),
		CovBar:       flatten(result.CovBar),
		Correlations: make([][]float64, len(result.States)),
		Covariances:  make([][]float64, len(result.States)),
	}
	if result.Index != nil {
		p.Index = make([]int64, len(result.Index))
		for i, ts := range result.Index {
			p.Index[i] = ts.Unix()
		}
	}
	for t, s := range result.States {
		p.Correlations[t] = flatten(s.Correlation)
		p.Covariances[t] = flatten(s.Covariance)
	}
	for _, sel := range result.Selections {
		best := sel.Best
		p.Models = append(p.Models, AssetModel{
			Asset:      sel.Series,
			Spec:       best.Spec,
			ParamNames: best.ParamNames,
			Params:     best.Params,
			StdErrors:  best.StdErrors,
			BIC:        best.BIC,
		})
	}
	return p
}

// flatten returns the full row-major n×n content of a symmetric matrix.
func flatten(m *mat.SymDense) []float64 {
	if m == nil {
		return nil
	}
	n := m.SymmetricDim()
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = m.At(i, j)
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
