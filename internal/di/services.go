package di

import (
	"github.com/rs/zerolog"

	"github.com/aristath/volcorr/internal/config"
	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/modules/runs"
)

// InitializeRepositories creates the repositories over the opened databases
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.RunRepo = runs.NewRepository(container.RunsDB.Conn(), log)
}

// InitializeServices creates the fitting, selection and estimation services
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	fitter := garch.NewQMLEFitter()
	pool := garch.NewWorkerPool(cfg.WorkerPoolSize)

	container.Fitter = fitter
	container.WorkerPool = pool
	container.Selector = garch.NewSelector(fitter, pool, log)
	container.DCCService = dcc.NewService(container.Selector, dcc.ServiceConfig{
		Search:            cfg.Search,
		Optimizer:         cfg.Optimizer,
		SeriesConcurrency: cfg.SeriesConcurrency,
	}, container.RunRepo, log)

	log.Info().
		Int("workers", pool.Size()).
		Int("series_concurrency", cfg.SeriesConcurrency).
		Msg("Services initialized")
}
