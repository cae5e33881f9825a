// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/volcorr/internal/config"
	"github.com/aristath/volcorr/internal/metrics"
)

// Wire initializes all dependencies and returns a fully configured container
// Order of operations:
// 1. Register metrics
// 2. Initialize databases
// 3. Initialize repositories
// 4. Initialize services
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	metrics.Register()

	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	InitializeRepositories(container, log)
	InitializeServices(container, cfg, log)

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, nil
}
