/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for access to services.
 */
package di

import (
	"github.com/aristath/volcorr/internal/database"
	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/modules/runs"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: runs.db (estimation history)
 * - Repositories: stored DCC runs and selection tables
 * - Services: candidate fitting, model selection and DCC estimation
 */
type Container struct {
	// Databases
	RunsDB *database.DB // Stored DCC runs and per-asset selection tables

	// Repositories
	RunRepo *runs.Repository

	// Services
	Fitter     garch.Fitter      // QMLE backend shared by every selection
	WorkerPool *garch.WorkerPool // Bounds concurrent candidate fits
	Selector   *garch.Selector   // Min-BIC model selection per series
	DCCService *dcc.Service      // Selection of every series followed by DCC estimation
}

// Close releases the container's databases.
func (c *Container) Close() error {
	if c.RunsDB == nil {
		return nil
	}
	return c.RunsDB.Close()
}
