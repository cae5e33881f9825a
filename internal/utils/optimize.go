package utils

import (
	"context"

	"gonum.org/v1/gonum/optimize"
)

// convergedStatuses are the optimizer outcomes accepted as a converged fit.
var convergedStatuses = map[optimize.Status]bool{
	optimize.Success:             true,
	optimize.GradientThreshold:   true,
	optimize.FunctionConvergence: true,
	optimize.MethodConverge:      true,
}

// Converged reports whether an optimize.Result status counts as convergence.
// Iteration, evaluation and runtime limits do not.
func Converged(status optimize.Status) bool {
	return convergedStatuses[status]
}

// ContextRecorder stops a gonum optimization once its context is done.
// optimize.Minimize returns the context error unchanged.
type ContextRecorder struct {
	Ctx context.Context
}

// Init implements optimize.Recorder.
func (r ContextRecorder) Init() error {
	return r.Ctx.Err()
}

// Record implements optimize.Recorder.
func (r ContextRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.Ctx.Err()
}
