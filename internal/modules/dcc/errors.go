package dcc

import "errors"

var (
	// ErrSingularCovariance reports a conditional covariance that cannot be
	// factorized at some time step.
	ErrSingularCovariance = errors.New("singular conditional covariance")
	// ErrOptimizationFailed reports that the (alpha, beta) search did not converge.
	ErrOptimizationFailed = errors.New("dcc optimization failed")
	// ErrSeriesMisaligned reports input series with different lengths or indexes.
	ErrSeriesMisaligned = errors.New("series misaligned")
	// ErrInvalidParams reports (alpha, beta) outside the stationary region or
	// malformed recursion inputs.
	ErrInvalidParams = errors.New("invalid dcc parameters")
)
