package garch

import "errors"

var (
	// ErrInvalidConfiguration reports unusable search bounds or unknown model tags.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrNonConvergence reports that the likelihood optimizer exhausted its budget.
	ErrNonConvergence = errors.New("volatility model did not converge")
	// ErrIllConditioned reports a singular or numerically unusable Hessian at the optimum.
	ErrIllConditioned = errors.New("ill-conditioned parameter covariance")
	// ErrNoViableModel reports that every candidate fit for a series failed.
	ErrNoViableModel = errors.New("no viable volatility model")
	// ErrInsufficientData reports a series too short or non-finite to estimate.
	ErrInsufficientData = errors.New("insufficient data")
)
