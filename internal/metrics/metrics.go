// Package metrics exposes Prometheus instruments for model selection and
// DCC estimation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// CandidateFits counts candidate fits by volatility family and outcome.
	CandidateFits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "volcorr",
		Name:      "candidate_fits_total",
		Help:      "Univariate candidate fits by volatility family and outcome.",
	}, []string{"family", "outcome"})

	// FitDuration observes the wall time of a single candidate fit.
	FitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "volcorr",
		Name:      "candidate_fit_duration_seconds",
		Help:      "Wall time of a single univariate candidate fit.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"family"})

	// LikelihoodEvaluations counts objective evaluations spent by optimizers.
	LikelihoodEvaluations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "volcorr",
		Name:      "likelihood_evaluations_total",
		Help:      "Objective function evaluations by estimation stage.",
	}, []string{"stage"})

	// DCCFits counts DCC estimations by outcome.
	DCCFits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "volcorr",
		Name:      "dcc_fits_total",
		Help:      "DCC estimations by outcome.",
	}, []string{"outcome"})

	// DCCFitDuration observes end-to-end DCC estimation time.
	DCCFitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "volcorr",
		Name:      "dcc_fit_duration_seconds",
		Help:      "End-to-end DCC estimation time including model selection.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	registerOnce sync.Once
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Register adds every instrument to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			CandidateFits,
			FitDuration,
			LikelihoodEvaluations,
			DCCFits,
			DCCFitDuration,
		)
	})
}

// Outcome maps an error to its outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
