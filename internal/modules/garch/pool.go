package garch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/aristath/volcorr/internal/metrics"
)

// DefaultWorkerCount returns the number of physical cores, falling back to
// the logical CPU count when it cannot be determined.
func DefaultWorkerCount() int {
	if n, err := cpu.Counts(false); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// WorkerPool fits candidate specifications in parallel on a bounded set of
// goroutines. A pool of size 1 fits sequentially on the calling goroutine.
type WorkerPool struct {
	numWorkers int
}

// NewWorkerPool creates a pool with numWorkers goroutines; numWorkers <= 0
// selects DefaultWorkerCount.
func NewWorkerPool(numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkerCount()
	}
	return &WorkerPool{numWorkers: numWorkers}
}

// Size returns the number of workers.
func (wp *WorkerPool) Size() int {
	return wp.numWorkers
}

// FitOutcome is the result of one job: exactly one of Model and Err is set.
type FitOutcome struct {
	Model *FittedModel
	Err   error
}

// FitBatch fits every spec on series and returns outcomes in the order of
// specs, regardless of completion order. Each fit is bounded by fitTimeout
// when positive. Once ctx is done, remaining specs fail with ctx.Err().
func (wp *WorkerPool) FitBatch(
	ctx context.Context,
	fitter Fitter,
	series []float64,
	specs []ModelSpec,
	fitTimeout time.Duration,
) []FitOutcome {
	outcomes := make([]FitOutcome, len(specs))
	if len(specs) == 0 {
		return outcomes
	}

	if wp.numWorkers == 1 {
		for idx, spec := range specs {
			outcomes[idx] = fitOne(ctx, fitter, series, spec, fitTimeout)
		}
		return outcomes
	}

	jobs := make(chan jobItem, len(specs))
	results := make(chan resultItem, len(specs))

	var wg sync.WaitGroup
	numActualWorkers := wp.numWorkers
	if len(specs) < numActualWorkers {
		numActualWorkers = len(specs)
	}
	for i := 0; i < numActualWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(ctx, fitter, series, fitTimeout, jobs, results)
		}()
	}

	for idx, spec := range specs {
		jobs <- jobItem{index: idx, spec: spec}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for result := range results {
		outcomes[result.index] = result.outcome
	}
	return outcomes
}

type jobItem struct {
	index int
	spec  ModelSpec
}

type resultItem struct {
	index   int
	outcome FitOutcome
}

func worker(
	ctx context.Context,
	fitter Fitter,
	series []float64,
	fitTimeout time.Duration,
	jobs <-chan jobItem,
	results chan<- resultItem,
) {
	for job := range jobs {
		results <- resultItem{
			index:   job.index,
			outcome: fitOne(ctx, fitter, series, job.spec, fitTimeout),
		}
	}
}

// fitOne runs a single fit, converting panics and timeouts into errors.
func fitOne(ctx context.Context, fitter Fitter, series []float64, spec ModelSpec, fitTimeout time.Duration) (outcome FitOutcome) {
	if err := ctx.Err(); err != nil {
		return FitOutcome{Err: err}
	}
	if fitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fitTimeout)
		defer cancel()
	}

	start := time.Now()
	family := string(spec.Volatility)
	defer func() {
		if r := recover(); r != nil {
			outcome = FitOutcome{Err: fmt.Errorf("fit %s panicked: %v", spec, r)}
		}
		metrics.FitDuration.WithLabelValues(family).Observe(time.Since(start).Seconds())
		metrics.CandidateFits.WithLabelValues(family, metrics.Outcome(outcome.Err)).Inc()
		if outcome.Model != nil {
			metrics.LikelihoodEvaluations.WithLabelValues("univariate").Add(float64(outcome.Model.FuncEvaluations))
		}
	}()

	model, err := fitter.Fit(ctx, series, spec)
	if err == nil && model == nil {
		err = fmt.Errorf("fit %s returned no model", spec)
	}
	if err == nil && ctx.Err() != nil {
		// finished past its deadline
		err = ctx.Err()
	}
	if err != nil {
		return FitOutcome{Err: err}
	}
	return FitOutcome{Model: model}
}
