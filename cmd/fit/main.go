// Command fit runs model selection and DCC estimation on a CSV panel of
// returns (or prices) or on a simulated DCC process, and prints the selected
// models and correlation parameters.
//
// The search grid comes from the same environment variables and YAML profile
// as the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/volcorr/internal/config"
	"github.com/aristath/volcorr/internal/database"
	"github.com/aristath/volcorr/internal/metrics"
	"github.com/aristath/volcorr/internal/modules/dcc"
	"github.com/aristath/volcorr/internal/modules/garch"
	"github.com/aristath/volcorr/internal/modules/runs"
	"github.com/aristath/volcorr/pkg/logger"
)

type options struct {
	csvPath    string
	dateColumn string
	prices     bool
	simulate   bool
	assets     int
	steps      int
	seed       uint64
	selectOnly bool
	store      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.csvPath, "csv", "", "CSV panel with a header row and one column per asset")
	flag.StringVar(&opts.dateColumn, "date-column", "date", "Name of the date column, if present")
	flag.BoolVar(&opts.prices, "prices", false, "Treat CSV values as prices and convert them to percentage log returns")
	flag.BoolVar(&opts.simulate, "simulate", false, "Fit a simulated DCC process instead of a CSV panel")
	flag.IntVar(&opts.assets, "assets", 3, "Number of simulated assets")
	flag.IntVar(&opts.steps, "steps", 1500, "Number of simulated observations")
	flag.Uint64Var(&opts.seed, "seed", 1, "Simulation seed")
	flag.BoolVar(&opts.selectOnly, "select-only", false, "Only run univariate model selection")
	flag.BoolVar(&opts.store, "store", false, "Persist the run into runs.db under VOLCORR_DATA_DIR")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration:", err)
		os.Exit(2)
	}
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, cfg, os.Stdout, log); err != nil {
		log.Error().Err(err).Msg("Fit failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, cfg *config.Config, out io.Writer, log zerolog.Logger) error {
	series, err := loadSeries(opts)
	if err != nil {
		return err
	}

	metrics.Register()
	pool := garch.NewWorkerPool(cfg.WorkerPoolSize)
	selector := garch.NewSelector(garch.NewQMLEFitter(), pool, log)

	if opts.selectOnly {
		for _, s := range series {
			sel, err := selector.SelectBest(ctx, s, cfg.Search)
			if err != nil {
				return err
			}
			printSelection(out, sel)
		}
		return nil
	}

	var recorder dcc.RunRecorder
	if opts.store {
		db, err := database.New(database.Config{
			Path: filepath.Join(cfg.DataDir, "runs.db"),
			Name: "runs",
		})
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return err
		}
		recorder = runs.NewRepository(db.Conn(), log)
	}

	service := dcc.NewService(selector, dcc.ServiceConfig{
		Search:            cfg.Search,
		Optimizer:         cfg.Optimizer,
		SeriesConcurrency: cfg.SeriesConcurrency,
	}, recorder, log)

	result, err := service.Fit(ctx, series)
	if err != nil {
		return err
	}
	for _, sel := range result.Selections {
		printSelection(out, sel)
	}
	printResult(out, result)
	return nil
}

func loadSeries(opts options) ([]garch.ReturnSeries, error) {
	if opts.simulate {
		sim := dcc.DefaultSimulationConfig()
		sim.Assets = opts.assets
		sim.Steps = opts.steps
		sim.Seed = opts.seed
		res, err := dcc.Simulate(sim)
		if err != nil {
			return nil, err
		}
		series := make([]garch.ReturnSeries, opts.assets)
		for j := range series {
			values := make([]float64, opts.steps)
			for t := range values {
				values[t] = res.Returns.At(t, j)
			}
			series[j] = garch.ReturnSeries{Name: fmt.Sprintf("sim%d", j+1), Values: values}
		}
		return series, nil
	}

	if opts.csvPath == "" {
		return nil, fmt.Errorf("either -csv or -simulate is required")
	}
	f, err := os.Open(opts.csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loadPanel(f, opts.dateColumn, opts.prices)
}

func printSelection(out io.Writer, sel *garch.SelectionResult) {
	fmt.Fprintf(out, "\n%s: selected %s\n", sel.Series, sel.BestSpec)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SPEC\tBIC\tAIC\tLOGLIK\tK\t")
	for _, row := range sel.Table() {
		mark := ""
		if row.Selected {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%.3f\t%.3f\t%.3f\t%d\t%s\n",
			row.Spec, row.BIC, row.AIC, row.LogLikelihood, row.NumParams, mark)
	}
	for _, ex := range sel.Excluded {
		fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t%v\n", ex.Spec, ex.Err)
	}
	tw.Flush()

	best := sel.Best
	tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARAM\tVALUE\tSTD.ERR\t")
	for i, name := range best.ParamNames {
		fmt.Fprintf(tw, "%s\t%.6f\t%.6f\t\n", name, best.Params[i], best.StdErrors[i])
	}
	tw.Flush()
}

func printResult(out io.Writer, res *dcc.Result) {
	fmt.Fprintf(out, "\nDCC(1,1): alpha=%.6f beta=%.6f persistence=%.6f loglik=%.3f\n",
		res.Params.Alpha, res.Params.Beta, res.Params.Alpha+res.Params.Beta, res.LogLikelihood)
	fmt.Fprintf(out, "status=%s iterations=%d evaluations=%d duration=%s\n",
		res.Status, res.Iterations, res.FuncEvaluations, res.Duration.Round(time.Millisecond))
	if res.ID != "" {
		fmt.Fprintf(out, "stored as run %s\n", res.ID)
	}

	last := res.States[len(res.States)-1].Correlation
	fmt.Fprintln(out, "\nlast conditional correlation:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprint(tw, "\t")
	for _, a := range res.Assets {
		fmt.Fprintf(tw, "%s\t", a)
	}
	fmt.Fprintln(tw)
	for i, a := range res.Assets {
		fmt.Fprintf(tw, "%s\t", a)
		for j := range res.Assets {
			fmt.Fprintf(tw, "%.4f\t", last.At(i, j))
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}
