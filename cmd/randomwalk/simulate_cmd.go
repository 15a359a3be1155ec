package main

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/randomwalk/internal/application/simulate"
	"github.com/sawpanic/randomwalk/internal/config"
	"github.com/sawpanic/randomwalk/internal/domain/walk"
	"github.com/sawpanic/randomwalk/internal/infrastructure/db"
	"github.com/sawpanic/randomwalk/internal/interfaces/output"
	"github.com/sawpanic/randomwalk/internal/metrics"
	"github.com/sawpanic/randomwalk/internal/symbols"
)

type simulateOptions struct {
	run         runFlags
	symbol      string
	symbolsFile string
	count       int
	batchEnv    int
	chart       bool
	metricsFile string
	summaryFile string
}

func newSimulateCmd(root *rootOptions, stdout io.Writer) *cobra.Command {
	opts := &simulateOptions{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Simulate price paths for one symbol or a symbol list",
		Long: `Fetch daily closes for the window, keep symbols whose series covers every trading
day of the benchmark, and write one CSV row per simulated path:
symbol, label, iteration, then the starting price and one price per trading day.`,
		Example: `  randomwalk simulate --start-date 2017-01-01 --end-date 2019-01-01 --symbol AAPL
  randomwalk simulate --start-date 2017-01-01 --end-date 2019-01-01 --symbols-file companylist.csv --count 50
  randomwalk simulate --symbols-file companylist.csv --batch-env 1 > paths.csv`,
		Args: cobra.NoArgs,
	}

	runSet := opts.run.flagSet()
	cmd.Flags().AddFlagSet(runSet)
	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "Simulate a single symbol")
	cmd.Flags().StringVar(&opts.symbolsFile, "symbols-file", "", "CSV file with a Symbol column")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Use only the first N symbols of the file (0 = all)")
	cmd.Flags().IntVar(&opts.batchEnv, "batch-env", 0, "1 writes rows to stdout for batch schedulers")
	cmd.Flags().BoolVar(&opts.chart, "chart", false, "Render a percentile fan chart next to each CSV")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	cmd.Flags().StringVar(&opts.summaryFile, "summary-file", "", "Write a JSON run summary to this file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		mode, err := simulate.ModeFor(opts.symbol, opts.symbolsFile)
		if err != nil {
			return err
		}
		cfg, closeLog, err := loadConfig(root, &opts.run, runSet)
		if err != nil {
			return err
		}
		defer closeLog()
		if opts.chart {
			cfg.Output.Chart = true
		}
		if opts.metricsFile != "" {
			cfg.Metrics.TextfilePath = opts.metricsFile
		}
		return runSimulate(cmd.Context(), cfg, mode, opts, stdout)
	}
	return cmd
}

func runSimulate(ctx context.Context, cfg *config.Config, mode simulate.Mode, opts *simulateOptions, stdout io.Writer) error {
	started := time.Now()

	runCfg, err := runConfig(cfg)
	if err != nil {
		return err
	}
	sink, err := buildSink(mode, opts.batchEnv, cfg, stdout)
	if err != nil {
		return err
	}

	var list []string
	if mode == simulate.ModeBatch {
		if list, err = symbols.Load(opts.symbolsFile, opts.count); err != nil {
			return err
		}
	}

	source, closeSource, err := buildSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	ledger, err := db.Open(ctx, cfg.Ledger)
	if err != nil {
		return err
	}
	defer ledger.Close()

	collector := metrics.NewCollector()
	runnerOpts := []simulate.Option{simulate.WithMetrics(collector)}
	if ledger.IsEnabled() {
		runnerOpts = append(runnerOpts, simulate.WithLedger(ledger.Ledger()))
	}
	runner, err := simulate.NewRunner(runCfg, source, sink, runnerOpts...)
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", runner.RunID()).
		Str("mode", mode.String()).
		Str("start", cfg.Simulation.StartDate).
		Str("end", cfg.Simulation.EndDate).
		Int("iterations", runCfg.Iterations).
		Int("symbols", max(len(list), 1)).
		Msg("Simulation started")

	var (
		report simulate.Report
		runErr error
	)
	switch mode {
	case simulate.ModeSingle:
		var out simulate.Outcome
		out, runErr = runner.RunSymbol(ctx, opts.symbol)
		report = simulate.Report{RunID: runner.RunID(), Outcomes: []simulate.Outcome{out}}
		switch out.State {
		case simulate.StateDone:
			report.Done = 1
		case simulate.StateFailed:
			report.Failed = 1
		default:
			report.Skipped = 1
		}
		report.Elapsed = time.Since(started)
		log.Info().
			Dur("elapsed", report.Elapsed).
			Msgf("Execution time: %.2fs for %d companies", report.Elapsed.Seconds(), 1)
	case simulate.ModeBatch:
		report, runErr = runner.RunBatch(ctx, list)
	}

	if err := collector.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		log.Warn().Err(err).Msg("Metrics textfile not written")
	}
	if opts.summaryFile != "" {
		summary := runSummary(report, mode, cfg)
		if err := output.NewEmitter().EmitSummaryJSON(opts.summaryFile, summary); err != nil {
			log.Warn().Err(err).Msg("Run summary not written")
		}
	}
	return runErr
}

func runSummary(report simulate.Report, mode simulate.Mode, cfg *config.Config) output.RunSummary {
	summary := output.RunSummary{
		RunID:       report.RunID,
		Mode:        mode.String(),
		StartDate:   cfg.Simulation.StartDate,
		EndDate:     cfg.Simulation.EndDate,
		Done:        report.Done,
		Skipped:     report.Skipped,
		Failed:      report.Failed,
		ElapsedSecs: report.Elapsed.Seconds(),
	}
	for _, out := range report.Outcomes {
		line := output.SymbolSummary{
			Symbol: out.Job.Symbol,
			State:  out.State.String(),
			Reason: walk.Reason(out.Err),
			Rows:   out.Rows,
		}
		if out.Err != nil {
			line.Error = out.Err.Error()
		}
		if out.State == simulate.StateDone {
			terminal := out.Summary
			line.Drift = out.Stats.Drift
			line.Volatility = out.Stats.Volatility
			line.StartPrice = out.StartPrice
			line.Terminal = &terminal
		}
		summary.Symbols = append(summary.Symbols, line)
	}
	return summary
}

