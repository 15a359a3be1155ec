package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
	logprogress "github.com/sawpanic/randomwalk/internal/log"
	"github.com/sawpanic/randomwalk/internal/metrics"
	"github.com/sawpanic/randomwalk/internal/persistence"
)

// Label bounds: a random multiple of ten in [minLabel, maxLabel]
const (
	minLabel = 100
	maxLabel = 10000
)

// Runner drives symbol pipelines from fetch to sink
type Runner struct {
	cfg      Config
	source   Source
	sink     Sink
	metrics  *metrics.Collector
	ledger   persistence.RunLedger
	runID    string
	baseSeed int64

	mu           sync.Mutex
	labels       *rand.Rand
	expectedDays int
	prepared     bool
}

// Option customizes a Runner
type Option func(*Runner)

// WithMetrics records outcomes and fetch latency on c
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// WithLedger appends every outcome to l
func WithLedger(l persistence.RunLedger) Option {
	return func(r *Runner) { r.ledger = l }
}

// WithRunID overrides the generated run identifier
func WithRunID(id string) Option {
	return func(r *Runner) { r.runID = id }
}

// NewRunner creates a runner for one run
func NewRunner(cfg Config, source Source, sink Sink, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}
	if source == nil || sink == nil {
		return nil, fmt.Errorf("runner requires a source and a sink")
	}

	base := cfg.Seed
	if base == 0 {
		base = time.Now().UnixNano()
	}

	r := &Runner{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		runID:    uuid.NewString(),
		baseSeed: base,
		labels:   rand.New(rand.NewSource(base)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RunID identifies this run in logs, metrics and the ledger
func (r *Runner) RunID() string {
	return r.runID
}

// ExpectedDays is the benchmark's trading-day count, known after Prepare
func (r *Runner) ExpectedDays() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.expectedDays
}

// Prepare fetches the benchmark series once and fixes the expected day count
// every symbol must match
func (r *Runner) Prepare(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prepared {
		return nil
	}

	series, err := r.fetch(ctx, r.cfg.BenchmarkSymbol)
	if err == nil && series.Len() < 2 {
		err = fmt.Errorf("%w: benchmark has %d observations", walk.ErrInsufficientData, series.Len())
	}
	if err != nil {
		return &walk.SymbolError{
			Symbol: r.cfg.BenchmarkSymbol,
			Start:  r.cfg.Start,
			End:    r.cfg.End,
			Stage:  "benchmark",
			Err:    err,
		}
	}

	r.expectedDays = series.Len()
	r.prepared = true

	log.Info().
		Str("run_id", r.runID).
		Str("benchmark", r.cfg.BenchmarkSymbol).
		Str("start", r.cfg.Start.Format(walk.DateLayout)).
		Str("end", r.cfg.End.Format(walk.DateLayout)).
		Int("expected_days", r.expectedDays).
		Msg("Expected trading days fixed")
	return nil
}

// RunSymbol runs a single symbol. Any outcome other than done is returned as a
// *walk.SymbolError.
func (r *Runner) RunSymbol(ctx context.Context, symbol string) (Outcome, error) {
	job := r.newJob(symbol, 0)
	if err := r.Prepare(ctx); err != nil {
		return Outcome{Job: job, State: StateSkipped, Err: err}, err
	}

	started := time.Now()
	out := r.Run(ctx, job)
	r.metrics.ObserveRun(time.Since(started))
	if out.State != StateDone {
		return out, out.Err
	}
	return out, nil
}

// RunBatch runs every symbol on a bounded worker pool. Skips and write failures
// stay with their symbol; the returned error is only set when the benchmark
// cannot be prepared or ctx ends.
func (r *Runner) RunBatch(ctx context.Context, symbols []string) (Report, error) {
	report := Report{RunID: r.runID}
	if err := r.Prepare(ctx); err != nil {
		return report, err
	}

	jobs := make([]Job, len(symbols))
	for i, symbol := range symbols {
		jobs[i] = r.newJob(symbol, i)
	}

	report.Outcomes = make([]Outcome, len(jobs))
	progress := logprogress.NewProgress("simulate", len(jobs), progressEvery(len(jobs)))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			out := r.Run(ctx, job)
			report.Outcomes[i] = out
			progress.Step(job.Symbol, out.State.String())
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range report.Outcomes {
		report.add(out)
	}
	report.Elapsed = progress.Finish()
	r.metrics.ObserveRun(report.Elapsed)

	log.Info().
		Str("run_id", r.runID).
		Int("done", report.Done).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("Batch finished")

	return report, ctx.Err()
}

// Run moves one job through fetching, validating, simulating and writing
func (r *Runner) Run(ctx context.Context, job Job) Outcome {
	r.metrics.SymbolStarted()
	defer r.metrics.SymbolFinished()

	started := time.Now()
	out := Outcome{Job: job, State: StateFetching}

	series, err := r.fetch(ctx, job.Symbol)
	if err != nil {
		return r.finish(ctx, r.stop(out, StateSkipped, err), started)
	}

	out.State = StateValidating
	if expected := r.ExpectedDays(); series.Len() != expected {
		err := fmt.Errorf("%w: got %d, want %d", walk.ErrLengthMismatch, series.Len(), expected)
		return r.finish(ctx, r.stop(out, StateSkipped, err), started)
	}
	stats, err := walk.ComputeStatistics(series, r.cfg.TradingDaysPerYear)
	if err != nil {
		return r.finish(ctx, r.stop(out, StateSkipped, err), started)
	}

	out.State = StateSimulating
	out.Stats = stats
	out.StartPrice = series.Last().Close
	paths := walk.NewSimulatorFromSource(rand.NewSource(r.jobSeed(job))).
		Generate(stats, out.StartPrice, r.cfg.TradingDaysPerYear, r.cfg.Iterations)
	rows := walk.Rows(job.Symbol, job.Label, paths)
	out.Summary = walk.Summarize(paths)

	out.State = StateWriting
	if err := r.sink.Write(ctx, job.Symbol, rows); err != nil {
		if !errors.Is(err, walk.ErrWrite) {
			err = fmt.Errorf("%w: %w", walk.ErrWrite, err)
		}
		return r.finish(ctx, r.stop(out, StateFailed, err), started)
	}

	out.State = StateDone
	out.Rows = len(rows)
	return r.finish(ctx, out, started)
}

func (r *Runner) fetch(ctx context.Context, symbol string) (walk.Series, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()

	started := time.Now()
	series, err := r.source.DailyCloses(ctx, symbol, r.cfg.Start, r.cfg.End)
	r.metrics.ObserveFetch(time.Since(started), err)

	switch {
	case err != nil && errors.Is(err, walk.ErrDataUnavailable):
		return walk.Series{}, err
	case err != nil:
		return walk.Series{}, fmt.Errorf("%w: %w", walk.ErrDataUnavailable, err)
	case series.Len() == 0:
		return walk.Series{}, fmt.Errorf("%w: no closes for %s", walk.ErrDataUnavailable, symbol)
	}
	if err := series.Validate(); err != nil {
		return walk.Series{}, fmt.Errorf("%w: %w", walk.ErrDataUnavailable, err)
	}
	return series, nil
}

// stop moves out to a terminal state, recording the stage it left from
func (r *Runner) stop(out Outcome, terminal State, err error) Outcome {
	out.Err = &walk.SymbolError{
		Symbol: out.Job.Symbol,
		Start:  r.cfg.Start,
		End:    r.cfg.End,
		Stage:  out.State.String(),
		Err:    err,
	}
	out.State = terminal
	return out
}

func (r *Runner) finish(ctx context.Context, out Outcome, started time.Time) Outcome {
	out.Elapsed = time.Since(started)
	reason := walk.Reason(out.Err)

	logger := log.With().
		Str("run_id", r.runID).
		Str("symbol", out.Job.Symbol).
		Str("start", r.cfg.Start.Format(walk.DateLayout)).
		Str("end", r.cfg.End.Format(walk.DateLayout)).
		Str("state", out.State.String()).
		Logger()

	var evt *zerolog.Event
	switch out.State {
	case StateDone:
		evt = logger.Info().
			Int("label", out.Job.Label).
			Float64("drift", out.Stats.Drift).
			Float64("volatility", out.Stats.Volatility).
			Float64("start_price", out.StartPrice).
			Float64("p05", out.Summary.P05).
			Float64("p50", out.Summary.P50).
			Float64("p95", out.Summary.P95).
			Int("rows", out.Rows)
	case StateFailed:
		evt = logger.Error().Str("reason", reason).Err(out.Err)
	default:
		evt = logger.Warn().Str("reason", reason).Err(out.Err)
	}
	evt.Dur("elapsed", out.Elapsed).Msg("Symbol " + out.State.String())

	r.metrics.ObserveOutcome(out.State.String(), reason, out.Rows)

	if r.ledger != nil {
		rec := persistence.RunRecord{
			RunID:      r.runID,
			Symbol:     out.Job.Symbol,
			State:      out.State.String(),
			Reason:     reason,
			StartDate:  r.cfg.Start,
			EndDate:    r.cfg.End,
			Drift:      out.Stats.Drift,
			Volatility: out.Stats.Volatility,
			StartPrice: out.StartPrice,
			Rows:       out.Rows,
			At:         time.Now().UTC(),
		}
		if err := r.ledger.Record(context.WithoutCancel(ctx), rec); err != nil {
			logger.Warn().Err(err).Msg("Run ledger write failed")
		}
	}
	return out
}

func (r *Runner) newJob(symbol string, index int) Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	steps := (maxLabel-minLabel)/10 + 1
	return Job{
		Symbol: symbol,
		Label:  minLabel + 10*r.labels.Intn(steps),
		Index:  index,
	}
}

// jobSeed gives each job its own stream so results do not depend on scheduling.
// Any value is a valid seed here; only the run seed treats zero as unset.
func (r *Runner) jobSeed(job Job) int64 {
	return r.baseSeed + int64(job.Index)
}

func progressEvery(total int) int {
	switch {
	case total <= 20:
		return 1
	case total <= 500:
		return 10
	default:
		return 50
	}
}
