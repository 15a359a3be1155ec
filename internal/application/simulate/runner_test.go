package simulate

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/randomwalk/internal/domain/walk"
	"github.com/sawpanic/randomwalk/internal/interfaces/output"
	"github.com/sawpanic/randomwalk/internal/metrics"
	"github.com/sawpanic/randomwalk/internal/persistence"
)

var (
	windowStart = time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
)

func linearSeries(symbol string, n int, from, to float64) walk.Series {
	s := walk.Series{Symbol: symbol, Observations: make([]walk.Observation, n)}
	day := time.Date(2017, 1, 3, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		price := from + (to-from)*float64(i)/float64(n-1)
		s.Observations[i] = walk.Observation{Date: day.AddDate(0, 0, i), Close: price}
	}
	return s
}

type fakeSource struct {
	mu     sync.Mutex
	series map[string]walk.Series
	errs   map[string]error
	calls  []string
}

func (f *fakeSource) DailyCloses(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error) {
	f.mu.Lock()
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()

	if err, ok := f.errs[symbol]; ok {
		return walk.Series{}, err
	}
	s, ok := f.series[symbol]
	if !ok {
		return walk.Series{}, errors.New("no data found, symbol may be delisted")
	}
	return s, nil
}

type recordingSink struct {
	mu     sync.Mutex
	rows   map[string][]walk.Row
	failOn string
}

func (s *recordingSink) Write(ctx context.Context, symbol string, rows []walk.Row) error {
	if symbol == s.failOn {
		return errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rows == nil {
		s.rows = make(map[string][]walk.Row)
	}
	s.rows[symbol] = rows
	return nil
}

type memLedger struct {
	mu      sync.Mutex
	records []persistence.RunRecord
}

func (l *memLedger) Record(ctx context.Context, rec persistence.RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

func (l *memLedger) ListRun(ctx context.Context, runID string) ([]persistence.RunRecord, error) {
	return l.records, nil
}

func (l *memLedger) CountByState(ctx context.Context, runID string) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, r := range l.records {
		counts[r.State]++
	}
	return counts, nil
}

func testConfig() Config {
	cfg := DefaultConfig(windowStart, windowEnd)
	cfg.Iterations = 20
	cfg.Seed = 42
	cfg.FetchTimeout = time.Second
	return cfg
}

func newSource() *fakeSource {
	return &fakeSource{
		series: map[string]walk.Series{
			"QQQ":  linearSeries("QQQ", 252, 120, 160),
			"AAPL": linearSeries("AAPL", 252, 100, 150),
			"MSFT": linearSeries("MSFT", 252, 60, 90),
			"SHRT": linearSeries("SHRT", 200, 10, 12),
		},
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero_iterations", func(c *Config) { c.Iterations = 0 }},
		{"zero_trading_days", func(c *Config) { c.TradingDaysPerYear = 0 }},
		{"reversed_window", func(c *Config) { c.Start, c.End = c.End, c.Start }},
		{"missing_benchmark", func(c *Config) { c.BenchmarkSymbol = "" }},
		{"zero_workers", func(c *Config) { c.Workers = 0 }},
		{"zero_timeout", func(c *Config) { c.FetchTimeout = 0 }},
	}

	require.NoError(t, testConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestModeFor(t *testing.T) {
	mode, err := ModeFor("AAPL", "")
	require.NoError(t, err)
	assert.Equal(t, ModeSingle, mode)

	mode, err = ModeFor("", "companylist.csv")
	require.NoError(t, err)
	assert.Equal(t, ModeBatch, mode)

	_, err = ModeFor("AAPL", "companylist.csv")
	assert.ErrorIs(t, err, ErrModeConflict)
	_, err = ModeFor("", "")
	assert.ErrorIs(t, err, ErrModeConflict)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "fetching", StateFetching.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "skipped", StateSkipped.String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateWriting.Terminal())
}

func TestPrepare_UsesBenchmarkLength(t *testing.T) {
	src := newSource()
	r, err := NewRunner(testConfig(), src, &recordingSink{})
	require.NoError(t, err)

	require.NoError(t, r.Prepare(context.Background()))
	require.NoError(t, r.Prepare(context.Background()))

	assert.Equal(t, 252, r.ExpectedDays())
	assert.Equal(t, []string{"QQQ"}, src.calls)
}

func TestPrepare_BenchmarkUnavailable(t *testing.T) {
	cfg := testConfig()
	cfg.BenchmarkSymbol = "NOPE"
	r, err := NewRunner(cfg, newSource(), &recordingSink{})
	require.NoError(t, err)

	_, err = r.RunBatch(context.Background(), []string{"AAPL"})
	require.Error(t, err)

	var symErr *walk.SymbolError
	require.ErrorAs(t, err, &symErr)
	assert.Equal(t, "NOPE", symErr.Symbol)
	assert.Equal(t, "benchmark", symErr.Stage)
	assert.ErrorIs(t, err, walk.ErrDataUnavailable)
}

func TestRunSymbol_Done(t *testing.T) {
	sink := &recordingSink{}
	r, err := NewRunner(testConfig(), newSource(), sink)
	require.NoError(t, err)

	out, err := r.RunSymbol(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, 20, out.Rows)
	assert.Equal(t, 150.0, out.StartPrice)
	assert.Greater(t, out.Stats.Drift, 0.0)

	rows := sink.rows["AAPL"]
	require.Len(t, rows, 20)
	for i, row := range rows {
		assert.Equal(t, i, row.Iteration)
		assert.Equal(t, out.Job.Label, row.Label)
		assert.Len(t, row.Prices, 253)
		assert.Equal(t, 150.0, row.Prices[0])
	}
	assert.Zero(t, out.Job.Label%10)
	assert.GreaterOrEqual(t, out.Job.Label, 100)
	assert.LessOrEqual(t, out.Job.Label, 10000)
}

func TestRunSymbol_UnknownSymbol(t *testing.T) {
	dir := t.TempDir()
	sink := output.NewFileSink(dir)
	r, err := NewRunner(testConfig(), newSource(), sink)
	require.NoError(t, err)

	out, err := r.RunSymbol(context.Background(), "ZZZZ")
	require.Error(t, err)

	var symErr *walk.SymbolError
	require.ErrorAs(t, err, &symErr)
	assert.Equal(t, "ZZZZ", symErr.Symbol)
	assert.Equal(t, "fetching", symErr.Stage)
	assert.Equal(t, windowStart, symErr.Start)
	assert.Equal(t, windowEnd, symErr.End)
	assert.ErrorIs(t, err, walk.ErrDataUnavailable)
	assert.Equal(t, StateSkipped, out.State)

	_, statErr := os.Stat(sink.Path("ZZZZ"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunSymbol_LengthMismatch(t *testing.T) {
	r, err := NewRunner(testConfig(), newSource(), &recordingSink{})
	require.NoError(t, err)

	out, err := r.RunSymbol(context.Background(), "SHRT")
	assert.ErrorIs(t, err, walk.ErrLengthMismatch)
	assert.Equal(t, StateSkipped, out.State)
	assert.Contains(t, err.Error(), "got 200, want 252")
}

func TestRunBatch_SkipsWrongLength(t *testing.T) {
	logs := captureLogs(t)
	dir := t.TempDir()
	sink := output.NewFileSink(dir)
	r, err := NewRunner(testConfig(), newSource(), sink)
	require.NoError(t, err)

	report, err := r.RunBatch(context.Background(), []string{"AAPL", "SHRT", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Done)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Failed)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "AAPL", report.Outcomes[0].Job.Symbol)
	assert.Equal(t, StateSkipped, report.Outcomes[1].State)
	assert.ErrorIs(t, report.Outcomes[1].Err, walk.ErrLengthMismatch)

	for _, sym := range []string{"AAPL", "MSFT"} {
		_, err := os.Stat(filepath.Join(dir, sym+".csv"))
		assert.NoError(t, err, sym)
	}
	_, err = os.Stat(filepath.Join(dir, "SHRT.csv"))
	assert.True(t, os.IsNotExist(err))

	assert.Contains(t, logs.String(), `"symbol":"SHRT"`)
	assert.Contains(t, logs.String(), `"reason":"length_mismatch"`)
}

func TestRunBatch_WriteFailureStaysWithSymbol(t *testing.T) {
	sink := &recordingSink{failOn: "AAPL"}
	r, err := NewRunner(testConfig(), newSource(), sink)
	require.NoError(t, err)

	report, err := r.RunBatch(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Done)
	assert.Equal(t, StateFailed, report.Outcomes[0].State)
	assert.ErrorIs(t, report.Outcomes[0].Err, walk.ErrWrite)

	var symErr *walk.SymbolError
	require.ErrorAs(t, report.Outcomes[0].Err, &symErr)
	assert.Equal(t, "writing", symErr.Stage)
	assert.Contains(t, sink.rows, "MSFT")
}

func TestRunBatch_ParallelMatchesSequential(t *testing.T) {
	symbols := []string{"AAPL", "MSFT", "SHRT", "AAPL2"}
	src := newSource()
	src.series["AAPL2"] = linearSeries("AAPL2", 252, 30, 20)

	run := func(workers int) map[string][]walk.Row {
		cfg := testConfig()
		cfg.Workers = workers
		sink := &recordingSink{}
		r, err := NewRunner(cfg, src, sink)
		require.NoError(t, err)
		report, err := r.RunBatch(context.Background(), symbols)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Done)
		return sink.rows
	}

	assert.Equal(t, run(1), run(4))
}

func TestRunBatch_FetchTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.FetchTimeout = 20 * time.Millisecond

	src := &blockingSource{fakeSource: newSource(), block: "SLOW"}
	r, err := NewRunner(cfg, src, &recordingSink{})
	require.NoError(t, err)

	report, err := r.RunBatch(context.Background(), []string{"SLOW", "AAPL"})
	require.NoError(t, err)

	assert.Equal(t, StateSkipped, report.Outcomes[0].State)
	assert.ErrorIs(t, report.Outcomes[0].Err, walk.ErrDataUnavailable)
	assert.ErrorIs(t, report.Outcomes[0].Err, context.DeadlineExceeded)
	assert.Equal(t, StateDone, report.Outcomes[1].State)
}

type blockingSource struct {
	*fakeSource
	block string
}

func (b *blockingSource) DailyCloses(ctx context.Context, symbol string, start, end time.Time) (walk.Series, error) {
	if symbol == b.block {
		<-ctx.Done()
		return walk.Series{}, ctx.Err()
	}
	return b.fakeSource.DailyCloses(ctx, symbol, start, end)
}

func TestRunner_MetricsAndLedger(t *testing.T) {
	collector := metrics.NewCollector()
	ledger := &memLedger{}
	r, err := NewRunner(testConfig(), newSource(), &recordingSink{},
		WithMetrics(collector), WithLedger(ledger), WithRunID("run-7"))
	require.NoError(t, err)
	assert.Equal(t, "run-7", r.RunID())

	_, err = r.RunBatch(context.Background(), []string{"AAPL", "ZZZZ", "SHRT"})
	require.NoError(t, err)

	outcomes, err := collector.Counts("randomwalk_symbol_outcomes_total")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"done": 1, "skipped": 2}, outcomes)

	skips, err := collector.Counts("randomwalk_symbol_skips_total")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"data_unavailable": 1, "length_mismatch": 1}, skips)

	counts, err := ledger.CountByState(context.Background(), "run-7")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"done": 1, "skipped": 2}, counts)
	for _, rec := range ledger.records {
		assert.Equal(t, "run-7", rec.RunID)
		if rec.Symbol == "AAPL" {
			assert.Equal(t, 20, rec.Rows)
			assert.Equal(t, 150.0, rec.StartPrice)
		}
	}
}

func TestRunner_SeedDeterminism(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	for _, sink := range []*recordingSink{a, b} {
		r, err := NewRunner(testConfig(), newSource(), sink)
		require.NoError(t, err)
		_, err = r.RunSymbol(context.Background(), "MSFT")
		require.NoError(t, err)
	}
	assert.Equal(t, a.rows["MSFT"], b.rows["MSFT"])
}

func TestRunner_NegativeSeedDeterminism(t *testing.T) {
	cfg := testConfig()
	cfg.Seed = -1

	a, b := &recordingSink{}, &recordingSink{}
	for _, sink := range []*recordingSink{a, b} {
		r, err := NewRunner(cfg, newSource(), sink)
		require.NoError(t, err)
		report, err := r.RunBatch(context.Background(), []string{"AAPL", "MSFT"})
		require.NoError(t, err)
		require.Equal(t, 2, report.Done)
	}
	// job #1 gets seed -1 + 1 == 0, which must not fall back to the clock
	assert.Equal(t, a.rows["AAPL"], b.rows["AAPL"])
	assert.Equal(t, a.rows["MSFT"], b.rows["MSFT"])
}

func TestRunner_ObservesRunOnce(t *testing.T) {
	collector := metrics.NewCollector()
	r, err := NewRunner(testConfig(), newSource(), &recordingSink{}, WithMetrics(collector))
	require.NoError(t, err)

	_, err = r.RunBatch(context.Background(), []string{"AAPL", "MSFT"})
	require.NoError(t, err)
	runs, err := collector.Counts("randomwalk_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, float64(1), runs[""])

	_, err = r.RunSymbol(context.Background(), "AAPL")
	require.NoError(t, err)
	runs, err = collector.Counts("randomwalk_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, float64(2), runs[""])
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := NewRunner(testConfig(), nil, &recordingSink{})
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Iterations = -1
	_, err = NewRunner(cfg, newSource(), &recordingSink{})
	assert.Error(t, err)
}
