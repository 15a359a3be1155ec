package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Collector holds the Prometheus metrics of simulation runs. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	Outcomes       *prometheus.CounterVec
	Skips          *prometheus.CounterVec
	FetchDuration  *prometheus.HistogramVec
	PathsGenerated prometheus.Counter
	ActiveSymbols  prometheus.Gauge
	RunDuration    prometheus.Histogram
}

// NewCollector creates a collector on its own registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),

		Outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "randomwalk_symbol_outcomes_total",
				Help: "Symbol pipelines by terminal state",
			},
			[]string{"state"},
		),

		Skips: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "randomwalk_symbol_skips_total",
				Help: "Skipped or failed symbols by reason",
			},
			[]string{"reason"},
		),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "randomwalk_fetch_duration_seconds",
				Help:    "Duration of historical close fetches",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"result"},
		),

		PathsGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "randomwalk_paths_generated_total",
				Help: "Simulated price paths written to a sink",
			},
		),

		ActiveSymbols: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "randomwalk_active_symbols",
				Help: "Symbol pipelines currently in flight",
			},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "randomwalk_run_duration_seconds",
				Help:    "Wall time of complete runs",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
	}

	c.registry.MustRegister(
		c.Outcomes,
		c.Skips,
		c.FetchDuration,
		c.PathsGenerated,
		c.ActiveSymbols,
		c.RunDuration,
	)
	return c
}

// Gatherer exposes the underlying registry
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one fetch attempt
func (c *Collector) ObserveFetch(d time.Duration, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.FetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

// ObserveOutcome records a terminal symbol state. reason is empty for completed symbols.
func (c *Collector) ObserveOutcome(state, reason string, paths int) {
	if c == nil {
		return
	}
	c.Outcomes.WithLabelValues(state).Inc()
	if reason != "" {
		c.Skips.WithLabelValues(reason).Inc()
	}
	if paths > 0 {
		c.PathsGenerated.Add(float64(paths))
	}
}

// SymbolStarted and SymbolFinished track in-flight pipelines
func (c *Collector) SymbolStarted() {
	if c != nil {
		c.ActiveSymbols.Inc()
	}
}

func (c *Collector) SymbolFinished() {
	if c != nil {
		c.ActiveSymbols.Dec()
	}
}

// ObserveRun records the wall time of a whole run
func (c *Collector) ObserveRun(d time.Duration) {
	if c != nil {
		c.RunDuration.Observe(d.Seconds())
	}
}

// WriteTextfile writes the registry for the node_exporter textfile collector
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile %s: %w", path, err)
	}
	log.Debug().Str("path", path).Msg("Metrics textfile written")
	return nil
}

// Counts returns counter values, or histogram sample counts, keyed by label value
func (c *Collector) Counts(name string) (map[string]float64, error) {
	if c == nil {
		return map[string]float64{}, nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				counts[labelKey(m.GetLabel())] += m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				counts[labelKey(m.GetLabel())] += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return counts, nil
}

func labelKey(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	values := make([]string, 0, len(pairs))
	for _, p := range pairs {
		values = append(values, p.GetValue())
	}
	sort.Strings(values)
	key := values[0]
	for _, v := range values[1:] {
		key += "," + v
	}
	return key
}
