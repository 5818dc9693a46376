package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the outcome label.
const (
	OutcomeConverged    = "converged"
	OutcomeNotConverged = "not_converged"
	OutcomeCancelled    = "cancelled"
	OutcomeError        = "error"
	OutcomeOK           = "ok"
)

// EngineCollector exposes optimization engine metrics.
type EngineCollector struct {
	gatherer prometheus.Gatherer

	RunsTotal           *prometheus.CounterVec
	RunDuration         *prometheus.HistogramVec
	OptimizerIterations *prometheus.HistogramVec
	PoolWait            prometheus.Histogram
	InflightRuns        prometheus.Gauge
	HistoryEntries      prometheus.Gauge
}

// NewEngineCollector registers engine metrics against the provided
// registerer, defaulting to the global registry when nil.
func NewEngineCollector(reg prometheus.Registerer) (*EngineCollector, error) {
	reg, gatherer := resolveRegistry(reg)

	runs, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrum_engine_runs_total",
		Help: "Completed engine operations, labeled by operation and outcome.",
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}

	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spectrum_engine_run_duration_seconds",
		Help:    "Wall time of engine operations, excluding time spent waiting for a worker slot.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}

	iterations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spectrum_engine_optimizer_iterations",
		Help:    "Generations used by stochastic searches.",
		Buckets: []float64{1, 10, 50, 100, 250, 500, 750, 1000},
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}

	wait, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "spectrum_engine_pool_wait_seconds",
		Help:    "Time spent waiting for a worker pool slot.",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
	}))
	if err != nil {
		return nil, err
	}

	inflight, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrum_engine_inflight_runs",
		Help: "Engine operations currently holding a worker slot.",
	}))
	if err != nil {
		return nil, err
	}

	entries, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "spectrum_engine_history_entries",
		Help: "Entries in the allocation history log.",
	}))
	if err != nil {
		return nil, err
	}

	return &EngineCollector{
		gatherer:            gatherer,
		RunsTotal:           runs,
		RunDuration:         durations,
		OptimizerIterations: iterations,
		PoolWait:            wait,
		InflightRuns:        inflight,
		HistoryEntries:      entries,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *EngineCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// Handler exposes a /metrics handler for the collector's registry.
func (c *EngineCollector) Handler() http.Handler {
	return handlerFor(c.Gatherer())
}

// ObserveRun records one finished operation.
func (c *EngineCollector) ObserveRun(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	if c.RunsTotal != nil {
		c.RunsTotal.WithLabelValues(operation, outcome).Inc()
	}
	if c.RunDuration != nil {
		c.RunDuration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// ObserveIterations records the generations used by a stochastic search.
func (c *EngineCollector) ObserveIterations(operation string, n int) {
	if c == nil || c.OptimizerIterations == nil {
		return
	}
	c.OptimizerIterations.WithLabelValues(operation).Observe(float64(n))
}

// ObservePoolWait records time spent acquiring a worker slot.
func (c *EngineCollector) ObservePoolWait(d time.Duration) {
	if c == nil || c.PoolWait == nil {
		return
	}
	c.PoolWait.Observe(d.Seconds())
}

// AddInflight adjusts the in-flight gauge by delta.
func (c *EngineCollector) AddInflight(delta int) {
	if c == nil || c.InflightRuns == nil {
		return
	}
	c.InflightRuns.Add(float64(delta))
}

// SetHistoryEntries updates the history size gauge.
func (c *EngineCollector) SetHistoryEntries(n int) {
	if c == nil || c.HistoryEntries == nil {
		return
	}
	c.HistoryEntries.Set(float64(n))
}
