// Package engine runs every spectrum optimization through a bounded worker
// pool, wrapping each run with a span, metrics and a run-scoped logger.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/signalsfoundry/spectrum-optimizer/core"
	"github.com/signalsfoundry/spectrum-optimizer/internal/config"
	"github.com/signalsfoundry/spectrum-optimizer/internal/history"
	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/internal/observability"
	"github.com/signalsfoundry/spectrum-optimizer/model"
	"github.com/signalsfoundry/spectrum-optimizer/optimize"
)

// Operation names used for metrics labels, span names and log fields.
const (
	OpAnalyzeSpectrum   = "analyze_spectrum"
	OpAssignFrequencies = "assign_frequencies"
	OpOptimizeCarriers  = "optimize_carriers"
	OpGlobalAllocation  = "global_allocation"
	OpOptimizeAntennas  = "optimize_antennas"
)

// Engine is safe for concurrent use. Each operation snapshots its inputs
// before the run so callers may mutate them afterwards.
type Engine struct {
	analyzer *core.SpectrumAnalyzer
	assigner *core.FrequencyAssigner
	carriers *core.CarrierAggregator
	global   *core.GlobalAllocator
	rf       *core.RFOptimizer
	history  *history.Log

	sem        *semaphore.Weighted
	workers    int
	runTimeout time.Duration

	log     logging.Logger
	metrics *observability.EngineCollector
	sink    history.Sink
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the base logger; run loggers derive from it.
func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.log = l } }

// WithMetrics attaches a collector. A nil collector disables metrics.
func WithMetrics(c *observability.EngineCollector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithHistorySink persists every history entry through s.
func WithHistorySink(s history.Sink) Option { return func(e *Engine) { e.sink = s } }

// New builds an engine from cfg. cfg is validated first.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	e := &Engine{log: logging.Noop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = logging.Noop()
	}

	e.workers = cfg.Engine.Workers
	if e.workers <= 0 {
		e.workers = runtime.GOMAXPROCS(0)
	}
	e.sem = semaphore.NewWeighted(int64(e.workers))
	e.runTimeout = cfg.Engine.RunTimeout

	histOpts := []history.Option{
		history.WithAppendHook(func(_ history.Entry, total int) { e.metrics.SetHistoryEntries(total) }),
	}
	if e.sink != nil {
		histOpts = append(histOpts, history.WithSink(e.sink))
	}
	e.history = history.NewLog(histOpts...)

	reg := core.DefaultBandRegistry()
	e.analyzer = core.NewSpectrumAnalyzer(reg)
	e.analyzer.NoiseFloorDBm = cfg.Analyzer.NoiseFloorDBm

	e.assigner = core.NewFrequencyAssigner()
	e.assigner.Clusterer.MaxClusters = cfg.Assigner.MaxClusters
	e.assigner.Clusterer.Seed = cfg.Assigner.ClusterSeed
	e.assigner.Channels = channelPool(cfg.Assigner.ChannelCount)
	e.assigner.StaggerClusters = cfg.Assigner.StaggerClusters

	e.carriers = core.NewCarrierAggregator(reg)
	e.carriers.DistanceM = cfg.Carrier.DefaultDistanceM

	budget := optimize.Budget{
		MaxIter: cfg.Search.MaxIter,
		PopSize: cfg.Search.PopSize,
		Tol:     cfg.Search.Tol,
	}
	e.global = core.NewGlobalAllocator(e.history)
	e.global.Optimizer = newOptimizer(cfg.Search.Algorithm, e.workers)
	e.global.Budget = budget
	e.global.Seed = cfg.Search.Seed

	e.rf = core.NewRFOptimizer(e.workers)
	e.rf.Optimizer = newOptimizer(cfg.Search.Algorithm, e.workers)
	e.rf.Budget = budget
	e.rf.Seed = cfg.Search.Seed
	if cfg.RF.Adjacency == config.AdjacencyIndex {
		e.rf.Adjacency = core.AdjacencyIndex
	}
	return e, nil
}

func newOptimizer(algorithm string, workers int) optimize.Optimizer {
	if algorithm == config.AlgorithmSimulatedAnnealing {
		return &optimize.SimulatedAnnealing{}
	}
	return optimize.NewDifferentialEvolution(workers)
}

func channelPool(n int) []int {
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i + 1
	}
	return pool
}

// Workers returns the pool size.
func (e *Engine) Workers() int { return e.workers }

// History returns a copy of every global allocation recorded so far.
func (e *Engine) History() []history.Entry { return e.history.Entries() }

// AnalyzeSpectrum reports utilization per band for a measurement snapshot.
func (e *Engine) AnalyzeSpectrum(ctx context.Context, measurements []model.Measurement) (map[string]model.BandUtilization, error) {
	snapshot := append([]model.Measurement(nil), measurements...)
	var out map[string]model.BandUtilization
	err := e.run(ctx, OpAnalyzeSpectrum, func(ctx context.Context, log logging.Logger) (runStats, error) {
		out = e.analyzer.Analyze(snapshot)
		log.Debug(ctx, "Spectrum analysed", logging.Int("measurements", len(snapshot)))
		return runStats{outcome: observability.OutcomeOK}, nil
	})
	return out, err
}

// AssignFrequencies clusters cells and assigns channels and power.
func (e *Engine) AssignFrequencies(ctx context.Context, cells []model.CellSite, demand model.TrafficDemand) (core.Plan, error) {
	cells, demand = model.CloneCells(cells), demand.Clone()
	var out core.Plan
	err := e.run(ctx, OpAssignFrequencies, func(ctx context.Context, log logging.Logger) (runStats, error) {
		plan, err := e.assigner.Assign(cells, demand)
		if err != nil {
			return runStats{}, err
		}
		out = plan
		log.Debug(ctx, "Frequencies assigned",
			logging.Int("cells", len(cells)),
			logging.Float64("predicted_interference", plan.PredictedInterference),
		)
		return runStats{outcome: observability.OutcomeOK}, nil
	})
	return out, err
}

// OptimizeCarriers selects primary and secondary carriers per user. A
// snapshot with no carriers at all is rejected with core.ErrNoSpectrum.
func (e *Engine) OptimizeCarriers(ctx context.Context, users []model.UserRequirement, spectrum model.AvailableSpectrum) (core.AggregationResult, error) {
	users, spectrum = append([]model.UserRequirement(nil), users...), spectrum.Clone()
	var out core.AggregationResult
	err := e.run(ctx, OpOptimizeCarriers, func(ctx context.Context, log logging.Logger) (runStats, error) {
		if err := e.carriers.Validate(spectrum); err != nil {
			return runStats{}, err
		}
		res, err := e.carriers.Optimize(users, spectrum)
		if err != nil {
			return runStats{}, err
		}
		out = res
		unmet := 0
		for _, a := range res.Allocations {
			if a.Unmet {
				unmet++
			}
		}
		if unmet > 0 {
			log.Warn(ctx, "Users without a candidate carrier", logging.Int("unmet", unmet))
		}
		return runStats{outcome: observability.OutcomeOK}, nil
	})
	return out, err
}

// OptimizeGlobalAllocation runs the joint allocation search and records it
// in the history log.
func (e *Engine) OptimizeGlobalAllocation(ctx context.Context, users []model.UserRequirement) (core.GlobalAllocationResult, error) {
	users = append([]model.UserRequirement(nil), users...)
	var out core.GlobalAllocationResult
	err := e.run(ctx, OpGlobalAllocation, func(ctx context.Context, log logging.Logger) (runStats, error) {
		g := *e.global
		g.Logger = log
		res, err := g.Optimize(ctx, users)
		if err != nil {
			return runStats{}, err
		}
		out = res
		return runStats{outcome: searchOutcome(res.Converged, res.Message), iterations: res.Iterations}, nil
	})
	return out, err
}

// OptimizeAntennas tunes tilt, azimuth and power for every site.
func (e *Engine) OptimizeAntennas(ctx context.Context, sites []model.CellSite, demand model.TrafficDemand) (core.AntennaOptimizationResult, error) {
	sites, demand = model.CloneCells(sites), demand.Clone()
	var out core.AntennaOptimizationResult
	err := e.run(ctx, OpOptimizeAntennas, func(ctx context.Context, log logging.Logger) (runStats, error) {
		res, err := e.rf.Optimize(ctx, sites, demand)
		if err != nil {
			return runStats{}, err
		}
		out = res
		if !res.Converged {
			log.Warn(ctx, "Antenna optimization did not converge", logging.String("message", res.Message))
		}
		return runStats{outcome: searchOutcome(res.Converged, res.Message), iterations: res.Iterations}, nil
	})
	return out, err
}

type runStats struct {
	outcome    string
	iterations int
}

func searchOutcome(converged bool, msg string) string {
	switch {
	case converged:
		return observability.OutcomeConverged
	case msg == optimize.MsgCancelled:
		return observability.OutcomeCancelled
	default:
		return observability.OutcomeNotConverged
	}
}

// plansOnCancel reports whether op must still return a usable result when
// its context ends before a worker slot frees up. The searches then run
// unslotted on the done context, which costs a single objective evaluation.
func plansOnCancel(op string) bool {
	switch op {
	case OpOptimizeCarriers, OpGlobalAllocation, OpOptimizeAntennas:
		return true
	}
	return false
}

// run acquires a pool slot, then executes fn under a span with a run
// logger. Waiting for a slot honours ctx.
func (e *Engine) run(ctx context.Context, op string, fn func(context.Context, logging.Logger) (runStats, error)) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, log := logging.WithRunLogger(ctx, e.log)
	log = log.With(logging.String("operation", op))

	ctx, span := observability.StartSpan(ctx, "engine."+op,
		attribute.String("run_id", logging.RunIDFromContext(ctx)),
	)
	defer span.End()

	waitStart := time.Now()
	if err := e.sem.Acquire(ctx, 1); err != nil {
		if ctx.Err() == nil || !plansOnCancel(op) {
			e.metrics.ObserveRun(op, observability.OutcomeCancelled, 0)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("%s: waiting for a worker: %w", op, err)
		}
		log.Warn(ctx, "No worker free before cancellation, returning the initial candidate",
			logging.Duration("waited", time.Since(waitStart)),
			logging.Err(err),
		)
		span.AddEvent("worker wait cancelled")
	} else {
		defer e.sem.Release(1)
		e.metrics.ObservePoolWait(time.Since(waitStart))
		e.metrics.AddInflight(1)
		defer e.metrics.AddInflight(-1)
	}

	if e.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.runTimeout)
		defer cancel()
	}

	start := time.Now()
	stats, err := fn(ctx, log)
	elapsed := time.Since(start)
	if err != nil {
		stats.outcome = observability.OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn(ctx, "Run failed", logging.Err(err), logging.Duration("elapsed", elapsed))
	} else {
		log.Info(ctx, "Run finished",
			logging.String("outcome", stats.outcome),
			logging.Int("iterations", stats.iterations),
			logging.Duration("elapsed", elapsed),
		)
	}
	span.SetAttributes(attribute.String("outcome", stats.outcome))
	e.metrics.ObserveRun(op, stats.outcome, elapsed)
	if stats.iterations > 0 {
		e.metrics.ObserveIterations(op, stats.iterations)
	}
	return err
}

// Snapshot is the complete input of a batch run. Sections left empty skip
// the operations that need them.
type Snapshot struct {
	Measurements []model.Measurement     `json:"measurements,omitempty"`
	Cells        []model.CellSite        `json:"cells,omitempty"`
	Demand       model.TrafficDemand     `json:"traffic_demand,omitempty"`
	Users        []model.UserRequirement `json:"users,omitempty"`
	Spectrum     model.AvailableSpectrum `json:"available_spectrum,omitempty"`
}

// Report is the combined output of Run.
type Report struct {
	RunID              string                           `json:"run_id"`
	Utilization        map[string]model.BandUtilization `json:"spectrum_utilization,omitempty"`
	FrequencyPlan      *core.Plan                       `json:"frequency_plan,omitempty"`
	CarrierAggregation *core.AggregationResult          `json:"carrier_aggregation,omitempty"`
	GlobalAllocation   *core.GlobalAllocationResult     `json:"global_allocation,omitempty"`
	Antennas           *core.AntennaOptimizationResult  `json:"antenna_optimization,omitempty"`
}

// Run executes every operation whose inputs are present in s concurrently
// and returns the combined report. All operations share one run_id. The
// first failure cancels the remaining operations.
func (e *Engine) Run(ctx context.Context, s Snapshot) (Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, runID := logging.EnsureRunID(ctx)
	rep := Report{RunID: runID}

	g, gctx := errgroup.WithContext(ctx)
	if len(s.Measurements) > 0 {
		g.Go(func() error {
			util, err := e.AnalyzeSpectrum(gctx, s.Measurements)
			rep.Utilization = util
			return err
		})
	}
	if len(s.Cells) > 0 {
		g.Go(func() error {
			plan, err := e.AssignFrequencies(gctx, s.Cells, s.Demand)
			if err == nil {
				rep.FrequencyPlan = &plan
			}
			return err
		})
		g.Go(func() error {
			res, err := e.OptimizeAntennas(gctx, s.Cells, s.Demand)
			if err == nil {
				rep.Antennas = &res
			}
			return err
		})
	}
	if len(s.Users) > 0 {
		if s.Spectrum != nil {
			g.Go(func() error {
				res, err := e.OptimizeCarriers(gctx, s.Users, s.Spectrum)
				if err == nil {
					rep.CarrierAggregation = &res
				}
				return err
			})
		}
		g.Go(func() error {
			res, err := e.OptimizeGlobalAllocation(gctx, s.Users)
			if err == nil {
				rep.GlobalAllocation = &res
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Report{RunID: runID}, err
	}
	return rep, nil
}
