package core

import (
	"context"
	"math"
	"runtime"

	"github.com/signalsfoundry/spectrum-optimizer/model"
	"github.com/signalsfoundry/spectrum-optimizer/optimize"
)

// Adjacency selects how the pairwise interference term measures site
// separation.
type Adjacency int

const (
	// AdjacencyGeographic uses great-circle distance in kilometres.
	AdjacencyGeographic Adjacency = iota
	// AdjacencyIndex uses |i-j| over the input order.
	AdjacencyIndex
)

// Objective weights.
const (
	coverageWeight     = 0.4
	interferenceWeight = 0.3
	capacityWeight     = 0.3
)

// siteBounds are tilt (degrees), azimuth (degrees) and power (dBm) for one
// site.
var siteBounds = []optimize.Bound{
	{Lower: 0, Upper: 15},
	{Lower: 0, Upper: 360},
	{Lower: model.MinPowerDBm, Upper: model.MaxPowerDBm},
}

// AntennaOptimizationResult carries the tuned parameters per site and the
// maximized objective.
type AntennaOptimizationResult struct {
	Parameters []model.AntennaParameters `json:"optimized_parameters"`
	Score      float64                   `json:"score"`
	Converged  bool                      `json:"converged"`
	Iterations int                       `json:"iterations"`
	Message    string                    `json:"message"`
}

// RFOptimizer tunes tilt, azimuth and power for every site jointly,
// maximizing 0.4*coverage - 0.3*interference + 0.3*capacity.
type RFOptimizer struct {
	Optimizer optimize.Optimizer
	Budget    optimize.Budget
	Seed      int64
	Adjacency Adjacency
}

// NewRFOptimizer returns an optimizer evaluating the population across
// workers goroutines. workers <= 0 selects GOMAXPROCS.
func NewRFOptimizer(workers int) *RFOptimizer {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &RFOptimizer{
		Optimizer: optimize.NewDifferentialEvolution(workers),
		Budget:    optimize.Budget{MaxIter: 1000},
		Seed:      DefaultSeed,
		Adjacency: AdjacencyGeographic,
	}
}

// Optimize searches antenna parameters for sites. Demand is looked up by
// site ID with a default of 0.
func (o *RFOptimizer) Optimize(ctx context.Context, sites []model.CellSite, demand model.TrafficDemand) (AntennaOptimizationResult, error) {
	if err := ValidateCells(sites); err != nil {
		return AntennaOptimizationResult{}, err
	}
	obj := newRFObjective(sites, demand, o.Adjacency)

	opt := o.Optimizer
	if opt == nil {
		opt = optimize.NewDifferentialEvolution(runtime.GOMAXPROCS(0))
	}
	r, err := opt.Minimize(ctx, optimize.Problem{
		Objective: func(x []float64) float64 { return -obj.score(x) },
		Bounds:    optimize.Repeat(siteBounds, len(sites)),
	}, o.Budget, o.Seed)
	if err != nil {
		return AntennaOptimizationResult{}, err
	}

	params := make([]model.AntennaParameters, len(sites))
	for i, s := range sites {
		params[i] = model.AntennaParameters{
			SiteID:     s.ID,
			TiltDeg:    r.X[3*i],
			AzimuthDeg: math.Mod(r.X[3*i+1], 360),
			PowerDBm:   model.ClampPower(r.X[3*i+2]),
		}
	}
	return AntennaOptimizationResult{
		Parameters: params,
		Score:      -r.Fun,
		Converged:  r.Converged,
		Iterations: r.Iterations,
		Message:    r.Message,
	}, nil
}

// rfObjective precomputes the per-pair separation and per-site demand so
// score is a pure function of x and safe for concurrent evaluation.
type rfObjective struct {
	n      int
	demand []float64
	// sep[i][j] for i<j is the separation term used in the pairwise
	// interference denominator.
	sep [][]float64
}

func newRFObjective(sites []model.CellSite, demand model.TrafficDemand, adj Adjacency) *rfObjective {
	n := len(sites)
	o := &rfObjective{n: n, demand: make([]float64, n), sep: make([][]float64, n)}
	for i, s := range sites {
		o.demand[i] = demand.Get(s.ID, 0)
		o.sep[i] = make([]float64, n)
		for j := i + 1; j < n; j++ {
			switch adj {
			case AdjacencyIndex:
				o.sep[i][j] = float64(j - i)
			default:
				o.sep[i][j] = HaversineKm(s.Location(), sites[j].Location())
			}
		}
	}
	return o
}

func (o *rfObjective) terms(x []float64) (coverage, interference, capacity float64) {
	if o.n == 0 {
		return 0, 0, 0
	}
	for i := 0; i < o.n; i++ {
		tilt, power := x[3*i], x[3*i+2]
		coverage += (power - 20) * (1 + math.Cos(tilt*math.Pi/180)) * 0.1
		capacity += o.demand[i] * math.Log2(1+power/10)
		for j := i + 1; j < o.n; j++ {
			interference += power * x[3*j+2] / (100 + 10*o.sep[i][j])
		}
	}
	coverage /= float64(o.n)
	interference /= float64(o.n)
	return coverage, interference, capacity
}

func (o *rfObjective) score(x []float64) float64 {
	cov, intf, capacity := o.terms(x)
	return coverageWeight*cov - interferenceWeight*intf + capacityWeight*capacity
}
