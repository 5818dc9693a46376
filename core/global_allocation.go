package core

import (
	"context"
	"runtime"

	"github.com/signalsfoundry/spectrum-optimizer/internal/history"
	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/model"
	"github.com/signalsfoundry/spectrum-optimizer/optimize"
)

const (
	// SlotsPerUser is the number of carrier slots optimized per user.
	SlotsPerUser = 3
	// DefaultSeed seeds every stochastic search.
	DefaultSeed = 42

	slotBandwidthMHz       = 20.0
	slotSpectralEfficiency = 2.9
	resourceCostWeight     = 0.1
)

// GlobalAllocationResult is the jointly optimized allocation. Converged is
// false when the budget ran out or the run was cancelled; the vector is
// still the best one found.
type GlobalAllocationResult struct {
	AllocationVector []float64 `json:"allocation_vector"`
	FinalCost        float64   `json:"final_cost"`
	Converged        bool      `json:"converged"`
	Iterations       int       `json:"iterations"`
	Message          string    `json:"message"`
	HistoryEntryID   string    `json:"history_entry_id,omitempty"`
}

// GlobalAllocator searches allocation fractions x ∈ [0,1]^(3n) for all
// users at once and records each run in its history log.
type GlobalAllocator struct {
	Optimizer optimize.Optimizer
	Budget    optimize.Budget
	Seed      int64
	// SlotBandwidth scales each slot's bandwidth; zero entries count as 1.
	SlotBandwidth [SlotsPerUser]float64
	History       *history.Log
	Logger        logging.Logger
}

// NewGlobalAllocator returns an allocator using differential evolution
// across GOMAXPROCS workers with a 1000 generation budget and seed 42.
func NewGlobalAllocator(h *history.Log) *GlobalAllocator {
	if h == nil {
		h = history.NewLog()
	}
	return &GlobalAllocator{
		Optimizer: optimize.NewDifferentialEvolution(runtime.GOMAXPROCS(0)),
		Budget:    optimize.Budget{MaxIter: 1000},
		Seed:      DefaultSeed,
		History:   h,
		Logger:    logging.Noop(),
	}
}

// AllocationCost is the total cost of x for users requiring required[i]
// Mbps: squared throughput shortfall plus 0.1 per unit of allocation.
func AllocationCost(x []float64, required []float64, slotBandwidth [SlotsPerUser]float64) float64 {
	slotBandwidth = effectiveSlots(slotBandwidth)
	total := 0.0
	for u, req := range required {
		achieved, used := 0.0, 0.0
		for k, bw := range slotBandwidth {
			frac := x[u*SlotsPerUser+k]
			achieved += frac * bw * slotBandwidthMHz * slotSpectralEfficiency
			used += frac
		}
		if achieved < req {
			short := req - achieved
			total += short * short
		}
		total += used * resourceCostWeight
	}
	return total
}

func effectiveSlots(s [SlotsPerUser]float64) [SlotsPerUser]float64 {
	for k := range s {
		if s[k] == 0 {
			s[k] = 1
		}
	}
	return s
}

// Optimize runs the joint search. Cancellation yields the best vector so
// far with Converged=false. A history sink failure is logged, not returned.
func (g *GlobalAllocator) Optimize(ctx context.Context, users []model.UserRequirement) (GlobalAllocationResult, error) {
	if err := ValidateUsers(users); err != nil {
		return GlobalAllocationResult{}, err
	}
	log := g.Logger
	if log == nil {
		log = logging.Noop()
	}

	required := make([]float64, len(users))
	for i, u := range users {
		required[i] = u.RequiredThroughputMbps
	}
	slots := g.SlotBandwidth
	problem := optimize.Problem{
		Objective: func(x []float64) float64 { return AllocationCost(x, required, slots) },
		Bounds:    optimize.Repeat([]optimize.Bound{{Lower: 0, Upper: 1}}, SlotsPerUser*len(users)),
	}

	opt := g.Optimizer
	if opt == nil {
		opt = optimize.NewDifferentialEvolution(runtime.GOMAXPROCS(0))
	}
	r, err := opt.Minimize(ctx, problem, g.Budget, g.Seed)
	if err != nil {
		return GlobalAllocationResult{}, err
	}

	res := GlobalAllocationResult{
		AllocationVector: r.X,
		FinalCost:        r.Fun,
		Converged:        r.Converged,
		Iterations:       r.Iterations,
		Message:          r.Message,
	}
	if !res.Converged {
		log.Warn(ctx, "global allocation did not converge",
			logging.String("message", r.Message),
			logging.Int("iterations", r.Iterations),
			logging.Float64("final_cost", r.Fun),
		)
	}

	if g.History != nil {
		// Cancelled runs are recorded too.
		entry, herr := g.History.Append(context.WithoutCancel(ctx), history.Entry{
			RunID:            logging.RunIDFromContext(ctx),
			Kind:             history.KindGlobalAllocation,
			UserCount:        len(users),
			AllocationVector: r.X,
			FinalCost:        r.Fun,
			Converged:        r.Converged,
			Iterations:       r.Iterations,
		})
		res.HistoryEntryID = entry.ID
		if herr != nil {
			log.Error(ctx, "history append failed", logging.Err(herr))
		}
	}
	return res, nil
}

// AchievedThroughput returns each user's achieved throughput under x.
func AchievedThroughput(x []float64, users int, slotBandwidth [SlotsPerUser]float64) []float64 {
	slotBandwidth = effectiveSlots(slotBandwidth)
	out := make([]float64, users)
	for u := range out {
		for k, bw := range slotBandwidth {
			out[u] += x[u*SlotsPerUser+k] * bw * slotBandwidthMHz * slotSpectralEfficiency
		}
	}
	return out
}
