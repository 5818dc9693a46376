package optimize

import (
	"context"
	"math"
	"math/rand"
)

// SimulatedAnnealing is a single-walker annealer with the fast cooling
// schedule T_k = T0/(1+k). Each step perturbs every coordinate
// with Gaussian noise scaled by the bound width and the current temperature.
type SimulatedAnnealing struct {
	// InitialTemp is T0; zero selects 1.0.
	InitialTemp float64
	// Patience is the number of trailing steps without a cumulative
	// relative improvement above Budget.Tol after which the run is
	// reported as converged. Zero selects MaxIter/10.
	Patience int
}

// Minimize implements Optimizer.
func (sa *SimulatedAnnealing) Minimize(ctx context.Context, p Problem, b Budget, seed int64) (Result, error) {
	if err := p.validate(); err != nil {
		return Result{}, err
	}
	dim := len(p.Bounds)
	if dim == 0 {
		return emptyResult(p), nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b = b.withDefaults()

	t0 := sa.InitialTemp
	if t0 <= 0 {
		t0 = 1.0
	}
	patience := sa.Patience
	if patience <= 0 {
		patience = b.MaxIter / 10
		if patience < 1 {
			patience = 1
		}
	}

	rng := rand.New(rand.NewSource(seed))
	cur := make([]float64, dim)
	for j, bd := range p.Bounds {
		cur[j] = bd.Lower + rng.Float64()*(bd.Upper-bd.Lower)
	}
	curE := p.Objective(cur)
	best := append([]float64(nil), cur...)
	bestE := curE
	evals := 1
	// anchorE is the best energy when the stale counter last reset.
	anchorE := bestE
	stale := 0

	cand := make([]float64, dim)
	for k := 1; k <= b.MaxIter; k++ {
		if ctx.Err() != nil {
			return Result{X: best, Fun: bestE, Iterations: k - 1, Evaluations: evals, Message: MsgCancelled}, nil
		}
		temp := t0 / float64(1+k)
		for j, bd := range p.Bounds {
			cand[j] = cur[j] + rng.NormFloat64()*temp*(bd.Upper-bd.Lower)
		}
		clip(cand, p.Bounds)
		candE := p.Objective(cand)
		evals++

		delta := candE - curE
		if delta <= 0 || rng.Float64() < math.Exp(-delta/temp) {
			copy(cur, cand)
			curE = candE
		}

		if curE < bestE {
			copy(best, cur)
			bestE = curE
		}
		if anchorE-bestE > b.Atol+b.Tol*math.Abs(anchorE) {
			anchorE = bestE
			stale = 0
		} else {
			stale++
		}
		if stale >= patience {
			return Result{X: best, Fun: bestE, Converged: true, Iterations: k, Evaluations: evals, Message: MsgConverged}, nil
		}
	}
	return Result{X: best, Fun: bestE, Iterations: b.MaxIter, Evaluations: evals, Message: MsgMaxIterations}, nil
}
