package optimize

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

const (
	defaultMaxIter       = 1000
	defaultPopSize       = 15
	defaultTol           = 0.01
	defaultRecombination = 0.7
	minPopulation        = 5
)

// DifferentialEvolution is a best/1/bin differential evolution minimizer
// with dithered mutation and deferred population updates. Trial vectors of a
// generation are generated from a single seeded stream and then evaluated,
// so results do not depend on Workers.
type DifferentialEvolution struct {
	// Workers bounds concurrent objective evaluations. Values <= 1
	// evaluate serially. The objective must be safe for concurrent use
	// when Workers > 1.
	Workers int
	// MutationMin and MutationMax bound the per-generation dithered
	// mutation factor. Both zero selects [0.5, 1.0).
	MutationMin float64
	MutationMax float64
	// Recombination is the crossover probability; zero selects 0.7.
	Recombination float64
}

// NewDifferentialEvolution returns a minimizer with default mutation and
// crossover settings.
func NewDifferentialEvolution(workers int) *DifferentialEvolution {
	return &DifferentialEvolution{Workers: workers}
}

func (b Budget) withDefaults() Budget {
	if b.MaxIter <= 0 {
		b.MaxIter = defaultMaxIter
	}
	if b.PopSize <= 0 {
		b.PopSize = defaultPopSize
	}
	if b.Tol <= 0 {
		b.Tol = defaultTol
	}
	if b.Atol < 0 {
		b.Atol = 0
	}
	return b
}

// Minimize implements Optimizer.
func (de *DifferentialEvolution) Minimize(ctx context.Context, p Problem, b Budget, seed int64) (Result, error) {
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

	mutLo, mutHi := de.MutationMin, de.MutationMax
	if mutLo == 0 && mutHi == 0 {
		mutLo, mutHi = 0.5, 1.0
	}
	cr := de.Recombination
	if cr <= 0 {
		cr = defaultRecombination
	}

	rng := rand.New(rand.NewSource(seed))
	np := b.PopSize * dim
	if np < minPopulation {
		np = minPopulation
	}

	pop := latinHypercube(rng, np, p.Bounds)
	energies := make([]float64, np)

	// The first member is always evaluated so a cancelled run still has a
	// real candidate to return.
	energies[0] = p.Objective(pop[0])
	evals := 1 + de.evaluate(ctx, p.Objective, pop[1:], energies[1:])

	best := argmin(energies)
	res := func(iter int, converged bool, msg string) Result {
		return Result{
			X:           append([]float64(nil), pop[best]...),
			Fun:         energies[best],
			Converged:   converged,
			Iterations:  iter,
			Evaluations: evals,
			Message:     msg,
		}
	}
	if ctx.Err() != nil {
		return res(0, false, MsgCancelled), nil
	}

	trials := make([][]float64, np)
	for i := range trials {
		trials[i] = make([]float64, dim)
	}
	trialEnergies := make([]float64, np)

	for gen := 1; gen <= b.MaxIter; gen++ {
		if ctx.Err() != nil {
			return res(gen-1, false, MsgCancelled), nil
		}

		scale := mutLo + rng.Float64()*(mutHi-mutLo)
		for i := 0; i < np; i++ {
			r0, r1 := pickTwo(rng, np, i)
			trial := trials[i]
			copy(trial, pop[i])
			fill := rng.Intn(dim)
			for j := 0; j < dim; j++ {
				if j == fill || rng.Float64() < cr {
					trial[j] = pop[best][j] + scale*(pop[r0][j]-pop[r1][j])
				}
			}
			reinitOutOfBounds(rng, trial, p.Bounds)
		}

		evals += de.evaluate(ctx, p.Objective, trials, trialEnergies)

		for i := 0; i < np; i++ {
			if trialEnergies[i] <= energies[i] {
				copy(pop[i], trials[i])
				energies[i] = trialEnergies[i]
				if energies[i] < energies[best] {
					best = i
				}
			}
		}

		if ctx.Err() != nil {
			return res(gen, false, MsgCancelled), nil
		}
		if populationConverged(energies, b.Tol, b.Atol) {
			return res(gen, true, MsgConverged), nil
		}
	}
	return res(b.MaxIter, false, MsgMaxIterations), nil
}

// evaluate fills out[i] = f(xs[i]) and returns the number of evaluations
// performed. Members skipped because ctx is done get +Inf so selection
// never prefers them.
func (de *DifferentialEvolution) evaluate(ctx context.Context, f Objective, xs [][]float64, out []float64) int {
	if de.Workers <= 1 {
		n := 0
		for i, x := range xs {
			if ctx.Err() != nil {
				out[i] = math.Inf(1)
				continue
			}
			out[i] = f(x)
			n++
		}
		return n
	}

	var (
		g     errgroup.Group
		count atomic.Int64
	)
	g.SetLimit(de.Workers)
	for i := range xs {
		i := i
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i] = math.Inf(1)
				return nil
			}
			out[i] = f(xs[i])
			count.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(count.Load())
}

// latinHypercube spreads n samples so each dimension's range is split into
// n strata with exactly one sample per stratum.
func latinHypercube(rng *rand.Rand, n int, bounds []Bound) [][]float64 {
	pop := make([][]float64, n)
	for i := range pop {
		pop[i] = make([]float64, len(bounds))
	}
	seg := 1.0 / float64(n)
	for j, b := range bounds {
		perm := rng.Perm(n)
		for i := 0; i < n; i++ {
			u := (float64(perm[i]) + rng.Float64()) * seg
			pop[i][j] = b.Lower + u*(b.Upper-b.Lower)
		}
	}
	return pop
}

// pickTwo returns two distinct indices in [0,n) that also differ from skip.
func pickTwo(rng *rand.Rand, n, skip int) (int, int) {
	r0 := rng.Intn(n)
	for r0 == skip {
		r0 = rng.Intn(n)
	}
	r1 := rng.Intn(n)
	for r1 == skip || r1 == r0 {
		r1 = rng.Intn(n)
	}
	return r0, r1
}

// reinitOutOfBounds replaces coordinates that left the box with a uniform
// draw inside it.
func reinitOutOfBounds(rng *rand.Rand, x []float64, bounds []Bound) {
	for j, b := range bounds {
		if x[j] < b.Lower || x[j] > b.Upper {
			x[j] = b.Lower + rng.Float64()*(b.Upper-b.Lower)
		}
	}
}

func argmin(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] < v[best] {
			best = i
		}
	}
	return best
}

// populationConverged applies std(E) <= atol + tol*|mean(E)| over the
// population energies.
func populationConverged(energies []float64, tol, atol float64) bool {
	mean, std := stat.PopMeanStdDev(energies, nil)
	if math.IsNaN(std) || math.IsInf(mean, 0) {
		return false
	}
	return std <= atol+tol*math.Abs(mean)
}
