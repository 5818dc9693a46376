// Package optimize provides derivative-free global minimizers behind a
// single Optimizer interface so callers can swap search algorithms without
// touching their objective code.
package optimize

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidBounds indicates a bound with Lower > Upper or a
	// non-finite limit.
	ErrInvalidBounds = errors.New("invalid bounds")
	// ErrNilObjective indicates a Problem without an objective function.
	ErrNilObjective = errors.New("nil objective")
)

// Objective maps a candidate vector to a cost. Implementations must not
// retain or mutate x.
type Objective func(x []float64) float64

// Bound is the closed search interval for one dimension.
type Bound struct {
	Lower float64
	Upper float64
}

// Problem pairs an objective with its search box.
type Problem struct {
	Objective Objective
	Bounds    []Bound
}

// Budget caps the search effort. Zero fields take algorithm defaults.
type Budget struct {
	// MaxIter is the number of generations (or annealing steps).
	MaxIter int
	// PopSize is the population multiplier per dimension (DE only).
	PopSize int
	// Tol is the relative convergence tolerance.
	Tol float64
	// Atol is the absolute convergence tolerance.
	Atol float64
}

// Result is the best candidate found. Converged=false is not an error: the
// best vector is still usable.
type Result struct {
	X           []float64
	Fun         float64
	Converged   bool
	Iterations  int
	Evaluations int
	Message     string
}

// Optimizer minimizes an objective over a bounded box. On context
// cancellation implementations return the best candidate so far with
// Converged=false and a nil error.
type Optimizer interface {
	Minimize(ctx context.Context, p Problem, b Budget, seed int64) (Result, error)
}

// Messages reported in Result.Message.
const (
	MsgConverged     = "optimization converged"
	MsgMaxIterations = "maximum number of iterations has been exceeded"
	MsgCancelled     = "optimization cancelled"
)

func (p Problem) validate() error {
	if p.Objective == nil {
		return ErrNilObjective
	}
	for i, b := range p.Bounds {
		if math.IsNaN(b.Lower) || math.IsNaN(b.Upper) || math.IsInf(b.Lower, 0) || math.IsInf(b.Upper, 0) {
			return fmt.Errorf("%w: dimension %d is not finite", ErrInvalidBounds, i)
		}
		if b.Lower > b.Upper {
			return fmt.Errorf("%w: dimension %d has lower %.4g > upper %.4g", ErrInvalidBounds, i, b.Lower, b.Upper)
		}
	}
	return nil
}

// clip bounds each coordinate of x in place.
func clip(x []float64, bounds []Bound) {
	for i, b := range bounds {
		if x[i] < b.Lower {
			x[i] = b.Lower
		} else if x[i] > b.Upper {
			x[i] = b.Upper
		}
	}
}

// emptyResult is returned for zero-dimensional problems: the objective is
// evaluated once at the empty vector.
func emptyResult(p Problem) Result {
	return Result{
		X:           []float64{},
		Fun:         p.Objective([]float64{}),
		Converged:   true,
		Evaluations: 1,
		Message:     MsgConverged,
	}
}

// Repeat returns bounds repeated n times, the usual shape for per-user or
// per-site parameter groups.
func Repeat(group []Bound, n int) []Bound {
	out := make([]Bound, 0, len(group)*n)
	for i := 0; i < n; i++ {
		out = append(out, group...)
	}
	return out
}
