package core

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Feature defaults applied when a topology or allocation omits a value.
const (
	DefaultReuseFactor      = 1.0
	DefaultCellDistanceM    = 1000.0
	DefaultPowerLevelDBm    = 43.0
	DefaultCoverageAreaKm2  = 1000.0
	interferenceFeatureSize = 5
)

// Predictor is a fitted interference regressor. Predict receives
// [n_cells, reuse_factor, avg_cell_distance_m, power_level_dbm,
// n_allocated_frequencies] and must be safe for concurrent use.
type Predictor interface {
	Predict(features []float64) float64
}

// InterferenceModelState is the closed set {Untrained, Trained}.
type InterferenceModelState interface {
	interferenceModelState()
}

// Untrained selects the theoretical density/reuse fallback.
type Untrained struct{}

// Trained delegates to a fitted predictor.
type Trained struct {
	Predictor Predictor
}

func (Untrained) interferenceModelState() {}
func (Trained) interferenceModelState()   {}

// InterferenceTopology is the network layout an allocation is evaluated on.
// Zero values take the package defaults.
type InterferenceTopology struct {
	CellCount        int
	CoverageAreaKm2  float64
	AvgCellDistanceM float64
}

// ProposedAllocation summarises a frequency plan for prediction.
type ProposedAllocation struct {
	ReuseFactor          float64
	PowerLevelDBm        float64
	AllocatedFrequencies int
}

// InterferenceModel predicts a [0,1] interference level for a proposed
// allocation. The zero value is Untrained.
type InterferenceModel struct {
	state InterferenceModelState
}

// NewUntrainedModel returns a model using the theoretical fallback.
func NewUntrainedModel() InterferenceModel {
	return InterferenceModel{state: Untrained{}}
}

// NewTrainedModel wraps a fitted predictor. A nil predictor yields an
// untrained model.
func NewTrainedModel(p Predictor) InterferenceModel {
	if p == nil {
		return NewUntrainedModel()
	}
	return InterferenceModel{state: Trained{Predictor: p}}
}

// State reports the current variant.
func (m InterferenceModel) State() InterferenceModelState {
	if m.state == nil {
		return Untrained{}
	}
	return m.state
}

// Predict returns the interference level in [0,1].
func (m InterferenceModel) Predict(topo InterferenceTopology, alloc ProposedAllocation) float64 {
	var v float64
	switch s := m.State().(type) {
	case Trained:
		v = s.Predictor.Predict(interferenceFeatures(topo, alloc))
	case Untrained:
		v = theoreticalInterference(topo, alloc)
	}
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(v, 1))
}

func interferenceFeatures(topo InterferenceTopology, alloc ProposedAllocation) []float64 {
	return []float64{
		float64(topo.CellCount),
		orDefault(alloc.ReuseFactor, DefaultReuseFactor),
		orDefault(topo.AvgCellDistanceM, DefaultCellDistanceM),
		orDefault(alloc.PowerLevelDBm, DefaultPowerLevelDBm),
		float64(alloc.AllocatedFrequencies),
	}
}

// theoreticalInterference is min((n_cells/area * 0.1) / reuse, 1).
func theoreticalInterference(topo InterferenceTopology, alloc ProposedAllocation) float64 {
	reuse := orDefault(alloc.ReuseFactor, DefaultReuseFactor)
	area := orDefault(topo.CoverageAreaKm2, DefaultCoverageAreaKm2)
	density := float64(topo.CellCount) / area
	return math.Min(density*0.1/reuse, 1)
}

func orDefault(v, def float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return def
	}
	return v
}

// LinearPredictor is a fitted linear regressor over the five interference
// features: y = w·x + b.
type LinearPredictor struct {
	weights   *mat.VecDense
	intercept float64
}

// NewLinearPredictor builds a predictor from five weights and an intercept.
func NewLinearPredictor(weights []float64, intercept float64) (*LinearPredictor, error) {
	if len(weights) != interferenceFeatureSize {
		return nil, fmt.Errorf("linear predictor needs %d weights, got %d", interferenceFeatureSize, len(weights))
	}
	w := append([]float64(nil), weights...)
	return &LinearPredictor{weights: mat.NewVecDense(len(w), w), intercept: intercept}, nil
}

// Predict implements Predictor.
func (p *LinearPredictor) Predict(features []float64) float64 {
	x := mat.NewVecDense(len(features), append([]float64(nil), features...))
	return mat.Dot(p.weights, x) + p.intercept
}
