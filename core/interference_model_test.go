package core

import (
	"math"
	"testing"
)

type fixedPredictor struct {
	value float64
	got   []float64
}

func (f *fixedPredictor) Predict(x []float64) float64 {
	f.got = append([]float64(nil), x...)
	return f.value
}

func TestUntrainedFallback(t *testing.T) {
	m := NewUntrainedModel()
	got := m.Predict(InterferenceTopology{CellCount: 10, CoverageAreaKm2: 1000}, ProposedAllocation{ReuseFactor: 2})
	if math.Abs(got-0.0005) > 1e-15 {
		t.Fatalf("Predict = %v, want 0.0005", got)
	}
	if _, ok := m.State().(Untrained); !ok {
		t.Fatalf("state = %T, want Untrained", m.State())
	}
}

func TestUntrainedDefaultsAndCap(t *testing.T) {
	var m InterferenceModel // zero value is untrained

	// Defaults: area 1000, reuse 1.
	if got := m.Predict(InterferenceTopology{CellCount: 100}, ProposedAllocation{}); math.Abs(got-0.01) > 1e-15 {
		t.Fatalf("Predict = %v, want 0.01", got)
	}
	if got := m.Predict(InterferenceTopology{CellCount: 1e6, CoverageAreaKm2: 1}, ProposedAllocation{ReuseFactor: 1}); got != 1 {
		t.Fatalf("Predict = %v, want capped at 1", got)
	}
}

func TestTrainedDelegatesAndClips(t *testing.T) {
	p := &fixedPredictor{value: 1.7}
	m := NewTrainedModel(p)
	if _, ok := m.State().(Trained); !ok {
		t.Fatalf("state = %T, want Trained", m.State())
	}

	got := m.Predict(InterferenceTopology{CellCount: 4}, ProposedAllocation{AllocatedFrequencies: 3})
	if got != 1 {
		t.Fatalf("Predict = %v, want clipped to 1", got)
	}
	want := []float64{4, DefaultReuseFactor, DefaultCellDistanceM, DefaultPowerLevelDBm, 3}
	for i := range want {
		if p.got[i] != want[i] {
			t.Fatalf("features = %v, want %v", p.got, want)
		}
	}

	p.value = -0.3
	if got := m.Predict(InterferenceTopology{}, ProposedAllocation{}); got != 0 {
		t.Fatalf("Predict = %v, want clipped to 0", got)
	}
}

func TestNewTrainedModelNilPredictor(t *testing.T) {
	if _, ok := NewTrainedModel(nil).State().(Untrained); !ok {
		t.Fatalf("nil predictor must yield an untrained model")
	}
}

func TestLinearPredictor(t *testing.T) {
	if _, err := NewLinearPredictor([]float64{1, 2}, 0); err == nil {
		t.Fatalf("expected error for wrong weight count")
	}
	p, err := NewLinearPredictor([]float64{0.01, -0.1, 0, 0.001, 0.02}, 0.05)
	if err != nil {
		t.Fatalf("NewLinearPredictor: %v", err)
	}
	// 0.01*10 - 0.1*2 + 0.001*40 + 0.02*3 + 0.05
	want := 0.1 - 0.2 + 0.04 + 0.06 + 0.05
	got := NewTrainedModel(p).Predict(
		InterferenceTopology{CellCount: 10, AvgCellDistanceM: 500},
		ProposedAllocation{ReuseFactor: 2, PowerLevelDBm: 40, AllocatedFrequencies: 3},
	)
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("Predict = %v, want %v", got, want)
	}
}
