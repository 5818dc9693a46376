package core

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

const (
	// DefaultNoiseFloorDBm is the activity threshold for utilization and the
	// reference for the simplified SINR.
	DefaultNoiseFloorDBm = -110.0
	// MaxSpectralEfficiency caps the Shannon estimate, in bps/Hz.
	MaxSpectralEfficiency = 4.5
)

// Recommendations emitted by the analyzer.
const (
	RecommendLoadBalance  = "load-balance to adjacent band"
	RecommendUnderused    = "underutilized, capacity opportunity"
	RecommendMitigate     = "apply interference mitigation"
	RecommendOptimalRange = "operating within optimal parameters"
)

// SpectrumAnalyzer computes the per-band utilization report from a
// measurement snapshot.
type SpectrumAnalyzer struct {
	Registry      *BandRegistry
	NoiseFloorDBm float64
}

// NewSpectrumAnalyzer returns an analyzer over reg with the default noise
// floor. A nil registry selects DefaultBandRegistry.
func NewSpectrumAnalyzer(reg *BandRegistry) *SpectrumAnalyzer {
	if reg == nil {
		reg = DefaultBandRegistry()
	}
	return &SpectrumAnalyzer{Registry: reg, NoiseFloorDBm: DefaultNoiseFloorDBm}
}

// Analyze reports every registry band. Bands without samples report zero
// utilization and efficiency with low interference.
func (a *SpectrumAnalyzer) Analyze(measurements []model.Measurement) map[string]model.BandUtilization {
	reg := a.Registry
	if reg == nil {
		reg = DefaultBandRegistry()
	}
	report := make(map[string]model.BandUtilization, len(reg.bands))
	for _, band := range reg.bands {
		var powers []float64
		for _, m := range measurements {
			if band.Contains(m.FrequencyMHz) {
				powers = append(powers, m.PowerDBm)
			}
		}
		report[band.Name] = a.analyzeBand(powers)
	}
	return report
}

func (a *SpectrumAnalyzer) analyzeBand(powers []float64) model.BandUtilization {
	if len(powers) == 0 {
		return model.BandUtilization{
			InterferenceLevel: model.InterferenceLow,
			Recommendation:    Recommend(0, model.InterferenceLow),
		}
	}
	util := a.utilization(powers)
	interference := ClassifyInterference(stat.StdDev(powers, nil))
	return model.BandUtilization{
		UtilizationPct:     util,
		SpectralEfficiency: a.spectralEfficiency(powers),
		InterferenceLevel:  interference,
		Recommendation:     Recommend(util, interference),
		SampleCount:        len(powers),
	}
}

func (a *SpectrumAnalyzer) utilization(powers []float64) float64 {
	active := 0
	for _, p := range powers {
		if p > a.NoiseFloorDBm {
			active++
		}
	}
	return math.Min(float64(active)/float64(len(powers))*100, 100)
}

// spectralEfficiency is log2(1 + 10^(sinr/10)) on the mean SINR, capped at
// MaxSpectralEfficiency. Non-positive SINR yields 0.
func (a *SpectrumAnalyzer) spectralEfficiency(powers []float64) float64 {
	sinr := stat.Mean(powers, nil) - a.NoiseFloorDBm
	if sinr <= 0 || math.IsNaN(sinr) {
		return 0
	}
	return math.Min(math.Log2(1+math.Pow(10, sinr/10)), MaxSpectralEfficiency)
}

// ClassifyInterference maps a power standard deviation (dB) to an
// interference label. NaN, as produced for a single sample, is "low".
func ClassifyInterference(stdDev float64) string {
	switch {
	case stdDev > 10:
		return model.InterferenceHigh
	case stdDev > 5:
		return model.InterferenceMedium
	default:
		return model.InterferenceLow
	}
}

// Recommend picks the operator action for a band.
func Recommend(utilizationPct float64, interference string) string {
	switch {
	case utilizationPct > 80 && interference == model.InterferenceHigh:
		return RecommendLoadBalance
	case utilizationPct < 40:
		return RecommendUnderused
	case interference == model.InterferenceHigh:
		return RecommendMitigate
	default:
		return RecommendOptimalRange
	}
}
