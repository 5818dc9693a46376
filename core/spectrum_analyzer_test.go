package core

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

func samples(freq float64, powers ...float64) []model.Measurement {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Measurement, len(powers))
	for i, p := range powers {
		out[i] = model.Measurement{FrequencyMHz: freq, PowerDBm: p, Timestamp: ts.Add(time.Duration(i) * time.Second), CellID: "cell-1"}
	}
	return out
}

func TestClassifyInterference(t *testing.T) {
	cases := []struct {
		std  float64
		want string
	}{
		{0, model.InterferenceLow},
		{5, model.InterferenceLow},
		{6, model.InterferenceMedium},
		{10, model.InterferenceMedium},
		{15, model.InterferenceHigh},
		{math.NaN(), model.InterferenceLow},
	}
	for _, tc := range cases {
		if got := ClassifyInterference(tc.std); got != tc.want {
			t.Errorf("ClassifyInterference(%v) = %q, want %q", tc.std, got, tc.want)
		}
	}
}

func TestRecommend(t *testing.T) {
	cases := []struct {
		util         float64
		interference string
		want         string
	}{
		{90, model.InterferenceHigh, RecommendLoadBalance},
		{30, model.InterferenceHigh, RecommendUnderused},
		{60, model.InterferenceHigh, RecommendMitigate},
		{60, model.InterferenceMedium, RecommendOptimalRange},
	}
	for _, tc := range cases {
		if got := Recommend(tc.util, tc.interference); got != tc.want {
			t.Errorf("Recommend(%v, %q) = %q, want %q", tc.util, tc.interference, got, tc.want)
		}
	}
}

func TestAnalyzeStdDevThresholds(t *testing.T) {
	a := NewSpectrumAnalyzer(nil)

	// Sample standard deviations of exactly 0, 6 and 15 dB.
	var ms []model.Measurement
	ms = append(ms, samples(800, -60, -60, -60)...)
	ms = append(ms, samples(2000, -66, -60, -54)...)
	ms = append(ms, samples(3500, -75, -60, -45)...)

	report := a.Analyze(ms)
	if got := report["low_band"].InterferenceLevel; got != model.InterferenceLow {
		t.Fatalf("low_band interference = %q, want low", got)
	}
	if got := report["mid_band"].InterferenceLevel; got != model.InterferenceMedium {
		t.Fatalf("mid_band interference = %q, want medium", got)
	}
	if got := report["high_band"].InterferenceLevel; got != model.InterferenceHigh {
		t.Fatalf("high_band interference = %q, want high", got)
	}
	if got := report["high_band"].Recommendation; got != RecommendLoadBalance {
		t.Fatalf("high_band recommendation = %q, want %q", got, RecommendLoadBalance)
	}
}

func TestAnalyzeUtilizationAndEfficiency(t *testing.T) {
	a := NewSpectrumAnalyzer(nil)
	// Two of four samples above the -110 dBm floor.
	report := a.Analyze(samples(27000, -120, -115, -100, -105))
	mm := report["mmwave"]
	if mm.UtilizationPct != 50 {
		t.Fatalf("utilization = %v, want 50", mm.UtilizationPct)
	}
	if mm.SampleCount != 4 {
		t.Fatalf("sample count = %d, want 4", mm.SampleCount)
	}
	// Mean -110 gives SINR 0, guarded to zero efficiency.
	if mm.SpectralEfficiency != 0 {
		t.Fatalf("efficiency = %v, want 0 for non-positive SINR", mm.SpectralEfficiency)
	}

	strong := a.Analyze(samples(850, -50, -52))["low_band"]
	if strong.SpectralEfficiency != MaxSpectralEfficiency {
		t.Fatalf("efficiency = %v, want capped at %v", strong.SpectralEfficiency, MaxSpectralEfficiency)
	}

	weak := a.Analyze(samples(850, -107))["low_band"]
	want := math.Log2(1 + math.Pow(10, 0.3))
	if math.Abs(weak.SpectralEfficiency-want) > 1e-12 {
		t.Fatalf("efficiency = %v, want %v", weak.SpectralEfficiency, want)
	}
}

func TestAnalyzeBoundsAndEmptyBands(t *testing.T) {
	a := NewSpectrumAnalyzer(nil)
	var ms []model.Measurement
	ms = append(ms, samples(700, -80)...)  // lower edge of low_band
	ms = append(ms, samples(2600, -80)...) // upper edge of mid_band
	ms = append(ms, samples(5000, -80)...) // outside every band

	report := a.Analyze(ms)
	if len(report) != 4 {
		t.Fatalf("report has %d bands, want 4", len(report))
	}
	for name, u := range report {
		if u.UtilizationPct < 0 || u.UtilizationPct > 100 {
			t.Fatalf("%s utilization %v out of range", name, u.UtilizationPct)
		}
		if u.SpectralEfficiency > MaxSpectralEfficiency {
			t.Fatalf("%s efficiency %v above cap", name, u.SpectralEfficiency)
		}
	}
	if report["low_band"].SampleCount != 1 || report["mid_band"].SampleCount != 1 {
		t.Fatalf("edge samples not counted: %+v", report)
	}
	empty := report["mmwave"]
	if empty.UtilizationPct != 0 || empty.SpectralEfficiency != 0 || empty.InterferenceLevel != model.InterferenceLow {
		t.Fatalf("empty band = %+v", empty)
	}
	if empty.Recommendation != RecommendUnderused {
		t.Fatalf("empty band recommendation = %q", empty.Recommendation)
	}
}
