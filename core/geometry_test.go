package core

import (
	"math"
	"testing"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

func TestHaversineKm_QuarterMeridian(t *testing.T) {
	got := HaversineKm(model.Location{}, model.Location{Latitude: 90})
	want := EarthRadiusKm * math.Pi / 2
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("HaversineKm = %v, want %v", got, want)
	}
}

func TestHaversineKm_SamePoint(t *testing.T) {
	p := model.Location{Latitude: 51.5, Longitude: -0.12}
	if d := HaversineKm(p, p); d != 0 {
		t.Fatalf("distance to self = %v, want 0", d)
	}
}

func TestBoundingAreaKm2(t *testing.T) {
	if a := BoundingAreaKm2([]model.Location{{Latitude: 1, Longitude: 1}}); a != 0 {
		t.Fatalf("single point area = %v, want 0", a)
	}
	// A 1°x1° box on the equator is roughly 111.2 km on each side.
	a := BoundingAreaKm2([]model.Location{{Latitude: -0.5, Longitude: 0}, {Latitude: 0.5, Longitude: 1}})
	if a < 12300 || a > 12400 {
		t.Fatalf("equatorial 1x1 degree area = %v, want ~12364", a)
	}
}

func TestMeanPairwiseDistanceM(t *testing.T) {
	locs := []model.Location{{}, {Longitude: 1}}
	got := MeanPairwiseDistanceM(locs)
	want := HaversineKm(locs[0], locs[1]) * 1000
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("MeanPairwiseDistanceM = %v, want %v", got, want)
	}
	if MeanPairwiseDistanceM(nil) != 0 {
		t.Fatalf("expected 0 for empty input")
	}
}
