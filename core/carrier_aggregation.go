package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

const (
	// DefaultUserDistanceM is the path-loss distance used when a user has
	// no override.
	DefaultUserDistanceM = 1000.0
	// secondaryAggregationEfficiency discounts secondary carrier throughput.
	secondaryAggregationEfficiency = 0.8
)

// AggregationResult is the per-user carrier aggregation outcome plus batch
// summaries.
type AggregationResult struct {
	Allocations []model.CarrierAllocation `json:"allocations"`
	// SpectrumUtilization is the mean allocation efficiency across users.
	SpectrumUtilization float64 `json:"spectrum_utilization"`
	// CapacityImprovement is aggregated throughput over primary-only
	// throughput, minus one.
	CapacityImprovement float64 `json:"capacity_improvement"`
}

// CarrierAggregator scores candidate carriers per user and selects a
// primary plus up to three secondaries.
type CarrierAggregator struct {
	Registry *BandRegistry
	// DistanceM is the default path-loss distance in metres.
	DistanceM float64
}

// NewCarrierAggregator returns an aggregator over reg. A nil registry
// selects DefaultBandRegistry.
func NewCarrierAggregator(reg *BandRegistry) *CarrierAggregator {
	if reg == nil {
		reg = DefaultBandRegistry()
	}
	return &CarrierAggregator{Registry: reg, DistanceM: DefaultUserDistanceM}
}

// Validate rejects a snapshot that offers no carrier at all.
func (c *CarrierAggregator) Validate(spectrum model.AvailableSpectrum) error {
	if spectrum.CarrierCount() == 0 {
		return fmt.Errorf("%w: snapshot has no carriers", ErrNoSpectrum)
	}
	for band, carriers := range spectrum {
		for _, carrier := range carriers {
			if carrier.FrequencyMHz <= 0 || carrier.BandwidthMHz < 0 {
				return fmt.Errorf("%w: band %s carrier %v MHz / %v MHz", ErrNoSpectrum, band, carrier.FrequencyMHz, carrier.BandwidthMHz)
			}
		}
	}
	return nil
}

// Optimize allocates carriers for every user. Users without a candidate
// carrier are reported unmet rather than failing the batch.
func (c *CarrierAggregator) Optimize(users []model.UserRequirement, spectrum model.AvailableSpectrum) (AggregationResult, error) {
	if err := ValidateUsers(users); err != nil {
		return AggregationResult{}, err
	}
	res := AggregationResult{Allocations: make([]model.CarrierAllocation, 0, len(users))}
	effSum, aggregated, primaryOnly := 0.0, 0.0, 0.0
	for _, u := range users {
		alloc := c.allocate(u, spectrum)
		res.Allocations = append(res.Allocations, alloc)
		effSum += alloc.Efficiency
		if alloc.PrimaryFrequencyMHz != nil {
			aggregated += alloc.PredictedThroughputMbps
			primaryOnly += CarrierThroughputMbps(*alloc.PrimaryFrequencyMHz)
		}
	}
	if len(users) > 0 {
		res.SpectrumUtilization = effSum / float64(len(users))
	}
	if primaryOnly > 0 {
		res.CapacityImprovement = aggregated/primaryOnly - 1
	}
	return res, nil
}

func (c *CarrierAggregator) allocate(u model.UserRequirement, spectrum model.AvailableSpectrum) model.CarrierAllocation {
	scores := c.ScoreCarriers(u, spectrum)
	alloc := model.CarrierAllocation{
		UserID:                  u.UserID,
		SecondaryFrequenciesMHz: []float64{},
		Scores:                  scores,
	}
	if len(scores) == 0 {
		alloc.Unmet = true
		return alloc
	}

	primary := scores[0].FrequencyMHz
	alloc.PrimaryFrequencyMHz = &primary
	for _, s := range scores[1:min(len(scores), 1+model.MaxSecondaryCarriers)] {
		alloc.SecondaryFrequenciesMHz = append(alloc.SecondaryFrequenciesMHz, s.FrequencyMHz)
	}
	alloc.PredictedThroughputMbps = AggregatedThroughputMbps(primary, alloc.SecondaryFrequenciesMHz)
	if u.RequiredThroughputMbps <= 0 {
		alloc.Efficiency = 1
	} else {
		alloc.Efficiency = math.Min(alloc.PredictedThroughputMbps/u.RequiredThroughputMbps, 1)
	}
	return alloc
}

// ScoreCarriers scores every registry carrier present in spectrum for u,
// sorted by combined score descending. A frequency listed under several
// bands keeps its first position and the score of its last band.
func (c *CarrierAggregator) ScoreCarriers(u model.UserRequirement, spectrum model.AvailableSpectrum) []model.CarrierScore {
	reg := c.Registry
	if reg == nil {
		reg = DefaultBandRegistry()
	}
	dist := u.DistanceM
	if dist <= 0 {
		dist = c.DistanceM
	}

	var scores []model.CarrierScore
	pos := map[float64]int{}
	for _, band := range reg.CarrierBands() {
		for _, freq := range reg.CarrierFrequencies(band) {
			bw, ok := spectrum.Bandwidth(band, freq)
			if !ok {
				continue
			}
			s := ScoreCarrier(freq, bw, dist)
			if i, seen := pos[freq]; seen {
				scores[i] = s
				continue
			}
			pos[freq] = len(scores)
			scores = append(scores, s)
		}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].CombinedScore > scores[j].CombinedScore
	})
	return scores
}

// PathLossDB is free-space path loss for a frequency in MHz and a distance
// in metres. Distances under one metre are treated as one metre.
func PathLossDB(freqMHz, distanceM float64) float64 {
	if distanceM < 1 {
		distanceM = 1
	}
	return 20*math.Log10(freqMHz) + 20*math.Log10(distanceM) - 147.55
}

// ScoreCarrier computes the propagation, capacity and combined scores of a
// carrier. All three lie in [0,1].
func ScoreCarrier(freqMHz, bandwidthMHz, distanceM float64) model.CarrierScore {
	prop := math.Max(0, 100-PathLossDB(freqMHz, distanceM)) / 100
	prop = math.Min(prop, 1)

	se := 3.5
	if freqMHz > 3000 {
		se = 5.0
	}
	capacity := math.Max(0, math.Min(bandwidthMHz*se/1000, 1))

	return model.CarrierScore{
		FrequencyMHz:     freqMHz,
		PropagationScore: prop,
		CapacityScore:    capacity,
		CombinedScore:    0.6*prop + 0.4*capacity,
	}
}

// CarrierThroughputMbps maps a carrier frequency to its nominal
// throughput: low band 50, mid band 150, high band and mmWave 1000.
func CarrierThroughputMbps(freqMHz float64) float64 {
	switch {
	case freqMHz < 1000:
		return 50
	case freqMHz < 6000:
		return 150
	default:
		return 1000
	}
}

// AggregatedThroughputMbps is the primary throughput plus 80% of each
// secondary's throughput.
func AggregatedThroughputMbps(primary float64, secondary []float64) float64 {
	total := CarrierThroughputMbps(primary)
	for _, f := range secondary {
		total += CarrierThroughputMbps(f) * secondaryAggregationEfficiency
	}
	return total
}
