package core

import "github.com/signalsfoundry/spectrum-optimizer/model"

type carrierTable struct {
	band        model.CarrierBand
	frequencies []float64
}

// BandRegistry is the static table of analysis bands and carrier
// aggregation candidates. It is read-only after construction and safe for
// concurrent use.
type BandRegistry struct {
	bands    []model.FrequencyBand
	carriers []carrierTable
}

// DefaultBandRegistry returns the production band plan.
func DefaultBandRegistry() *BandRegistry {
	return NewBandRegistry(
		[]model.FrequencyBand{
			{Name: "low_band", MinMHz: 700, MaxMHz: 900, Characteristic: "wide_coverage"},
			{Name: "mid_band", MinMHz: 1800, MaxMHz: 2600, Characteristic: "balanced"},
			{Name: "high_band", MinMHz: 3400, MaxMHz: 3800, Characteristic: "high_capacity"},
			{Name: "mmwave", MinMHz: 26000, MaxMHz: 29000, Characteristic: "ultra_capacity"},
		},
		map[model.CarrierBand][]float64{
			model.CarrierBandLTE:      {700, 850, 1700, 1900, 2100, 2600},
			model.CarrierBand5GSub6:   {600, 700, 2500, 3500, 3700},
			model.CarrierBand5GMMWave: {28000, 39000},
		},
	)
}

// NewBandRegistry copies bands and carriers into a new registry. Carrier
// tables are ordered by model.CarrierBands; bands outside that enumeration
// are ignored.
func NewBandRegistry(bands []model.FrequencyBand, carriers map[model.CarrierBand][]float64) *BandRegistry {
	r := &BandRegistry{bands: append([]model.FrequencyBand(nil), bands...)}
	for _, cb := range model.CarrierBands {
		freqs, ok := carriers[cb]
		if !ok {
			continue
		}
		r.carriers = append(r.carriers, carrierTable{band: cb, frequencies: append([]float64(nil), freqs...)})
	}
	return r
}

// Bands returns the analysis bands in registry order.
func (r *BandRegistry) Bands() []model.FrequencyBand {
	return append([]model.FrequencyBand(nil), r.bands...)
}

// Band looks up an analysis band by name.
func (r *BandRegistry) Band(name string) (model.FrequencyBand, bool) {
	for _, b := range r.bands {
		if b.Name == name {
			return b, true
		}
	}
	return model.FrequencyBand{}, false
}

// CarrierBands returns the carrier bands the registry knows, in evaluation
// order.
func (r *BandRegistry) CarrierBands() []model.CarrierBand {
	out := make([]model.CarrierBand, len(r.carriers))
	for i, t := range r.carriers {
		out[i] = t.band
	}
	return out
}

// CarrierFrequencies returns the supported carrier frequencies of band.
func (r *BandRegistry) CarrierFrequencies(band model.CarrierBand) []float64 {
	for _, t := range r.carriers {
		if t.band == band {
			return append([]float64(nil), t.frequencies...)
		}
	}
	return nil
}
