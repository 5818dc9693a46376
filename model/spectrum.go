package model

import "time"

// FrequencyBand is a named [min,max] MHz range with a qualitative
// characteristic such as "wide_coverage".
type FrequencyBand struct {
	Name           string  `json:"name"`
	MinMHz         float64 `json:"min_mhz"`
	MaxMHz         float64 `json:"max_mhz"`
	Characteristic string  `json:"characteristic"`
}

// Contains reports whether freqMHz lies inside the band, bounds inclusive.
func (b FrequencyBand) Contains(freqMHz float64) bool {
	return freqMHz >= b.MinMHz && freqMHz <= b.MaxMHz
}

// Measurement is a single radio sample. Snapshots are ordered sequences of
// measurements with no uniqueness constraint.
type Measurement struct {
	FrequencyMHz float64   `json:"frequency_mhz"`
	PowerDBm     float64   `json:"power_dbm"`
	Timestamp    time.Time `json:"timestamp"`
	CellID       string    `json:"cell_id"`
}

// CarrierBand names a carrier-aggregation band table.
type CarrierBand string

const (
	CarrierBandLTE      CarrierBand = "lte"
	CarrierBand5GSub6   CarrierBand = "5g_sub6"
	CarrierBand5GMMWave CarrierBand = "5g_mmwave"
)

// CarrierBands lists every carrier band in evaluation order.
var CarrierBands = []CarrierBand{CarrierBandLTE, CarrierBand5GSub6, CarrierBand5GMMWave}

// Carrier is one available carrier in a spectrum snapshot.
type Carrier struct {
	FrequencyMHz float64 `json:"frequency_mhz"`
	BandwidthMHz float64 `json:"bandwidth_mhz"`
}

// AvailableSpectrum maps a carrier band to the carriers currently available
// in it.
type AvailableSpectrum map[CarrierBand][]Carrier

// Bandwidth returns the bandwidth of freqMHz in band, if it is available.
func (s AvailableSpectrum) Bandwidth(band CarrierBand, freqMHz float64) (float64, bool) {
	for _, c := range s[band] {
		if c.FrequencyMHz == freqMHz {
			return c.BandwidthMHz, true
		}
	}
	return 0, false
}

// CarrierCount returns the number of carriers across all bands.
func (s AvailableSpectrum) CarrierCount() int {
	n := 0
	for _, carriers := range s {
		n += len(carriers)
	}
	return n
}

// Clone returns a deep copy of the snapshot.
func (s AvailableSpectrum) Clone() AvailableSpectrum {
	if s == nil {
		return nil
	}
	out := make(AvailableSpectrum, len(s))
	for band, carriers := range s {
		out[band] = append([]Carrier(nil), carriers...)
	}
	return out
}

// BandUtilization is the per-band entry of a utilization report.
type BandUtilization struct {
	UtilizationPct     float64 `json:"utilization_pct"`
	SpectralEfficiency float64 `json:"spectral_efficiency"`
	InterferenceLevel  string  `json:"interference_level"`
	Recommendation     string  `json:"recommendation"`
	SampleCount        int     `json:"sample_count"`
}

// Interference level labels.
const (
	InterferenceLow    = "low"
	InterferenceMedium = "medium"
	InterferenceHigh   = "high"
)
