package model

// Power limits applied to every transmit power decision, in dBm.
const (
	MinPowerDBm = 20.0
	MaxPowerDBm = 43.0
)

// MaxSecondaryCarriers bounds secondary carriers and secondary channels.
const MaxSecondaryCarriers = 3

// CarrierScore is the derived score of one candidate carrier for a user.
type CarrierScore struct {
	FrequencyMHz     float64 `json:"frequency_mhz"`
	PropagationScore float64 `json:"propagation_score"`
	CapacityScore    float64 `json:"capacity_score"`
	CombinedScore    float64 `json:"combined_score"`
}

// CarrierAllocation is the carrier-aggregation decision for one user.
// PrimaryFrequencyMHz is nil when no carrier could be offered.
type CarrierAllocation struct {
	UserID                  string         `json:"user_id"`
	PrimaryFrequencyMHz     *float64       `json:"primary_frequency_mhz"`
	SecondaryFrequenciesMHz []float64      `json:"secondary_frequencies_mhz"`
	PredictedThroughputMbps float64        `json:"predicted_throughput_mbps"`
	Efficiency              float64        `json:"efficiency"`
	Unmet                   bool           `json:"unmet"`
	Scores                  []CarrierScore `json:"scores,omitempty"`
}

// FrequencyAssignment is the per-cell channel and power decision.
type FrequencyAssignment struct {
	CellID            string  `json:"cell_id"`
	PrimaryChannel    int     `json:"primary_frequency"`
	SecondaryChannels []int   `json:"secondary_frequencies"`
	PowerLevelDBm     float64 `json:"power_level_dbm"`
	ClusterID         int     `json:"cluster_id"`

	// Ceiling of the cell's generation; zero when the generation is unknown.
	MaxThroughputMbps float64 `json:"max_throughput_mbps,omitempty"`
	CoverageRadiusM   float64 `json:"coverage_radius_m,omitempty"`
}

// AntennaParameters are the tuned values for one site.
type AntennaParameters struct {
	SiteID     string  `json:"site_id"`
	TiltDeg    float64 `json:"tilt_deg"`
	AzimuthDeg float64 `json:"azimuth_deg"`
	PowerDBm   float64 `json:"power_dbm"`
}

// ClampPower bounds p to [MinPowerDBm, MaxPowerDBm].
func ClampPower(p float64) float64 {
	if p < MinPowerDBm {
		return MinPowerDBm
	}
	if p > MaxPowerDBm {
		return MaxPowerDBm
	}
	return p
}
