package model

// Location is a WGS84 position in decimal degrees.
type Location struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// CellSite is a radio site in the topology snapshot. Identity is by ID.
type CellSite struct {
	ID             string     `json:"id"`
	Latitude       float64    `json:"lat"`
	Longitude      float64    `json:"lon"`
	Generation     Generation `json:"generation"`
	SupportedBands []string   `json:"supported_bands,omitempty"`
}

// Location returns the site position.
func (c CellSite) Location() Location {
	return Location{Latitude: c.Latitude, Longitude: c.Longitude}
}

// TrafficDemand maps a cell ID to a unitless positive demand value.
type TrafficDemand map[string]float64

// Get returns the demand for id, or def when the cell has no entry.
func (d TrafficDemand) Get(id string, def float64) float64 {
	if v, ok := d[id]; ok {
		return v
	}
	return def
}

// Clone returns a copy of the demand map.
func (d TrafficDemand) Clone() TrafficDemand {
	if d == nil {
		return nil
	}
	out := make(TrafficDemand, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// UserRequirement is one active user in an optimization batch.
type UserRequirement struct {
	UserID                 string   `json:"user_id"`
	RequiredThroughputMbps float64  `json:"required_throughput_mbps"`
	Location               Location `json:"location"`

	// DistanceM overrides the path-loss distance for this user. Zero means
	// "use the optimizer default".
	DistanceM float64 `json:"distance_m,omitempty"`
}

// CloneCells returns a deep copy of cells.
func CloneCells(cells []CellSite) []CellSite {
	if cells == nil {
		return nil
	}
	out := make([]CellSite, len(cells))
	for i, c := range cells {
		out[i] = c
		out[i].SupportedBands = append([]string(nil), c.SupportedBands...)
	}
	return out
}
