package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Generation is the radio access generation of a cell site.
type Generation int

const (
	GenerationUnknown Generation = iota
	Generation2G
	Generation3G
	Generation4G
	Generation5G
)

var generationNames = [...]string{
	GenerationUnknown: "",
	Generation2G:      "2G",
	Generation3G:      "3G",
	Generation4G:      "4G",
	Generation5G:      "5G",
}

func (g Generation) String() string {
	if g < 0 || int(g) >= len(generationNames) {
		return fmt.Sprintf("Generation(%d)", int(g))
	}
	return generationNames[g]
}

// ParseGeneration maps "2G".."5G" (case-insensitive) to a Generation.
func ParseGeneration(s string) (Generation, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return GenerationUnknown, nil
	}
	for i, name := range generationNames {
		if i > 0 && name == s {
			return Generation(i), nil
		}
	}
	return GenerationUnknown, fmt.Errorf("unknown generation %q", s)
}

func (g Generation) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.String())
}

func (g *Generation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseGeneration(s)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// GenerationCapability describes what a generation can deliver.
type GenerationCapability struct {
	MaxThroughputMbps float64
	Technologies      []string
	FrequenciesMHz    []float64
	// CoverageRadiusM is the nominal cell radius. For 5G this is the sub-6
	// radius; MMWaveCoverageRadiusM carries the mmWave figure.
	CoverageRadiusM       float64
	MMWaveCoverageRadiusM float64
}

var generationCapabilities = [...]GenerationCapability{
	Generation2G: {
		MaxThroughputMbps: 0.384,
		Technologies:      []string{"GSM", "GPRS", "EDGE"},
		FrequenciesMHz:    []float64{850, 900, 1800, 1900},
		CoverageRadiusM:   35000,
	},
	Generation3G: {
		MaxThroughputMbps: 42,
		Technologies:      []string{"UMTS", "HSPA", "HSPA+"},
		FrequenciesMHz:    []float64{850, 900, 1900, 2100},
		CoverageRadiusM:   20000,
	},
	Generation4G: {
		MaxThroughputMbps: 1000,
		Technologies:      []string{"LTE", "LTE-A", "LTE-A Pro"},
		FrequenciesMHz:    []float64{700, 850, 1700, 1900, 2100, 2600},
		CoverageRadiusM:   15000,
	},
	Generation5G: {
		MaxThroughputMbps:     10000,
		Technologies:          []string{"5G NR", "5G SA", "5G NSA"},
		FrequenciesMHz:        []float64{600, 700, 2500, 3500, 28000, 39000},
		CoverageRadiusM:       10000,
		MMWaveCoverageRadiusM: 1000,
	},
}

// Capability returns the static capability row for g. Unknown generations
// return the zero value and false.
func (g Generation) Capability() (GenerationCapability, bool) {
	if g <= GenerationUnknown || int(g) >= len(generationCapabilities) {
		return GenerationCapability{}, false
	}
	return generationCapabilities[g], true
}
