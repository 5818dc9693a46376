package core

import (
	"math"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

// EarthRadiusKm is the mean Earth radius used for all simple
// geometry calculations (kilometres).
const EarthRadiusKm = 6371.0

const kmPerDegree = EarthRadiusKm * math.Pi / 180

func degToRad(d float64) float64 { return d * math.Pi / 180 }

// HaversineKm returns the great-circle distance between two positions.
func HaversineKm(a, b model.Location) float64 {
	lat1, lat2 := degToRad(a.Latitude), degToRad(b.Latitude)
	dLat := lat2 - lat1
	dLon := degToRad(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// BoundingAreaKm2 approximates the area of the lat/lon bounding box around
// locs with an equirectangular projection at the mean latitude. It returns
// 0 for fewer than two distinct points.
func BoundingAreaKm2(locs []model.Location) float64 {
	if len(locs) < 2 {
		return 0
	}
	minLat, maxLat := locs[0].Latitude, locs[0].Latitude
	minLon, maxLon := locs[0].Longitude, locs[0].Longitude
	for _, l := range locs[1:] {
		minLat = math.Min(minLat, l.Latitude)
		maxLat = math.Max(maxLat, l.Latitude)
		minLon = math.Min(minLon, l.Longitude)
		maxLon = math.Max(maxLon, l.Longitude)
	}
	meanLat := degToRad((minLat + maxLat) / 2)
	height := (maxLat - minLat) * kmPerDegree
	width := (maxLon - minLon) * kmPerDegree * math.Cos(meanLat)
	return height * width
}

// MeanPairwiseDistanceM returns the mean great-circle distance over all
// unordered pairs, in metres. Fewer than two points yield 0.
func MeanPairwiseDistanceM(locs []model.Location) float64 {
	n := len(locs)
	if n < 2 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += HaversineKm(locs[i], locs[j])
		}
	}
	pairs := float64(n*(n-1)) / 2
	return sum / pairs * 1000
}
