package core

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

const (
	DefaultMaxClusters   = 5
	DefaultClusterSeed   = 42
	defaultKMeansMaxIter = 300
	defaultKMeansTol     = 1e-4
)

// CellClusterer partitions cell sites on [lat, lon, demand] with Lloyd's
// k-means and k-means++ seeding. Results are deterministic for a given seed.
type CellClusterer struct {
	MaxClusters int
	Seed        int64
	MaxIter     int
	// Tol is the centroid shift, relative to the mean feature variance,
	// below which iteration stops.
	Tol float64
	// RequireClusters turns an empty cell list into ErrNoCells.
	RequireClusters bool
}

// NewCellClusterer returns a clusterer with the default k, seed and
// iteration cap.
func NewCellClusterer() *CellClusterer {
	return &CellClusterer{
		MaxClusters: DefaultMaxClusters,
		Seed:        DefaultClusterSeed,
		MaxIter:     defaultKMeansMaxIter,
		Tol:         defaultKMeansTol,
	}
}

// Cluster returns one label in [0, k) per cell, k = min(MaxClusters, n).
// Labels are numbered in order of first appearance.
func (c *CellClusterer) Cluster(cells []model.CellSite, demand model.TrafficDemand) ([]int, error) {
	if len(cells) == 0 {
		if c.RequireClusters {
			return nil, fmt.Errorf("%w: clustering requires at least one cell", ErrNoCells)
		}
		return []int{}, nil
	}
	if err := ValidateCells(cells); err != nil {
		return nil, err
	}

	points := make([][]float64, len(cells))
	for i, cell := range cells {
		points[i] = []float64{cell.Latitude, cell.Longitude, demand.Get(cell.ID, 0)}
	}

	maxK := c.MaxClusters
	if maxK <= 0 {
		maxK = DefaultMaxClusters
	}
	k := min(maxK, len(cells))

	labels := c.kmeans(points, k)
	return renumber(labels), nil
}

func (c *CellClusterer) kmeans(points [][]float64, k int) []int {
	maxIter := c.MaxIter
	if maxIter <= 0 {
		maxIter = defaultKMeansMaxIter
	}
	tol := c.Tol
	if tol <= 0 {
		tol = defaultKMeansTol
	}
	threshold := tol * meanVariance(points)

	rng := rand.New(rand.NewSource(c.Seed))
	centroids := seedPlusPlus(rng, points, k)
	labels := make([]int, len(points))

	for iter := 0; iter < maxIter; iter++ {
		assign(points, centroids, labels)
		next := recompute(points, labels, centroids)
		shift := 0.0
		for j := range centroids {
			d := floats.Distance(centroids[j], next[j], 2)
			shift += d * d
		}
		centroids = next
		if shift <= threshold {
			break
		}
	}
	assign(points, centroids, labels)
	fillEmpty(points, centroids, labels, k)
	return labels
}

// seedPlusPlus picks k initial centroids, each with probability
// proportional to its squared distance from the nearest chosen centroid.
func seedPlusPlus(rng *rand.Rand, points [][]float64, k int) [][]float64 {
	n := len(points)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(points[rng.Intn(n)]))

	dist := make([]float64, n)
	for len(centroids) < k {
		for i, p := range points {
			dist[i] = math.Inf(1)
			for _, cen := range centroids {
				d := floats.Distance(p, cen, 2)
				dist[i] = math.Min(dist[i], d*d)
			}
		}
		total := floats.Sum(dist)
		idx := rng.Intn(n)
		if total > 0 {
			r := rng.Float64() * total
			for i, d := range dist {
				r -= d
				if r < 0 {
					idx = i
					break
				}
			}
		}
		centroids = append(centroids, clone(points[idx]))
	}
	return centroids
}

func assign(points, centroids [][]float64, labels []int) {
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for j, cen := range centroids {
			if d := floats.Distance(p, cen, 2); d < bestD {
				best, bestD = j, d
			}
		}
		labels[i] = best
	}
}

// recompute returns the member means; clusters without members keep their
// previous centroid.
func recompute(points [][]float64, labels []int, prev [][]float64) [][]float64 {
	dim := len(points[0])
	sums := make([][]float64, len(prev))
	counts := make([]float64, len(prev))
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	for i, p := range points {
		floats.Add(sums[labels[i]], p)
		counts[labels[i]]++
	}
	for j := range sums {
		if counts[j] == 0 {
			copy(sums[j], prev[j])
			continue
		}
		floats.Scale(1/counts[j], sums[j])
	}
	return sums
}

// fillEmpty moves, for each empty cluster, the point farthest from its own
// centroid (taken from a cluster with more than one member) into it, so
// that exactly k clusters are populated whenever n >= k.
func fillEmpty(points, centroids [][]float64, labels []int, k int) {
	for {
		counts := make([]int, k)
		for _, l := range labels {
			counts[l]++
		}
		empty := -1
		for j, cnt := range counts {
			if cnt == 0 {
				empty = j
				break
			}
		}
		if empty < 0 {
			return
		}
		far, farD := -1, -1.0
		for i, p := range points {
			if counts[labels[i]] < 2 {
				continue
			}
			if d := floats.Distance(p, centroids[labels[i]], 2); d > farD {
				far, farD = i, d
			}
		}
		if far < 0 {
			return
		}
		labels[far] = empty
		centroids[empty] = clone(points[far])
	}
}

// renumber relabels clusters in order of first appearance.
func renumber(labels []int) []int {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
		}
		out[i] = id
	}
	return out
}

func meanVariance(points [][]float64) float64 {
	dim := len(points[0])
	col := make([]float64, len(points))
	sum := 0.0
	for j := 0; j < dim; j++ {
		for i, p := range points {
			col[i] = p[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		sum += v
	}
	return sum / float64(dim)
}

func clone(v []float64) []float64 { return append([]float64(nil), v...) }
