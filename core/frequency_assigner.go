package core

import (
	"math"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

// DefaultChannelCount is the size of the channel pool (channels 1..20).
const DefaultChannelCount = 20

// assignmentDemandDefault is used for cells missing from the demand map.
// Clustering uses 0 for the same case.
const assignmentDemandDefault = 1.0

// Plan is a network-wide frequency assignment.
type Plan struct {
	Assignments map[string]model.FrequencyAssignment `json:"assignments"`
	// Clusters holds the cluster label of each input cell, in input order.
	Clusters []int `json:"clusters"`
	// PredictedInterference is the interference model's estimate for the
	// whole plan.
	PredictedInterference float64 `json:"predicted_interference"`
}

// FrequencyAssigner clusters cells and assigns channels and power within
// each cluster by index-based round robin over the channel pool.
type FrequencyAssigner struct {
	Clusterer    *CellClusterer
	Interference InterferenceModel
	// Channels is the pool; nil selects 1..DefaultChannelCount.
	Channels []int
	// StaggerClusters offsets each cluster's round robin by the number of
	// cells in earlier clusters so primaries do not repeat across clusters
	// until the pool is exhausted.
	StaggerClusters bool
}

// NewFrequencyAssigner returns an assigner with the default clusterer,
// an untrained interference model and the 20-channel pool.
func NewFrequencyAssigner() *FrequencyAssigner {
	return &FrequencyAssigner{
		Clusterer:    NewCellClusterer(),
		Interference: NewUntrainedModel(),
	}
}

// DefaultChannelPool returns channels 1..DefaultChannelCount.
func DefaultChannelPool() []int {
	pool := make([]int, DefaultChannelCount)
	for i := range pool {
		pool[i] = i + 1
	}
	return pool
}

// Assign builds the plan for cells. It is deterministic for identical
// inputs and clustering seed.
func (a *FrequencyAssigner) Assign(cells []model.CellSite, demand model.TrafficDemand) (Plan, error) {
	clusterer := a.Clusterer
	if clusterer == nil {
		clusterer = NewCellClusterer()
	}
	labels, err := clusterer.Cluster(cells, demand)
	if err != nil {
		return Plan{}, err
	}
	pool := a.Channels
	if len(pool) == 0 {
		pool = DefaultChannelPool()
	}

	plan := Plan{
		Assignments: make(map[string]model.FrequencyAssignment, len(cells)),
		Clusters:    labels,
	}

	k := 0
	for _, l := range labels {
		k = max(k, l+1)
	}
	members := make([][]int, k)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	offset := 0
	for cluster, idx := range members {
		for i, cellIdx := range idx {
			cell := cells[cellIdx]
			fa := assignCell(cell.ID, i+offset, demand.Get(cell.ID, assignmentDemandDefault), pool, cluster)
			if capab, ok := cell.Generation.Capability(); ok {
				fa.MaxThroughputMbps = capab.MaxThroughputMbps
				fa.CoverageRadiusM = capab.CoverageRadiusM
			}
			plan.Assignments[cell.ID] = fa
		}
		if a.StaggerClusters {
			offset += len(idx)
		}
	}

	plan.PredictedInterference = a.Interference.Predict(planTopology(cells), planAllocation(cells, plan))
	return plan, nil
}

func assignCell(id string, pos int, demand float64, pool []int, cluster int) model.FrequencyAssignment {
	c := len(pool)
	count := int(math.Trunc(demand / 10))
	count = max(0, min(count, model.MaxSecondaryCarriers))

	secondary := make([]int, count)
	for j := range secondary {
		secondary[j] = pool[(pos+j+1)%c]
	}
	return model.FrequencyAssignment{
		CellID:            id,
		PrimaryChannel:    pool[pos%c],
		SecondaryChannels: secondary,
		PowerLevelDBm:     model.ClampPower(math.Min(model.MaxPowerDBm, 20+demand*0.5)),
		ClusterID:         cluster,
	}
}

func planTopology(cells []model.CellSite) InterferenceTopology {
	locs := make([]model.Location, len(cells))
	for i, c := range cells {
		locs[i] = c.Location()
	}
	return InterferenceTopology{
		CellCount:        len(cells),
		CoverageAreaKm2:  BoundingAreaKm2(locs),
		AvgCellDistanceM: MeanPairwiseDistanceM(locs),
	}
}

// planAllocation summarises a plan: reuse factor is the number of distinct
// primary channels, power the mean assigned power. Cells are visited in
// input order so the float sum is reproducible.
func planAllocation(cells []model.CellSite, p Plan) ProposedAllocation {
	primaries := map[int]struct{}{}
	channels := map[int]struct{}{}
	power := 0.0
	for _, c := range cells {
		fa := p.Assignments[c.ID]
		primaries[fa.PrimaryChannel] = struct{}{}
		channels[fa.PrimaryChannel] = struct{}{}
		for _, ch := range fa.SecondaryChannels {
			channels[ch] = struct{}{}
		}
		power += fa.PowerLevelDBm
	}
	if len(p.Assignments) > 0 {
		power /= float64(len(p.Assignments))
	}
	return ProposedAllocation{
		ReuseFactor:          float64(len(primaries)),
		PowerLevelDBm:        power,
		AllocatedFrequencies: len(channels),
	}
}
