package core

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/signalsfoundry/spectrum-optimizer/model"
)

func gridCells(n int) []model.CellSite {
	cells := make([]model.CellSite, n)
	for i := range cells {
		cells[i] = model.CellSite{
			ID:        fmt.Sprintf("cell-%02d", i),
			Latitude:  40 + float64(i%4)*0.05,
			Longitude: -74 + float64(i/4)*0.05,
		}
	}
	return cells
}

func distinctLabels(labels []int) int {
	seen := map[int]struct{}{}
	for _, l := range labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

func TestClusterCountIsMinOfFiveAndN(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 6, 12} {
		labels, err := NewCellClusterer().Cluster(gridCells(n), nil)
		if err != nil {
			t.Fatalf("n=%d: Cluster: %v", n, err)
		}
		if len(labels) != n {
			t.Fatalf("n=%d: got %d labels", n, len(labels))
		}
		want := min(5, n)
		if got := distinctLabels(labels); got != want {
			t.Fatalf("n=%d: %d clusters, want %d (labels %v)", n, got, want, labels)
		}
		for _, l := range labels {
			if l < 0 || l >= want {
				t.Fatalf("n=%d: label %d out of range", n, l)
			}
		}
	}
}

func TestClusterDuplicatePositionsStillYieldK(t *testing.T) {
	cells := []model.CellSite{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	labels, err := NewCellClusterer().Cluster(cells, nil)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if got := distinctLabels(labels); got != 3 {
		t.Fatalf("identical points gave %d clusters, want 3", got)
	}
}

func TestClusterEmpty(t *testing.T) {
	labels, err := NewCellClusterer().Cluster(nil, nil)
	if err != nil || len(labels) != 0 {
		t.Fatalf("Cluster(nil) = %v, %v; want empty, nil", labels, err)
	}

	c := NewCellClusterer()
	c.RequireClusters = true
	if _, err := c.Cluster(nil, nil); !errors.Is(err, ErrNoCells) {
		t.Fatalf("expected ErrNoCells, got %v", err)
	}
}

func TestClusterDeterministicAndSeparatesDemand(t *testing.T) {
	cells := gridCells(12)
	demand := model.TrafficDemand{}
	for i, c := range cells {
		if i%2 == 0 {
			demand[c.ID] = 100
		}
	}
	first, err := NewCellClusterer().Cluster(cells, demand)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	second, _ := NewCellClusterer().Cluster(cells, demand)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("same seed gave %v then %v", first, second)
	}
	if first[0] != 0 {
		t.Fatalf("labels not renumbered by first appearance: %v", first)
	}
	// Demand dominates the geographic spread, so high and low demand cells
	// never share a cluster.
	for i := range cells {
		for j := range cells {
			if first[i] == first[j] && (i%2 == 0) != (j%2 == 0) {
				t.Fatalf("cells %d and %d with different demand share cluster %d", i, j, first[i])
			}
		}
	}
}

func TestClusterRejectsInvalidCells(t *testing.T) {
	cells := []model.CellSite{{ID: "a"}, {ID: "a"}}
	if _, err := NewCellClusterer().Cluster(cells, nil); !errors.Is(err, ErrInvalidCell) {
		t.Fatalf("expected ErrInvalidCell, got %v", err)
	}
}

func TestRenumber(t *testing.T) {
	got := renumber([]int{3, 3, 1, 4, 1})
	if want := []int{0, 0, 1, 2, 1}; !reflect.DeepEqual(got, want) {
		t.Fatalf("renumber = %v, want %v", got, want)
	}
}
