package core

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/signalsfoundry/spectrum-optimizer/internal/history"
	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/model"
	"github.com/signalsfoundry/spectrum-optimizer/optimize"
)

func TestAllocationCost(t *testing.T) {
	var slots [SlotsPerUser]float64
	// One full slot yields 20 MHz * 2.9 = 58 Mbps.
	x := []float64{1, 0, 0}
	got := AllocationCost(x, []float64{100}, slots)
	want := (100.0-58)*(100.0-58) + 0.1
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("cost = %v, want %v", got, want)
	}
	// Requirement met: only the resource term remains.
	if got := AllocationCost([]float64{1, 1, 0}, []float64{100}, slots); math.Abs(got-0.2) > 1e-12 {
		t.Fatalf("cost = %v, want 0.2", got)
	}
	// Slot weights scale bandwidth.
	slots[0] = 2
	if got := AchievedThroughput([]float64{1, 0, 0}, 1, slots); got[0] != 116 {
		t.Fatalf("achieved = %v, want 116", got)
	}
}

func TestGlobalAllocatorMeetsDemand(t *testing.T) {
	h := history.NewLog()
	g := NewGlobalAllocator(h)
	g.Budget = optimize.Budget{MaxIter: 400}
	users := []model.UserRequirement{{UserID: "u1", RequiredThroughputMbps: 100}}

	ctx, runID := logging.EnsureRunID(context.Background())
	res, err := g.Optimize(ctx, users)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(res.AllocationVector) != SlotsPerUser {
		t.Fatalf("vector length = %d, want 3", len(res.AllocationVector))
	}
	for i, v := range res.AllocationVector {
		if v < 0 || v > 1 {
			t.Fatalf("x[%d] = %v outside [0,1]", i, v)
		}
	}
	achieved := AchievedThroughput(res.AllocationVector, 1, g.SlotBandwidth)[0]
	if math.Abs(achieved-100) > 2 {
		t.Fatalf("achieved = %v, want ~100", achieved)
	}
	if res.FinalCost > 1 {
		t.Fatalf("final cost = %v, want < 1", res.FinalCost)
	}

	entries := h.Entries()
	if len(entries) != 1 {
		t.Fatalf("history has %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.ID != res.HistoryEntryID || e.RunID != runID || e.Kind != history.KindGlobalAllocation || e.UserCount != 1 {
		t.Fatalf("history entry = %+v", e)
	}
	if !reflect.DeepEqual(e.AllocationVector, res.AllocationVector) {
		t.Fatalf("history vector %v != result %v", e.AllocationVector, res.AllocationVector)
	}
}

func TestGlobalAllocatorDeterministic(t *testing.T) {
	users := []model.UserRequirement{
		{UserID: "u1", RequiredThroughputMbps: 80},
		{UserID: "u2", RequiredThroughputMbps: 150},
	}
	run := func() GlobalAllocationResult {
		g := NewGlobalAllocator(nil)
		g.Budget = optimize.Budget{MaxIter: 60}
		res, err := g.Optimize(context.Background(), users)
		if err != nil {
			t.Fatalf("Optimize: %v", err)
		}
		res.HistoryEntryID = ""
		return res
	}
	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated runs differ:\n%+v\n%+v", first, second)
	}
}

func TestGlobalAllocatorCancelledReturnsBestSoFar(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := history.NewLog()
	res, err := NewGlobalAllocator(h).Optimize(ctx, []model.UserRequirement{{UserID: "u1", RequiredThroughputMbps: 300}})
	if err != nil {
		t.Fatalf("cancellation must not error, got %v", err)
	}
	if res.Converged {
		t.Fatalf("cancelled run reported converged")
	}
	if len(res.AllocationVector) != SlotsPerUser || math.IsInf(res.FinalCost, 0) {
		t.Fatalf("expected a usable candidate, got %+v", res)
	}
	if h.Len() != 1 {
		t.Fatalf("cancelled run not recorded in history")
	}
}

func TestGlobalAllocatorNoUsers(t *testing.T) {
	res, err := NewGlobalAllocator(nil).Optimize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(res.AllocationVector) != 0 || res.FinalCost != 0 || !res.Converged {
		t.Fatalf("empty batch = %+v", res)
	}
}

func TestGlobalAllocatorSwappableOptimizer(t *testing.T) {
	g := NewGlobalAllocator(nil)
	g.Optimizer = &optimize.SimulatedAnnealing{}
	g.Budget = optimize.Budget{MaxIter: 2000}
	res, err := g.Optimize(context.Background(), []model.UserRequirement{{UserID: "u1", RequiredThroughputMbps: 50}})
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	// Starting anywhere in the box costs at most 50^2 + 0.3.
	if res.FinalCost >= 2500.3 {
		t.Fatalf("annealer made no progress: %v", res.FinalCost)
	}
}
