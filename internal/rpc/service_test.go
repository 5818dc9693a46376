package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/signalsfoundry/spectrum-optimizer/internal/config"
	"github.com/signalsfoundry/spectrum-optimizer/internal/engine"
	"github.com/signalsfoundry/spectrum-optimizer/internal/history/sqlite"
	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/model"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	return newTestClientWithStore(t, nil)
}

// newTestClientWithStore persists history to store and serves ListHistory
// from it when store is non-nil.
func newTestClientWithStore(t *testing.T, store *sqlite.Store) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Engine.Workers = 2
	cfg.Search.MaxIter = 20
	var opts []engine.Option
	var lister HistoryLister
	if store != nil {
		opts = append(opts, engine.WithHistorySink(store))
		lister = store
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RequestIDUnaryServerInterceptor(logging.Noop()),
		TracingUnaryServerInterceptor(),
	))
	RegisterSpectrumEngineServer(srv, NewService(eng, lister, nil))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestAssignFrequenciesOverRPC(t *testing.T) {
	client := newTestClient(t)
	plan, err := client.AssignFrequencies(testContext(t), []model.CellSite{
		{ID: "cell-a", Latitude: 40.71, Longitude: -74.00, Generation: model.Generation5G},
		{ID: "cell-b", Latitude: 40.75, Longitude: -73.98, Generation: model.Generation4G},
	}, model.TrafficDemand{"cell-a": 30})
	if err != nil {
		t.Fatalf("AssignFrequencies: %v", err)
	}
	a := plan.Assignments["cell-a"]
	if a.CellID != "cell-a" || len(a.SecondaryChannels) != 3 || a.PowerLevelDBm != 35 {
		t.Fatalf("unexpected assignment for cell-a: %+v", a)
	}
	if len(plan.Clusters) != 2 {
		t.Fatalf("expected a label per cell, got %v", plan.Clusters)
	}
}

func TestAnalyzeSpectrumOverRPC(t *testing.T) {
	client := newTestClient(t)
	util, err := client.AnalyzeSpectrum(testContext(t), []model.Measurement{
		{FrequencyMHz: 800, PowerDBm: -80, Timestamp: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	})
	if err != nil {
		t.Fatalf("AnalyzeSpectrum: %v", err)
	}
	low, ok := util["low_band"]
	if !ok || low.UtilizationPct != 100 || low.SampleCount != 1 {
		t.Fatalf("unexpected low_band report %+v", low)
	}
}

func TestEmptySpectrumIsInvalidArgument(t *testing.T) {
	client := newTestClient(t)
	_, err := client.OptimizeCarriers(testContext(t), []model.UserRequirement{
		{UserID: "u1", RequiredThroughputMbps: 10},
	}, model.AvailableSpectrum{})
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument (err=%v)", code, err)
	}
}

func TestUnknownFieldIsInvalidArgument(t *testing.T) {
	client := newTestClient(t)
	var out map[string]any
	err := client.Call(testContext(t), MethodAssignFrequencies, map[string]any{"cellz": []any{}}, &out)
	if code := status.Code(err); code != codes.InvalidArgument {
		t.Fatalf("code = %v, want InvalidArgument (err=%v)", code, err)
	}
}

func TestGlobalAllocationAppearsInHistory(t *testing.T) {
	client := newTestClient(t)
	ctx := testContext(t)
	res, err := client.OptimizeGlobalAllocation(ctx, []model.UserRequirement{
		{UserID: "u1", RequiredThroughputMbps: 40},
		{UserID: "u2", RequiredThroughputMbps: 90},
	})
	if err != nil {
		t.Fatalf("OptimizeGlobalAllocation: %v", err)
	}
	if len(res.AllocationVector) != 6 {
		t.Fatalf("vector length = %d, want 6", len(res.AllocationVector))
	}

	entries, err := client.ListHistory(ctx, 0)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != res.HistoryEntryID || entries[0].UserCount != 2 {
		t.Fatalf("unexpected history %+v (want id %s)", entries, res.HistoryEntryID)
	}
}

func TestPinnedRunIDReachesHistory(t *testing.T) {
	client := newTestClient(t)
	ctx := WithRequestID(WithRunID(testContext(t), "run-abc"), "req-abc")

	var header metadata.MD
	var out map[string]any
	err := client.Call(ctx, MethodOptimizeGlobalAllocation,
		UsersRequest{Users: []model.UserRequirement{{UserID: "u1", RequiredThroughputMbps: 20}}},
		&out, grpc.Header(&header))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got := header.Get(runIDMetadataKey); len(got) != 1 || got[0] != "run-abc" {
		t.Fatalf("run id header = %v", got)
	}
	if got := header.Get(requestIDMetadataKey); len(got) != 1 || got[0] != "req-abc" {
		t.Fatalf("request id header = %v", got)
	}

	entries, err := client.ListHistory(ctx, 1)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != "run-abc" {
		t.Fatalf("history %+v, want run_id run-abc", entries)
	}
}

func TestListHistoryNewestFirstForEveryBackend(t *testing.T) {
	store, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("sqlite.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	backends := map[string]*Client{
		"memory": newTestClient(t),
		"sqlite": newTestClientWithStore(t, store),
	}
	for name, client := range backends {
		ctx := testContext(t)
		var want []string
		for _, user := range []string{"first", "second", "third"} {
			res, err := client.OptimizeGlobalAllocation(ctx, []model.UserRequirement{
				{UserID: user, RequiredThroughputMbps: 10},
			})
			if err != nil {
				t.Fatalf("%s: OptimizeGlobalAllocation: %v", name, err)
			}
			want = append([]string{res.HistoryEntryID}, want...)
		}

		entries, err := client.ListHistory(ctx, 0)
		if err != nil {
			t.Fatalf("%s: ListHistory: %v", name, err)
		}
		if len(entries) != len(want) {
			t.Fatalf("%s: %d entries, want %d", name, len(entries), len(want))
		}
		for i := range want {
			if entries[i].ID != want[i] {
				t.Fatalf("%s: entry %d = %s, want %s (newest first)", name, i, entries[i].ID, want[i])
			}
		}

		limited, err := client.ListHistory(ctx, 2)
		if err != nil {
			t.Fatalf("%s: ListHistory limit: %v", name, err)
		}
		if len(limited) != 2 || limited[0].ID != want[0] || limited[1].ID != want[1] {
			t.Fatalf("%s: limited history %+v, want the two newest", name, limited)
		}
	}
}

func TestRunOverRPC(t *testing.T) {
	client := newTestClient(t)
	rep, err := client.Run(testContext(t), engine.Snapshot{
		Users: []model.UserRequirement{{UserID: "u1", RequiredThroughputMbps: 60}},
		Spectrum: model.AvailableSpectrum{
			model.CarrierBandLTE: {{FrequencyMHz: 700, BandwidthMHz: 10}},
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.RunID == "" || rep.CarrierAggregation == nil || rep.GlobalAllocation == nil {
		t.Fatalf("incomplete report %+v", rep)
	}
	alloc := rep.CarrierAggregation.Allocations[0]
	if alloc.PrimaryFrequencyMHz == nil || *alloc.PrimaryFrequencyMHz != 700 {
		t.Fatalf("primary = %v, want 700", alloc.PrimaryFrequencyMHz)
	}
}
