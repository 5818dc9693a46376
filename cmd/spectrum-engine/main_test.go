package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/spectrum-optimizer/internal/engine"
	"github.com/signalsfoundry/spectrum-optimizer/internal/history/sqlite"
)

const snapshotJSON = `{
  "measurements": [
    {"frequency_mhz": 750, "power_dbm": -70, "timestamp": "2024-06-01T10:00:00Z", "cell_id": "cell-a"},
    {"frequency_mhz": 3500, "power_dbm": -115, "timestamp": "2024-06-01T10:00:00Z", "cell_id": "cell-b"}
  ],
  "cells": [
    {"id": "cell-a", "lat": 40.71, "lon": -74.00, "generation": "5G"},
    {"id": "cell-b", "lat": 40.73, "lon": -73.99, "generation": "4G"}
  ],
  "traffic_demand": {"cell-a": 10},
  "users": [
    {"user_id": "u1", "required_throughput_mbps": 80, "location": {"lat": 40.71, "lon": -74.0}}
  ],
  "available_spectrum": {
    "lte": [{"frequency_mhz": 700, "bandwidth_mhz": 10}],
    "5g_sub6": [{"frequency_mhz": 3500, "bandwidth_mhz": 100}]
  }
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func smallConfig(t *testing.T, extra string) string {
	t.Helper()
	return writeFile(t, "engine.yaml", "engine:\n  workers: 2\nsearch:\n  max_iter: 20\n"+extra)
}

func decodeReports(t *testing.T, out *bytes.Buffer) []engine.Report {
	t.Helper()
	var reports []engine.Report
	sc := bufio.NewScanner(out)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var rep engine.Report
		if err := json.Unmarshal(sc.Bytes(), &rep); err != nil {
			t.Fatalf("decode report %q: %v", sc.Text(), err)
		}
		reports = append(reports, rep)
	}
	return reports
}

func TestRunAssignFromStdin(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", smallConfig(t, ""), "-op", "assign"},
		strings.NewReader(snapshotJSON), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	reports := decodeReports(t, &stdout)
	if len(reports) != 1 || reports[0].FrequencyPlan == nil {
		t.Fatalf("expected one report with a frequency plan, got %+v", reports)
	}
	a := reports[0].FrequencyPlan.Assignments["cell-a"]
	if a.PowerLevelDBm != 25 || len(a.SecondaryChannels) != 1 {
		t.Fatalf("unexpected assignment %+v", a)
	}
	if reports[0].Antennas != nil || reports[0].Utilization != nil {
		t.Fatalf("single-op report carries other sections: %+v", reports[0])
	}
}

func TestRunAllPersistsHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	cfgPath := smallConfig(t, fmt.Sprintf("history:\n  sqlite_path: %s\n", dbPath))
	input := writeFile(t, "snapshot.json", snapshotJSON)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-config", cfgPath, "-input", input}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	reports := decodeReports(t, &stdout)
	if len(reports) != 1 {
		t.Fatalf("expected one report, got %d", len(reports))
	}
	rep := reports[0]
	if rep.Utilization == nil || rep.FrequencyPlan == nil || rep.CarrierAggregation == nil ||
		rep.GlobalAllocation == nil || rep.Antennas == nil {
		t.Fatalf("report has missing sections: %+v", rep)
	}

	store, err := sqlite.Open(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("reopen history: %v", err)
	}
	defer store.Close()
	entries, err := store.List(context.Background(), 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].RunID != rep.RunID {
		t.Fatalf("persisted history %+v does not match run %s", entries, rep.RunID)
	}
}

func TestRunWatchModeEmitsOneReportPerTick(t *testing.T) {
	input := writeFile(t, "snapshot.json", snapshotJSON)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-config", smallConfig(t, ""), "-input", input, "-op", "analyze",
		"-interval", "5ms", "-runs", "2",
	}, nil, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d, stderr: %s", code, stderr.String())
	}
	reports := decodeReports(t, &stdout)
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports[0].RunID == reports[1].RunID {
		t.Fatalf("each tick should get its own run_id")
	}
	if got := reports[0].Utilization["low_band"].UtilizationPct; got != 100 {
		t.Fatalf("low_band utilization = %v, want 100", got)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"-op", "pso"}, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("unknown op exit code = %d, want 2", code)
	}
	if code := run(context.Background(), []string{"-interval", "1s"}, nil, &stdout, &stderr); code != 2 {
		t.Fatalf("watch on stdin exit code = %d, want 2", code)
	}
}

func TestRunFailsOnInvalidUser(t *testing.T) {
	var stdout, stderr bytes.Buffer
	body := `{"users": [{"user_id": "", "required_throughput_mbps": 5}]}`
	code := run(context.Background(), []string{"-config", smallConfig(t, ""), "-op", "global"},
		strings.NewReader(body), &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "invalid user") {
		t.Fatalf("expected the validation error on stderr, got %q", stderr.String())
	}
}
