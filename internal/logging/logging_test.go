package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Format: "json", Output: &buf})

	log.With(String("component", "analyzer")).Info(context.Background(), "band analysed",
		String("band", "mid_band"),
		Float64("utilization_pct", 62.5),
		Bool("converged", true),
		Err(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal log line %q: %v", buf.String(), err)
	}
	if rec["msg"] != "band analysed" || rec["component"] != "analyzer" || rec["band"] != "mid_band" {
		t.Fatalf("unexpected record %v", rec)
	}
	if rec["utilization_pct"] != 62.5 || rec["converged"] != true || rec["error"] != "boom" {
		t.Fatalf("unexpected typed fields %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})
	log.Info(context.Background(), "hidden")
	log.Warn(context.Background(), "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("level filtering failed: %q", out)
	}
}

func TestEnsureRunIDIsStable(t *testing.T) {
	ctx, id := EnsureRunID(context.Background())
	if id == "" {
		t.Fatalf("expected a generated run_id")
	}
	ctx2, id2 := EnsureRunID(ctx)
	if id2 != id || RunIDFromContext(ctx2) != id {
		t.Fatalf("run_id changed on second call: %q vs %q", id, id2)
	}
}

func TestWithRunLoggerAnnotates(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: "json", Output: &buf})
	ctx, log := WithRunLogger(context.Background(), base)
	log.Info(ctx, "started")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["run_id"] != RunIDFromContext(ctx) {
		t.Fatalf("run_id field = %v, want %q", rec["run_id"], RunIDFromContext(ctx))
	}
}

func TestFromContextFallback(t *testing.T) {
	if _, ok := FromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("expected noop logger fallback")
	}
	l := Noop()
	ctx := ContextWithLogger(context.Background(), l)
	if FromContext(ctx, nil) != l {
		t.Fatalf("expected stored logger")
	}
}

func TestRunAndRequestIDsAreIndependent(t *testing.T) {
	ctx := ContextWithRunID(context.Background(), "run-7")
	ctx, reqID := EnsureRequestID(ctx)
	if reqID == "" || reqID == "run-7" {
		t.Fatalf("request_id = %q, want a fresh id", reqID)
	}
	if _, id := EnsureRunID(ctx); id != "run-7" {
		t.Fatalf("pinned run_id replaced by %q", id)
	}
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatalf("expected empty request_id on a bare context")
	}
}
