// Command spectrum-engine runs the optimization engine over a JSON network
// snapshot and writes a JSON report to stdout. With -interval it re-reads
// the snapshot and re-optimizes periodically, one report per line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/spectrum-optimizer/internal/config"
	"github.com/signalsfoundry/spectrum-optimizer/internal/engine"
	"github.com/signalsfoundry/spectrum-optimizer/internal/history/sqlite"
	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/internal/observability"
	"github.com/signalsfoundry/spectrum-optimizer/timectrl"
)

// Operations selectable with -op.
const (
	opAll      = "all"
	opAnalyze  = "analyze"
	opAssign   = "assign"
	opCarriers = "carriers"
	opGlobal   = "global"
	opAntennas = "antennas"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("spectrum-engine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to a YAML engine config")
	input := fs.String("input", "-", "Path to the JSON snapshot, or - for stdin")
	op := fs.String("op", opAll, "Operation: all, analyze, assign, carriers, global or antennas")
	interval := fs.Duration("interval", 0, "Re-optimize every interval; zero runs once")
	runs := fs.Int("runs", 0, "Number of runs with -interval; zero runs until interrupted")
	pretty := fs.Bool("pretty", false, "Indent the JSON report")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	switch *op {
	case opAll, opAnalyze, opAssign, opCarriers, opGlobal, opAntennas:
	default:
		fmt.Fprintf(stderr, "unknown -op %q\n", *op)
		return 2
	}
	if *interval > 0 && *input == "-" {
		fmt.Fprintln(stderr, "-interval requires -input to name a file")
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	cfg.Logging.Output = stderr
	cfg.Tracing.Writer = stderr
	log := logging.New(cfg.Logging)

	shutdown, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		return 1
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	opts := []engine.Option{engine.WithLogger(log)}
	if cfg.History.SQLitePath != "" {
		store, err := sqlite.Open(ctx, cfg.History.SQLitePath)
		if err != nil {
			log.Error(ctx, "failed to open history store", logging.String("path", cfg.History.SQLitePath), logging.Err(err))
			return 1
		}
		defer store.Close()
		opts = append(opts, engine.WithHistorySink(store))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		log.Error(ctx, "failed to build engine", logging.Err(err))
		return 1
	}

	enc := json.NewEncoder(stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	once := func(ctx context.Context) error {
		snap, err := readSnapshot(*input, stdin)
		if err != nil {
			return err
		}
		rep, err := execute(ctx, eng, *op, snap)
		if err != nil {
			return err
		}
		return enc.Encode(rep)
	}

	if *interval <= 0 {
		if err := once(ctx); err != nil {
			log.Error(ctx, "optimization failed", logging.Err(err))
			return 1
		}
		return 0
	}

	controller := timectrl.NewController(time.Now().UTC(), *interval, timectrl.RealTime)
	controller.AddListener(func(ctx context.Context, now time.Time) {
		if err := once(ctx); err != nil && ctx.Err() == nil {
			log.Warn(ctx, "periodic optimization failed",
				logging.String("tick", now.Format(time.RFC3339)),
				logging.Err(err),
			)
		}
	})
	log.Info(ctx, "watching snapshot",
		logging.String("input", *input),
		logging.Duration("interval", *interval),
		logging.Int("runs", *runs),
	)
	if err := controller.Run(ctx, *runs); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "watch loop exited", logging.Err(err))
		return 1
	}
	return 0
}

func readSnapshot(path string, stdin io.Reader) (engine.Snapshot, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return engine.Snapshot{}, fmt.Errorf("open snapshot %q: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	var snap engine.Snapshot
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&snap); err != nil {
		return engine.Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, nil
}

// execute runs a single operation, or the whole snapshot for opAll.
func execute(ctx context.Context, eng *engine.Engine, op string, snap engine.Snapshot) (engine.Report, error) {
	if op == opAll {
		return eng.Run(ctx, snap)
	}
	ctx, runID := logging.EnsureRunID(ctx)
	rep := engine.Report{RunID: runID}
	switch op {
	case opAnalyze:
		util, err := eng.AnalyzeSpectrum(ctx, snap.Measurements)
		if err != nil {
			return rep, err
		}
		rep.Utilization = util
	case opAssign:
		plan, err := eng.AssignFrequencies(ctx, snap.Cells, snap.Demand)
		if err != nil {
			return rep, err
		}
		rep.FrequencyPlan = &plan
	case opCarriers:
		res, err := eng.OptimizeCarriers(ctx, snap.Users, snap.Spectrum)
		if err != nil {
			return rep, err
		}
		rep.CarrierAggregation = &res
	case opGlobal:
		res, err := eng.OptimizeGlobalAllocation(ctx, snap.Users)
		if err != nil {
			return rep, err
		}
		rep.GlobalAllocation = &res
	case opAntennas:
		res, err := eng.OptimizeAntennas(ctx, snap.Cells, snap.Demand)
		if err != nil {
			return rep, err
		}
		rep.Antennas = &res
	}
	return rep, nil
}
