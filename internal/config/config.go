// Package config loads the engine configuration from YAML with
// SPECTRUM_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/internal/observability"
)

// Search algorithms selectable for the stochastic optimizations.
const (
	AlgorithmDifferentialEvolution = "differential_evolution"
	AlgorithmSimulatedAnnealing    = "simulated_annealing"
)

// RF adjacency modes.
const (
	AdjacencyGeographic = "geographic"
	AdjacencyIndex      = "index"
)

// Config is the full engine configuration.
type Config struct {
	Logging  logging.Config              `yaml:"logging"`
	Tracing  observability.TracingConfig `yaml:"tracing"`
	Engine   EngineConfig                `yaml:"engine"`
	Search   SearchConfig                `yaml:"search"`
	Analyzer AnalyzerConfig              `yaml:"analyzer"`
	Assigner AssignerConfig              `yaml:"assigner"`
	Carrier  CarrierConfig               `yaml:"carrier"`
	RF       RFConfig                    `yaml:"rf"`
	History  HistoryConfig               `yaml:"history"`
	Server   ServerConfig                `yaml:"server"`
}

// EngineConfig sizes the worker pool.
type EngineConfig struct {
	// Workers bounds concurrent runs and objective evaluations per run.
	// Zero selects GOMAXPROCS.
	Workers int `yaml:"workers"`
	// RunTimeout caps a single run; zero disables the cap.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// SearchConfig is the shared budget for global allocation and RF tuning.
type SearchConfig struct {
	Algorithm string  `yaml:"algorithm"`
	MaxIter   int     `yaml:"max_iter"`
	PopSize   int     `yaml:"pop_size"`
	Tol       float64 `yaml:"tol"`
	Seed      int64   `yaml:"seed"`
}

type AnalyzerConfig struct {
	NoiseFloorDBm float64 `yaml:"noise_floor_dbm"`
}

type AssignerConfig struct {
	MaxClusters     int   `yaml:"max_clusters"`
	ClusterSeed     int64 `yaml:"cluster_seed"`
	ChannelCount    int   `yaml:"channel_count"`
	StaggerClusters bool  `yaml:"stagger_clusters"`
}

type CarrierConfig struct {
	DefaultDistanceM float64 `yaml:"default_distance_m"`
}

type RFConfig struct {
	Adjacency string `yaml:"adjacency"`
}

// HistoryConfig controls history persistence. An empty SQLitePath keeps
// history in memory only.
type HistoryConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Logging: logging.Config{Level: "info", Format: "text"},
		Tracing: observability.DefaultTracingConfig(),
		Search: SearchConfig{
			Algorithm: AlgorithmDifferentialEvolution,
			MaxIter:   1000,
			PopSize:   15,
			Tol:       0.01,
			Seed:      42,
		},
		Analyzer: AnalyzerConfig{NoiseFloorDBm: -110},
		Assigner: AssignerConfig{
			MaxClusters:  5,
			ClusterSeed:  42,
			ChannelCount: 20,
		},
		Carrier: CarrierConfig{DefaultDistanceM: 1000},
		RF:      RFConfig{Adjacency: AdjacencyGeographic},
		Server: ServerConfig{
			ListenAddr:  ":50061",
			MetricsAddr: ":9090",
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file '%s': %w", path, err)
		}
		if err := decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config from YAML: %w", err)
		}
	}
	cfg = ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without consulting the environment.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decode(bytes.NewReader(data), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config from YAML: %w", err)
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overlays LOG_LEVEL, LOG_FORMAT, SPECTRUM_* and the tracing
// variables onto cfg. Unparseable numbers are ignored.
func ApplyEnv(cfg Config) Config {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	cfg.Tracing = observability.ApplyTracingEnv(cfg.Tracing)

	if n, ok := envInt("SPECTRUM_WORKERS"); ok {
		cfg.Engine.Workers = n
	}
	if v := os.Getenv("SPECTRUM_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Engine.RunTimeout = d
		}
	}
	if v := os.Getenv("SPECTRUM_ALGORITHM"); v != "" {
		cfg.Search.Algorithm = strings.ToLower(v)
	}
	if n, ok := envInt("SPECTRUM_MAX_ITER"); ok {
		cfg.Search.MaxIter = n
	}
	if v := os.Getenv("SPECTRUM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Search.Seed = n
		}
	}
	if v := os.Getenv("SPECTRUM_RF_ADJACENCY"); v != "" {
		cfg.RF.Adjacency = strings.ToLower(v)
	}
	if v := os.Getenv("SPECTRUM_HISTORY_SQLITE_PATH"); v != "" {
		cfg.History.SQLitePath = v
	}
	if v := os.Getenv("SPECTRUM_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SPECTRUM_METRICS_ADDR"); v != "" {
		cfg.Server.MetricsAddr = v
	}
	return cfg
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate performs basic configuration validation.
func (c Config) Validate() error {
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging format %q must be text or json", c.Logging.Format)
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case observability.ExporterStdout, observability.ExporterOTLP:
		default:
			return fmt.Errorf("tracing exporter %q must be stdout or otlp", c.Tracing.Exporter)
		}
		if c.Tracing.Exporter == observability.ExporterOTLP && c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing endpoint is required for the otlp exporter")
		}
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio %v must be within [0,1]", c.Tracing.SampleRatio)
	}

	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine workers cannot be negative")
	}
	if c.Engine.RunTimeout < 0 {
		return fmt.Errorf("engine run timeout cannot be negative")
	}

	switch c.Search.Algorithm {
	case AlgorithmDifferentialEvolution, AlgorithmSimulatedAnnealing:
	default:
		return fmt.Errorf("search algorithm %q must be %s or %s",
			c.Search.Algorithm, AlgorithmDifferentialEvolution, AlgorithmSimulatedAnnealing)
	}
	if c.Search.MaxIter <= 0 {
		return fmt.Errorf("search max_iter must be greater than 0")
	}
	if c.Search.PopSize < 0 {
		return fmt.Errorf("search pop_size cannot be negative")
	}
	if c.Search.Tol <= 0 {
		return fmt.Errorf("search tol must be greater than 0")
	}

	if c.Assigner.MaxClusters <= 0 {
		return fmt.Errorf("assigner max_clusters must be greater than 0")
	}
	if c.Assigner.ChannelCount <= 0 {
		return fmt.Errorf("assigner channel_count must be greater than 0")
	}
	if c.Carrier.DefaultDistanceM <= 0 {
		return fmt.Errorf("carrier default_distance_m must be greater than 0")
	}

	switch c.RF.Adjacency {
	case AdjacencyGeographic, AdjacencyIndex:
	default:
		return fmt.Errorf("rf adjacency %q must be %s or %s", c.RF.Adjacency, AdjacencyGeographic, AdjacencyIndex)
	}
	return nil
}
