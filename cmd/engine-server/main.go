// Command engine-server serves the optimization engine over gRPC with
// Prometheus metrics on a separate HTTP listener.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/signalsfoundry/spectrum-optimizer/internal/config"
	"github.com/signalsfoundry/spectrum-optimizer/internal/engine"
	"github.com/signalsfoundry/spectrum-optimizer/internal/history/sqlite"
	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/internal/observability"
	"github.com/signalsfoundry/spectrum-optimizer/internal/rpc"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML engine config")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the gRPC server listens on (overrides server.listen_addr)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides server.metrics_addr)")
	flag.Parse()

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.NewFromEnv().Error(ctx, "failed to load config", logging.Err(err))
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Server.ListenAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Server.MetricsAddr = *metricsAddr
	}
	log := logging.New(cfg.Logging)

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Server.ListenAddr), logging.Err(err))
		os.Exit(1)
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(stopCtx, cfg, log, lis); err != nil {
		log.Error(ctx, "engine server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves on lis until ctx is done, then drains in-flight RPCs.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	reg := prometheus.NewRegistry()
	rpcCollector, err := observability.NewRPCCollector(reg)
	if err != nil {
		return err
	}
	engineCollector, err := observability.NewEngineCollector(reg)
	if err != nil {
		return err
	}

	opts := []engine.Option{engine.WithLogger(log), engine.WithMetrics(engineCollector)}
	var lister rpc.HistoryLister
	if cfg.History.SQLitePath != "" {
		store, err := sqlite.Open(ctx, cfg.History.SQLitePath)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, engine.WithHistorySink(store))
		lister = store
		log.Info(ctx, "persisting allocation history", logging.String("path", cfg.History.SQLitePath))
	}
	eng, err := engine.New(cfg, opts...)
	if err != nil {
		return err
	}

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			rpc.RequestIDUnaryServerInterceptor(log),
			rpc.TracingUnaryServerInterceptor(),
			rpcCollector.UnaryServerInterceptor(),
		),
	)
	rpc.RegisterSpectrumEngineServer(server, rpc.NewService(eng, lister, log))

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(server, healthSrv)
	healthSrv.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, reg, log)

	log.Info(ctx, "starting engine gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Int("workers", eng.Workers()),
	)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(lis) }()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	log.Info(context.Background(), "shutting down engine server")
	healthSrv.Shutdown()
	server.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
		return serveErr
	}
	return nil
}

// metricsHandler serves every collector registered on gatherer, RPC and
// engine metrics alike.
func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func serveMetrics(addr string, gatherer prometheus.Gatherer, log logging.Logger) *http.Server {
	if addr == "" || gatherer == nil {
		return nil
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           metricsHandler(gatherer),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
