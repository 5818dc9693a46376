package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// RPCCollector holds the metrics of the engine's gRPC surface.
type RPCCollector struct {
	RPCRequests  *prometheus.CounterVec
	RPCDurations *prometheus.HistogramVec
	RPCInflight  *prometheus.GaugeVec
}

// NewRPCCollector registers the RPC metrics on reg (the default registry
// when nil). Metrics already registered by an earlier collector are reused.
func NewRPCCollector(reg prometheus.Registerer) (*RPCCollector, error) {
	reg, _ = resolveRegistry(reg)

	requests, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "spectrum_rpc_requests_total",
		Help: "Engine RPCs handled, by service, method and gRPC status code.",
	}, []string{"service", "method", "code"}))
	if err != nil {
		return nil, err
	}
	// Optimization calls can run for tens of seconds.
	durations, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "spectrum_rpc_request_duration_seconds",
		Help:    "Engine RPC latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"service", "method"}))
	if err != nil {
		return nil, err
	}
	inflight, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "spectrum_rpc_inflight_requests",
		Help: "Engine RPCs currently being served, by method.",
	}, []string{"method"}))
	if err != nil {
		return nil, err
	}

	return &RPCCollector{
		RPCRequests:  requests,
		RPCDurations: durations,
		RPCInflight:  inflight,
	}, nil
}

// UnaryServerInterceptor counts and times unary RPCs. A nil collector
// passes calls through untouched.
func (c *RPCCollector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if c == nil {
			return handler(ctx, req)
		}
		var fullMethod string
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)

		inflight := c.RPCInflight.WithLabelValues(method)
		inflight.Inc()
		start := time.Now()
		resp, err := handler(ctx, req)
		inflight.Dec()

		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		c.RPCDurations.WithLabelValues(service, method).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

func handlerFor(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod turns "/pkg.Service/Method" into ("Service", "Method").
// Anything unparsable yields "unknown" for the missing part.
func SplitMethod(fullMethod string) (service, method string) {
	path := strings.TrimPrefix(fullMethod, "/")
	slash := strings.LastIndex(path, "/")
	if slash < 0 {
		return "unknown", "unknown"
	}
	service, method = path[:slash], path[slash+1:]
	if i := strings.LastIndexAny(service, "./"); i >= 0 {
		service = service[i+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func resolveRegistry(reg prometheus.Registerer) (prometheus.Registerer, prometheus.Gatherer) {
	if reg == nil {
		return prometheus.DefaultRegisterer, prometheus.DefaultGatherer
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		return reg, g
	}
	return reg, prometheus.DefaultGatherer
}

// register adds c to reg, returning the collector that is already
// registered under the same descriptor instead when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		return c, err
	}
	existing, ok := are.ExistingCollector.(C)
	if !ok {
		return c, fmt.Errorf("collector already registered with incompatible type: %w", err)
	}
	return existing, nil
}
