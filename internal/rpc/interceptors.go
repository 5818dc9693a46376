package rpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
)

// Metadata keys understood by the engine service. A caller-supplied run id
// is reused by the engine, so repeated calls can share one history run.
const (
	requestIDMetadataKey = "x-request-id"
	runIDMetadataKey     = "x-run-id"
)

// RequestIDUnaryServerInterceptor scopes every call to a request_id (taken
// from metadata or generated) and an optional run_id, stores a logger
// annotated with both on the context, echoes the ids back as response
// headers and logs the outcome of the call.
func RequestIDUnaryServerInterceptor(base logging.Logger) grpc.UnaryServerInterceptor {
	if base == nil {
		base = logging.Noop()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		if id := firstHeader(md, requestIDMetadataKey); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		callLog := base.With(logging.String("method", info.FullMethod))
		if runID := firstHeader(md, runIDMetadataKey); runID != "" {
			ctx = logging.ContextWithRunID(ctx, runID)
			callLog = callLog.With(logging.String("run_id", runID))
		}
		ctx, callLog = logging.WithRequestLogger(ctx, callLog)
		ctx = logging.ContextWithLogger(ctx, callLog)

		header := metadata.Pairs(requestIDMetadataKey, logging.RequestIDFromContext(ctx))
		if runID := logging.RunIDFromContext(ctx); runID != "" {
			header.Set(runIDMetadataKey, runID)
		}
		// Fails only outside a real transport (unit tests call the
		// interceptor directly).
		_ = grpc.SetHeader(ctx, header)

		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []logging.Field{
			logging.String("code", status.Code(err).String()),
			logging.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			callLog.Warn(ctx, "engine RPC failed", append(fields, logging.Err(err))...)
		} else {
			callLog.Debug(ctx, "engine RPC completed", fields...)
		}
		return resp, err
	}
}

func firstHeader(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
