package rpc

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/spectrum-optimizer/internal/logging"
	"github.com/signalsfoundry/spectrum-optimizer/internal/observability"
)

const tracerName = "github.com/signalsfoundry/spectrum-optimizer/internal/rpc"

// TracingUnaryServerInterceptor names the server span "RPC/<Service>/<Method>"
// and tags it with the request and run ids, so engine spans started by the
// handler nest under a recognisable parent. When the otelgrpc stats handler
// is absent it starts (and ends) the server span itself.
func TracingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		service, method := observability.SplitMethod(info.FullMethod)
		name := "RPC/" + service + "/" + method

		span := trace.SpanFromContext(ctx)
		owned := !span.SpanContext().IsValid()
		if owned {
			ctx, span = tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()
		} else {
			span.SetName(name)
		}

		span.SetAttributes(
			attribute.String("rpc.system", "grpc"),
			attribute.String("rpc.service", service),
			attribute.String("rpc.method", method),
		)
		if id := logging.RequestIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if id := logging.RunIDFromContext(ctx); id != "" {
			span.SetAttributes(attribute.String("run_id", id))
		}

		resp, err := handler(ctx, req)
		if err != nil {
			code := status.Code(err)
			span.RecordError(err)
			span.SetAttributes(attribute.String("rpc.grpc.status_code", code.String()))
			span.SetStatus(otelcodes.Error, code.String())
		}
		return resp, err
	}
}
