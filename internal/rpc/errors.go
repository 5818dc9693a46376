package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/spectrum-optimizer/core"
	"github.com/signalsfoundry/spectrum-optimizer/optimize"
)

// ErrInvalidRequest is returned when a payload cannot be decoded into the
// method's request shape.
var ErrInvalidRequest = errors.New("invalid request")

// ToStatusError maps engine errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, core.ErrNoCells),
		errors.Is(err, core.ErrNoSpectrum),
		errors.Is(err, core.ErrInvalidUser),
		errors.Is(err, core.ErrInvalidCell),
		errors.Is(err, optimize.ErrInvalidBounds):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
