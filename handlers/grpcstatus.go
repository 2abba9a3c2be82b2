package handlers

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ppiankov/interpose/pipeline"
)

// GRPCStatus converts faults into gRPC status errors so a proxied service
// can be exposed over gRPC unchanged. Faults that already carry a status
// pass through.
func GRPCStatus(order int) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		out := next(inv)
		if !out.Failed() {
			return out
		}
		if _, ok := status.FromError(out.Err); ok {
			return out
		}
		return out.WithErr(status.Error(Code(out.Err), out.Err.Error()))
	})
}

// Code maps a fault to its gRPC status code.
func Code(err error) codes.Code {
	var pe *pipeline.PanicError
	var ve *ValidationError
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, pipeline.ErrNotImplemented):
		return codes.Unimplemented
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, ErrRateLimited):
		return codes.ResourceExhausted
	case errors.As(err, &ve):
		return codes.InvalidArgument
	case errors.As(err, &pe):
		return codes.Internal
	}
	if s, ok := status.FromError(err); ok {
		return s.Code()
	}
	return codes.Unknown
}
