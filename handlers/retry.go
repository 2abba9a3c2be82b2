package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/interpose/pipeline"
)

// Retry calls the rest of the chain up to attempts times while it fails
// with a retryable fault, sleeping backoff between attempts and doubling it
// each time. A nil retryable retries every fault except DefaultRetryable's
// exclusions. The wait ends early when the call's context is done.
func Retry(order, attempts int, backoff time.Duration, retryable func(error) bool) pipeline.Handler {
	if attempts < 1 {
		attempts = 1
	}
	if retryable == nil {
		retryable = DefaultRetryable
	}
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		wait := backoff
		var out pipeline.Outcome
		for attempt := 1; ; attempt++ {
			out = next(inv)
			if !out.Failed() || attempt == attempts || !retryable(out.Err) {
				return out
			}
			if wait > 0 {
				ctx := inv.Context()
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return out
				case <-timer.C:
				}
				wait *= 2
			}
		}
	})
}

// DefaultRetryable reports whether a fault is worth retrying. Missing
// implementations, target panics, rejected arguments and context errors are
// not.
func DefaultRetryable(err error) bool {
	var pe *pipeline.PanicError
	var ve *ValidationError
	switch {
	case err == nil:
		return false
	case errors.Is(err, pipeline.ErrNotImplemented),
		errors.Is(err, pipeline.ErrInvocationComplete),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &pe),
		errors.As(err, &ve):
		return false
	}
	return true
}
