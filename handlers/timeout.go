package handlers

import (
	"context"
	"time"

	"github.com/ppiankov/interpose/pipeline"
)

// Timeout bounds a call to d. Members taking a leading context.Context get
// a derived context carrying the deadline. When the rest of the chain has
// not finished by the deadline the call fails with
// context.DeadlineExceeded; the abandoned work keeps running until it
// returns. The caller's invocation is left unchanged.
func Timeout(order int, d time.Duration) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		if d <= 0 {
			return next(inv)
		}
		ctx, cancel := context.WithTimeout(inv.Context(), d)
		defer cancel()

		// The rest of the chain runs on a copy: work abandoned at the
		// deadline must not touch the caller's arguments, and the caller's
		// context argument stays usable for another attempt.
		call := inv.Clone()
		call.SetContext(ctx)

		done := make(chan pipeline.Outcome, 1)
		go func() { done <- next(call) }()

		select {
		case out := <-done:
			return out
		case <-ctx.Done():
			return pipeline.Fault(ctx.Err())
		}
	})
}
