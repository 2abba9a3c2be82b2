package handlers

import (
	"github.com/ppiankov/interpose/internal/ratelimit"
	"github.com/ppiankov/interpose/pipeline"
)

// Limit caps calls of one member per window.
type Limit = ratelimit.Limit

// Limits maps member names to limits; "*" applies to every other member.
type Limits = ratelimit.Config

// ErrRateLimited is matched by the fault of a rejected call.
var ErrRateLimited = ratelimit.ErrExceeded

// RateLimit rejects calls beyond the configured per-member limits without
// reaching the target. Counters are shared by every chain the returned
// handler is attached to.
func RateLimit(order int, limits Limits) pipeline.Handler {
	tracker := ratelimit.NewTracker(limits)
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		if err := tracker.Allow(inv.Member.Name); err != nil {
			return pipeline.Fault(err)
		}
		return next(inv)
	})
}
