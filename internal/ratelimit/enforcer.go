package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrExceeded is matched by every *ExceededError.
var ErrExceeded = errors.New("ratelimit: limit exceeded")

// ExceededError reports a rejected call.
type ExceededError struct {
	Member  string
	Current int
	Limit   int
	Window  time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("ratelimit: %s exceeded %d/%d calls in %s window",
		e.Member, e.Current, e.Limit, e.Window)
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrExceeded
}

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Current  int
	Limit    int
	Reason   string
}

// Check compares the current count against the limit.
func Check(count int, limit *Limit) CheckResult {
	if !limit.Enabled() {
		return CheckResult{}
	}
	if count >= limit.MaxRequests {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				count, limit.MaxRequests, limit.Window),
		}
	}
	return CheckResult{}
}

// Allow admits one call of member, returning an *ExceededError when its
// limit is used up. Members without a limit are always admitted. The
// counter only grows for admitted calls.
func (t *Tracker) Allow(member string) error {
	return t.AllowAt(member, t.now())
}

// AllowAt is Allow with an explicit clock reading.
func (t *Tracker) AllowAt(member string, now time.Time) error {
	limit := t.cfg.For(member)
	if !limit.Enabled() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.Snapshot(member, limit.Window, now)
	result := Check(count, limit)
	if result.Exceeded {
		return &ExceededError{Member: member, Current: result.Current, Limit: result.Limit, Window: limit.Window}
	}
	t.Increment(member)
	return nil
}
