// Package ratelimit counts calls per member in fixed windows.
package ratelimit

import (
	"sync"
	"time"
)

// window is the call count of one member in its current window.
type window struct {
	start time.Time
	count int
}

// Tracker holds per-member counters. Allow and AllowAt are safe for
// concurrent use; Snapshot and Increment expect the caller to serialize.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewTracker returns a tracker enforcing cfg.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, now: time.Now, windows: make(map[string]*window)}
}

// Snapshot returns the current count for member. An expired window is
// reset first.
func (t *Tracker) Snapshot(member string, span time.Duration, now time.Time) int {
	w := t.windows[member]
	if w == nil {
		w = &window{start: now}
		t.windows[member] = w
	}
	if now.Sub(w.start) >= span {
		w.start = now
		w.count = 0
	}
	return w.count
}

// Increment records one call of member.
func (t *Tracker) Increment(member string) {
	if w := t.windows[member]; w != nil {
		w.count++
	}
}
