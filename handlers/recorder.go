package handlers

import (
	"sync"

	"github.com/ppiankov/interpose/pipeline"
)

// Recorder collects "<name>-before" and "<name>-after" events from the
// handlers it creates, in the order they happen.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Handler returns a pass-through handler that records around the rest of
// the chain.
func (r *Recorder) Handler(name string, order int) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		r.Add(name + "-before")
		out := next(inv)
		r.Add(name + "-after")
		return out
	})
}

// Add appends an event.
func (r *Recorder) Add(event string) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// Reset discards recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
