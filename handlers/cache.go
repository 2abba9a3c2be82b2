package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/interpose/pipeline"
)

// KeyFunc derives a cache key from a call. Returning false bypasses the
// cache for that call.
type KeyFunc func(inv *pipeline.Invocation) (string, bool)

// CacheHandler memoizes successful outcomes per member and key. Faults are
// never cached.
type CacheHandler struct {
	order int
	key   KeyFunc

	mu      sync.RWMutex
	entries map[cacheKey]pipeline.Outcome
	hits    int
	misses  int
}

type cacheKey struct {
	member int
	key    string
}

// Cache returns a memoizing handler. A nil key function keys calls by
// their formatted arguments.
func Cache(order int, key KeyFunc) *CacheHandler {
	if key == nil {
		key = ArgsKey
	}
	return &CacheHandler{order: order, key: key, entries: make(map[cacheKey]pipeline.Outcome)}
}

// ArgsKey keys a call by its formatted arguments. A leading context
// argument is left out: it differs on every call and carries no input.
func ArgsKey(inv *pipeline.Invocation) (string, bool) {
	args := inv.Args
	if len(args) > 0 {
		if _, ok := args[0].(context.Context); ok {
			args = args[1:]
		}
	}
	return fmt.Sprintf("%#v", args), true
}

func (c *CacheHandler) Order() int { return c.order }

func (c *CacheHandler) Invoke(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
	k, ok := c.key(inv)
	if !ok {
		return next(inv)
	}
	ck := cacheKey{member: inv.Member.Index, key: k}

	c.mu.RLock()
	out, hit := c.entries[ck]
	c.mu.RUnlock()
	if hit {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		return pipeline.Return(append([]any(nil), out.Results...)...)
	}

	out = next(inv)
	c.mu.Lock()
	c.misses++
	if !out.Failed() {
		c.entries[ck] = pipeline.Return(append([]any(nil), out.Results...)...)
	}
	c.mu.Unlock()
	return out
}

// Invalidate drops every cached outcome.
func (c *CacheHandler) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]pipeline.Outcome)
}

// Stats returns the hit and miss counts.
func (c *CacheHandler) Stats() (hits, misses int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

// Len returns the number of cached outcomes.
func (c *CacheHandler) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
