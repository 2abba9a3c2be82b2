// Package pipeline runs intercepted calls through an ordered chain of
// handlers.
//
// Each handler receives the invocation and a continuation. Calling the
// continuation runs the rest of the chain and, at its end, the real member
// implementation. A handler may change arguments before continuing, change
// the outcome afterwards, skip the continuation and answer by itself, or call
// it several times to retry.
//
//	p := pipeline.New()
//	p.Set(m.Index, []pipeline.Handler{
//		pipeline.Func(1, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
//			out := next(inv)
//			if out.Failed() {
//				log.Printf("%s failed: %v", inv.Member.Name, out.Err)
//			}
//			return out
//		}),
//	})
package pipeline

import (
	"sort"
	"sync"
)

// Handler is one unit of cross-cutting behavior. Lower Order runs first
// (outermost); equal orders keep registration order.
type Handler interface {
	Order() int
	Invoke(inv *Invocation, next Next) Outcome
}

// Next is the continuation handed to a handler. Each call runs the
// remainder of the chain and returns its outcome.
type Next func(inv *Invocation) Outcome

// HandlerFunc adapts a function to the Invoke half of Handler.
type HandlerFunc func(inv *Invocation, next Next) Outcome

type funcHandler struct {
	order int
	fn    HandlerFunc
}

func (h funcHandler) Order() int { return h.order }

func (h funcHandler) Invoke(inv *Invocation, next Next) Outcome { return h.fn(inv, next) }

// Func builds a Handler from a function and an order.
func Func(order int, fn HandlerFunc) Handler {
	return funcHandler{order: order, fn: fn}
}

// Pipeline holds the handler chains of one proxy instance, keyed by member
// index. Chains are replaced wholesale and never modified in place, so a
// call keeps a consistent chain even if Set runs concurrently.
type Pipeline struct {
	mu     sync.RWMutex
	chains map[int][]Handler
}

// New returns an empty pipeline. With no handlers every call goes straight
// to the terminal step.
func New() *Pipeline {
	return &Pipeline{chains: make(map[int][]Handler)}
}

// Set replaces the chain of one member. Handlers are stably sorted by Order;
// nil entries are dropped and an empty list clears the chain.
func (p *Pipeline) Set(index int, handlers []Handler) {
	chain := make([]Handler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			chain = append(chain, h)
		}
	}
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Order() < chain[j].Order()
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(chain) == 0 {
		delete(p.chains, index)
		return
	}
	p.chains[index] = chain
}

// Handlers returns a copy of the chain for a member.
func (p *Pipeline) Handlers(index int) []Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Handler(nil), p.chains[index]...)
}

// Len returns the number of members with a non-empty chain.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.chains)
}

func (p *Pipeline) chain(index int) []Handler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.chains[index]
}

// Invoke runs inv through the member's chain, ending in terminal. Panics
// raised by terminal come back as a *PanicError fault; handler panics are
// not recovered. Once Invoke returns, the invocation is complete and any
// retained continuation fails with ErrInvocationComplete.
func (p *Pipeline) Invoke(inv *Invocation, terminal Next) Outcome {
	var chain []Handler
	if inv.Member != nil {
		chain = p.chain(inv.Member.Index)
	}
	out := run(chain, 0, inv, capture(terminal))
	inv.done.Store(true)
	return out
}

func run(chain []Handler, i int, inv *Invocation, terminal Next) Outcome {
	if i == len(chain) {
		return terminal(inv)
	}
	next := func(cur *Invocation) Outcome {
		if cur == nil {
			cur = inv
		}
		if cur.Done() {
			return Fault(ErrInvocationComplete)
		}
		return run(chain, i+1, cur, terminal)
	}
	return chain[i].Invoke(inv, next)
}

// capture converts a panic in the terminal step into a fault outcome.
func capture(terminal Next) Next {
	return func(inv *Invocation) (out Outcome) {
		defer func() {
			if r := recover(); r != nil {
				out = Fault(newPanicError(r))
			}
		}()
		return terminal(inv)
	}
}

// Unimplemented is the terminal step of forwarded interface members: it
// always yields a *NotImplementedError.
func Unimplemented(inv *Invocation) Outcome {
	return Fault(&NotImplementedError{Member: inv.Member})
}
