package pipeline

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/ppiankov/interpose/member"
)

// Invocation is the mutable record of one intercepted call. It belongs to
// the call that created it and must not be retained after the call returns.
type Invocation struct {
	Target   any
	Member   *member.Descriptor
	Args     []any
	TypeArgs []reflect.Type

	idOnce sync.Once
	id     string
	done   atomic.Bool
}

// NewInvocation builds the record for a call of m on target.
func NewInvocation(target any, m *member.Descriptor, args []any) *Invocation {
	return &Invocation{Target: target, Member: m, Args: args}
}

// ID returns a unique identifier for the call, generated on first use.
func (inv *Invocation) ID() string {
	inv.idOnce.Do(func() { inv.id = uuid.NewString() })
	return inv.id
}

// Done reports whether the invocation has produced its outcome.
func (inv *Invocation) Done() bool {
	return inv.done.Load()
}

// Context returns the call's context argument when the member takes one as
// its first parameter, and context.Background otherwise.
func (inv *Invocation) Context() context.Context {
	if len(inv.Args) > 0 {
		if ctx, ok := inv.Args[0].(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

// SetContext replaces the context argument. It reports false when the
// member has no leading context parameter.
func (inv *Invocation) SetContext(ctx context.Context) bool {
	if inv.Member == nil || len(inv.Member.Params) == 0 || len(inv.Args) == 0 {
		return false
	}
	if inv.Member.Params[0].Type != contextType {
		return false
	}
	inv.Args[0] = ctx
	return true
}

// SwapContext is SetContext returning a function that puts the previous
// context argument back. Handlers that rewrite the context for the rest of
// the chain restore it before returning, so an outer handler that continues
// again starts from the caller's context. The restore is a no-op when the
// member has no leading context parameter.
func (inv *Invocation) SwapContext(ctx context.Context) (restore func()) {
	if len(inv.Args) == 0 {
		return func() {}
	}
	prev := inv.Args[0]
	if !inv.SetContext(ctx) {
		return func() {}
	}
	return func() { inv.Args[0] = prev }
}

// Clone returns a copy of the invocation with its own argument slice and the
// same ID. The copy is not complete even when inv is.
func (inv *Invocation) Clone() *Invocation {
	c := &Invocation{
		Target:   inv.Target,
		Member:   inv.Member,
		Args:     append([]any(nil), inv.Args...),
		TypeArgs: inv.TypeArgs,
	}
	id := inv.ID()
	c.idOnce.Do(func() { c.id = id })
	return c
}

// Arg returns argument i converted to T. Missing or nil arguments yield the
// zero value of T, as does a value of another type; use ArgOf where a
// mismatch must be detected.
func Arg[T any](inv *Invocation, i int) T {
	v, _ := ArgOf[T](inv, i)
	return v
}

// ArgOf returns argument i as T and whether it holds one. nil is accepted
// only when T is a pointer, interface, map, slice, func or chan type.
func ArgOf[T any](inv *Invocation, i int) (T, bool) {
	var zero T
	if i < 0 || i >= len(inv.Args) {
		return zero, false
	}
	if inv.Args[i] == nil {
		return zero, nillable(reflect.TypeFor[T]())
	}
	v, ok := inv.Args[i].(T)
	return v, ok
}

func nillable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return true
	}
	return false
}

var contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
