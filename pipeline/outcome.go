package pipeline

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/ppiankov/interpose/member"
)

// ErrNotImplemented is matched (errors.Is) by the fault produced when a
// forwarded interface member reaches the end of its pipeline.
var ErrNotImplemented = errors.New("pipeline: member not implemented")

// ErrInvocationComplete is returned by a continuation that is invoked after
// its invocation has already produced an outcome.
var ErrInvocationComplete = errors.New("pipeline: invocation already complete")

// Outcome is the result of one trip through a pipeline: either the
// member's return values or a fault.
type Outcome struct {
	Results []any // return values, excluding a trailing error
	Err     error
}

// Return builds a successful outcome.
func Return(values ...any) Outcome {
	return Outcome{Results: values}
}

// Fault builds a failed outcome.
func Fault(err error) Outcome {
	return Outcome{Err: err}
}

// WithErr returns a copy of the outcome carrying err.
func (o Outcome) WithErr(err error) Outcome {
	o.Err = err
	return o
}

// Failed reports whether the outcome carries a fault.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Value returns the first return value, or nil.
func (o Outcome) Value() any {
	if len(o.Results) == 0 {
		return nil
	}
	return o.Results[0]
}

// Result returns return value i converted to T. Missing or nil values yield
// the zero value of T.
func Result[T any](o Outcome, i int) T {
	var zero T
	if i < 0 || i >= len(o.Results) || o.Results[i] == nil {
		return zero
	}
	v, ok := o.Results[i].(T)
	if !ok {
		return zero
	}
	return v
}

// NotImplementedError is the designed outcome of calling an additional
// interface member that no handler answered.
type NotImplementedError struct {
	Member *member.Descriptor
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("pipeline: %s.%s has no implementation; a handler must provide one",
		e.Member.DeclaringType, e.Member.Name)
}

func (e *NotImplementedError) Is(target error) bool {
	return target == ErrNotImplemented
}

// PanicError carries a panic raised by the target implementation so it can
// travel through the pipeline as an ordinary outcome.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("pipeline: target panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

func newPanicError(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}
