package handlers

import (
	"fmt"

	"github.com/ppiankov/interpose/pipeline"
)

// ValidationError is the fault returned when a Validate check rejects a
// call's arguments.
type ValidationError struct {
	Member string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate: %s: %v", e.Member, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Validate runs check before the rest of the chain and fails the call
// without reaching the target when it returns an error.
func Validate(order int, check func(inv *pipeline.Invocation) error) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		if err := check(inv); err != nil {
			return pipeline.Fault(&ValidationError{Member: inv.Member.Name, Err: err})
		}
		return next(inv)
	})
}
