package handlers

import (
	"math"
	"time"

	"github.com/ppiankov/interpose/pipeline"
)

// Logging logs every call at debug level and every fault at error level.
func Logging(logger Logger, order int) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		start := time.Now()
		out := next(inv)
		args := []any{
			logAttrMember, memberName(inv),
			logAttrCallID, inv.ID(),
			logAttrDuration, toMilliseconds(time.Since(start)),
		}
		if out.Failed() {
			args = append(args, logAttrError, out.Err.Error())
			if cl, ok := logger.(ContextualLogger); ok {
				cl.ErrorContext(inv.Context(), logMsgCallFailed+inv.Member.Name, args...)
			} else {
				logger.Error(logMsgCallFailed+inv.Member.Name, args...)
			}
			return out
		}
		if cl, ok := logger.(ContextualLogger); ok {
			cl.DebugContext(inv.Context(), logMsgCall+inv.Member.Name, args...)
		} else {
			logger.Debug(logMsgCall+inv.Member.Name, args...)
		}
		return out
	})
}

// toMilliseconds converts a duration to milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// memberName renders "Type.Member" for logs and metric labels.
func memberName(inv *pipeline.Invocation) string {
	return typeName(inv) + "." + inv.Member.Name
}
