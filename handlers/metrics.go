package handlers

import (
	"fmt"
	"reflect"
	"time"

	"github.com/ppiankov/interpose/pipeline"
)

// Metrics records the duration and outcome of every call.
func Metrics(collector MetricsCollector, order int) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		start := time.Now()
		out := next(inv)
		labels := map[string]string{
			labelType:   typeName(inv),
			labelMember: inv.Member.Name,
			labelStatus: statusOK,
		}
		if out.Failed() {
			labels[labelStatus] = statusError
			collector.IncrementCounter(metricFaults, labels)
		}
		collector.IncrementCounter(metricCalls, labels)
		collector.RecordDuration(metricCallDuration, time.Since(start), labels)
		return out
	})
}

// Tracing wraps every call in a span. When the member takes a context, the
// span's context replaces it for the rest of the chain and the caller's
// context is put back afterwards.
func Tracing(tracer TracingCollector, order int) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		attrs := map[string]string{
			labelType:     typeName(inv),
			labelMember:   inv.Member.Name,
			logAttrCallID: inv.ID(),
		}
		ctx, span := tracer.StartSpan(inv.Context(), memberName(inv), attrs)
		restore := inv.SwapContext(ctx)
		out := next(inv)
		restore()

		status := statusOK
		var finish map[string]string
		if out.Failed() {
			status = statusError
			span.AddAttribute(logAttrError, out.Err.Error())
			finish = map[string]string{"error_type": fmt.Sprintf("%T", out.Err)}
		}
		span.SetStatus(status)
		tracer.FinishSpan(span, status, finish)
		return out
	})
}

// typeName names the intercepted type: the target's type when there is
// one, the declaring type otherwise.
func typeName(inv *pipeline.Invocation) string {
	if inv.Target != nil {
		t := reflect.TypeOf(inv.Target)
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		return t.String()
	}
	if inv.Member.DeclaringType != nil {
		return inv.Member.DeclaringType.String()
	}
	return "?"
}
