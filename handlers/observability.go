// Package handlers provides ready-made pipeline handlers for common
// cross-cutting concerns. Every constructor takes the handler's order
// first; lower orders run outermost.
//
//	inst.Handle("Checkout",
//		handlers.Logging(slog.Default(), 0),
//		handlers.Retry(10, 3, 50*time.Millisecond, nil),
//		handlers.Timeout(20, 2*time.Second),
//	)
package handlers

import (
	"context"
	"time"
)

// Logger is the structured logger the handlers write to. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger is used instead of Logger when the logger also
// implements it, so trace correlation carried in the call's context reaches
// the log record.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector receives call metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// SpanContext is an active tracing span.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector starts and finishes spans around calls.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

const (
	logMsgCall       = "interpose: call "
	logMsgCallFailed = "interpose: call failed "
	logAttrMember    = "member"
	logAttrCallID    = "invocation_id"
	logAttrDuration  = "duration_ms"
	logAttrError     = "error"

	metricCallDuration = "interpose_call_duration_seconds"
	metricCalls        = "interpose_calls_total"
	metricFaults       = "interpose_faults_total"

	labelMember = "member"
	labelType   = "type"
	labelStatus = "status"

	statusOK    = "ok"
	statusError = "error"
)
