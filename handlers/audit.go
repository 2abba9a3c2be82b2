package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/interpose/internal/audit"
	"github.com/ppiankov/interpose/pipeline"
)

// AuditLog is a hash-chained JSONL log of calls.
type AuditLog = audit.Log

// AuditEntry is one recorded call.
type AuditEntry = audit.Entry

// AuditRecorder receives audit entries. *AuditLog implements it.
type AuditRecorder interface {
	Record(entry AuditEntry) error
}

// OpenAuditLog opens or creates an audit log, continuing an existing chain.
func OpenAuditLog(path string) (*AuditLog, error) {
	return audit.Open(path)
}

// Audit records one entry per call after it completes. A call that
// succeeded but could not be recorded fails with the recording error.
func Audit(order int, rec AuditRecorder) pipeline.Handler {
	return pipeline.Func(order, func(inv *pipeline.Invocation, next pipeline.Next) pipeline.Outcome {
		start := time.Now()
		out := next(inv)

		entry := AuditEntry{
			InvocationID: inv.ID(),
			Type:         typeName(inv),
			Member:       inv.Member.Name,
			Kind:         inv.Member.Kind.String(),
			Outcome:      audit.OutcomeOK,
			DurationUS:   time.Since(start).Microseconds(),
		}
		var pe *pipeline.PanicError
		switch {
		case errors.As(out.Err, &pe):
			entry.Outcome = audit.OutcomePanic
			entry.Error = fmt.Sprint(pe.Value)
		case out.Failed():
			entry.Outcome = audit.OutcomeFault
			entry.Error = out.Err.Error()
		}

		if err := rec.Record(entry); err != nil && !out.Failed() {
			return out.WithErr(err)
		}
		return out
	})
}
