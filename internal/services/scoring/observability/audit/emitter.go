// Package audit records durable operational events for scoring outcomes and
// abuse-gate rejections.
package audit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

// Severity describes the audit severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event names.
const (
	EventTaskCompleted       = "scoring.task_completed"
	EventCommitmentRejected  = "scoring.commitment_rejected"
	EventPreviewRegenerated  = "scoring.preview_regenerated"
	EventPreviewReplayed     = "scoring.preview_replayed"
	EventRateLimitExceeded   = "scoring.rate_limit_exceeded"
	EventRateLimitStoreError = "scoring.rate_limit_store_error"
)

// Emitter records operational audit events.
type Emitter struct {
	store storage.AuditEventStore
	clock func() time.Time
}

// NewEmitter creates a new audit event emitter.
func NewEmitter(store storage.AuditEventStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records an audit event, filling the timestamp and trace ids from ctx
// when unset. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.AuditEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	if evt.TraceID == "" {
		if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
			evt.TraceID = sc.TraceID().String()
			evt.SpanID = sc.SpanID().String()
		}
	}
	if evt.Severity == "" {
		evt.Severity = string(SeverityInfo)
	}
	return e.store.AppendAuditEvent(ctx, evt)
}
