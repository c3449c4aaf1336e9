// Package storage defines persistence contracts for the scoring service.
//
// The scoring core only reads history and increments counters; the writers
// here exist so the service can persist the awards it hands out. Implementations
// live in subpackages: sqlite (default durable store), redis (shared counters
// across instances) and memory (single process and tests).
//
// Common error types:
//   - ErrNotFound: requested record is missing
package storage

import (
	"context"
	"time"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// CounterKey identifies one rate-limit counter row.
type CounterKey struct {
	ScopeType  string
	ScopeValue string
	WindowName string
	// WindowStart is the deterministic floor of "now" for the window, so
	// concurrent callers agree on the same key.
	WindowStart time.Time
	// WindowEnd is when the counter stops mattering. Stores may use it to
	// expire or prune rows.
	WindowEnd time.Time
}

// CounterStore performs durable atomic increment-and-get.
//
// Implementations must serialize concurrent increments per key so N
// concurrent callers observe N distinct, gap-free counts. With more than one
// service instance, the store must be shared between them.
type CounterStore interface {
	IncrementCounter(ctx context.Context, key CounterKey) (int64, error)
}

// CounterPruner removes counters whose window ended before the cutoff.
type CounterPruner interface {
	PruneCounters(ctx context.Context, before time.Time) (int64, error)
}

// CompletionRecord is one awarded task completion.
type CompletionRecord struct {
	ID             string
	GameID         string
	ExternalTaskID string
	ExternalUserID string
	Points         int
	CaseLabel      string
	// Breakdown holds per-dimension points keyed by dimension name. It is
	// nil for strategies that do not score dimensionally.
	Breakdown map[string]int
	CreatedAt time.Time
}

// RecordReader answers read-only questions about past completions. Results
// are ordered by CreatedAt ascending.
type RecordReader interface {
	ListGameRecords(ctx context.Context, gameID string) ([]CompletionRecord, error)
	ListTaskRecords(ctx context.Context, gameID, externalTaskID string) ([]CompletionRecord, error)
	ListUserRecords(ctx context.Context, gameID, externalUserID string) ([]CompletionRecord, error)
}

// RecordWriter appends awarded completions.
type RecordWriter interface {
	AppendCompletionRecord(ctx context.Context, record CompletionRecord) error
}

// RedemptionKey identifies one redemption of a committed preview.
type RedemptionKey struct {
	GameID         string
	ExternalTaskID string
	ExternalUserID string
	Commitment     string
}

// RedemptionStore tracks which committed previews were already redeemed.
type RedemptionStore interface {
	// ClaimRedemption records key if absent and reports whether it was
	// already present. It must be atomic per key.
	ClaimRedemption(ctx context.Context, key RedemptionKey, at time.Time) (alreadyClaimed bool, err error)
	// Redeemed reports whether key was claimed, without claiming it.
	Redeemed(ctx context.Context, key RedemptionKey) (bool, error)
	// ReleaseRedemption removes a claim whose award could not be stored.
	ReleaseRedemption(ctx context.Context, key RedemptionKey) error
}

// GameRecord configures which strategy scores a game.
type GameRecord struct {
	ID         string
	StrategyID string
	Variables  map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaskRecord is one task registered in a game.
type TaskRecord struct {
	GameID         string
	ExternalTaskID string
	Variables      map[string]string
	CreatedAt      time.Time
}

// CatalogStore persists games and their tasks.
type CatalogStore interface {
	PutGame(ctx context.Context, game GameRecord) error
	GetGame(ctx context.Context, gameID string) (GameRecord, error)
	PutTask(ctx context.Context, task TaskRecord) error
	ListTasks(ctx context.Context, gameID string) ([]TaskRecord, error)
}

// AuditEvent is one durable operational audit row.
type AuditEvent struct {
	Timestamp      time.Time
	EventName      string
	Severity       string
	GameID         string
	ExternalTaskID string
	ExternalUserID string
	RequestID      string
	TraceID        string
	SpanID         string
	Attributes     map[string]any
}

// AuditEventStore appends audit events.
type AuditEventStore interface {
	AppendAuditEvent(ctx context.Context, evt AuditEvent) error
}
