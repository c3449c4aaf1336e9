// Package abuse guards task mutations with per-scope rate limits and daily
// quotas backed by a shared counter store.
package abuse

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/questline/internal/platform/errors"
	"github.com/louisbranch/questline/internal/platform/timeouts"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
)

const (
	tracerName = "github.com/louisbranch/questline/internal/services/scoring/domain/abuse"

	dailyWindowName = "daily"
)

// Identity is the set of scopes a request is counted under. Blank fields are
// skipped.
type Identity struct {
	APIKey         string
	ClientIP       string
	ExternalUserID string
}

// Gate enforces rate limits before any scoring work runs.
type Gate struct {
	store        storage.CounterStore
	cfg          Config
	window       time.Duration
	loc          *time.Location
	clock        func() time.Time
	storeTimeout time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the time source used by EnforceTaskMutationLimits.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithStoreTimeout bounds each enforcement's counter store calls. Zero
// disables the bound.
func WithStoreTimeout(timeout time.Duration) Option {
	return func(g *Gate) {
		g.storeTimeout = timeout
	}
}

// NewGate creates a gate over store.
func NewGate(store storage.CounterStore, cfg Config, opts ...Option) (*Gate, error) {
	if store == nil {
		return nil, errors.New("counter store is required")
	}
	window, err := cfg.effectiveWindow()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.location()
	if err != nil {
		return nil, err
	}
	g := &Gate{
		store:        store,
		cfg:          cfg,
		window:       window,
		loc:          loc,
		clock:        time.Now,
		storeTimeout: timeouts.CounterStore,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// EnforceTaskMutationLimits enforces limits at the current time.
func (g *Gate) EnforceTaskMutationLimits(ctx context.Context, id Identity) error {
	return g.Enforce(ctx, id, g.clock())
}

// check is one (scope, window) pair to count.
type check struct {
	key   storage.CounterKey
	scope Scope
	limit int64
	count int64
}

// Enforce counts the request under every non-blank scope and window, then
// rejects it if any count exceeds its limit. Every pair is incremented before
// any is evaluated, so rejected requests still consume quota. A counter store
// failure rejects the request.
func (g *Gate) Enforce(ctx context.Context, id Identity, now time.Time) error {
	checks := g.plan(id, now)
	if len(checks) == 0 {
		return nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "abuse.Enforce",
		trace.WithAttributes(attribute.Int("checks", len(checks))),
	)
	defer span.End()

	if g.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.storeTimeout)
		defer cancel()
	}

	for i := range checks {
		count, err := g.store.IncrementCounter(ctx, checks[i].key)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "increment counter failed")
			return apperrors.Wrap(apperrors.CodeUnknown, fmt.Sprintf("increment %s counter", checks[i].scope), err)
		}
		checks[i].count = count
	}

	for _, c := range checks {
		if c.count > c.limit {
			err := &RateLimitError{
				Scope:      c.scope,
				Window:     c.key.WindowName,
				Limit:      c.limit,
				Count:      c.count,
				RetryAfter: c.key.WindowEnd.Sub(now),
			}
			span.SetAttributes(attribute.String("rejected_scope", string(c.scope)))
			span.SetStatus(codes.Error, "rate limit exceeded")
			return err
		}
	}
	return nil
}

func (g *Gate) plan(id Identity, now time.Time) []check {
	scopes := []struct {
		scope Scope
		value string
	}{
		{scope: ScopeAPIKey, value: hashAPIKey(id.APIKey)},
		{scope: ScopeIP, value: strings.TrimSpace(id.ClientIP)},
		{scope: ScopeExternalUser, value: strings.TrimSpace(id.ExternalUserID)},
	}

	windowStart, windowEnd := g.windowBounds(now)
	dayStart, dayEnd := g.dayBounds(now)
	windowName := fmt.Sprintf("window_%ds", int64(g.window/time.Second))

	checks := make([]check, 0, len(scopes)*2)
	for _, s := range scopes {
		if s.value == "" {
			continue
		}
		limit := g.cfg.Limit(s.scope)
		if g.cfg.WindowEnabled && limit.PerWindow > 0 {
			checks = append(checks, check{
				scope: s.scope,
				limit: limit.PerWindow,
				key: storage.CounterKey{
					ScopeType:   string(s.scope),
					ScopeValue:  s.value,
					WindowName:  windowName,
					WindowStart: windowStart,
					WindowEnd:   windowEnd,
				},
			})
		}
		if g.cfg.DailyEnabled && limit.PerDay > 0 {
			checks = append(checks, check{
				scope: s.scope,
				limit: limit.PerDay,
				key: storage.CounterKey{
					ScopeType:   string(s.scope),
					ScopeValue:  s.value,
					WindowName:  dailyWindowName,
					WindowStart: dayStart,
					WindowEnd:   dayEnd,
				},
			})
		}
	}
	return checks
}

// windowBounds floors now to the short window, aligned to the Unix epoch.
func (g *Gate) windowBounds(now time.Time) (time.Time, time.Time) {
	size := g.window.Nanoseconds()
	ns := now.UnixNano()
	floor := ns - ns%size
	if ns < 0 && ns%size != 0 {
		floor -= size
	}
	start := time.Unix(0, floor).UTC()
	return start, start.Add(g.window)
}

// dayBounds returns the calendar day containing now in the configured zone.
func (g *Gate) dayBounds(now time.Time) (time.Time, time.Time) {
	local := now.In(g.loc)
	y, m, d := local.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, g.loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func hashAPIKey(apiKey string) string {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}
