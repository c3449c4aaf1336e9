package interceptors

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcmeta "github.com/louisbranch/questline/internal/services/scoring/api/grpc/metadata"
	"github.com/louisbranch/questline/internal/services/scoring/domain/abuse"
	"github.com/louisbranch/questline/internal/services/scoring/observability/audit"
	"github.com/louisbranch/questline/internal/services/scoring/storage/memory"
)

const (
	completeMethod = "/questline.scoring.v1.ScoringService/CompleteTask"
	simulateMethod = "/questline.scoring.v1.ScoringService/Simulate"
)

type fakeEnforcer struct {
	calls []abuse.Identity
	err   error
}

func (f *fakeEnforcer) EnforceTaskMutationLimits(_ context.Context, id abuse.Identity) error {
	f.calls = append(f.calls, id)
	return f.err
}

func newRequest(t *testing.T) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{
		"game_id":          "game-1",
		"external_task_id": "park-1",
		"external_user_id": " user-1 ",
	})
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return req
}

func incomingContext() context.Context {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(
		grpcmeta.APIKeyHeader, "key-1",
		grpcmeta.ForwardedForHeader, "203.0.113.7, 10.0.0.1",
	))
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.0.0.9"), Port: 4000}})
	return grpcmeta.WithRequestID(ctx, "req-1")
}

func okHandler(called *bool) grpc.UnaryHandler {
	return func(ctx context.Context, req any) (any, error) {
		*called = true
		return "ok", nil
	}
}

func TestRateLimitInterceptorPassesUnguardedMethods(t *testing.T) {
	gate := &fakeEnforcer{err: errors.New("should not be called")}
	interceptor := RateLimitInterceptor(gate, nil, completeMethod)

	called := false
	resp, err := interceptor(incomingContext(), newRequest(t), &grpc.UnaryServerInfo{FullMethod: simulateMethod}, okHandler(&called))
	if err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if !called || resp != "ok" {
		t.Fatal("expected handler to run")
	}
	if len(gate.calls) != 0 {
		t.Fatalf("expected no enforcement, got %d calls", len(gate.calls))
	}
}

func TestRateLimitInterceptorBuildsIdentity(t *testing.T) {
	gate := &fakeEnforcer{}
	interceptor := RateLimitInterceptor(gate, nil, completeMethod)

	called := false
	if _, err := interceptor(incomingContext(), newRequest(t), &grpc.UnaryServerInfo{FullMethod: completeMethod}, okHandler(&called)); err != nil {
		t.Fatalf("intercept: %v", err)
	}
	if !called {
		t.Fatal("expected handler to run")
	}
	if len(gate.calls) != 1 {
		t.Fatalf("expected one enforcement, got %d", len(gate.calls))
	}
	want := abuse.Identity{APIKey: "key-1", ClientIP: "203.0.113.7", ExternalUserID: "user-1"}
	if gate.calls[0] != want {
		t.Fatalf("identity = %+v, want %+v", gate.calls[0], want)
	}
}

func TestRateLimitInterceptorRejectsAndAudits(t *testing.T) {
	store := memory.New()
	gate := &fakeEnforcer{err: &abuse.RateLimitError{
		Scope:      abuse.ScopeIP,
		Window:     "window_60s",
		Limit:      1,
		Count:      2,
		RetryAfter: 30 * time.Second,
	}}
	interceptor := RateLimitInterceptor(gate, audit.NewEmitter(store), completeMethod)

	called := false
	_, err := interceptor(incomingContext(), newRequest(t), &grpc.UnaryServerInfo{FullMethod: completeMethod}, okHandler(&called))
	if called {
		t.Fatal("expected handler to be skipped")
	}
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %v, want ResourceExhausted", status.Code(err))
	}

	events := store.AuditEvents()
	if len(events) != 1 {
		t.Fatalf("expected one audit event, got %d", len(events))
	}
	evt := events[0]
	if evt.EventName != audit.EventRateLimitExceeded {
		t.Fatalf("event = %q", evt.EventName)
	}
	if evt.GameID != "game-1" || evt.ExternalUserID != "user-1" || evt.RequestID != "req-1" {
		t.Fatalf("unexpected event scope: %+v", evt)
	}
	if evt.Attributes["scope"] != "ip" || evt.Attributes["window"] != "window_60s" {
		t.Fatalf("unexpected attributes: %+v", evt.Attributes)
	}
}

func TestRateLimitInterceptorFailsClosedOnStoreError(t *testing.T) {
	store := memory.New()
	gate := &fakeEnforcer{err: errors.New("counter store unavailable")}
	interceptor := RateLimitInterceptor(gate, audit.NewEmitter(store), completeMethod)

	called := false
	_, err := interceptor(incomingContext(), newRequest(t), &grpc.UnaryServerInfo{FullMethod: completeMethod}, okHandler(&called))
	if called {
		t.Fatal("expected handler to be skipped")
	}
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
	events := store.AuditEvents()
	if len(events) != 1 || events[0].EventName != audit.EventRateLimitStoreError {
		t.Fatalf("expected store error audit event, got %+v", events)
	}
}

func TestRateLimitInterceptorWithRealGate(t *testing.T) {
	cfg := abuse.DefaultConfig()
	cfg.UserPerWindow = 2
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	gate, err := abuse.NewGate(memory.New(), cfg, abuse.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new gate: %v", err)
	}
	interceptor := RateLimitInterceptor(gate, nil, completeMethod)

	for i := 0; i < 2; i++ {
		called := false
		if _, err := interceptor(incomingContext(), newRequest(t), &grpc.UnaryServerInfo{FullMethod: completeMethod}, okHandler(&called)); err != nil {
			t.Fatalf("call %d: %v", i+1, err)
		}
	}
	called := false
	_, err = interceptor(incomingContext(), newRequest(t), &grpc.UnaryServerInfo{FullMethod: completeMethod}, okHandler(&called))
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("third call code = %v, want ResourceExhausted", status.Code(err))
	}
}

func TestRequestFieldIgnoresOtherMessages(t *testing.T) {
	if requestField("not a struct", "external_user_id") != "" {
		t.Fatal("expected empty field for non-struct request")
	}
	if requestField((*structpb.Struct)(nil), "external_user_id") != "" {
		t.Fatal("expected empty field for nil struct")
	}
}
