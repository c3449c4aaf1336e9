package server

import (
	"context"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	platformgrpc "github.com/louisbranch/questline/internal/platform/grpc"
	grpcmeta "github.com/louisbranch/questline/internal/services/scoring/api/grpc/metadata"
	scoringservice "github.com/louisbranch/questline/internal/services/scoring/api/grpc/scoring"
)

func startServer(t *testing.T, cfg Config) *scoringservice.Client {
	t.Helper()
	srv, err := NewWithAddr(context.Background(), "127.0.0.1:0", cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- srv.Serve(runCtx)
	}()
	t.Cleanup(func() {
		runCancel()
		select {
		case serveErr := <-serveDone:
			if serveErr != nil {
				t.Fatalf("serve: %v", serveErr)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timeout waiting for server shutdown")
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := platformgrpc.DialReady(ctx, srv.Addr(), scoringservice.ServiceName, 5*time.Second, t.Logf, platformgrpc.ClientOptions()...)
	if err != nil {
		t.Fatalf("dial scoring server: %v", err)
	}
	t.Cleanup(func() {
		if closeErr := conn.Close(); closeErr != nil {
			t.Fatalf("close gRPC connection: %v", closeErr)
		}
	})
	return scoringservice.NewClient(conn)
}

func mustStruct(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()
	out, err := structpb.NewStruct(fields)
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	return out
}

func TestServer_SimulateAndCompleteRoundTrip(t *testing.T) {
	t.Setenv("QUESTLINE_SCORING_COMMITMENT_KEY", "test-secret")
	client := startServer(t, Config{DBPath: t.TempDir() + "/scoring.db"})
	ctx := context.Background()

	if _, err := client.RegisterGame(ctx, mustStruct(t, map[string]any{
		"game_id":     "game-1",
		"strategy_id": "dimensional",
	})); err != nil {
		t.Fatalf("register game: %v", err)
	}
	for _, externalTaskID := range []string{"park-1", "park-2", "museum-1"} {
		if _, err := client.RegisterTask(ctx, mustStruct(t, map[string]any{
			"game_id":          "game-1",
			"external_task_id": externalTaskID,
		})); err != nil {
			t.Fatalf("register task: %v", err)
		}
	}

	request := map[string]any{
		"game_id":          "game-1",
		"external_task_id": "park-1",
		"external_user_id": "user-1",
	}
	var header metadata.MD
	preview, err := client.Simulate(ctx, mustStruct(t, request), grpc.Header(&header))
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if grpcmeta.FirstMetadataValue(header, grpcmeta.RequestIDHeader) == "" {
		t.Fatal("expected request id response header")
	}
	snapshots := preview.GetFields()["snapshots"].GetListValue().AsSlice()
	if len(snapshots) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snapshots))
	}

	request["payload"] = map[string]any{
		"snapshots":  snapshots,
		"commitment": preview.GetFields()["commitment"].GetStringValue(),
	}
	resp, err := client.CompleteTask(ctx, mustStruct(t, request))
	if err != nil {
		t.Fatalf("complete task: %v", err)
	}
	if got := resp.GetFields()["case"].GetStringValue(); got != "reused" {
		t.Fatalf("case = %q, want reused", got)
	}
	if resp.GetFields()["points"].GetNumberValue() < 0 {
		t.Fatalf("unexpected points %v", resp.GetFields()["points"].GetNumberValue())
	}

	list, err := client.ListStrategies(ctx, &structpb.Struct{})
	if err != nil {
		t.Fatalf("list strategies: %v", err)
	}
	if got := len(list.GetFields()["strategies"].GetListValue().GetValues()); got != 4 {
		t.Fatalf("expected 4 strategies, got %d", got)
	}
}

func TestServer_RateLimitsTaskMutations(t *testing.T) {
	t.Setenv("QUESTLINE_SCORING_COMMITMENT_KEY", "test-secret")
	t.Setenv("QUESTLINE_RATE_LIMIT_USER_PER_WINDOW", "1")
	t.Setenv("QUESTLINE_RATE_LIMIT_WINDOW", "1h")
	client := startServer(t, Config{DBPath: t.TempDir() + "/scoring.db", CounterBackend: CounterBackendMemory})
	ctx := metadata.AppendToOutgoingContext(context.Background(), grpcmeta.APIKeyHeader, "key-1")

	if _, err := client.RegisterGame(ctx, mustStruct(t, map[string]any{
		"game_id":     "game-1",
		"strategy_id": "constant",
	})); err != nil {
		t.Fatalf("register game: %v", err)
	}
	request := mustStruct(t, map[string]any{
		"game_id":          "game-1",
		"external_task_id": "park-1",
		"external_user_id": "user-1",
	})
	if _, err := client.CompleteTask(ctx, request); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	_, err := client.CompleteTask(ctx, request)
	if status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %v, want ResourceExhausted", status.Code(err))
	}

	// Reads are not counted.
	if _, err := client.ListStrategies(ctx, &structpb.Struct{}); err != nil {
		t.Fatalf("list strategies after rejection: %v", err)
	}
}

func TestNewWithAddrFailsWithoutCommitmentSecret(t *testing.T) {
	t.Setenv("QUESTLINE_SCORING_COMMITMENT_KEY", "")
	t.Setenv("QUESTLINE_SCORING_COMMITMENT_KEYS", "")

	_, err := NewWithAddr(context.Background(), "127.0.0.1:0", Config{DBPath: t.TempDir() + "/scoring.db"})
	if err == nil {
		t.Fatal("expected missing secret error")
	}
}

func TestNewWithAddrRejectsUnknownCounterBackend(t *testing.T) {
	t.Setenv("QUESTLINE_SCORING_COMMITMENT_KEY", "test-secret")

	_, err := NewWithAddr(context.Background(), "127.0.0.1:0", Config{DBPath: t.TempDir() + "/scoring.db", CounterBackend: "etcd"})
	if err == nil || !strings.Contains(err.Error(), "unknown counter backend") {
		t.Fatalf("expected unknown backend error, got %v", err)
	}
}

func TestServeRejectsNilServer(t *testing.T) {
	var s *Server
	if err := s.Serve(context.Background()); err == nil {
		t.Fatal("expected nil server error")
	}
	if s.Addr() != "" {
		t.Fatal("expected empty address for nil server")
	}
}
