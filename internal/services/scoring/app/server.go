// Package server wires the scoring runtime and gRPC lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/questline/internal/platform/timeouts"
	"github.com/louisbranch/questline/internal/services/scoring/api/grpc/interceptors"
	grpcmeta "github.com/louisbranch/questline/internal/services/scoring/api/grpc/metadata"
	scoringservice "github.com/louisbranch/questline/internal/services/scoring/api/grpc/scoring"
	"github.com/louisbranch/questline/internal/services/scoring/domain/abuse"
	"github.com/louisbranch/questline/internal/services/scoring/domain/commitment"
	scoringdomain "github.com/louisbranch/questline/internal/services/scoring/domain/scoring"
	"github.com/louisbranch/questline/internal/services/scoring/domain/simulation"
	"github.com/louisbranch/questline/internal/services/scoring/domain/strategy"
	"github.com/louisbranch/questline/internal/services/scoring/observability/audit"
	"github.com/louisbranch/questline/internal/services/scoring/storage"
	"github.com/louisbranch/questline/internal/services/scoring/storage/memory"
	scoringredis "github.com/louisbranch/questline/internal/services/scoring/storage/redis"
	scoringsqlite "github.com/louisbranch/questline/internal/services/scoring/storage/sqlite"
)

// Counter backends.
const (
	CounterBackendSQLite = "sqlite"
	CounterBackendRedis  = "redis"
	CounterBackendMemory = "memory"
)

const defaultPruneInterval = 10 * time.Minute

// Config configures the scoring runtime.
type Config struct {
	DBPath         string
	CounterBackend string
	// PruneInterval sets how often expired counters are removed. Zero uses
	// the default; negative disables pruning.
	PruneInterval time.Duration
}

// counterBackend is the store the abuse gate and the redemption ledger share.
type counterBackend interface {
	storage.CounterStore
	storage.RedemptionStore
}

// Server hosts the scoring gRPC API and storage lifecycle.
type Server struct {
	listener      net.Listener
	grpcServer    *grpc.Server
	health        *health.Server
	store         *scoringsqlite.Store
	redis         *scoringredis.Store
	counters      counterBackend
	pruneInterval time.Duration
}

// NewWithAddr creates a configured scoring server for the provided address.
// It fails when no commitment secret is configured.
func NewWithAddr(ctx context.Context, addr string, cfg Config) (*Server, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	keyring, err := commitment.KeyringFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load commitment keyring: %w", err)
	}
	limits, err := abuse.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load rate limit config: %w", err)
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := &Server{listener: listener, pruneInterval: cfg.PruneInterval}
	if srv.pruneInterval == 0 {
		srv.pruneInterval = defaultPruneInterval
	}

	if err := srv.build(ctx, cfg, keyring, limits); err != nil {
		srv.Close()
		return nil, err
	}
	return srv, nil
}

func (s *Server) build(ctx context.Context, cfg Config, keyring *commitment.Keyring, limits abuse.Config) error {
	store, err := openScoringStore(cfg.DBPath)
	if err != nil {
		return err
	}
	s.store = store

	counters, err := s.openCounterBackend(ctx, cfg.CounterBackend)
	if err != nil {
		return err
	}
	s.counters = counters

	codec, err := commitment.NewCodec(keyring)
	if err != nil {
		return err
	}
	simulator, err := simulation.NewSimulator(store)
	if err != nil {
		return err
	}
	orchestrator, err := scoringdomain.NewOrchestrator(simulator, codec, scoringdomain.WithRedemptions(counters))
	if err != nil {
		return err
	}
	registry, err := buildRegistry(store, orchestrator)
	if err != nil {
		return err
	}
	gate, err := abuse.NewGate(counters, limits)
	if err != nil {
		return fmt.Errorf("build abuse gate: %w", err)
	}
	emitter := audit.NewEmitter(store)

	s.grpcServer = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			grpcmeta.UnaryServerInterceptor(nil),
			interceptors.RateLimitInterceptor(gate, emitter, scoringservice.MutationMethods...),
		),
	)
	scoringservice.RegisterScoringServiceServer(s.grpcServer, scoringservice.NewService(store, store, registry, emitter))
	s.health = health.NewServer()
	grpc_health_v1.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(scoringservice.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	return nil
}

// buildRegistry registers every scoring strategy.
func buildRegistry(records storage.RecordReader, orchestrator *scoringdomain.Orchestrator) (*strategy.Registry, error) {
	dimensional, err := scoringdomain.NewDimensionalStrategy(orchestrator)
	if err != nil {
		return nil, err
	}
	constant, err := strategy.NewConstant(records)
	if err != nil {
		return nil, err
	}
	comparative, err := strategy.NewComparative(records)
	if err != nil {
		return nil, err
	}
	bucketed, err := strategy.NewTimeBucketed(records)
	if err != nil {
		return nil, err
	}

	registry := strategy.NewRegistry()
	for _, s := range []strategy.Strategy{dimensional, constant, comparative, bucketed} {
		if err := registry.Register(s); err != nil {
			return nil, err
		}
		d := s.Describe()
		log.Printf("strategy %s v%s fingerprint %s", d.ID, d.Version, d.Fingerprint)
	}
	return registry, nil
}

func (s *Server) openCounterBackend(ctx context.Context, backend string) (counterBackend, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", CounterBackendSQLite:
		return s.store, nil
	case CounterBackendMemory:
		log.Printf("rate-limit counters are process local; run a single instance")
		return memory.New(), nil
	case CounterBackendRedis:
		cfg, err := scoringredis.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("load redis config: %w", err)
		}
		store, err := scoringredis.Open(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("open redis counter store: %w", err)
		}
		s.redis = store
		return store, nil
	default:
		return nil, fmt.Errorf("unknown counter backend %q", backend)
	}
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	pruneCtx, stopPrune := context.WithCancel(ctx)
	defer stopPrune()
	s.startCounterPruning(pruneCtx)

	log.Printf("scoring server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		if s.health != nil {
			s.health.Shutdown()
		}
		s.gracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// gracefulStop drains in-flight calls, forcing a stop after the shutdown
// timeout.
func (s *Server) gracefulStop() {
	done := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeouts.Shutdown):
		log.Printf("scoring server graceful stop timed out")
		s.grpcServer.Stop()
	}
}

// startCounterPruning periodically removes counters whose window has passed.
// Backends that expire keys natively are skipped.
func (s *Server) startCounterPruning(ctx context.Context) {
	pruner, ok := s.counters.(storage.CounterPruner)
	if !ok || s.pruneInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := pruner.PruneCounters(ctx, time.Now().UTC())
				if err != nil {
					log.Printf("prune rate-limit counters: %v", err)
					continue
				}
				if removed > 0 {
					log.Printf("pruned %d rate-limit counters", removed)
				}
			}
		}
	}()
}

// Close releases scoring server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			log.Printf("close redis counter store: %v", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close scoring store: %v", err)
		}
	}
}

func openScoringStore(path string) (*scoringsqlite.Store, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "scoring.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	store, err := scoringsqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scoring sqlite store: %w", err)
	}
	return store, nil
}
