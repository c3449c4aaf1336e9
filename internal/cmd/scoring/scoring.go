// Package scoring parses scoring service flags and launches the service.
package scoring

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"

	entrypoint "github.com/louisbranch/questline/internal/platform/cmd"
	platformgrpc "github.com/louisbranch/questline/internal/platform/grpc"
	"github.com/louisbranch/questline/internal/platform/timeouts"
	scoringservice "github.com/louisbranch/questline/internal/services/scoring/api/grpc/scoring"
	server "github.com/louisbranch/questline/internal/services/scoring/app"
)

// Config holds scoring command configuration.
type Config struct {
	Port           int    `env:"SCORING_PORT"            envDefault:"8090"`
	Addr           string `env:"SCORING_ADDR"`
	DBPath         string `env:"SCORING_DB_PATH"         envDefault:"data/scoring.db"`
	CounterBackend string `env:"SCORING_COUNTER_BACKEND" envDefault:"sqlite"`
	// HealthCheck probes a running server instead of starting one.
	HealthCheck bool
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The scoring gRPC server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The scoring gRPC listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "The scoring SQLite database path")
	fs.StringVar(&cfg.CounterBackend, "counters", cfg.CounterBackend, "Rate-limit counter backend: sqlite, redis or memory")
	fs.BoolVar(&cfg.HealthCheck, "healthcheck", false, "Check that the server at the listen address is serving, then exit")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the scoring gRPC API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceScoring, func(ctx context.Context) error {
		srv, err := server.NewWithAddr(ctx, listenAddr(cfg), server.Config{
			DBPath:         cfg.DBPath,
			CounterBackend: cfg.CounterBackend,
		})
		if err != nil {
			return err
		}
		return srv.Serve(ctx)
	})
}

// HealthCheck reports whether the scoring service at the configured address
// is SERVING.
func HealthCheck(ctx context.Context, cfg Config) error {
	conn, err := platformgrpc.DialReady(ctx, probeAddr(cfg), scoringservice.ServiceName, timeouts.HealthProbe, log.Printf, platformgrpc.ClientOptions()...)
	if err != nil {
		return err
	}
	return conn.Close()
}

// probeAddr turns a wildcard listen address into a loopback dial target.
func probeAddr(cfg Config) string {
	addr := listenAddr(cfg)
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}

func listenAddr(cfg Config) string {
	if addr := strings.TrimSpace(cfg.Addr); addr != "" {
		return addr
	}
	return fmt.Sprintf(":%d", cfg.Port)
}
