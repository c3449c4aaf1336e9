// Package main starts the scoring gRPC service process lifecycle.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	scoringcmd "github.com/louisbranch/questline/internal/cmd/scoring"
)

func main() {
	cfg, err := scoringcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[SCORING] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HealthCheck {
		if err := scoringcmd.HealthCheck(ctx, cfg); err != nil {
			log.Fatalf("health check: %v", err)
		}
		return
	}

	if err := scoringcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
