// Package main prints a fresh preview commitment secret.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/louisbranch/questline/internal/tools/commitmentkey"
)

func main() {
	cfg, err := commitmentkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	if err := commitmentkey.Run(cfg, os.Stdout, nil); err != nil {
		log.Fatalf("generate key: %v", err)
	}
}
