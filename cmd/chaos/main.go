// Package main runs the chaos suite against a live feature board API.
//
// It fires concurrent and malformed traffic at the server, prints a summary
// table, and exits non-zero if any scenario fails. Point it at a running
// server; it never starts one itself.
//
// USAGE:
//
//	go run ./cmd/chaos
//	go run ./cmd/chaos -base-url http://localhost:3000/api -concurrency 50
//	go run ./cmd/chaos -flood 1000 -timeout 30s -env local
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sakif/feature-board/internal/chaos"
	"github.com/sakif/feature-board/internal/config"
	"github.com/sakif/feature-board/internal/logger"
)

func main() {
	// === 1. READ FLAGS ===
	defaults := chaos.DefaultOptions()
	var (
		baseURL = flag.String("base-url", "http://localhost:3000/api", "API root of the server under test")
		env     = flag.String("env", config.EnvLocal, "log format: local, dev or prod")
		timeout = flag.Duration("timeout", 10*time.Second, "per-request timeout")
		opts    = defaults
	)
	flag.IntVar(&opts.Concurrency, "concurrency", defaults.Concurrency, "max in-flight requests per scenario")
	flag.IntVar(&opts.FloodCount, "flood", defaults.FloodCount, "proposals created by the flood scenario")
	flag.IntVar(&opts.DuplicateVoters, "duplicates", defaults.DuplicateVoters, "parallel identical upvotes")
	flag.IntVar(&opts.RaceVoters, "racers", defaults.RaceVoters, "parallel distinct upvotes")
	flag.IntVar(&opts.StressFeatures, "stress-features", defaults.StressFeatures, "proposals seeded before the listing stress")
	flag.Parse()

	// === 2. SET UP LOGGING ===
	log := logger.New(*env)
	log.Info("starting chaos run",
		slog.String("base_url", *baseURL),
		slog.Int("concurrency", opts.Concurrency),
	)

	// Ctrl+C stops after the current scenario and still prints what ran.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === 3. RUN AND REPORT ===
	hc := &http.Client{
		Timeout: *timeout,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: opts.Concurrency,
		},
	}
	results := chaos.NewRunner(chaos.NewClient(*baseURL, hc), opts, log).Run(ctx)

	if err := chaos.WriteReport(os.Stdout, results); err != nil {
		log.Error("failed to write report", slog.String("error", err.Error()))
	}
	if !chaos.AllPassed(results) {
		os.Exit(1)
	}
}
