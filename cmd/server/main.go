// Package main is the entry point for the feature board API server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (flags, .env file, YAML file, environment)
// 2. Create the logger
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/handler, etc.).
//
// USAGE:
//
//	go run ./cmd/server                         # sqlite at data/features.db, no cache
//	go run ./cmd/server -env .env.local         # load variables from a file first
//	go run ./cmd/server -config config/prod.yaml
package main

import (
	"log/slog"
	"os"

	"github.com/sakif/feature-board/internal/config"
	"github.com/sakif/feature-board/internal/logger"
	"github.com/sakif/feature-board/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	cfg := config.MustLoad()

	// === 2. SET UP LOGGING ===
	log := logger.New(cfg.Env)
	log.Info("starting feature board", slog.String("env", cfg.Env))
	log.Debug("debug messages are enabled")

	// === 3. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, log)
	if err != nil {
		log.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		log.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
