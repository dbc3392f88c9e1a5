// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects storage, cache, services,
// handlers, middleware and routes, and owns the lifecycle of every resource
// it opens.
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go loads config.Config → server.New(cfg, logger)
//	server.New opens:      Store (sqlite | postgres), Cache (redis | nop)
//	NewRouter builds:      AuthorService → ProposalService → FeatureHandler
//
// NewRouter is exported so tests and the chaos suite can run the exact
// production routing on top of an in-memory store.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/feature-board/internal/cache"
	"github.com/sakif/feature-board/internal/config"
	"github.com/sakif/feature-board/internal/handler"
	"github.com/sakif/feature-board/internal/middleware"
	"github.com/sakif/feature-board/internal/repository"
	"github.com/sakif/feature-board/internal/repository/postgres"
	sqliteRepo "github.com/sakif/feature-board/internal/repository/sqlite"
	"github.com/sakif/feature-board/internal/service"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database handle and the cache client. Start closes
// both after the HTTP server has drained.
type Server struct {
	router http.Handler
	config *config.Config
	logger *slog.Logger
	store  repository.Store
	cache  cache.Cache
}

// New opens storage and cache as configured and builds the router.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	// === CREATE DATABASE ===
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// === CREATE CACHE ===
	c := openCache(cfg, logger)

	return &Server{
		router: NewRouter(store, c, cfg.Cache.TTL, logger),
		config: cfg,
		logger: logger,
		store:  store,
		cache:  c,
	}, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := postgres.New(ctx, postgres.Config{
			DSN:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		// os.MkdirAll creates all parent directories if needed (like `mkdir -p`).
		if dir := filepath.Dir(cfg.Database.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
			}
		}
		db, err := sqliteRepo.New(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

// openCache returns a Redis cache when an address is configured and a no-op
// cache otherwise. An unreachable Redis only logs a warning; every cache call
// then degrades to a miss.
func openCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if cfg.Redis.Addr == "" {
		logger.Info("REDIS_ADDR not set, listing cache disabled")
		return cache.Nop{}
	}

	r := cache.NewRedis(cache.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.Ping(ctx); err != nil {
		logger.Warn("redis unreachable, continuing without a warm cache",
			slog.String("addr", cfg.Redis.Addr),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	}
	return r
}

// NewRouter configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /healthz                     → database liveness
// GET    /api/features                → list proposals (paginated, sorted)
// POST   /api/features                → create a proposal
// POST   /api/features/{id}/upvote    → upvote a proposal
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns unique ID to each request (for tracing)
// 2. RealIP: extracts real client IP from proxy headers
// 3. Recoverer: catches panics and returns 500 instead of crashing
// 4. Logger: logs each request with timing info
// 5. CORS: answers preflight requests from browser clients
func NewRouter(store repository.Store, c cache.Cache, cacheTTL time.Duration, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// === Global Middleware ===
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// === DEPENDENCY CHAIN ===
	//   store (sqlite.DB | postgres.DB) → implements repository.Repository
	//   AuthorService and ProposalService receive the repository interface
	//   FeatureHandler receives the service
	authors := service.NewAuthorService(store, logger)
	proposals := service.NewProposalService(store, authors, c, cacheTTL, logger)
	features := handler.NewFeatureHandler(proposals, logger)
	health := handler.NewHealthHandler(store, logger)

	r.Get("/healthz", health.HandleHealth)

	r.Route("/api/features", func(r chi.Router) {
		r.Get("/", features.HandleList)
		r.Post("/", features.HandleCreate)
		r.Post("/{id}/upvote", features.HandleUpvote)
	})

	return r
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (HTTP_SHUTDOWN_TIMEOUT)
// 3. Close the cache client and the database connection
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:         s.config.HTTP.Address,
		Handler:      s.router,
		ReadTimeout:  s.config.HTTP.ReadTimeout,
		WriteTimeout: s.config.HTTP.WriteTimeout,
		IdleTimeout:  s.config.HTTP.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("address", s.config.HTTP.Address),
			slog.String("env", s.config.Env),
			slog.String("db_driver", s.config.Database.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), s.config.HTTP.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	if err := s.cache.Close(); err != nil {
		s.logger.Warn("closing cache", slog.String("error", err.Error()))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("closing database", slog.String("error", err.Error()))
	}
}
