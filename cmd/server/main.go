package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/entsync/entsync/internal/config"
	"github.com/entsync/entsync/internal/server/handlers"
	"github.com/entsync/entsync/internal/server/jwt"
	"github.com/entsync/entsync/internal/server/middleware"
	"github.com/entsync/entsync/internal/server/seed"
	"github.com/entsync/entsync/internal/server/storage/sqlite"
)

// Version information set via ldflags during build.
var (
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(ctx, cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	seeder := seed.New(cfg.Jobs.UpstreamURL, store, logger)
	if cfg.Jobs.SeedOnStart {
		if err := seeder.Seed(ctx); err != nil {
			// The job collection re-seeds lazily on the next read.
			logger.Warn("initial job seed failed", slog.Any("error", err))
		}
	}

	tokens := jwt.NewManager([]byte(cfg.JWT.Secret), cfg.JWT.TTL)

	authHandler := handlers.NewAuthHandler(logger, store, tokens)
	userHandler := handlers.NewUserHandler(logger, store)
	jobsHandler := handlers.NewJobsHandler(logger, store, seeder)
	entityHandler := handlers.NewEntityHandler(logger, store)
	healthHandler := handlers.NewHealthHandler(logger, Version)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recovery(logger))

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", healthHandler.Health).Methods(http.MethodGet)
	api.Handle("/signup", limiter.Middleware(http.HandlerFunc(authHandler.Signup))).Methods(http.MethodPost)
	api.Handle("/login", limiter.Middleware(http.HandlerFunc(authHandler.Login))).Methods(http.MethodPost)
	api.HandleFunc("/jobs", jobsHandler.List).Methods(http.MethodGet)

	protected := api.PathPrefix("/user").Subrouter()
	protected.Use(middleware.Auth(tokens))
	protected.HandleFunc("/{username}", userHandler.Update).Methods(http.MethodPut)

	entities := api.PathPrefix("/entities").Subrouter()
	entities.HandleFunc("/{kind}", entityHandler.List).Methods(http.MethodGet)
	entities.HandleFunc("/{kind}", entityHandler.Create).Methods(http.MethodPost)
	entities.HandleFunc("/{kind}/{id}", entityHandler.Update).Methods(http.MethodPut)
	entities.HandleFunc("/{kind}/{id}", entityHandler.Delete).Methods(http.MethodDelete)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.Server.Addr()),
			slog.String("version", Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func printVersion() {
	fmt.Println("entsync server")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
