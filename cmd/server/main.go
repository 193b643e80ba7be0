package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/storyshare/storyshare-api/internal/api"
	"github.com/storyshare/storyshare-api/internal/config"
	"github.com/storyshare/storyshare-api/internal/logger"
	"github.com/storyshare/storyshare-api/internal/ratelimit"
	"github.com/storyshare/storyshare-api/internal/storage/sql"
	"github.com/storyshare/storyshare-api/internal/support"
	"github.com/storyshare/storyshare-api/internal/tagging"
)

// rateLimitIdleTTL is how long a client's limiter is kept after its last request.
const rateLimitIdleTTL = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logger.New(logger.Config{
		Format:      cfg.Log.Format,
		Environment: cfg.Log.Environment,
		Level:       level,
	})
	slog.SetDefault(logger)

	// Create data directory if needed (for SQLite)
	if cfg.Database.Driver == "sqlite3" {
		path, _, _ := strings.Cut(cfg.Database.DSN, "?")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			fatal(logger, "failed to create data directory", err)
		}
	}

	// Initialize storage
	store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		fatal(logger, "failed to initialize storage", err)
	}
	defer store.Close()

	tagService := tagging.NewService(store, cfg.Tagging.MaxTagsPerStory, logger.With("component", "tagging"))
	supportService := support.NewService(store, logger.With("component", "support"))

	var limiter *ratelimit.KeyedRateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, rateLimitIdleTTL)
		defer limiter.Stop()
	}

	// Create router
	router := api.NewRouter(store, tagService, supportService, api.Options{
		BootstrapKey:   cfg.Auth.BootstrapAPIKey,
		AllowedOrigins: cfg.CORS.GetAllowedOrigins(),
		Limiter:        limiter,
		Logger:         logger,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("starting server",
		"addr", cfg.Server.Addr(),
		"db_driver", cfg.Database.Driver,
		"max_tags_per_story", tagService.MaxTags(),
		"rate_limit", cfg.RateLimit.Enabled,
	)

	// Start server in goroutine
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}

	logger.Info("server stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
