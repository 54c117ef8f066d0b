// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the story engine HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis when the shared story cache is enabled.
//  5. Run database migrations (idempotent).
//  6. Wire the story index, ordering, traversal, cache and ingestion.
//  7. Prime the story cache and start its refresh loop.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/taibuivan/historyatlas/internal/api"
	"github.com/taibuivan/historyatlas/internal/core/ingest"
	"github.com/taibuivan/historyatlas/internal/core/ordering"
	"github.com/taibuivan/historyatlas/internal/core/story"
	"github.com/taibuivan/historyatlas/internal/core/storycache"
	"github.com/taibuivan/historyatlas/internal/core/storyindex"
	"github.com/taibuivan/historyatlas/internal/platform/config"
	"github.com/taibuivan/historyatlas/internal/platform/constants"
	"github.com/taibuivan/historyatlas/internal/platform/middleware"
	"github.com/taibuivan/historyatlas/internal/platform/migration"
	pgstore "github.com/taibuivan/historyatlas/internal/platform/postgres"
	redisstore "github.com/taibuivan/historyatlas/internal/platform/redis"
	"github.com/taibuivan/historyatlas/internal/platform/sec"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Int("story_window_size", cfg.StoryWindowSize),
		slog.Int("cache_size", cfg.CacheSize),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// Lives until shutdown; background work derives from it.
	serverCtx, serverCancel := context.WithCancel(context.Background())
	defer serverCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, pgstore.APIOptions(), log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	var rdb *goredis.Client
	if cfg.CacheRedisOn {
		rdb, err = redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing_redis_client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis_close_failed", slog.Any("error", cerr))
			}
		}()
	}

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Bearer Verification ────────────────────────────────────────────
	var verifier middleware.TokenVerifier
	if cfg.JWTPubKeyPath != "" {
		tokenVerifier, err := sec.NewTokenVerifier(cfg.JWTPubKeyPath, constants.AuthIssuer)
		must(log, err, "initialize jwt verifier")
		verifier = tokenVerifier
	} else {
		log.Warn("jwt_verification_disabled", slog.String("reason", "JWT_PUBLIC_KEY_PATH is empty"))
	}

	// ── 7. Health handlers (wired with real dependency checkers) ──────────
	dependencies := api.HealthDependencies{
		CheckDatabase: func(ctx context.Context) error { return pgstore.Ping(ctx, pool) },
	}
	if rdb != nil {
		dependencies.CheckCache = func(ctx context.Context) error { return redisstore.Ping(ctx, rdb) }
	}
	liveness, readiness := api.NewHealthHandlers(dependencies, log)

	// ── 8. Domain Wiring ──────────────────────────────────────────────────
	index := storyindex.NewPostgresIndex(pool)

	assigner := ordering.NewAssigner(index, log.With(slog.String("component", "ordering")))
	reorderer := ordering.NewReorderer(index, ordering.Options{BatchSize: cfg.BulkBatchSize}, log.With(slog.String("component", "bulk_reorder")))

	traverser := story.NewTraverser(index, cfg.StoryWindowSize, log.With(slog.String("component", "traverser")))

	cacheOptions := storycache.Options{Size: cfg.CacheSize, Lang: cfg.DefaultLanguage}
	if rdb != nil {
		cacheOptions.Tier = storycache.NewRedisTier(rdb, 3*cfg.CacheRefreshInterval)
	}
	cache := storycache.New(traverser, index, cacheOptions, log.With(slog.String("component", "story_cache")))

	storyService := story.NewService(index, traverser, cache, cfg.DefaultLanguage, log)
	events := ingest.NewHandler(index, assigner, cfg.DefaultLanguage, log.With(slog.String("component", "ingest")))

	// ── 9. Story Cache ────────────────────────────────────────────────────
	if cfg.CacheSize > 0 {
		if _, err := cache.Prime(startupCtx, cfg.CacheSize); err != nil {
			// Misses fall through to the traverser, so a cold cache is not fatal.
			log.Warn("story_cache_prime_failed", slog.Any("error", err))
		}
		cache.StartRefresh(cfg.CacheRefreshInterval)
	}

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	ordersHandler := ordering.NewHandler(serverCtx, reorderer, log.With(slog.String("component", "bulk_reorder")))
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Story:     story.NewHandler(storyService),
		Ingest:    ingest.NewHTTPHandler(events),
		Ordering:  ordersHandler,
	}

	server := api.NewServer(serverCtx, cfg, log, verifier, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting_down_server", slog.Duration("timeout", shutdownTimeout))

	shutdownErr := server.Shutdown(shutdownTimeout)

	// Abandon an in-flight bulk run; it resumes from NULL rows next time.
	serverCancel()
	ordersHandler.Wait()

	// Stopped explicitly: os.Exit below skips deferred calls.
	cache.StopRefresh()

	if shutdownErr != nil {
		log.Error("shutdown_failed", slog.Any("error", shutdownErr))
		os.Exit(1)
	}

	log.Info("server_stopped_cleanly")
}

// newLogger builds the JSON process logger tagged with the app name.
func newLogger(level slog.Level) *slog.Logger {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", constants.AppName))
	slog.SetDefault(log)
	return log
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
