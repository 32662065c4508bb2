// Copyright (c) 2026 Leomall. All rights reserved.
// Author: leozheng-Miao

// Command api is the entry point for the Leomall identity HTTP service.
//
// # Startup Sequence
//
//  1. Load .env (development only) and configuration from the environment.
//  2. Initialize structured logger.
//  3. Connect to PostgreSQL when DATABASE_URL is set and run migrations.
//  4. Build the revocation store for REVOCATION_BACKEND.
//  5. Build the token service and register metrics.
//  6. Wire HTTP handlers.
//  7. Start HTTP server with graceful shutdown.
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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/leozheng-Miao/leomall-sub001/internal/api"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/config"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/constants"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/metrics"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/migration"
	pgstore "github.com/leozheng-Miao/leomall-sub001/internal/platform/postgres"
	redisstore "github.com/leozheng-Miao/leomall-sub001/internal/platform/redis"
	"github.com/leozheng-Miao/leomall-sub001/internal/platform/sec"
	"github.com/leozheng-Miao/leomall-sub001/internal/users/auth"
)

// revocationPurgeInterval is how often expired rows leave auth.revoked_token.
const revocationPurgeInterval = time.Hour

func main() {
	// ── 1. Configuration ──────────────────────────────────────────────────
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("startup failure", slog.String("context", "load configuration"), slog.Any("error", err))
		os.Exit(1)
	}

	// ── 2. Logger ─────────────────────────────────────────────────────────
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.String("revocation_backend", cfg.RevocationBackend),
	)

	// Root context for the process lifetime; cancelled on shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Use a 30s deadline so misconfiguration is caught quickly.
	startupCtx, startupCancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer startupCancel()

	var checks []api.HealthCheck

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		pool, err = pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
		must(log, err, "connect to postgres")
		defer func() {
			log.Info("closing postgres pool")
			pool.Close()
		}()

		_, err = migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log)
		must(log, err, "run migrations")

		checks = append(checks, api.HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
			return pgstore.Ping(ctx, pool)
		}})
	}

	// ── 4. Revocation Store ───────────────────────────────────────────────
	var store sec.RevocationStore
	switch cfg.RevocationBackend {
	case config.BackendRedis:
		rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
		must(log, err, "connect to redis")
		defer func() {
			log.Info("closing redis client")
			if cerr := rdb.Close(); cerr != nil {
				log.Error("redis close error", slog.Any("error", cerr))
			}
		}()
		store = auth.NewRedisRevocationStore(rdb)
		checks = append(checks, api.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return redisstore.Ping(ctx, rdb)
		}})

	case config.BackendPostgres:
		postgresStore := auth.NewPostgresRevocationStore(pool)
		go purgeRevocations(rootCtx, postgresStore, log)
		store = postgresStore

	default:
		log.Warn("revocation_store_in_memory", slog.String("hint", "revocations are lost on restart and not shared between replicas"))
		store = auth.NewMemoryRevocationStore()
	}

	// ── 5. Token Service & Metrics ────────────────────────────────────────
	tokenConfig, err := cfg.TokenConfig()
	must(log, err, "load token configuration")
	tokens, err := sec.NewTokenService(tokenConfig, store)
	must(log, err, "initialize token service")
	log.Info("token_service_ready", slog.String("algorithm", tokenConfig.Keys.Algorithm()))

	metricsHandler, err := metrics.Register(prometheus.DefaultRegisterer)
	must(log, err, "register metrics")

	policy, err := cfg.RoutePolicy()
	must(log, err, "load route policy")

	// ── 6. Domain Wiring ──────────────────────────────────────────────────
	var accounts auth.AccountSource = auth.UnavailableAccounts{}
	if pool != nil {
		accounts = auth.NewAccountSource(pool)
	} else {
		log.Warn("login_disabled", slog.String("reason", "DATABASE_URL is not set"))
	}
	authService := auth.NewService(accounts, tokens, log)
	authHandler := auth.NewHandler(authService, cfg.IsProduction())

	liveness, readiness := api.NewHealthHandlers(log, checks...)

	// ── 7. HTTP Server ────────────────────────────────────────────────────
	server := api.NewServer(rootCtx, cfg, log, tokens, policy, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Metrics:   metricsHandler,
		Auth:      authHandler,
	})

	// ── 8. Graceful Shutdown ──────────────────────────────────────────────
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
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	rootCancel()

	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// purgeRevocations deletes expired revocation rows until ctx is cancelled.
func purgeRevocations(ctx context.Context, store *auth.PostgresRevocationStore, log *slog.Logger) {
	ticker := time.NewTicker(revocationPurgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.DeleteExpired(ctx)
			if err != nil {
				log.Error("revocation_purge_failed", slog.Any("error", err))
				continue
			}
			log.Debug("revocation_purge_done", slog.Int64("deleted", deleted))
		}
	}
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
