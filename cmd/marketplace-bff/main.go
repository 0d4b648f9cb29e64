package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/marketplace-bff-go/internal/authsession"
	"github.com/boddenberg/marketplace-bff-go/internal/authstate"
	"github.com/boddenberg/marketplace-bff-go/internal/config"
	"github.com/boddenberg/marketplace-bff-go/internal/domain"
	"github.com/boddenberg/marketplace-bff-go/internal/handler"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/cache"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/kv"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/observability"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/resilience"
	"github.com/boddenberg/marketplace-bff-go/internal/infra/supabase"
	"github.com/boddenberg/marketplace-bff-go/internal/service"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "invalid .env file:", err)
	}

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("site_url", cfg.SiteURL),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Int("fetch_max_attempts", cfg.FetchMaxAttempts),
		zap.Duration("store_idle_ttl", cfg.StoreIdleTTL),
		zap.Bool("redis", cfg.RedisAddr != ""),
	)

	if cfg.SupabaseURL == "" || cfg.SupabaseAnonKey == "" {
		logger.Fatal("SUPABASE_URL and SUPABASE_ANON_KEY are required")
	}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "marketplace-bff")
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	cb := resilience.NewCircuitBreaker("supabase")

	// --- Supabase ---
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	supabaseClient := supabase.NewClient(
		httpClient,
		cfg.SupabaseURL,
		cfg.SupabaseAnonKey,
		cfg.SupabaseServiceKey,
		cb,
		resilienceCfg,
		logger,
	)
	storage := supabase.NewStorage(supabaseClient, cfg.MaxConcurrency)
	realtime := supabase.NewRealtime(cfg.SupabaseURL, cfg.SupabaseAnonKey, logger)
	logger.Info("supabase configured", zap.String("supabase_url", cfg.SupabaseURL))

	healthChecks := []handler.HealthCheck{{Name: "supabase", Check: supabaseClient.Health}}

	// --- Client key-value store ---
	var backend kv.Backend = kv.NewMemory()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		redisBackend := kv.NewRedis(rdb, "mp", cfg.ClientDataTTL)
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := redisBackend.Ping(ctx)
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, keeping client data in memory", zap.Error(err))
		} else {
			backend = redisBackend
			healthChecks = append(healthChecks, handler.HealthCheck{Name: "redis", Check: redisBackend.Ping})
			logger.Info("client data stored in redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	// --- Auth state ---
	registry := authstate.NewRegistry(authstate.Deps{
		Backend:  backend,
		Identity: supabaseClient,
		Data:     supabaseClient,
		Feed:     realtime,
		Verifier: authsession.NewTokenVerifier(cfg.SupabaseJWTSecret),
		Metrics:  metrics,
		Logger:   logger,
		Config: authstate.Config{
			FetchMaxAttempts: cfg.FetchMaxAttempts,
			FetchRetryBase:   cfg.FetchRetryBase,
			SiteURL:          cfg.SiteURL,
			IdleTTL:          cfg.StoreIdleTTL,
		},
	})

	// --- Services ---
	notificationCache := cache.New[[]domain.Notification](cfg.CacheTTL)
	defer notificationCache.Close()

	services := handler.Services{
		Companies:     service.NewCompanyService(supabaseClient, storage, cfg.LogoBucket, metrics, logger),
		Opportunities: service.NewOpportunityService(supabaseClient, metrics, logger),
		Applications:  service.NewApplicationService(supabaseClient, supabaseClient, metrics, logger),
		Notifications: service.NewNotificationService(supabaseClient, notificationCache, metrics, logger),
		Messaging:     service.NewMessagingService(supabaseClient, metrics, logger),
		Onboarding:    service.NewOnboardingService(logger),
		Profiles:      service.NewProfileService(storage, cfg.AvatarBucket, cfg.MediaBucket, logger),
	}

	// --- Router ---
	router := handler.NewRouter(registry, services, handler.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		SecureCookie:     cfg.SecureCookie,
		OAuthWaitTimeout: cfg.OAuthWaitTimeout,
		HealthChecks:     healthChecks,
	}, metrics, logger)

	// --- Server ---
	// No WriteTimeout: /v1/session/events streams for as long as the browser listens.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	registry.Close()

	logger.Info("server stopped")
}
