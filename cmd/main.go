/**
 * @description
 * This is the main entry point for the credits-service.
 * It initializes and wires together all the components of the application,
 * including configuration, database, broker, cache, identity directory, services
 * and the HTTP router. Finally, it starts the HTTP server to listen for incoming requests.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files during local development.
 */
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/buildbuddy/credits-service/internal/api"
	"github.com/buildbuddy/credits-service/internal/app"
	"github.com/buildbuddy/credits-service/internal/config"
	"github.com/buildbuddy/credits-service/internal/metrics"
	"github.com/buildbuddy/credits-service/internal/store"
	"github.com/buildbuddy/credits-service/pkg/clerkclient"
	"github.com/buildbuddy/credits-service/pkg/rabbitmq"
)

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, relying on environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up channel to listen for OS signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Simple protocol keeps the pool compatible with PgBouncer transaction pooling.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to create RabbitMQ producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	logger.Info("RabbitMQ producer connected")

	var redisClient *redis.Client
	if cfg.ActionRateLimitPerMinute > 0 {
		if cfg.RedisURL == "" {
			logger.Warn("redis url missing; action rate limiting disabled", "env", "REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				logger.Warn("redis url parse failed; action rate limiting disabled", "error", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(ctx, 5*time.Second)
				pingErr := redisClient.Ping(pingCtx).Err()
				cancelPing()
				if pingErr != nil {
					logger.Warn("redis ping failed; action rate limiting disabled", "error", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					logger.Info("redis connected")
				}
			}
		}
	}

	if cfg.ClerkWebhookSecret == "" {
		logger.Warn("CLERK_WEBHOOK_SECRET is empty; webhook signatures are checked against an empty key")
	}

	var verifier api.TokenVerifier
	if strings.TrimSpace(cfg.ClerkJWKSURL) != "" {
		clerkVerifier, verifierErr := api.NewClerkVerifier(cfg.ClerkJWKSURL, cfg.ClerkIssuer)
		if verifierErr != nil {
			logger.Error("failed to initialize Clerk token verifier", "error", verifierErr)
			os.Exit(1)
		}
		verifier = clerkVerifier
	} else if !cfg.AllowAuthHeaderFallback {
		logger.Error("CLERK_JWKS_URL is required unless header fallback is enabled")
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	creditsMetrics := metrics.NewCreditsMetrics(registry)

	// Initialize application layers
	repository := store.NewRepository(dbpool)
	directory := clerkclient.NewClient(cfg.ClerkAPIBaseURL, cfg.ClerkSecretKey)

	planResolver := app.NewPlanResolver(directory, logger, creditsMetrics)
	usageService := app.NewUsageService(repository, planResolver, logger, creditsMetrics)
	reconciler := app.NewReconciler(usageService, logger, creditsMetrics)
	subscriptionService := app.NewSubscriptionService(directory, usageService)

	projectService := app.NewProjectService(repository, usageService, producer, app.JobRoute{
		Exchange:   cfg.AgentEventExchange,
		RoutingKey: cfg.AgentRunRoutingKey,
	}, logger)
	if redisClient != nil {
		projectService.SetRateLimiter(app.NewRedisActionRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.ActionRateLimitPerMinute)
	}

	handler := api.NewHandler(usageService, subscriptionService, projectService, logger)
	webhookHandler := api.NewWebhookHandler(
		api.NewSvixVerifier(cfg.ClerkWebhookSecret, time.Duration(cfg.WebhookToleranceSeconds)*time.Second),
		reconciler,
		creditsMetrics,
		logger,
	)
	router := api.NewRouter(handler, webhookHandler, api.RouterConfig{
		Auth: api.AuthMiddlewareConfig{
			Verifier:            verifier,
			AllowHeaderFallback: cfg.AllowAuthHeaderFallback,
		},
		AllowedOrigins:             cfg.AllowedOrigins(),
		AllowSelfServicePlanChange: cfg.AllowSelfServicePlanChange,
		Registry:                   registry,
	})

	// Configure and start the HTTP server
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for an OS signal
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
