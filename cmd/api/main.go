package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paygate/config"
	httpHandler "paygate/internal/adapter/http/handler"
	pgStorage "paygate/internal/adapter/storage/postgres"
	redisStorage "paygate/internal/adapter/storage/redis"
	"paygate/internal/core/ports"
	"paygate/internal/gateway"
	"paygate/internal/service"
	"paygate/pkg/backoff"
	"paygate/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const startupAttempts = 5

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting payment gateway orchestrator")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := connectPostgres(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := connectRedis(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	configRepo := pgStorage.NewGatewayConfigRepo(pool)
	paymentRepo := pgStorage.NewPaymentRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	orderRepo := pgStorage.NewOrderRepo(pool)

	// Initialize Redis stores
	dedupStore := redisStorage.NewDedupStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	cipher, err := service.NewEnvelopeCipher(cfg.Cipher.MasterKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize credential cipher")
	}
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	factory := gateway.NewFactory()

	// Initialize business services
	configStore := service.NewGatewayConfigService(configRepo, paymentRepo, cipher, factory, log)
	orchestrator := service.NewOrchestratorService(configStore, paymentRepo, orderRepo, factory, log)
	webhookSvc := service.NewWebhookService(paymentRepo, eventRepo, orderRepo, configStore, factory, dedupStore, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Orchestrator:   orchestrator,
		ConfigStore:    configStore,
		WebhookSvc:     webhookSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// connectPostgres dials the database, retrying on the default backoff
// schedule so a racing database container does not kill the process.
func connectPostgres(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	var lastErr error
	for attempt := 0; attempt < startupAttempts; attempt++ {
		pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
		if err == nil {
			return pool, nil
		}
		lastErr = err
		delay := backoff.Default.Delay(attempt)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("PostgreSQL not ready")
		time.Sleep(delay)
	}
	return nil, lastErr
}

func connectRedis(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*goredis.Client, error) {
	var lastErr error
	for attempt := 0; attempt < startupAttempts; attempt++ {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err == nil {
			return rdb, nil
		}
		lastErr = err
		delay := backoff.Default.Delay(attempt)
		log.Warn().Err(err).Dur("retry_in", delay).Msg("Redis not ready")
		time.Sleep(delay)
	}
	return nil, lastErr
}
