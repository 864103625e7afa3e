package handler

import (
	"paygate/internal/adapter/http/middleware"
	redisStore "paygate/internal/adapter/storage/redis"
	"paygate/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Orchestrator   ports.PaymentOrchestrator
	ConfigStore    ports.GatewayConfigStore
	WebhookSvc     ports.WebhookProcessor
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL and Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// Provider notification endpoints (no auth; authenticity is checked per
	// provider protocol during processing)
	webhookHandler := NewWebhookHandler(deps.WebhookSvc, deps.Logger)
	r.POST("/webhooks/:provider", rl("webhooks"), webhookHandler.Receive)

	v1 := r.Group("/api/v1")
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	paymentHandler := NewPaymentHandler(deps.Orchestrator)
	payments := v1.Group("/payments")
	{
		payments.POST("", rl("payments"), paymentHandler.Initiate)
		payments.POST("/:id/refund", jwtAuth, rl("operations"), paymentHandler.Refund)
		payments.POST("/:id/reverse", jwtAuth, rl("operations"), paymentHandler.Reverse)
		payments.POST("/:id/deposit", jwtAuth, rl("operations"), paymentHandler.Deposit)
	}

	bindingHandler := NewBindingHandler(deps.Orchestrator)
	bindings := v1.Group("/bindings", jwtAuth)
	{
		bindings.GET("", rl("operations"), bindingHandler.List)
		bindings.DELETE("/:binding_id", rl("operations"), bindingHandler.Unbind)
		bindings.POST("/pay", rl("operations"), bindingHandler.Pay)
	}

	configHandler := NewGatewayConfigHandler(deps.ConfigStore)
	gateways := v1.Group("/gateways", jwtAuth)
	{
		gateways.GET("", rl("gateways"), configHandler.List)
		gateways.POST("", rl("gateways"), configHandler.Create)
		gateways.GET("/:id", rl("gateways"), configHandler.Get)
		gateways.PUT("/:id", rl("gateways"), configHandler.Update)
		gateways.DELETE("/:id", rl("gateways"), configHandler.Delete)
	}

	return r
}
