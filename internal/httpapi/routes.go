package httpapi

import (
	"net/http"

	"github.com/convert-iq/convertiq/internal/ai"
	"github.com/convert-iq/convertiq/internal/billing"
	"github.com/convert-iq/convertiq/internal/config"
	"github.com/convert-iq/convertiq/internal/pipeline"
	"github.com/convert-iq/convertiq/internal/ratelimit"
	"github.com/convert-iq/convertiq/internal/usage"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps carries the constructed components the routes are wired to.
type Deps struct {
	DB        *gorm.DB
	Cfg       *config.Config
	Runner    *pipeline.Runner
	Generator ai.Generator
	Limiter   *ratelimit.Manager
	Ledger    *usage.Ledger
	Billing   *billing.Service
	Syncer    *billing.Syncer
}

// RegisterRoutes registers all routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	r.Use(requestIDMiddleware())
	r.Use(corsMiddleware())

	r.GET("/", root)
	r.GET("/health", health)

	authHandler := NewAuthHandler(deps.DB, deps.Cfg.JWT, deps.Billing)
	authGroup := r.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	webhookHandler := NewWebhookHandler(deps.Syncer)
	r.POST("/webhooks/stripe", webhookHandler.Stripe)

	authed := r.Group("")
	authed.Use(userAuthMiddleware(deps.DB, deps.Cfg.JWT))

	userHandler := NewUserHandler()
	authed.GET("/users/me", userHandler.Me)

	subscriptionHandler := NewSubscriptionHandler(deps.DB, deps.Ledger)
	authed.GET("/subscription/me", subscriptionHandler.Me)

	optimizeHandler := NewOptimizeHandler(deps.DB, deps.Ledger, deps.Generator)
	authed.POST("/optimize", optimizeHandler.Optimize)

	generateHandler := NewGenerateHandler(deps.Runner, deps.Limiter, deps.Cfg.RateLimit)
	authed.POST("/api/generate", generateHandler.Generate)
	authed.POST("/api/generate/prompt1", generateHandler.GeneratePrompt1)

	billingHandler := NewBillingHandler(deps.Billing)
	authed.POST("/billing/checkout", billingHandler.Checkout)
}

// root lists the API surface for quick discovery.
func root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Convert IQ API",
		"version": "1.0.0",
		"auth":    "JWT",
		"endpoints": gin.H{
			"login":                 "/auth/login",
			"register":              "/auth/register",
			"me":                    "/users/me",
			"subscription":          "/subscription/me",
			"optimize":              "/optimize",
			"generate_full":         "/api/generate",
			"generate_prompt1_only": "/api/generate/prompt1",
			"checkout":              "/billing/checkout",
			"stripe_webhook":        "/webhooks/stripe",
		},
	})
}

// health reports process liveness.
func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
