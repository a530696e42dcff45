package routes

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studyhub/studyhub-backend/internal/config"
	"github.com/studyhub/studyhub-backend/internal/handlers"
	"github.com/studyhub/studyhub-backend/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	generateHandler *handlers.GenerateHandler,
	checkoutHandler *handlers.CheckoutHandler,
	webhookHandler *handlers.WebhookHandler,
	entitlementHandler *handlers.EntitlementHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP. The Stripe webhook is
	// exempt; throttling the processor's retries would delay entitlement
	// reconciliation.
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Next:              func(c *fiber.Ctx) bool { return c.Path() == "/api/stripe-webhook" },
	}))

	// Health (public)
	api.Get("/health", healthHandler.Check)

	// Auth — public, with a stricter limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/refresh", authHandler.Refresh)
	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)

	// Gated AI proxy and payment session creation (JWT required)
	api.Post("/generate", middleware.JWTProtected(cfg), generateHandler.Generate)
	api.Post("/create-checkout-session", middleware.JWTProtected(cfg), checkoutHandler.CreateSession)

	// Entitlement record: snapshot plus live websocket feed
	api.Get("/entitlement", middleware.JWTProtected(cfg), entitlementHandler.Get)
	api.Use("/entitlement/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/entitlement/live", middleware.JWTProtectedQuery(cfg), websocket.New(entitlementHandler.Live))

	// Stripe webhook — authenticated by signature, not JWT. The handler
	// needs the raw request bytes, so nothing may parse the body first.
	api.Post("/stripe-webhook", webhookHandler.HandleStripe)

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}
