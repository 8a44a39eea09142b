package routes

import (
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/apps"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	gate *session.Gate,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	roleHandler *handlers.RoleHandler,
	plugins []apps.Plugin,
) {
	api := app.Group("/api")

	// General API rate limiter: 120 req/min per IP. Counters poll slots often.
	api.Use(limiter.New(limiter.Config{
		Max:               120,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Next:              isStream,
	}))

	// Health (no tenant required)
	api.Get("/health", healthHandler.Check)

	// Auth (public), stricter limit: 10 req/min per IP
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

	// Protected auth routes; middleware per route so public ones stay open
	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)
	api.Delete("/auth/account", middleware.JWTProtected(cfg), authHandler.DeleteAccount)
	api.Get("/auth/me", middleware.JWTProtected(cfg), middleware.SessionIdentity(gate), authHandler.Me)

	// Admin (JWT + session role + admin)
	admin := api.Group("/admin",
		middleware.JWTProtected(cfg),
		middleware.SessionIdentity(gate),
		middleware.AdminRequired(cfg),
	)
	admin.Put("/users/:id/role", roleHandler.SetRole)

	// Plugin routes: JWT plus the per-request session identity
	protected := api.Group("/p", middleware.JWTProtected(cfg), middleware.SessionIdentity(gate))
	for _, p := range plugins {
		p.RegisterRoutes(protected)
		if ap, ok := p.(apps.AdminPlugin); ok {
			ap.RegisterAdminRoutes(admin)
		}
	}
}

// isStream exempts long-lived feed connections from the request limiter.
func isStream(c *fiber.Ctx) bool {
	return strings.HasSuffix(c.Path(), "/stream")
}
