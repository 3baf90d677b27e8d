package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/freight-session/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health  *handlers.HealthHandler
	Session *handlers.SessionHandler
	Proxy   *handlers.ProxyHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)
	app.Get("/metrics/prometheus", cfg.Health.Prometheus)

	sessions := app.Group("/session/:audience")
	sessions.Get("", cfg.Session.Status)
	sessions.Get("/header", cfg.Session.Header)
	sessions.Post("/login", cfg.Session.Login)
	sessions.Post("/refresh", cfg.Session.Refresh)
	sessions.Post("/logout", cfg.Session.Logout)

	app.All("/api/:audience/*", cfg.Proxy.Forward)
}
