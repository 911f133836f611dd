package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telecheck/telecheck-api/internal/api/http/handlers"
	"github.com/telecheck/telecheck-api/internal/auth"
	"github.com/telecheck/telecheck-api/internal/domain"
	"github.com/telecheck/telecheck-api/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	AuthMiddleware *auth.Middleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if registry := cfg.Metrics.Registry(); registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	gate := cfg.AuthMiddleware

	authGroup := api.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", gate.Handle, auth.RequireAuthenticated(), cfg.Auth.Me)

	users := api.Group("/users", gate.Handle)
	users.Get("", gate.RequireRole(domain.RoleAdmin), cfg.Users.List)
	users.Get("/:id", gate.RequireRole(domain.RoleAdmin, domain.RoleDoctor), cfg.Users.Get)
	users.Patch("/:id/role", gate.RequireRole(domain.RoleAdmin), cfg.Users.ChangeRole)
	users.Patch("/:id/status", gate.RequireRole(domain.RoleAdmin), cfg.Users.ChangeStatus)

	demo := api.Group("/demo", gate.Handle)
	demo.Get("/whoami", auth.RequireAuthenticated(), cfg.Auth.Me)
}
