package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inquirydesk/inquiry-service/internal/api/http/handlers"
	"github.com/inquirydesk/inquiry-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Stream         *handlers.StreamHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    *ActorRateLimiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	limit := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Handle
	}

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle)
	tickets.Post("/", limit, cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/messages", limit, cfg.Tickets.AddMessage)
	tickets.Post("/:id/resolve", limit, cfg.Tickets.ResolveTicket)
	tickets.Post("/:id/dispute", limit, cfg.Tickets.DisputeTicket)
	if cfg.Stream != nil {
		tickets.Get("/:id/stream", cfg.Stream.Stream)
	}

	support := app.Group("/support", cfg.AuthMiddleware.Handle, auth.RequireRole(auth.RoleSupportOperator))
	support.Get("/tickets", cfg.Tickets.ListSupportQueue)
}
