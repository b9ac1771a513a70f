package handlers

import (
	"context"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"go.uber.org/zap"

	"github.com/inquirydesk/inquiry-service/internal/observability"
)

// Pinger is a dependency probed by the readiness check.
type Pinger interface {
	Enabled() bool
	Ping(ctx context.Context) error
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	ready       fiber.Handler
}

// NewHealthHandler returns a new handler instance. Only enabled
// dependencies are checked.
func NewHealthHandler(serviceName, version string, deps map[string]Pinger, logger *zap.Logger) *HealthHandler {
	opts := []health.CheckerOption{
		health.WithCacheDuration(1 * time.Second),
		health.WithTimeout(2 * time.Second),
	}
	for name, dep := range deps {
		if dep == nil || !dep.Enabled() {
			continue
		}
		name, dep := name, dep
		opts = append(opts, health.WithCheck(health.Check{
			Name: name,
			Check: func(ctx context.Context) error {
				defer observability.ObserveStore(name, "ping")()
				return dep.Ping(ctx)
			},
			Timeout: 2 * time.Second,
			StatusListener: func(ctx context.Context, name string, state health.CheckState) {
				logger.Info("health check status changed",
					zap.String("name", name),
					zap.String("state", string(state.Status)),
				)
			},
		}))
	}
	checker := health.NewChecker(opts...)

	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		ready:       adaptor.HTTPHandler(health.NewHandler(checker)),
	}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	return h.ready(c)
}
