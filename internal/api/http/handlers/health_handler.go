package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/telecheck/telecheck-api/internal/persistence"
)

const readinessTimeout = 2 * time.Second

// HealthInfo identifies the build and the authentication posture it runs with.
type HealthInfo struct {
	Service          string
	Version          string
	StrictProduction bool
	Validators       []string
}

// dependencyProbe checks one backing service. Optional probes report their
// state without failing readiness.
type dependencyProbe struct {
	name     string
	optional bool
	enabled  func() bool
	ping     func(context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	info   HealthInfo
	probes []dependencyProbe
}

// NewHealthHandler wires probes for Postgres (required when configured) and
// Redis (optional, it only backs the user cache).
func NewHealthHandler(info HealthInfo, postgres *persistence.Postgres, redis *persistence.Redis) *HealthHandler {
	return &HealthHandler{
		info: info,
		probes: []dependencyProbe{
			{name: "postgres", enabled: postgres.Enabled, ping: postgres.Ping},
			{name: "redis", optional: true, enabled: func() bool { return redis.ClientHandle() != nil }, ping: redis.Ping},
		},
	}
}

// Live reports liveness and the active auth mode.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.info.Service,
		"version": h.info.Version,
		"auth": fiber.Map{
			"strict_production": h.info.StrictProduction,
			"validators":        h.info.Validators,
		},
	})
}

// Ready pings every configured dependency.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	statuses := fiber.Map{}
	ready := true
	for _, probe := range h.probes {
		if !probe.enabled() {
			statuses[probe.name] = "disabled"
			continue
		}
		if err := probe.ping(ctx); err != nil {
			statuses[probe.name] = err.Error()
			ready = ready && probe.optional
			continue
		}
		statuses[probe.name] = "ok"
	}

	if !ready {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    "DEPENDENCY_UNAVAILABLE",
				"message": "one or more dependencies unavailable",
				"details": statuses,
			},
		})
	}
	return c.JSON(fiber.Map{"status": "ready", "dependencies": statuses})
}
