package handlers

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	registry *tenant.Registry
	ping     func() error
}

// NewHealthHandler reports on the database through ping; a nil ping means the
// server runs without one.
func NewHealthHandler(registry *tenant.Registry, ping func() error) *HealthHandler {
	return &HealthHandler{registry: registry, ping: ping}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status, dbStatus := "ok", "ok"
	switch {
	case h.ping == nil:
		dbStatus = "disabled"
	default:
		if err := h.ping(); err != nil {
			status = "degraded"
			dbStatus = "unhealthy: " + err.Error()
		}
	}

	code := fiber.StatusOK
	if status != "ok" {
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(dto.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		AppCount:  len(h.registry.All()),
	})
}
