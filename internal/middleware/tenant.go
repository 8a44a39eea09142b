package middleware

import (
	"strings"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// Paths that are not tied to a counter.
var tenantSkipPaths = []string{
	"/api/health",
	"/metrics",
}

// TenantMiddleware resolves the counter from the X-App-ID header or the app_id
// query parameter (EventSource clients). SessionIdentity later checks that the
// access token was issued for the same counter.
func TenantMiddleware(registry *tenant.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		for _, skip := range tenantSkipPaths {
			if strings.HasPrefix(path, skip) {
				return c.Next()
			}
		}

		appID, source := c.Get("X-App-ID"), "X-App-ID"
		if appID == "" {
			appID, source = c.Query("app_id"), "app_id"
		}

		if appID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "X-App-ID header is required",
			})
		}
		if !registry.Exists(appID) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error:   true,
				Message: "Invalid " + source + ": " + appID,
			})
		}

		c.Locals("app_id", appID)
		return c.Next()
	}
}
