package middleware

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/gofiber/fiber/v2"
)

// RequireRoles denies the request unless the session identity holds one of
// roles. A matching X-Admin-Token elevates the current identity to admin for
// this request only.
func RequireRoles(cfg *config.Config, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, _ := session.FromCtx(c)

		if id != nil && cfg.AdminToken != "" && c.Get("X-Admin-Token") == cfg.AdminToken {
			elevated := *id
			elevated.Role = models.RoleAdmin
			session.Attach(c, &elevated)
			id = &elevated
		}

		err := session.Authorize(id, roles...)
		switch {
		case err == nil:
			return c.Next()
		case errors.Is(err, session.ErrUnauthenticated):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		default:
			return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
				Error: true, Message: "Admin access required",
			})
		}
	}
}

// AdminRequired is RequireRoles for the admin role.
func AdminRequired(cfg *config.Config) fiber.Handler {
	return RequireRoles(cfg, models.RoleAdmin)
}
