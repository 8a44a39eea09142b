package middleware

import (
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

// SessionIdentity resolves the caller's role from its profile and attaches the
// identity to the request. It must run after JWTProtected.
func SessionIdentity(gate *session.Gate) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := tenant.GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Unauthorized",
			})
		}

		appID := tenant.GetAppID(c)
		if claimed := tenant.GetTokenAppID(c); claimed != "" && claimed != appID {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "Token was issued for another counter",
			})
		}

		email := tenant.GetEmail(c)
		id, err := gate.Resolve(c.UserContext(), appID, userID, email)
		if err != nil {
			slog.Error("role resolution failed",
				"app_id", appID,
				"user_id", userID.String(),
				"request_id", requestID(c),
				"error", err,
			)
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Could not load your session, please try again",
			})
		}

		session.Attach(c, id)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok {
		return id
	}
	return c.GetRespHeader(fiber.HeaderXRequestID)
}
