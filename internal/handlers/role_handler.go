package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/dto"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RoleHandler is the out-of-band way to grant or revoke admin.
type RoleHandler struct {
	gate *session.Gate
}

func NewRoleHandler(gate *session.Gate) *RoleHandler {
	return &RoleHandler{gate: gate}
}

func (h *RoleHandler) SetRole(c *fiber.Ctx) error {
	appID := tenant.GetAppID(c)
	target, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid user ID",
		})
	}

	var req dto.SetRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if caller, ok := session.FromCtx(c); ok && caller.UserID == target && req.Role != models.RoleAdmin {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: true, Message: "You cannot remove your own admin role",
		})
	}

	if err := h.gate.SetRole(c.UserContext(), appID, target, req.Role); err != nil {
		if errors.Is(err, session.ErrInvalidRole) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		}
		return internalError(c, "role update failed", appID, err)
	}

	return c.JSON(dto.UserResponse{ID: target, Role: req.Role})
}
