// Package session resolves who is calling and what they may do.
//
// An Identity is built per request after the JWT has been verified: the role is
// read from the caller's profile at that point and lives only in the request
// context. Nothing here caches roles across requests.
package session

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient role")
	ErrInvalidRole     = errors.New("role must be admin or user")
)

const localsKey = "identity"

// Identity is an authenticated actor with its resolved role.
type Identity struct {
	UserID uuid.UUID `json:"id"`
	AppID  string    `json:"-"`
	Email  string    `json:"email"`
	Role   string    `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.RoleAdmin
}

// CanSeeOwner reports whether the identity may read records deposited by ownerID.
func (i *Identity) CanSeeOwner(ownerID uuid.UUID) bool {
	if i == nil {
		return false
	}
	return i.IsAdmin() || i.UserID == ownerID
}

// Authorize allows id when it holds one of roles. With no roles any
// authenticated identity is allowed.
func Authorize(id *Identity, roles ...string) error {
	if id == nil || id.UserID == uuid.Nil {
		return ErrUnauthenticated
	}
	if len(roles) == 0 {
		return nil
	}
	for _, r := range roles {
		if id.Role == r {
			return nil
		}
	}
	return ErrForbidden
}

// Attach stores id in the request locals.
func Attach(c *fiber.Ctx, id *Identity) {
	c.Locals(localsKey, id)
}

// FromCtx returns the identity attached by the session middleware.
func FromCtx(c *fiber.Ctx) (*Identity, bool) {
	id, ok := c.Locals(localsKey).(*Identity)
	return id, ok && id != nil
}
