package apps

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// Plugin defines the interface every app must implement.
type Plugin interface {
	// ID returns the unique plugin identifier.
	ID() string

	// Models returns the list of GORM model pointers for AutoMigrate.
	Models() []interface{}

	// RegisterRoutes mounts app routes on the given Fiber group.
	// The group is prefixed with /api/p and resolves the session identity.
	RegisterRoutes(router fiber.Router)
}

// AdminPlugin extends Plugin with admin-specific route registration.
type AdminPlugin interface {
	Plugin

	// RegisterAdminRoutes mounts admin-only routes on the given Fiber group.
	// The group requires the admin role.
	RegisterAdminRoutes(router fiber.Router)
}

// Runner is implemented by plugins with background work. Run blocks until
// ctx ends; Close releases what Run and the routes hold.
type Runner interface {
	Run(ctx context.Context) error
	Close() error
}
