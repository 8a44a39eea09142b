// Package nitip is the deposit counter: attendants check items into numbered
// slots, hand out pickup codes and close deposits out when items are collected.
package nitip

import (
	"context"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/config"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/events"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type Plugin struct {
	svc      *Service
	registry *tenant.Registry
	photos   PhotoSigner
	broker   events.Broker
}

func New(svc *Service, registry *tenant.Registry, photos PhotoSigner, broker events.Broker) *Plugin {
	return &Plugin{svc: svc, registry: registry, photos: photos, broker: broker}
}

// NewStore picks the deposit store named by DEPOSIT_STORE.
func NewStore(cfg *config.Config, db *gorm.DB) Store {
	if cfg.DepositStore == "memory" || db == nil {
		return NewMemoryStore()
	}
	return NewGormStore(db)
}

func (p *Plugin) ID() string { return "nitip" }

func (p *Plugin) Models() []interface{} {
	return []interface{}{&Deposit{}}
}

func (p *Plugin) RegisterRoutes(router fiber.Router) {
	h := NewDepositHandler(p.svc, p.registry, p.photos)

	router.Get("/slots", h.Slots)

	router.Post("/deposits", h.Create)
	router.Get("/deposits/lookup", h.Lookup)
	router.Get("/deposits/active", h.ListActive)
	router.Get("/deposits/active/stream", h.StreamActive)
	router.Get("/deposits/mine", h.ListMine)
	router.Post("/deposits/photo-upload", h.PhotoUpload)
	router.Get("/deposits/:id", h.Get)
	router.Post("/deposits/:id/pickup", h.Pickup)
}

func (p *Plugin) RegisterAdminRoutes(router fiber.Router) {
	h := NewDepositHandler(p.svc, p.registry, p.photos)

	router.Get("/deposits", h.ListAll)
	router.Get("/deposits/history", h.ListHistory)
	router.Get("/deposits/history/stream", h.StreamHistory)
	router.Get("/deposits/stats", h.Stats)
}

// Run consumes change events from other instances until ctx ends.
func (p *Plugin) Run(ctx context.Context) error {
	if p.broker == nil {
		<-ctx.Done()
		return nil
	}
	return p.broker.Run(ctx, p.svc.HandleEvent)
}

// Close ends open live feeds.
func (p *Plugin) Close() error {
	p.svc.Close()
	if p.broker != nil {
		return p.broker.Close()
	}
	return nil
}
