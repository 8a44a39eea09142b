package nitip

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/services"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	featurePhotoUpload = "photo_upload"
	heartbeatInterval  = 20 * time.Second
)

// PhotoSigner issues direct-upload tickets for deposit photos.
type PhotoSigner interface {
	PresignUpload(ctx context.Context, appID, contentType string, size int64) (*services.UploadTicket, error)
}

type DepositHandler struct {
	svc       *Service
	registry  *tenant.Registry
	photos    PhotoSigner
	heartbeat time.Duration
}

func NewDepositHandler(svc *Service, registry *tenant.Registry, photos PhotoSigner) *DepositHandler {
	return &DepositHandler{svc: svc, registry: registry, photos: photos, heartbeat: heartbeatInterval}
}

type depositView struct {
	Deposit      *Deposit `json:"deposit"`
	WhatsAppLink string   `json:"whatsapp_link"`
}

func (h *DepositHandler) view(d *Deposit) depositView {
	return depositView{
		Deposit:      d,
		WhatsAppLink: WhatsAppLink(d, h.registry.GetMessageTemplate(d.AppID), h.registry.GetAppName(d.AppID)),
	}
}

func (h *DepositHandler) Slots(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	occ, err := h.svc.Occupancy(c.UserContext(), id)
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "occupancy": occ, "free_slots": occ.FreeSlots()})
}

func (h *DepositHandler) Create(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)

	var req DepositInput
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "Invalid request body",
		})
	}

	d, err := h.svc.Deposit(c.UserContext(), id, req)
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"error": false, "data": h.view(d)})
}

func (h *DepositHandler) Lookup(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)

	res, err := h.svc.LookupByCode(c.UserContext(), id, c.Query("code"))
	if err != nil {
		return h.fail(c, id, err)
	}

	switch res.State {
	case LookupActive:
		return c.JSON(fiber.Map{
			"error": false, "state": res.State, "eligible": true, "deposit": res.Deposit,
		})
	case LookupCollected:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": true, "state": res.State, "eligible": false,
			"message": "Item already collected", "deposit": res.Deposit,
		})
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": true, "state": res.State, "eligible": false, "message": "Invalid code",
		})
	}
}

func (h *DepositHandler) Get(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	depositID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "Invalid deposit ID",
		})
	}

	d, err := h.svc.Get(c.UserContext(), id, depositID)
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "data": h.view(d)})
}

func (h *DepositHandler) Pickup(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	depositID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "Invalid deposit ID",
		})
	}

	d, err := h.svc.Pickup(c.UserContext(), id, depositID)
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "data": h.view(d)})
}

func (h *DepositHandler) ListActive(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	deposits, occ, err := h.svc.ListActive(c.UserContext(), id)
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "deposits": deposits, "occupancy": occ})
}

func (h *DepositHandler) ListMine(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	deposits, err := h.svc.ListMine(c.UserContext(), id, c.Query("status"))
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "deposits": deposits})
}

func (h *DepositHandler) ListAll(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	deposits, err := h.svc.ListAll(c.UserContext(), id, c.Query("status"), c.QueryInt("limit", defaultListLimit))
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "deposits": deposits})
}

func (h *DepositHandler) ListHistory(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	deposits, err := h.svc.ListHistory(c.UserContext(), id, c.QueryInt("limit", defaultListLimit))
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "deposits": deposits})
}

func (h *DepositHandler) Stats(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	stats, err := h.svc.Stats(c.UserContext(), id)
	if err != nil {
		return h.fail(c, id, err)
	}
	return c.JSON(fiber.Map{"error": false, "stats": stats})
}

func (h *DepositHandler) PhotoUpload(c *fiber.Ctx) error {
	id, _ := session.FromCtx(c)
	if err := session.Authorize(id); err != nil {
		return h.fail(c, id, err)
	}
	if !h.registry.HasFeature(id.AppID, featurePhotoUpload) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": true, "message": "Photo uploads are disabled for this counter",
		})
	}
	if h.photos == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": true, "message": services.ErrImageHostDisabled.Error(),
		})
	}

	var req struct {
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "Invalid request body",
		})
	}

	ticket, err := h.photos.PresignUpload(c.UserContext(), id.AppID, req.ContentType, req.Size)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"error": false, "upload": ticket})
	case errors.Is(err, services.ErrUnsupportedImageType), errors.Is(err, services.ErrImageTooLarge):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": true, "message": err.Error()})
	case errors.Is(err, services.ErrImageHostDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": true, "message": err.Error()})
	default:
		return h.fail(c, id, err)
	}
}

func (h *DepositHandler) StreamActive(c *fiber.Ctx) error {
	return h.stream(c, FeedActive)
}

func (h *DepositHandler) StreamHistory(c *fiber.Ctx) error {
	return h.stream(c, FeedHistory)
}

// stream serves a feed as server-sent events, one full snapshot per event.
// It ends when the client goes away or the server shuts down.
func (h *DepositHandler) stream(c *fiber.Ctx, feed Feed) error {
	id, _ := session.FromCtx(c)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := h.svc.Subscribe(ctx, id, feed)
	if err != nil {
		cancel()
		return h.fail(c, id, err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	appID := id.AppID
	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer sub.Close()

		snapshots := make(chan Snapshot)
		go func() {
			for {
				snap, err := sub.Next(ctx)
				if err != nil {
					return
				}
				select {
				case snapshots <- snap:
				case <-ctx.Done():
					return
				}
			}
		}()

		heartbeat := time.NewTicker(h.heartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case snap := <-snapshots:
				if err := writeEvent(w, snap); err != nil {
					slog.Warn("feed event encode failed", "app_id", appID, "feed", string(feed), "error", err)
					return
				}
			case <-heartbeat.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
			case <-sub.Done():
				return
			}
			// A failed flush means the client disconnected.
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

// writeEvent frames a snapshot as one server-sent event.
func writeEvent(w io.Writer, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: snapshot\ndata: %s\n\n", snap.Version, data)
	return err
}

func (h *DepositHandler) fail(c *fiber.Ctx, id *session.Identity, err error) error {
	switch {
	case errors.Is(err, ErrValidation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": true, "message": err.Error()})
	case errors.Is(err, session.ErrUnauthenticated):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": true, "message": "Unauthorized"})
	case errors.Is(err, session.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": true, "message": "Admin access required"})
	case errors.Is(err, ErrDepositNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": true, "message": "Deposit not found"})
	case errors.Is(err, ErrSlotOccupied):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": true, "message": "Slot is already occupied"})
	case errors.Is(err, ErrAlreadyPickedUp):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": true, "message": "Item already collected"})
	case errors.Is(err, ErrCodeExhausted):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": true, "message": "Could not issue a pickup code, please try again"})
	}

	attrs := []any{"method", c.Method(), "path", c.Path(), "error", err}
	if id != nil {
		attrs = append(attrs, "app_id", id.AppID, "user_id", id.UserID.String(), "email", id.Email)
	}
	slog.Error("deposit request failed", attrs...)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": true, "message": "Something went wrong, please try again",
	})
}
