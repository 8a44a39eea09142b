package nitip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/models"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/services"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/session"
	"github.com/ahmetcoskunkizilkaya/nitip-barang/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSigner struct {
	err error
}

func (f *fakeSigner) PresignUpload(_ context.Context, appID, contentType string, size int64) (*services.UploadTicket, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := services.ValidateImage(contentType, size); err != nil {
		return nil, err
	}
	return &services.UploadTicket{
		UploadURL: "https://s3.test/put",
		Method:    http.MethodPut,
		PublicURL: "https://cdn.test/deposits/" + appID + "/p.jpg",
	}, nil
}

type handlerEnv struct {
	app   *fiber.App
	svc   *Service
	users map[string]*session.Identity
}

// newHandlerEnv mounts the plugin behind a stub session layer that picks the
// identity from the X-Test-User header.
func newHandlerEnv(t *testing.T, signer PhotoSigner) *handlerEnv {
	t.Helper()

	registry := tenant.NewRegistry()
	registry.Register(&tenant.AppConfig{
		AppID:           "mall-a",
		AppName:         "Mall A",
		MessageTemplate: "Slot {slot} kode {code}",
		Features:        map[string]bool{featurePhotoUpload: true},
	})
	registry.Register(&tenant.AppConfig{AppID: "mall-b", AppName: "Mall B"})

	svc := NewService(Options{Store: NewMemoryStore()})
	t.Cleanup(svc.Close)

	env := &handlerEnv{
		svc: svc,
		users: map[string]*session.Identity{
			"alice":  {UserID: uuid.New(), AppID: "mall-a", Role: models.RoleUser},
			"bob":    {UserID: uuid.New(), AppID: "mall-a", Role: models.RoleUser},
			"boss":   {UserID: uuid.New(), AppID: "mall-a", Role: models.RoleAdmin},
			"mall-b": {UserID: uuid.New(), AppID: "mall-b", Role: models.RoleUser},
		},
	}

	app := fiber.New()
	stub := func(c *fiber.Ctx) error {
		if id, ok := env.users[c.Get("X-Test-User")]; ok {
			c.Locals("app_id", id.AppID)
			session.Attach(c, id)
		}
		return c.Next()
	}
	plugin := New(svc, registry, signer, nil)
	plugin.RegisterRoutes(app.Group("/api/p", stub))
	plugin.RegisterAdminRoutes(app.Group("/api/admin", stub))
	env.app = app
	return env
}

func (e *handlerEnv) do(t *testing.T, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func depositBody(slot int) map[string]any {
	return map[string]any{"owner_name": "Budi", "owner_phone": "081234567890", "slot": slot}
}

func TestHandlers_DepositLookupPickup(t *testing.T) {
	env := newHandlerEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/api/p/deposits", "alice", depositBody(5))
	require.Equal(t, fiber.StatusCreated, status, body)
	data := body["data"].(map[string]any)
	dep := data["deposit"].(map[string]any)
	code := dep["pickup_code"].(string)
	id := dep["id"].(string)
	assert.Equal(t, "active", dep["status"])
	assert.Equal(t, "https://wa.me/6281234567890?text=Slot%205%20kode%20"+code, data["whatsapp_link"])

	status, body = env.do(t, http.MethodGet, "/api/p/deposits/lookup?code=%20"+strings.ToLower(code)+"%20", "bob", nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["eligible"])

	status, body = env.do(t, http.MethodPost, "/api/p/deposits/"+id+"/pickup", "bob", nil)
	require.Equal(t, fiber.StatusOK, status, body)
	data = body["data"].(map[string]any)
	assert.Equal(t, "picked_up", data["deposit"].(map[string]any)["status"])
	assert.Equal(t, "https://wa.me/6281234567890?text=Slot%205%20kode%20"+code, data["whatsapp_link"])

	status, body = env.do(t, http.MethodPost, "/api/p/deposits/"+id+"/pickup", "bob", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "Item already collected", body["message"])

	status, body = env.do(t, http.MethodGet, "/api/p/deposits/lookup?code="+code, "alice", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, LookupCollected, body["state"])
}

func TestHandlers_DepositErrors(t *testing.T) {
	env := newHandlerEnv(t, nil)

	status, body := env.do(t, http.MethodPost, "/api/p/deposits", "alice", depositBody(51))
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Contains(t, body["message"], "slot")

	status, _ = env.do(t, http.MethodPost, "/api/p/deposits", "alice", depositBody(7))
	require.Equal(t, fiber.StatusCreated, status)
	status, body = env.do(t, http.MethodPost, "/api/p/deposits", "bob", depositBody(7))
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "Slot is already occupied", body["message"])

	status, _ = env.do(t, http.MethodPost, "/api/p/deposits", "", depositBody(8))
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestHandlers_LookupUnknown(t *testing.T) {
	env := newHandlerEnv(t, nil)

	status, body := env.do(t, http.MethodGet, "/api/p/deposits/lookup?code=ZZZZZZ", "alice", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "Invalid code", body["message"])
	assert.Equal(t, LookupNotFound, body["state"])
}

func TestHandlers_PickupBadID(t *testing.T) {
	env := newHandlerEnv(t, nil)

	status, _ := env.do(t, http.MethodPost, "/api/p/deposits/not-a-uuid/pickup", "alice", nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/p/deposits/"+uuid.NewString()+"/pickup", "alice", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestHandlers_SlotsAndActive(t *testing.T) {
	env := newHandlerEnv(t, nil)

	env.do(t, http.MethodPost, "/api/p/deposits", "alice", depositBody(3))
	env.do(t, http.MethodPost, "/api/p/deposits", "bob", depositBody(4))

	status, body := env.do(t, http.MethodGet, "/api/p/slots", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	occ := body["occupancy"].(map[string]any)
	assert.Equal(t, float64(2), occ["occupied"])
	assert.Len(t, body["free_slots"], 48)

	status, body = env.do(t, http.MethodGet, "/api/p/deposits/active", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["deposits"], 1)

	status, body = env.do(t, http.MethodGet, "/api/p/deposits/mine", "bob", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["deposits"], 1)

	status, body = env.do(t, http.MethodGet, "/api/p/slots", "mall-b", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(0), body["occupancy"].(map[string]any)["occupied"])
}

func TestHandlers_AdminRoutes(t *testing.T) {
	env := newHandlerEnv(t, nil)

	env.do(t, http.MethodPost, "/api/p/deposits", "alice", depositBody(3))

	status, _ := env.do(t, http.MethodGet, "/api/admin/deposits", "alice", nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := env.do(t, http.MethodGet, "/api/admin/deposits?status=active", "boss", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["deposits"], 1)

	status, body = env.do(t, http.MethodGet, "/api/admin/deposits/history", "boss", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["deposits"], 0)

	status, body = env.do(t, http.MethodGet, "/api/admin/deposits/stats", "boss", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(1), body["stats"].(map[string]any)["active"])

	status, _ = env.do(t, http.MethodGet, "/api/admin/deposits/history/stream", "alice", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestHandlers_PhotoUpload(t *testing.T) {
	env := newHandlerEnv(t, &fakeSigner{})

	status, body := env.do(t, http.MethodPost, "/api/p/deposits/photo-upload", "alice",
		map[string]any{"content_type": "image/png", "size": 1024})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "https://cdn.test/deposits/mall-a/p.jpg", body["upload"].(map[string]any)["public_url"])

	status, _ = env.do(t, http.MethodPost, "/api/p/deposits/photo-upload", "alice",
		map[string]any{"content_type": "image/gif", "size": 1024})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/p/deposits/photo-upload", "alice",
		map[string]any{"content_type": "image/png", "size": services.MaxImageBytes + 1})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/p/deposits/photo-upload", "mall-b",
		map[string]any{"content_type": "image/png", "size": 1024})
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestHandlers_PhotoUploadUnavailable(t *testing.T) {
	env := newHandlerEnv(t, nil)
	status, _ := env.do(t, http.MethodPost, "/api/p/deposits/photo-upload", "alice",
		map[string]any{"content_type": "image/png", "size": 1024})
	assert.Equal(t, fiber.StatusServiceUnavailable, status)

	env = newHandlerEnv(t, &fakeSigner{err: errors.New("s3 unreachable")})
	status, body := env.do(t, http.MethodPost, "/api/p/deposits/photo-upload", "alice",
		map[string]any{"content_type": "image/png", "size": 1024})
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "Something went wrong, please try again", body["message"])
}

func TestHandlers_GetDeposit(t *testing.T) {
	env := newHandlerEnv(t, nil)

	_, body := env.do(t, http.MethodPost, "/api/p/deposits", "alice", depositBody(3))
	id := body["data"].(map[string]any)["deposit"].(map[string]any)["id"].(string)

	status, _ := env.do(t, http.MethodGet, "/api/p/deposits/"+id, "alice", nil)
	assert.Equal(t, fiber.StatusOK, status)

	status, _ = env.do(t, http.MethodGet, "/api/p/deposits/"+id, "bob", nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestWriteEvent(t *testing.T) {
	var buf bytes.Buffer
	snap := Snapshot{Version: 7, Feed: FeedActive, Deposits: []Deposit{}, Occupancy: Summarize(nil)}

	require.NoError(t, writeEvent(&buf, snap))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "id: 7\nevent: snapshot\ndata: {"))
	assert.True(t, strings.HasSuffix(out, "}\n\n"))
	assert.Contains(t, out, `"feed":"active"`)
}

func TestHandlers_StreamActive(t *testing.T) {
	registry := tenant.NewRegistry()
	registry.Register(&tenant.AppConfig{AppID: "mall-a", AppName: "Mall A"})

	svc := NewService(Options{Store: NewMemoryStore()})
	t.Cleanup(svc.Close)

	desk := &session.Identity{UserID: uuid.New(), AppID: "mall-a", Role: models.RoleAdmin}
	_, err := svc.Deposit(context.Background(), desk, DepositInput{OwnerName: "Budi", OwnerPhone: "081234567890", Slot: 9})
	require.NoError(t, err)

	h := NewDepositHandler(svc, registry, nil)
	h.heartbeat = 10 * time.Millisecond

	app := fiber.New()
	app.Get("/stream", func(c *fiber.Ctx) error {
		session.Attach(c, desk)
		return c.Next()
	}, h.StreamActive)

	// Shutting the service down ends the stream and lets the response finish.
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for svc.Hub().Subscribers("mall-a", FeedActive) == 0 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		time.Sleep(100 * time.Millisecond)
		svc.Close()
	}()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/stream", nil), 5000)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "id: 1\nevent: snapshot\ndata: {")
	assert.Contains(t, out, `"slot":9`)
	assert.Contains(t, out, ": ping\n\n")
	assert.Eventually(t, func() bool {
		return svc.Hub().Subscribers("mall-a", FeedActive) == 0
	}, time.Second, 5*time.Millisecond)
}
