package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/http/fiber/middleware"
	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/mocks"
	"github.com/voltgrid/csms/internal/ports"
)

func newApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(zap.NewNop()),
	})
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("response not json: %v (%s)", err, raw)
		}
	}
	return resp, decoded
}

func TestChargerGet(t *testing.T) {
	t.Run("returns the view", func(t *testing.T) {
		svc := &mocks.MockChargePointService{}
		svc.GetFunc = func(_ context.Context, id string) (*ports.ChargePointView, error) {
			return &ports.ChargePointView{
				ChargePoint: domain.ChargePoint{ID: id},
				IsOnline:    true,
			}, nil
		}
		app := newApp()
		h := NewChargerHandler(svc, zap.NewNop())
		app.Get("/chargers/:id", h.Get)

		resp, body := doJSON(t, app, http.MethodGet, "/chargers/CP001", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["id"] != "CP001" || body["is_online"] != true {
			t.Fatalf("unexpected body %v", body)
		}
	})

	t.Run("unknown charger maps to 404", func(t *testing.T) {
		app := newApp()
		h := NewChargerHandler(&mocks.MockChargePointService{}, zap.NewNop())
		app.Get("/chargers/:id", h.Get)

		resp, _ := doJSON(t, app, http.MethodGet, "/chargers/CP404", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestChargerUpdateLocation(t *testing.T) {
	svc := &mocks.MockChargePointService{}
	var gotLat, gotLng float64
	svc.UpdateLocationFunc = func(_ context.Context, id string, lat, lng float64, address string) error {
		gotLat, gotLng = lat, lng
		return nil
	}
	app := newApp()
	h := NewChargerHandler(svc, zap.NewNop())
	app.Put("/chargers/:id/location", h.UpdateLocation)

	resp, _ := doJSON(t, app, http.MethodPut, "/chargers/CP001/location", map[string]interface{}{
		"latitude": 4.6097, "longitude": -74.0817, "address": "Bogotá",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotLat != 4.6097 || gotLng != -74.0817 {
		t.Fatalf("unexpected coordinates %v,%v", gotLat, gotLng)
	}

	// Out-of-range coordinates never reach the service.
	resp, _ = doJSON(t, app, http.MethodPut, "/chargers/CP001/location", map[string]interface{}{
		"latitude": 95.0, "longitude": 0.0,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestChargerSetOperationalStatus(t *testing.T) {
	svc := &mocks.MockChargePointService{}
	var gotStatus domain.OperationalStatus
	svc.SetOperationalStatusFunc = func(_ context.Context, id string, status domain.OperationalStatus) error {
		gotStatus = status
		return nil
	}
	app := newApp()
	h := NewChargerHandler(svc, zap.NewNop())
	app.Patch("/chargers/:id/operational-status", h.SetOperationalStatus)

	resp, _ := doJSON(t, app, http.MethodPatch, "/chargers/CP001/operational-status",
		map[string]string{"status": "MAINTENANCE"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if gotStatus != domain.OperationalMaintenance {
		t.Fatalf("unexpected status %s", gotStatus)
	}

	resp, _ = doJSON(t, app, http.MethodPatch, "/chargers/CP001/operational-status",
		map[string]string{"status": "BROKEN"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", resp.StatusCode)
	}
}

func TestRemoteStart(t *testing.T) {
	t.Run("forwards to the service", func(t *testing.T) {
		svc := &mocks.MockControlService{}
		var gotTag string
		svc.RemoteStartFunc = func(_ context.Context, cpID, idTag string, connectorID *int) (string, error) {
			gotTag = idTag
			return "Accepted", nil
		}
		app := newApp()
		h := NewControlHandler(svc, zap.NewNop())
		app.Post("/chargers/:id/remote-start", h.RemoteStart)

		resp, body := doJSON(t, app, http.MethodPost, "/chargers/CP001/remote-start",
			map[string]interface{}{"id_tag": "TAG001", "connector_id": 1})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["status"] != "Accepted" || gotTag != "TAG001" {
			t.Fatalf("unexpected result %v / %s", body, gotTag)
		}
	})

	t.Run("missing id_tag is rejected", func(t *testing.T) {
		app := newApp()
		h := NewControlHandler(&mocks.MockControlService{}, zap.NewNop())
		app.Post("/chargers/:id/remote-start", h.RemoteStart)

		resp, _ := doJSON(t, app, http.MethodPost, "/chargers/CP001/remote-start",
			map[string]interface{}{})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("offline charger maps to 503", func(t *testing.T) {
		svc := &mocks.MockControlService{}
		svc.RemoteStartFunc = func(_ context.Context, cpID, idTag string, connectorID *int) (string, error) {
			return "", domain.ErrChargerOffline
		}
		app := newApp()
		h := NewControlHandler(svc, zap.NewNop())
		app.Post("/chargers/:id/remote-start", h.RemoteStart)

		resp, _ := doJSON(t, app, http.MethodPost, "/chargers/CP001/remote-start",
			map[string]interface{}{"id_tag": "TAG001"})
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.StatusCode)
		}
	})

	t.Run("call timeout maps to 504", func(t *testing.T) {
		svc := &mocks.MockControlService{}
		svc.RemoteStartFunc = func(_ context.Context, cpID, idTag string, connectorID *int) (string, error) {
			return "", domain.ErrCallTimeout
		}
		app := newApp()
		h := NewControlHandler(svc, zap.NewNop())
		app.Post("/chargers/:id/remote-start", h.RemoteStart)

		resp, _ := doJSON(t, app, http.MethodPost, "/chargers/CP001/remote-start",
			map[string]interface{}{"id_tag": "TAG001"})
		if resp.StatusCode != http.StatusGatewayTimeout {
			t.Fatalf("expected 504, got %d", resp.StatusCode)
		}
	})
}

func TestRemoteStop(t *testing.T) {
	svc := &mocks.MockControlService{}
	svc.RemoteStopFunc = func(_ context.Context, cpID string, transactionID *int) (string, error) {
		if transactionID == nil {
			return "", domain.ErrAmbiguousSession
		}
		return "Accepted", nil
	}
	app := newApp()
	h := NewControlHandler(svc, zap.NewNop())
	app.Post("/chargers/:id/remote-stop", h.RemoteStop)

	resp, _ := doJSON(t, app, http.MethodPost, "/chargers/CP001/remote-stop",
		map[string]interface{}{"transaction_id": 42})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Ambiguity surfaces as a conflict the operator must resolve.
	resp, _ = doJSON(t, app, http.MethodPost, "/chargers/CP001/remote-stop",
		map[string]interface{}{})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestReset(t *testing.T) {
	app := newApp()
	h := NewControlHandler(&mocks.MockControlService{}, zap.NewNop())
	app.Post("/chargers/:id/reset", h.Reset)

	resp, _ := doJSON(t, app, http.MethodPost, "/chargers/CP001/reset",
		map[string]string{"type": "Soft"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/chargers/CP001/reset",
		map[string]string{"type": "Medium"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad reset type, got %d", resp.StatusCode)
	}
}

func TestDeviceProvision(t *testing.T) {
	t.Run("returns the one-time credentials", func(t *testing.T) {
		svc := &mocks.MockDeviceService{}
		svc.ProvisionFunc = func(_ context.Context, serial, typeCode string) (*domain.Device, *domain.MQTTCredentials, error) {
			return &domain.Device{SerialNumber: serial, TypeCode: typeCode, Active: true},
				&domain.MQTTCredentials{ClientID: typeCode + "&" + serial, Username: serial, Password: "secretsecret"},
				nil
		}
		app := newApp()
		h := NewDeviceHandler(svc, zap.NewNop())
		app.Post("/devices", h.Provision)

		resp, body := doJSON(t, app, http.MethodPost, "/devices",
			map[string]string{"serial_number": "SN0012345", "type_code": "AC22"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201, got %d", resp.StatusCode)
		}
		creds, ok := body["credentials"].(map[string]interface{})
		if !ok || creds["password"] != "secretsecret" {
			t.Fatalf("expected credentials in response, got %v", body)
		}
	})

	t.Run("duplicate serial maps to 409", func(t *testing.T) {
		svc := &mocks.MockDeviceService{}
		svc.ProvisionFunc = func(_ context.Context, serial, typeCode string) (*domain.Device, *domain.MQTTCredentials, error) {
			return nil, nil, domain.ErrDeviceExists
		}
		app := newApp()
		h := NewDeviceHandler(svc, zap.NewNop())
		app.Post("/devices", h.Provision)

		resp, _ := doJSON(t, app, http.MethodPost, "/devices",
			map[string]string{"serial_number": "SN0012345", "type_code": "AC22"})
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("expected 409, got %d", resp.StatusCode)
		}
	})
}

func TestBrokerAuth(t *testing.T) {
	svc := &mocks.MockDeviceService{}
	svc.VerifyCredentialsFunc = func(_ context.Context, serial, password string) (bool, error) {
		return password == "good", nil
	}
	app := newApp()
	h := NewDeviceHandler(svc, zap.NewNop())
	app.Post("/broker/auth", h.BrokerAuth)

	resp, body := doJSON(t, app, http.MethodPost, "/broker/auth",
		map[string]string{"username": "SN0012345", "password": "good"})
	if resp.StatusCode != http.StatusOK || body["result"] != "allow" {
		t.Fatalf("expected allow, got %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, app, http.MethodPost, "/broker/auth",
		map[string]string{"username": "SN0012345", "password": "bad"})
	if resp.StatusCode != http.StatusUnauthorized || body["result"] != "deny" {
		t.Fatalf("expected deny, got %d %v", resp.StatusCode, body)
	}
}

func TestStatisticsHeartbeats(t *testing.T) {
	svc := &mocks.MockStatisticsService{}
	var gotFrom, gotTo time.Time
	svc.HeartbeatHistoryFunc = func(_ context.Context, cpID string, from, to time.Time) ([]ports.HeartbeatPoint, error) {
		gotFrom, gotTo = from, to
		return []ports.HeartbeatPoint{{Timestamp: from}}, nil
	}
	app := newApp()
	h := NewStatisticsHandler(svc, zap.NewNop())
	app.Get("/chargers/:id/heartbeats", h.Heartbeats)

	resp, body := doJSON(t, app, http.MethodGet,
		"/chargers/CP001/heartbeats?from=2026-08-25T00:00:00Z&to=2026-08-26T00:00:00Z", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["count"] != float64(1) {
		t.Fatalf("unexpected body %v", body)
	}
	if gotTo.Sub(gotFrom) != 24*time.Hour {
		t.Fatalf("unexpected window %s..%s", gotFrom, gotTo)
	}

	// An inverted window never reaches the service.
	resp, _ = doJSON(t, app, http.MethodGet,
		"/chargers/CP001/heartbeats?from=2026-08-26T00:00:00Z&to=2026-08-25T00:00:00Z", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	validator := &mocks.MockTokenValidator{}
	validator.ValidateTokenFunc = func(_ context.Context, token string) (*ports.TokenClaims, error) {
		if token != "good-token" {
			return nil, domain.ErrNotFound
		}
		return &ports.TokenClaims{Subject: "op-1", Role: "operator"}, nil
	}

	app := newApp()
	app.Get("/protected", middleware.AuthRequired(validator), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"user": c.Locals("user_id")})
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("bad token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer good-token")
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil || body["user"] != "op-1" {
			t.Fatalf("expected the identity in locals, got %s", raw)
		}
	})
}
