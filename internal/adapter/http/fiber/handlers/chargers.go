package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type ChargerHandler struct {
	service ports.ChargePointService
	log     *zap.Logger
}

func NewChargerHandler(service ports.ChargePointService, log *zap.Logger) *ChargerHandler {
	return &ChargerHandler{
		service: service,
		log:     log,
	}
}

// List returns all chargers, optionally filtered by status.
func (h *ChargerHandler) List(c *fiber.Ctx) error {
	filter := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}
	if op := c.Query("operational_status"); op != "" {
		filter["operational_status"] = op
	}

	views, err := h.service.List(c.Context(), filter)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"chargers": views,
		"count":    len(views),
	})
}

func (h *ChargerHandler) Get(c *fiber.Ctx) error {
	view, err := h.service.Get(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(view)
}

// ListPending returns chargers that connected but still need location
// and pricing before going live.
func (h *ChargerHandler) ListPending(c *fiber.Ctx) error {
	views, err := h.service.ListPending(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"chargers": views,
		"count":    len(views),
	})
}

func (h *ChargerHandler) History(c *fiber.Ctx) error {
	from, to, err := timeRange(c)
	if err != nil {
		return err
	}

	sessions, err := h.service.History(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

type updateLocationRequest struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

func (h *ChargerHandler) UpdateLocation(c *fiber.Ctx) error {
	var req updateLocationRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
		return fiber.NewError(fiber.StatusBadRequest, "Coordinates out of range")
	}

	if err := h.service.UpdateLocation(c.Context(), c.Params("id"),
		req.Latitude, req.Longitude, req.Address); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Location updated"})
}

type updatePricingRequest struct {
	PricePerKwh  float64 `json:"price_per_kwh"`
	ChargeRateKW float64 `json:"charge_rate_kw"`
}

func (h *ChargerHandler) UpdatePricing(c *fiber.Ctx) error {
	var req updatePricingRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.PricePerKwh < 0 || req.ChargeRateKW < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Price and charge rate must not be negative")
	}

	if err := h.service.UpdatePricing(c.Context(), c.Params("id"),
		req.PricePerKwh, req.ChargeRateKW); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Pricing updated"})
}

type operationalStatusRequest struct {
	Status string `json:"status"`
}

func (h *ChargerHandler) SetOperationalStatus(c *fiber.Ctx) error {
	var req operationalStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	status := domain.OperationalStatus(req.Status)
	switch status {
	case domain.OperationalEnabled, domain.OperationalDisabled, domain.OperationalMaintenance:
	default:
		return fiber.NewError(fiber.StatusBadRequest, "Unknown operational status")
	}

	if err := h.service.SetOperationalStatus(c.Context(), c.Params("id"), status); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "Operational status updated"})
}

// timeRange parses the from/to query window, defaulting to the last
// 24 hours.
func timeRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.Add(-24 * time.Hour)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "Invalid 'from' timestamp")
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "Invalid 'to' timestamp")
		}
		to = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "'to' must be after 'from'")
	}
	return from, to, nil
}
