package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/ports"
)

type DeviceHandler struct {
	service ports.DeviceService
	log     *zap.Logger
}

func NewDeviceHandler(service ports.DeviceService, log *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		service: service,
		log:     log,
	}
}

type provisionRequest struct {
	SerialNumber string `json:"serial_number"`
	TypeCode     string `json:"type_code"`
}

// Provision registers a device and returns its broker credentials.
// The password appears only in this response.
func (h *DeviceHandler) Provision(c *fiber.Ctx) error {
	var req provisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.SerialNumber == "" || req.TypeCode == "" {
		return fiber.NewError(fiber.StatusBadRequest, "serial_number and type_code are required")
	}

	device, creds, err := h.service.Provision(c.Context(), req.SerialNumber, req.TypeCode)
	if err != nil {
		return err
	}

	h.log.Info("Device provisioned",
		zap.String("serial", device.SerialNumber),
		zap.String("type_code", device.TypeCode),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"device":      device,
		"credentials": creds,
	})
}

func (h *DeviceHandler) List(c *fiber.Ctx) error {
	devices, err := h.service.List(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"devices": devices,
		"count":   len(devices),
	})
}

func (h *DeviceHandler) Get(c *fiber.Ctx) error {
	device, err := h.service.GetBySerial(c.Context(), c.Params("serial"))
	if err != nil {
		return err
	}
	return c.JSON(device)
}

type brokerAuthRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// BrokerAuth is the MQTT broker's authentication webhook. It answers
// allow/deny for a connecting device.
func (h *DeviceHandler) BrokerAuth(c *fiber.Ctx) error {
	var req brokerAuthRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	ok, err := h.service.VerifyCredentials(c.Context(), req.Username, req.Password)
	if err != nil {
		return err
	}
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"result": "deny"})
	}
	return c.JSON(fiber.Map{"result": "allow"})
}
