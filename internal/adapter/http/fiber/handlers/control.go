package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/ports"
)

// ControlHandler exposes the server-initiated charger commands. Every
// route blocks until the charger answers or the call times out.
type ControlHandler struct {
	service ports.ControlService
	log     *zap.Logger
}

func NewControlHandler(service ports.ControlService, log *zap.Logger) *ControlHandler {
	return &ControlHandler{
		service: service,
		log:     log,
	}
}

type remoteStartRequest struct {
	IdTag       string `json:"id_tag"`
	ConnectorID *int   `json:"connector_id,omitempty"`
}

func (h *ControlHandler) RemoteStart(c *fiber.Ctx) error {
	var req remoteStartRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.IdTag == "" {
		return fiber.NewError(fiber.StatusBadRequest, "id_tag is required")
	}

	status, err := h.service.RemoteStart(c.Context(), c.Params("id"), req.IdTag, req.ConnectorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type remoteStopRequest struct {
	TransactionID *int `json:"transaction_id,omitempty"`
}

func (h *ControlHandler) RemoteStop(c *fiber.Ctx) error {
	var req remoteStopRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	status, err := h.service.RemoteStop(c.Context(), c.Params("id"), req.TransactionID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type resetRequest struct {
	Type string `json:"type"`
}

func (h *ControlHandler) Reset(c *fiber.Ctx) error {
	var req resetRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Type != "Hard" && req.Type != "Soft" {
		return fiber.NewError(fiber.StatusBadRequest, "type must be Hard or Soft")
	}

	status, err := h.service.Reset(c.Context(), c.Params("id"), req.Type)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type changeAvailabilityRequest struct {
	ConnectorID int    `json:"connector_id"`
	Type        string `json:"type"`
}

func (h *ControlHandler) ChangeAvailability(c *fiber.Ctx) error {
	var req changeAvailabilityRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Type != "Operative" && req.Type != "Inoperative" {
		return fiber.NewError(fiber.StatusBadRequest, "type must be Operative or Inoperative")
	}

	status, err := h.service.ChangeAvailability(c.Context(), c.Params("id"), req.ConnectorID, req.Type)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type triggerMessageRequest struct {
	RequestedMessage string `json:"requested_message"`
}

func (h *ControlHandler) TriggerMessage(c *fiber.Ctx) error {
	var req triggerMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.RequestedMessage == "" {
		return fiber.NewError(fiber.StatusBadRequest, "requested_message is required")
	}

	status, err := h.service.TriggerMessage(c.Context(), c.Params("id"), req.RequestedMessage)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type unlockConnectorRequest struct {
	ConnectorID int `json:"connector_id"`
}

func (h *ControlHandler) UnlockConnector(c *fiber.Ctx) error {
	var req unlockConnectorRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.ConnectorID < 1 {
		return fiber.NewError(fiber.StatusBadRequest, "connector_id must be positive")
	}

	status, err := h.service.UnlockConnector(c.Context(), c.Params("id"), req.ConnectorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": status})
}

type getDiagnosticsRequest struct {
	Location string `json:"location"`
}

func (h *ControlHandler) GetDiagnostics(c *fiber.Ctx) error {
	var req getDiagnosticsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Location == "" {
		return fiber.NewError(fiber.StatusBadRequest, "location is required")
	}

	fileName, err := h.service.GetDiagnostics(c.Context(), c.Params("id"), req.Location)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"file_name": fileName})
}

type updateFirmwareRequest struct {
	Location     string    `json:"location"`
	RetrieveDate time.Time `json:"retrieve_date"`
}

func (h *ControlHandler) UpdateFirmware(c *fiber.Ctx) error {
	var req updateFirmwareRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Location == "" {
		return fiber.NewError(fiber.StatusBadRequest, "location is required")
	}
	if req.RetrieveDate.IsZero() {
		req.RetrieveDate = time.Now()
	}

	if err := h.service.UpdateFirmware(c.Context(), c.Params("id"), req.Location, req.RetrieveDate); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"message": "Firmware update requested"})
}
