package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp"
)

// ErrorHandler maps domain errors to HTTP statuses so handlers can
// return them directly.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError

		var fiberErr *fiber.Error
		var callErr *ocpp.CallError

		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.Is(err, domain.ErrNotFound),
			errors.Is(err, domain.ErrUnknownCharger),
			errors.Is(err, domain.ErrNoActiveSession):
			code = fiber.StatusNotFound
		case errors.Is(err, domain.ErrChargerOffline),
			errors.Is(err, domain.ErrChargerDisconnected):
			code = fiber.StatusServiceUnavailable
		case errors.Is(err, domain.ErrChargerBusy),
			errors.Is(err, domain.ErrAmbiguousSession),
			errors.Is(err, domain.ErrSessionConflict),
			errors.Is(err, domain.ErrDeviceExists):
			code = fiber.StatusConflict
		case errors.Is(err, domain.ErrCallTimeout):
			code = fiber.StatusGatewayTimeout
		case errors.Is(err, domain.ErrInvalidChargerID):
			code = fiber.StatusBadRequest
		case errors.As(err, &callErr):
			// The charger itself refused the command.
			code = fiber.StatusBadGateway
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("Request failed",
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.Error(err),
			)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
