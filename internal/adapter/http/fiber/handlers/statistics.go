package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/ports"
)

type StatisticsHandler struct {
	service ports.StatisticsService
	log     *zap.Logger
}

func NewStatisticsHandler(service ports.StatisticsService, log *zap.Logger) *StatisticsHandler {
	return &StatisticsHandler{
		service: service,
		log:     log,
	}
}

func (h *StatisticsHandler) Heartbeats(c *fiber.Ctx) error {
	from, to, err := timeRange(c)
	if err != nil {
		return err
	}

	points, err := h.service.HeartbeatHistory(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"heartbeats": points,
		"count":      len(points),
	})
}

func (h *StatisticsHandler) StatusTimeline(c *fiber.Ctx) error {
	from, to, err := timeRange(c)
	if err != nil {
		return err
	}

	changes, err := h.service.StatusTimeline(c.Context(), c.Params("id"), from, to)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"timeline": changes,
		"count":    len(changes),
	})
}
