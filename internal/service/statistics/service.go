// Package statistics derives liveness and status timelines from the
// device audit log for the operator dashboard.
package statistics

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type Service struct {
	events ports.EventRepository
	log    *zap.Logger
}

func NewService(events ports.EventRepository, log *zap.Logger) ports.StatisticsService {
	return &Service{events: events, log: log}
}

// HeartbeatHistory lists every liveness observation in the window:
// heartbeats plus boots, which also prove the charger was alive.
func (s *Service) HeartbeatHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]ports.HeartbeatPoint, error) {
	events, err := s.events.FindByChargePoint(ctx, chargePointID, from, to,
		domain.EventHeartbeat, domain.EventBoot)
	if err != nil {
		return nil, err
	}

	points := make([]ports.HeartbeatPoint, 0, len(events))
	for _, e := range events {
		points = append(points, ports.HeartbeatPoint{Timestamp: e.Timestamp})
	}
	return points, nil
}

// StatusTimeline reconstructs the connector status transitions from the
// stored StatusNotification payloads.
func (s *Service) StatusTimeline(ctx context.Context, chargePointID string, from, to time.Time) ([]ports.StatusChange, error) {
	events, err := s.events.FindByChargePoint(ctx, chargePointID, from, to, domain.EventStatus)
	if err != nil {
		return nil, err
	}

	changes := make([]ports.StatusChange, 0, len(events))
	for _, e := range events {
		var payload struct {
			Status    string `json:"status"`
			ErrorCode string `json:"errorCode"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &payload); err != nil {
			s.log.Warn("Skipping unreadable status event",
				zap.String("charge_point_id", chargePointID),
				zap.Uint("event_id", e.ID),
			)
			continue
		}
		changes = append(changes, ports.StatusChange{
			Timestamp: e.Timestamp,
			EVSEID:    e.EVSEID,
			Status:    payload.Status,
			ErrorCode: payload.ErrorCode,
		})
	}
	return changes, nil
}
