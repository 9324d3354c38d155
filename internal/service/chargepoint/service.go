// Package chargepoint is the operator-facing read and configuration
// surface over the charge point fleet.
package chargepoint

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/cache"
	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type Service struct {
	chargePoints ports.ChargePointRepository
	sessions     ports.SessionRepository
	liveness     *cache.Liveness
	// offlineTimeout decides how stale a last-seen mark may be before
	// the dashboard shows the charger offline.
	offlineTimeout time.Duration
	log            *zap.Logger
}

func NewService(
	chargePoints ports.ChargePointRepository,
	sessions ports.SessionRepository,
	liveness *cache.Liveness,
	offlineTimeout time.Duration,
	log *zap.Logger,
) ports.ChargePointService {
	return &Service{
		chargePoints:   chargePoints,
		sessions:       sessions,
		liveness:       liveness,
		offlineTimeout: offlineTimeout,
		log:            log,
	}
}

func (s *Service) view(ctx context.Context, cp domain.ChargePoint) ports.ChargePointView {
	online := false
	if seen, ok := s.liveness.LastSeen(ctx, cp.ID); ok {
		online = time.Since(seen) <= s.offlineTimeout
	}
	return ports.ChargePointView{
		ChargePoint:  cp,
		IsAvailable:  cp.IsAvailable(),
		IsConfigured: cp.IsConfigured(),
		IsOnline:     online,
	}
}

func (s *Service) List(ctx context.Context, filter map[string]interface{}) ([]ports.ChargePointView, error) {
	cps, err := s.chargePoints.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	views := make([]ports.ChargePointView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, s.view(ctx, cp))
	}
	return views, nil
}

func (s *Service) Get(ctx context.Context, id string) (*ports.ChargePointView, error) {
	cp, err := s.chargePoints.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, domain.ErrNotFound
	}
	v := s.view(ctx, *cp)
	return &v, nil
}

// ListPending returns chargers that have connected but are not yet
// configured by the operator, the onboarding work queue.
func (s *Service) ListPending(ctx context.Context) ([]ports.ChargePointView, error) {
	cps, err := s.chargePoints.FindUnconfigured(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ports.ChargePointView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, s.view(ctx, cp))
	}
	return views, nil
}

func (s *Service) History(ctx context.Context, id string, from, to time.Time) ([]domain.ChargingSession, error) {
	cp, err := s.chargePoints.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, domain.ErrNotFound
	}
	return s.sessions.FindHistory(ctx, id, from, to)
}

func (s *Service) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	if err := s.ensureExists(ctx, id); err != nil {
		return err
	}
	s.log.Info("Updating charge point location",
		zap.String("charge_point_id", id),
		zap.Float64("lat", lat),
		zap.Float64("lng", lng),
	)
	return s.chargePoints.UpdateLocation(ctx, id, lat, lng, address)
}

func (s *Service) UpdatePricing(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error {
	if err := s.ensureExists(ctx, id); err != nil {
		return err
	}
	s.log.Info("Updating charge point pricing",
		zap.String("charge_point_id", id),
		zap.Float64("price_per_kwh", pricePerKwh),
	)
	return s.chargePoints.UpdatePricing(ctx, id, pricePerKwh, chargeRateKW)
}

func (s *Service) SetOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error {
	if err := s.ensureExists(ctx, id); err != nil {
		return err
	}
	s.log.Info("Setting operational status",
		zap.String("charge_point_id", id),
		zap.String("status", string(status)),
	)
	return s.chargePoints.UpdateOperationalStatus(ctx, id, status)
}

func (s *Service) ensureExists(ctx context.Context, id string) error {
	cp, err := s.chargePoints.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if cp == nil {
		return domain.ErrNotFound
	}
	return nil
}
