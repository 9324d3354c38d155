package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type EventRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEventRepository(db *gorm.DB, log *zap.Logger) ports.EventRepository {
	return &EventRepository{
		db:  db,
		log: log,
	}
}

func (r *EventRepository) Append(ctx context.Context, event *domain.DeviceEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *EventRepository) FindByChargePoint(ctx context.Context, chargePointID string, from, to time.Time, kinds ...domain.EventKind) ([]domain.DeviceEvent, error) {
	var events []domain.DeviceEvent
	query := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND timestamp >= ? AND timestamp < ?", chargePointID, from, to)
	if len(kinds) > 0 {
		query = query.Where("kind IN ?", kinds)
	}
	err := query.Order("timestamp").Find(&events).Error
	return events, err
}

func (r *EventRepository) LatestPerChargePoint(ctx context.Context) ([]domain.DeviceEvent, error) {
	var events []domain.DeviceEvent
	err := r.db.WithContext(ctx).Raw(`
		SELECT de.* FROM device_events de
		JOIN (
			SELECT charge_point_id, MAX(timestamp) AS ts
			FROM device_events
			GROUP BY charge_point_id
		) latest
		ON de.charge_point_id = latest.charge_point_id AND de.timestamp = latest.ts
	`).Scan(&events).Error
	return events, err
}
