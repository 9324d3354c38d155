package postgres

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type EVSERepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewEVSERepository(db *gorm.DB, log *zap.Logger) ports.EVSERepository {
	return &EVSERepository{
		db:  db,
		log: log,
	}
}

func (r *EVSERepository) Upsert(ctx context.Context, evse *domain.EVSE) error {
	evse.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "charge_point_id"}, {Name: "connector_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"connector_type", "status", "last_error_code", "updated_at"}),
	}).Create(evse).Error
}

func (r *EVSERepository) FindByChargePoint(ctx context.Context, chargePointID string) ([]domain.EVSE, error) {
	var evses []domain.EVSE
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ?", chargePointID).
		Order("connector_id").
		Find(&evses).Error
	return evses, err
}

func (r *EVSERepository) UpdateStatus(ctx context.Context, chargePointID string, connectorID int, status domain.ChargePointStatus, errorCode string) error {
	result := r.db.WithContext(ctx).Model(&domain.EVSE{}).
		Where("charge_point_id = ? AND connector_id = ?", chargePointID, connectorID).
		Updates(map[string]interface{}{
			"status":          status,
			"last_error_code": errorCode,
			"updated_at":      time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// First StatusNotification for a connector we have not seen.
		return r.Upsert(ctx, &domain.EVSE{
			ChargePointID: chargePointID,
			ConnectorID:   connectorID,
			Status:        status,
			LastErrorCode: errorCode,
		})
	}
	return nil
}
