package postgres

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type ChargePointRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewChargePointRepository(db *gorm.DB, log *zap.Logger) ports.ChargePointRepository {
	return &ChargePointRepository{
		db:  db,
		log: log,
	}
}

func (r *ChargePointRepository) Save(ctx context.Context, cp *domain.ChargePoint) error {
	return r.db.WithContext(ctx).Save(cp).Error
}

func (r *ChargePointRepository) FindByID(ctx context.Context, id string) (*domain.ChargePoint, error) {
	var cp domain.ChargePoint
	err := r.db.WithContext(ctx).Preload("EVSEs").First(&cp, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cp, nil
}

func (r *ChargePointRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error) {
	var cps []domain.ChargePoint
	query := r.db.WithContext(ctx).Preload("EVSEs")
	if len(filter) > 0 {
		query = query.Where(filter)
	}
	err := query.Order("id").Find(&cps).Error
	return cps, err
}

func (r *ChargePointRepository) FindUnconfigured(ctx context.Context) ([]domain.ChargePoint, error) {
	var cps []domain.ChargePoint
	err := r.db.WithContext(ctx).
		Where("latitude IS NULL OR longitude IS NULL OR price_per_kwh <= 0").
		Order("created_at desc").
		Find(&cps).Error
	return cps, err
}

func (r *ChargePointRepository) UpdateStatus(ctx context.Context, id string, status domain.ChargePointStatus) error {
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *ChargePointRepository) UpdateOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error {
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).
		Where("id = ?", id).
		Update("operational_status", status).Error
}

func (r *ChargePointRepository) UpdateLastSeen(ctx context.Context, id string, seen time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).
		Where("id = ?", id).
		Update("last_seen", seen).Error
}

func (r *ChargePointRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"latitude":  lat,
			"longitude": lng,
			"address":   address,
		}).Error
}

func (r *ChargePointRepository) UpdatePricing(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error {
	updates := map[string]interface{}{"price_per_kwh": pricePerKwh}
	if chargeRateKW > 0 {
		updates["charge_rate_kw"] = chargeRateKW
	}
	return r.db.WithContext(ctx).Model(&domain.ChargePoint{}).
		Where("id = ?", id).
		Updates(updates).Error
}
