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

type MeterValueRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewMeterValueRepository(db *gorm.DB, log *zap.Logger) ports.MeterValueRepository {
	return &MeterValueRepository{
		db:  db,
		log: log,
	}
}

func (r *MeterValueRepository) Save(ctx context.Context, mv *domain.MeterValue) error {
	return r.db.WithContext(ctx).Create(mv).Error
}

func (r *MeterValueRepository) LastTimestamp(ctx context.Context, sessionID uint) (time.Time, error) {
	var mv domain.MeterValue
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp desc").
		First(&mv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return mv.Timestamp, nil
}

func (r *MeterValueRepository) FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterValue, error) {
	var mvs []domain.MeterValue
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp").
		Find(&mvs).Error
	return mvs, err
}
