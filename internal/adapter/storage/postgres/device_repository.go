package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type DeviceRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewDeviceRepository(db *gorm.DB, log *zap.Logger) ports.DeviceRepository {
	return &DeviceRepository{
		db:  db,
		log: log,
	}
}

func (r *DeviceRepository) Save(ctx context.Context, device *domain.Device) error {
	return r.db.WithContext(ctx).Save(device).Error
}

func (r *DeviceRepository) FindBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	var device domain.Device
	err := r.db.WithContext(ctx).First(&device, "serial_number = ?", serial).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &device, nil
}

func (r *DeviceRepository) FindAll(ctx context.Context) ([]domain.Device, error) {
	var devices []domain.Device
	err := r.db.WithContext(ctx).Order("serial_number").Find(&devices).Error
	return devices, err
}
