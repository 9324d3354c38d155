package postgres

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type IdTagRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewIdTagRepository(db *gorm.DB, log *zap.Logger) ports.IdTagRepository {
	return &IdTagRepository{
		db:  db,
		log: log,
	}
}

func (r *IdTagRepository) Save(ctx context.Context, tag *domain.IdTag) error {
	return r.db.WithContext(ctx).Save(tag).Error
}

func (r *IdTagRepository) FindByTag(ctx context.Context, tag string) (*domain.IdTag, error) {
	var record domain.IdTag
	err := r.db.WithContext(ctx).First(&record, "tag = ?", tag).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}
