package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

// SessionRepository persists charging sessions. The create and
// complete paths run inside serializable transactions so the
// single-active-session-per-connector invariant and the monotonic
// transaction id survive concurrent writers.
type SessionRepository struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewSessionRepository(db *gorm.DB, log *zap.Logger) ports.SessionRepository {
	return &SessionRepository{
		db:  db,
		log: log,
	}
}

func (r *SessionRepository) CreateActive(ctx context.Context, session *domain.ChargingSession) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		err := tx.Model(&domain.ChargingSession{}).
			Where("charge_point_id = ? AND evse_id = ? AND status = ?",
				session.ChargePointID, session.EVSEID, domain.SessionStatusActive).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return domain.ErrSessionConflict
		}

		// Transaction ids are assigned server-side and only ever grow.
		var maxID sql.NullInt64
		err = tx.Model(&domain.ChargingSession{}).
			Select("MAX(transaction_id)").
			Scan(&maxID).Error
		if err != nil {
			return err
		}
		session.TransactionID = int(maxID.Int64) + 1
		session.Status = domain.SessionStatusActive

		return tx.Create(session).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
}

func (r *SessionRepository) FindByTransactionID(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND transaction_id = ?", chargePointID, transactionID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindActiveByConnector(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND evse_id = ? AND status = ?",
			chargePointID, evseID, domain.SessionStatusActive).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindActiveByChargePoint(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND status = ?", chargePointID, domain.SessionStatusActive).
		Order("start_time").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) Complete(ctx context.Context, chargePointID string, transactionID int, endTime time.Time, meterStop int64) (*domain.ChargingSession, error) {
	var session domain.ChargingSession
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("charge_point_id = ? AND transaction_id = ? AND status = ?",
			chargePointID, transactionID, domain.SessionStatusActive).
			First(&session).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNoActiveSession
			}
			return err
		}

		// Clamp against clock skew so the stored row keeps its
		// invariants even when the charger's clock runs behind.
		if endTime.Before(session.StartTime) {
			r.log.Warn("StopTransaction timestamp before session start, clamping",
				zap.String("charge_point_id", chargePointID),
				zap.Int("transaction_id", transactionID),
			)
			endTime = session.StartTime
		}
		if meterStop < session.MeterStart {
			meterStop = session.MeterStart
		}

		session.EndTime = &endTime
		session.MeterStop = &meterStop
		session.Status = domain.SessionStatusCompleted

		return tx.Save(&session).Error
	}, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *SessionRepository) FindHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error) {
	var sessions []domain.ChargingSession
	err := r.db.WithContext(ctx).
		Where("charge_point_id = ? AND start_time >= ? AND start_time < ?", chargePointID, from, to).
		Order("start_time desc").
		Find(&sessions).Error
	return sessions, err
}

func (r *SessionRepository) MarkStaleInterrupted(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&domain.ChargingSession{}).
		Where("status = ? AND start_time < ?", domain.SessionStatusActive, cutoff).
		Update("status", domain.SessionStatusInterrupted)
	return result.RowsAffected, result.Error
}
