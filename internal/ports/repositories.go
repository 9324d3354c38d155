package ports

import (
	"context"
	"time"

	"github.com/voltgrid/csms/internal/domain"
)

type ChargePointRepository interface {
	Save(ctx context.Context, cp *domain.ChargePoint) error
	FindByID(ctx context.Context, id string) (*domain.ChargePoint, error)
	FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error)
	FindUnconfigured(ctx context.Context) ([]domain.ChargePoint, error)
	UpdateStatus(ctx context.Context, id string, status domain.ChargePointStatus) error
	UpdateOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error
	UpdateLastSeen(ctx context.Context, id string, seen time.Time) error
	UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error
	UpdatePricing(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error
}

type EVSERepository interface {
	Upsert(ctx context.Context, evse *domain.EVSE) error
	FindByChargePoint(ctx context.Context, chargePointID string) ([]domain.EVSE, error)
	UpdateStatus(ctx context.Context, chargePointID string, connectorID int, status domain.ChargePointStatus, errorCode string) error
}

// SessionRepository owns the critical transactional paths: creating a
// session checks the single-active-per-connector invariant and
// assigning the next transaction id inside one serializable
// transaction; completing one is a conditional update of the active
// row.
type SessionRepository interface {
	// CreateActive assigns the next transaction id and inserts the
	// session. Returns domain.ErrSessionConflict when the connector
	// already has an active session.
	CreateActive(ctx context.Context, session *domain.ChargingSession) error
	FindByTransactionID(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error)
	FindActiveByConnector(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error)
	FindActiveByChargePoint(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error)
	// Complete finalizes the active session identified by
	// (chargePointID, transactionID). Returns domain.ErrNoActiveSession
	// when no active row matches.
	Complete(ctx context.Context, chargePointID string, transactionID int, endTime time.Time, meterStop int64) (*domain.ChargingSession, error)
	FindHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error)
	// MarkStaleInterrupted flips active sessions that started before
	// cutoff to interrupted and reports how many were touched.
	MarkStaleInterrupted(ctx context.Context, cutoff time.Time) (int64, error)
}

type MeterValueRepository interface {
	Save(ctx context.Context, mv *domain.MeterValue) error
	LastTimestamp(ctx context.Context, sessionID uint) (time.Time, error)
	FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterValue, error)
}

type EventRepository interface {
	Append(ctx context.Context, event *domain.DeviceEvent) error
	FindByChargePoint(ctx context.Context, chargePointID string, from, to time.Time, kinds ...domain.EventKind) ([]domain.DeviceEvent, error)
	// LatestPerChargePoint returns the newest event per charge point,
	// used to rebuild liveness caches after a cold start.
	LatestPerChargePoint(ctx context.Context) ([]domain.DeviceEvent, error)
}

type IdTagRepository interface {
	Save(ctx context.Context, tag *domain.IdTag) error
	FindByTag(ctx context.Context, tag string) (*domain.IdTag, error)
}

type OrderRepository interface {
	Save(ctx context.Context, order *domain.Order) error
	FindBySessionID(ctx context.Context, sessionID uint) (*domain.Order, error)
}

type DeviceRepository interface {
	Save(ctx context.Context, device *domain.Device) error
	FindBySerial(ctx context.Context, serial string) (*domain.Device, error)
	FindAll(ctx context.Context) ([]domain.Device, error)
}
