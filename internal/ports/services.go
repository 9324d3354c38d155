package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voltgrid/csms/internal/domain"
)

// CallDispatcher is the capability the control plane uses to reach a
// charger: issue one server-initiated OCPP call and wait for the
// correlated reply. The router implements it.
type CallDispatcher interface {
	Dispatch(ctx context.Context, chargePointID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
	IsOnline(chargePointID string) bool
}

// ChargePointView is a charge point snapshot with the derived flags the
// dashboard needs.
type ChargePointView struct {
	domain.ChargePoint
	IsAvailable  bool `json:"is_available"`
	IsConfigured bool `json:"is_configured"`
	IsOnline     bool `json:"is_online"`
}

type ChargePointService interface {
	List(ctx context.Context, filter map[string]interface{}) ([]ChargePointView, error)
	Get(ctx context.Context, id string) (*ChargePointView, error)
	ListPending(ctx context.Context) ([]ChargePointView, error)
	History(ctx context.Context, id string, from, to time.Time) ([]domain.ChargingSession, error)
	UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error
	UpdatePricing(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error
	SetOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error
}

type ControlService interface {
	RemoteStart(ctx context.Context, chargePointID, idTag string, connectorID *int) (string, error)
	RemoteStop(ctx context.Context, chargePointID string, transactionID *int) (string, error)
	Reset(ctx context.Context, chargePointID, resetType string) (string, error)
	ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error)
	TriggerMessage(ctx context.Context, chargePointID, requestedMessage string) (string, error)
	UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (string, error)
	GetDiagnostics(ctx context.Context, chargePointID, location string) (string, error)
	UpdateFirmware(ctx context.Context, chargePointID, location string, retrieveDate time.Time) error
}

// HeartbeatPoint is one liveness observation in the statistics views.
type HeartbeatPoint struct {
	Timestamp time.Time `json:"timestamp"`
}

// StatusChange is one status transition in the timeline view.
type StatusChange struct {
	Timestamp time.Time `json:"timestamp"`
	EVSEID    *int      `json:"evse_id,omitempty"`
	Status    string    `json:"status"`
	ErrorCode string    `json:"error_code,omitempty"`
}

type StatisticsService interface {
	HeartbeatHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]HeartbeatPoint, error)
	StatusTimeline(ctx context.Context, chargePointID string, from, to time.Time) ([]StatusChange, error)
}

type DeviceService interface {
	Provision(ctx context.Context, serial, typeCode string) (*domain.Device, *domain.MQTTCredentials, error)
	List(ctx context.Context) ([]domain.Device, error)
	GetBySerial(ctx context.Context, serial string) (*domain.Device, error)
	// VerifyCredentials checks a broker password attempt against the
	// device's derived secret.
	VerifyCredentials(ctx context.Context, serial, password string) (bool, error)
}

// TokenClaims is the identity extracted from a control-plane bearer
// token.
type TokenClaims struct {
	Subject string
	Role    string
}

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
}
