package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

// MockCallDispatcher is a mock implementation of CallDispatcher
type MockCallDispatcher struct {
	DispatchFunc func(ctx context.Context, chargePointID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error)
	IsOnlineFunc func(chargePointID string) bool
}

func (m *MockCallDispatcher) Dispatch(ctx context.Context, chargePointID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	if m.DispatchFunc != nil {
		return m.DispatchFunc(ctx, chargePointID, action, payload, timeout)
	}
	return json.RawMessage(`{}`), nil
}

func (m *MockCallDispatcher) IsOnline(chargePointID string) bool {
	if m.IsOnlineFunc != nil {
		return m.IsOnlineFunc(chargePointID)
	}
	return true
}

// MockTokenValidator is a mock implementation of TokenValidator
type MockTokenValidator struct {
	ValidateTokenFunc func(ctx context.Context, token string) (*ports.TokenClaims, error)
}

func (m *MockTokenValidator) ValidateToken(ctx context.Context, token string) (*ports.TokenClaims, error) {
	if m.ValidateTokenFunc != nil {
		return m.ValidateTokenFunc(ctx, token)
	}
	return &ports.TokenClaims{Subject: "test-user", Role: "operator"}, nil
}

// MockChargePointService is a mock implementation of ChargePointService
type MockChargePointService struct {
	ListFunc                 func(ctx context.Context, filter map[string]interface{}) ([]ports.ChargePointView, error)
	GetFunc                  func(ctx context.Context, id string) (*ports.ChargePointView, error)
	ListPendingFunc          func(ctx context.Context) ([]ports.ChargePointView, error)
	HistoryFunc              func(ctx context.Context, id string, from, to time.Time) ([]domain.ChargingSession, error)
	UpdateLocationFunc       func(ctx context.Context, id string, lat, lng float64, address string) error
	UpdatePricingFunc        func(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error
	SetOperationalStatusFunc func(ctx context.Context, id string, status domain.OperationalStatus) error
}

func (m *MockChargePointService) List(ctx context.Context, filter map[string]interface{}) ([]ports.ChargePointView, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []ports.ChargePointView{}, nil
}

func (m *MockChargePointService) Get(ctx context.Context, id string) (*ports.ChargePointView, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *MockChargePointService) ListPending(ctx context.Context) ([]ports.ChargePointView, error) {
	if m.ListPendingFunc != nil {
		return m.ListPendingFunc(ctx)
	}
	return []ports.ChargePointView{}, nil
}

func (m *MockChargePointService) History(ctx context.Context, id string, from, to time.Time) ([]domain.ChargingSession, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, id, from, to)
	}
	return []domain.ChargingSession{}, nil
}

func (m *MockChargePointService) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	if m.UpdateLocationFunc != nil {
		return m.UpdateLocationFunc(ctx, id, lat, lng, address)
	}
	return nil
}

func (m *MockChargePointService) UpdatePricing(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error {
	if m.UpdatePricingFunc != nil {
		return m.UpdatePricingFunc(ctx, id, pricePerKwh, chargeRateKW)
	}
	return nil
}

func (m *MockChargePointService) SetOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error {
	if m.SetOperationalStatusFunc != nil {
		return m.SetOperationalStatusFunc(ctx, id, status)
	}
	return nil
}

// MockControlService is a mock implementation of ControlService
type MockControlService struct {
	RemoteStartFunc        func(ctx context.Context, chargePointID, idTag string, connectorID *int) (string, error)
	RemoteStopFunc         func(ctx context.Context, chargePointID string, transactionID *int) (string, error)
	ResetFunc              func(ctx context.Context, chargePointID, resetType string) (string, error)
	ChangeAvailabilityFunc func(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error)
	TriggerMessageFunc     func(ctx context.Context, chargePointID, requestedMessage string) (string, error)
	UnlockConnectorFunc    func(ctx context.Context, chargePointID string, connectorID int) (string, error)
	GetDiagnosticsFunc     func(ctx context.Context, chargePointID, location string) (string, error)
	UpdateFirmwareFunc     func(ctx context.Context, chargePointID, location string, retrieveDate time.Time) error
}

func (m *MockControlService) RemoteStart(ctx context.Context, chargePointID, idTag string, connectorID *int) (string, error) {
	if m.RemoteStartFunc != nil {
		return m.RemoteStartFunc(ctx, chargePointID, idTag, connectorID)
	}
	return "Accepted", nil
}

func (m *MockControlService) RemoteStop(ctx context.Context, chargePointID string, transactionID *int) (string, error) {
	if m.RemoteStopFunc != nil {
		return m.RemoteStopFunc(ctx, chargePointID, transactionID)
	}
	return "Accepted", nil
}

func (m *MockControlService) Reset(ctx context.Context, chargePointID, resetType string) (string, error) {
	if m.ResetFunc != nil {
		return m.ResetFunc(ctx, chargePointID, resetType)
	}
	return "Accepted", nil
}

func (m *MockControlService) ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error) {
	if m.ChangeAvailabilityFunc != nil {
		return m.ChangeAvailabilityFunc(ctx, chargePointID, connectorID, availabilityType)
	}
	return "Accepted", nil
}

func (m *MockControlService) TriggerMessage(ctx context.Context, chargePointID, requestedMessage string) (string, error) {
	if m.TriggerMessageFunc != nil {
		return m.TriggerMessageFunc(ctx, chargePointID, requestedMessage)
	}
	return "Accepted", nil
}

func (m *MockControlService) UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (string, error) {
	if m.UnlockConnectorFunc != nil {
		return m.UnlockConnectorFunc(ctx, chargePointID, connectorID)
	}
	return "Unlocked", nil
}

func (m *MockControlService) GetDiagnostics(ctx context.Context, chargePointID, location string) (string, error) {
	if m.GetDiagnosticsFunc != nil {
		return m.GetDiagnosticsFunc(ctx, chargePointID, location)
	}
	return "", nil
}

func (m *MockControlService) UpdateFirmware(ctx context.Context, chargePointID, location string, retrieveDate time.Time) error {
	if m.UpdateFirmwareFunc != nil {
		return m.UpdateFirmwareFunc(ctx, chargePointID, location, retrieveDate)
	}
	return nil
}

// MockStatisticsService is a mock implementation of StatisticsService
type MockStatisticsService struct {
	HeartbeatHistoryFunc func(ctx context.Context, chargePointID string, from, to time.Time) ([]ports.HeartbeatPoint, error)
	StatusTimelineFunc   func(ctx context.Context, chargePointID string, from, to time.Time) ([]ports.StatusChange, error)
}

func (m *MockStatisticsService) HeartbeatHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]ports.HeartbeatPoint, error) {
	if m.HeartbeatHistoryFunc != nil {
		return m.HeartbeatHistoryFunc(ctx, chargePointID, from, to)
	}
	return []ports.HeartbeatPoint{}, nil
}

func (m *MockStatisticsService) StatusTimeline(ctx context.Context, chargePointID string, from, to time.Time) ([]ports.StatusChange, error) {
	if m.StatusTimelineFunc != nil {
		return m.StatusTimelineFunc(ctx, chargePointID, from, to)
	}
	return []ports.StatusChange{}, nil
}

// MockDeviceService is a mock implementation of DeviceService
type MockDeviceService struct {
	ProvisionFunc         func(ctx context.Context, serial, typeCode string) (*domain.Device, *domain.MQTTCredentials, error)
	ListFunc              func(ctx context.Context) ([]domain.Device, error)
	GetBySerialFunc       func(ctx context.Context, serial string) (*domain.Device, error)
	VerifyCredentialsFunc func(ctx context.Context, serial, password string) (bool, error)
}

func (m *MockDeviceService) Provision(ctx context.Context, serial, typeCode string) (*domain.Device, *domain.MQTTCredentials, error) {
	if m.ProvisionFunc != nil {
		return m.ProvisionFunc(ctx, serial, typeCode)
	}
	return nil, nil, nil
}

func (m *MockDeviceService) List(ctx context.Context) ([]domain.Device, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return []domain.Device{}, nil
}

func (m *MockDeviceService) GetBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	if m.GetBySerialFunc != nil {
		return m.GetBySerialFunc(ctx, serial)
	}
	return nil, nil
}

func (m *MockDeviceService) VerifyCredentials(ctx context.Context, serial, password string) (bool, error) {
	if m.VerifyCredentialsFunc != nil {
		return m.VerifyCredentialsFunc(ctx, serial, password)
	}
	return false, nil
}
