package mocks

import (
	"context"
	"time"

	"github.com/voltgrid/csms/internal/domain"
)

// MockChargePointRepository is a mock implementation of ChargePointRepository
type MockChargePointRepository struct {
	SaveFunc                    func(ctx context.Context, cp *domain.ChargePoint) error
	FindByIDFunc                func(ctx context.Context, id string) (*domain.ChargePoint, error)
	FindAllFunc                 func(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error)
	FindUnconfiguredFunc        func(ctx context.Context) ([]domain.ChargePoint, error)
	UpdateStatusFunc            func(ctx context.Context, id string, status domain.ChargePointStatus) error
	UpdateOperationalStatusFunc func(ctx context.Context, id string, status domain.OperationalStatus) error
	UpdateLastSeenFunc          func(ctx context.Context, id string, seen time.Time) error
	UpdateLocationFunc          func(ctx context.Context, id string, lat, lng float64, address string) error
	UpdatePricingFunc           func(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error
}

func (m *MockChargePointRepository) Save(ctx context.Context, cp *domain.ChargePoint) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, cp)
	}
	return nil
}

func (m *MockChargePointRepository) FindByID(ctx context.Context, id string) (*domain.ChargePoint, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockChargePointRepository) FindAll(ctx context.Context, filter map[string]interface{}) ([]domain.ChargePoint, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx, filter)
	}
	return []domain.ChargePoint{}, nil
}

func (m *MockChargePointRepository) FindUnconfigured(ctx context.Context) ([]domain.ChargePoint, error) {
	if m.FindUnconfiguredFunc != nil {
		return m.FindUnconfiguredFunc(ctx)
	}
	return []domain.ChargePoint{}, nil
}

func (m *MockChargePointRepository) UpdateStatus(ctx context.Context, id string, status domain.ChargePointStatus) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockChargePointRepository) UpdateOperationalStatus(ctx context.Context, id string, status domain.OperationalStatus) error {
	if m.UpdateOperationalStatusFunc != nil {
		return m.UpdateOperationalStatusFunc(ctx, id, status)
	}
	return nil
}

func (m *MockChargePointRepository) UpdateLastSeen(ctx context.Context, id string, seen time.Time) error {
	if m.UpdateLastSeenFunc != nil {
		return m.UpdateLastSeenFunc(ctx, id, seen)
	}
	return nil
}

func (m *MockChargePointRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64, address string) error {
	if m.UpdateLocationFunc != nil {
		return m.UpdateLocationFunc(ctx, id, lat, lng, address)
	}
	return nil
}

func (m *MockChargePointRepository) UpdatePricing(ctx context.Context, id string, pricePerKwh, chargeRateKW float64) error {
	if m.UpdatePricingFunc != nil {
		return m.UpdatePricingFunc(ctx, id, pricePerKwh, chargeRateKW)
	}
	return nil
}

// MockEVSERepository is a mock implementation of EVSERepository
type MockEVSERepository struct {
	UpsertFunc            func(ctx context.Context, evse *domain.EVSE) error
	FindByChargePointFunc func(ctx context.Context, chargePointID string) ([]domain.EVSE, error)
	UpdateStatusFunc      func(ctx context.Context, chargePointID string, connectorID int, status domain.ChargePointStatus, errorCode string) error
}

func (m *MockEVSERepository) Upsert(ctx context.Context, evse *domain.EVSE) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, evse)
	}
	return nil
}

func (m *MockEVSERepository) FindByChargePoint(ctx context.Context, chargePointID string) ([]domain.EVSE, error) {
	if m.FindByChargePointFunc != nil {
		return m.FindByChargePointFunc(ctx, chargePointID)
	}
	return []domain.EVSE{}, nil
}

func (m *MockEVSERepository) UpdateStatus(ctx context.Context, chargePointID string, connectorID int, status domain.ChargePointStatus, errorCode string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, chargePointID, connectorID, status, errorCode)
	}
	return nil
}

// MockSessionRepository is a mock implementation of SessionRepository
type MockSessionRepository struct {
	CreateActiveFunc            func(ctx context.Context, session *domain.ChargingSession) error
	FindByTransactionIDFunc     func(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error)
	FindActiveByConnectorFunc   func(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error)
	FindActiveByChargePointFunc func(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error)
	CompleteFunc                func(ctx context.Context, chargePointID string, transactionID int, endTime time.Time, meterStop int64) (*domain.ChargingSession, error)
	FindHistoryFunc             func(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error)
	MarkStaleInterruptedFunc    func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (m *MockSessionRepository) CreateActive(ctx context.Context, session *domain.ChargingSession) error {
	if m.CreateActiveFunc != nil {
		return m.CreateActiveFunc(ctx, session)
	}
	return nil
}

func (m *MockSessionRepository) FindByTransactionID(ctx context.Context, chargePointID string, transactionID int) (*domain.ChargingSession, error) {
	if m.FindByTransactionIDFunc != nil {
		return m.FindByTransactionIDFunc(ctx, chargePointID, transactionID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindActiveByConnector(ctx context.Context, chargePointID string, evseID int) (*domain.ChargingSession, error) {
	if m.FindActiveByConnectorFunc != nil {
		return m.FindActiveByConnectorFunc(ctx, chargePointID, evseID)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindActiveByChargePoint(ctx context.Context, chargePointID string) ([]domain.ChargingSession, error) {
	if m.FindActiveByChargePointFunc != nil {
		return m.FindActiveByChargePointFunc(ctx, chargePointID)
	}
	return []domain.ChargingSession{}, nil
}

func (m *MockSessionRepository) Complete(ctx context.Context, chargePointID string, transactionID int, endTime time.Time, meterStop int64) (*domain.ChargingSession, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, chargePointID, transactionID, endTime, meterStop)
	}
	return nil, nil
}

func (m *MockSessionRepository) FindHistory(ctx context.Context, chargePointID string, from, to time.Time) ([]domain.ChargingSession, error) {
	if m.FindHistoryFunc != nil {
		return m.FindHistoryFunc(ctx, chargePointID, from, to)
	}
	return []domain.ChargingSession{}, nil
}

func (m *MockSessionRepository) MarkStaleInterrupted(ctx context.Context, cutoff time.Time) (int64, error) {
	if m.MarkStaleInterruptedFunc != nil {
		return m.MarkStaleInterruptedFunc(ctx, cutoff)
	}
	return 0, nil
}

// MockMeterValueRepository is a mock implementation of MeterValueRepository
type MockMeterValueRepository struct {
	SaveFunc          func(ctx context.Context, mv *domain.MeterValue) error
	LastTimestampFunc func(ctx context.Context, sessionID uint) (time.Time, error)
	FindBySessionFunc func(ctx context.Context, sessionID uint) ([]domain.MeterValue, error)
}

func (m *MockMeterValueRepository) Save(ctx context.Context, mv *domain.MeterValue) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, mv)
	}
	return nil
}

func (m *MockMeterValueRepository) LastTimestamp(ctx context.Context, sessionID uint) (time.Time, error) {
	if m.LastTimestampFunc != nil {
		return m.LastTimestampFunc(ctx, sessionID)
	}
	return time.Time{}, nil
}

func (m *MockMeterValueRepository) FindBySession(ctx context.Context, sessionID uint) ([]domain.MeterValue, error) {
	if m.FindBySessionFunc != nil {
		return m.FindBySessionFunc(ctx, sessionID)
	}
	return []domain.MeterValue{}, nil
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	AppendFunc               func(ctx context.Context, event *domain.DeviceEvent) error
	FindByChargePointFunc    func(ctx context.Context, chargePointID string, from, to time.Time, kinds ...domain.EventKind) ([]domain.DeviceEvent, error)
	LatestPerChargePointFunc func(ctx context.Context) ([]domain.DeviceEvent, error)
}

func (m *MockEventRepository) Append(ctx context.Context, event *domain.DeviceEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, event)
	}
	return nil
}

func (m *MockEventRepository) FindByChargePoint(ctx context.Context, chargePointID string, from, to time.Time, kinds ...domain.EventKind) ([]domain.DeviceEvent, error) {
	if m.FindByChargePointFunc != nil {
		return m.FindByChargePointFunc(ctx, chargePointID, from, to, kinds...)
	}
	return []domain.DeviceEvent{}, nil
}

func (m *MockEventRepository) LatestPerChargePoint(ctx context.Context) ([]domain.DeviceEvent, error) {
	if m.LatestPerChargePointFunc != nil {
		return m.LatestPerChargePointFunc(ctx)
	}
	return []domain.DeviceEvent{}, nil
}

// MockIdTagRepository is a mock implementation of IdTagRepository
type MockIdTagRepository struct {
	SaveFunc      func(ctx context.Context, tag *domain.IdTag) error
	FindByTagFunc func(ctx context.Context, tag string) (*domain.IdTag, error)
}

func (m *MockIdTagRepository) Save(ctx context.Context, tag *domain.IdTag) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tag)
	}
	return nil
}

func (m *MockIdTagRepository) FindByTag(ctx context.Context, tag string) (*domain.IdTag, error) {
	if m.FindByTagFunc != nil {
		return m.FindByTagFunc(ctx, tag)
	}
	return nil, nil
}

// MockOrderRepository is a mock implementation of OrderRepository
type MockOrderRepository struct {
	SaveFunc            func(ctx context.Context, order *domain.Order) error
	FindBySessionIDFunc func(ctx context.Context, sessionID uint) (*domain.Order, error)
}

func (m *MockOrderRepository) Save(ctx context.Context, order *domain.Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, order)
	}
	return nil
}

func (m *MockOrderRepository) FindBySessionID(ctx context.Context, sessionID uint) (*domain.Order, error) {
	if m.FindBySessionIDFunc != nil {
		return m.FindBySessionIDFunc(ctx, sessionID)
	}
	return nil, nil
}

// MockDeviceRepository is a mock implementation of DeviceRepository
type MockDeviceRepository struct {
	SaveFunc         func(ctx context.Context, device *domain.Device) error
	FindBySerialFunc func(ctx context.Context, serial string) (*domain.Device, error)
	FindAllFunc      func(ctx context.Context) ([]domain.Device, error)
}

func (m *MockDeviceRepository) Save(ctx context.Context, device *domain.Device) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, device)
	}
	return nil
}

func (m *MockDeviceRepository) FindBySerial(ctx context.Context, serial string) (*domain.Device, error) {
	if m.FindBySerialFunc != nil {
		return m.FindBySerialFunc(ctx, serial)
	}
	return nil, nil
}

func (m *MockDeviceRepository) FindAll(ctx context.Context) ([]domain.Device, error) {
	if m.FindAllFunc != nil {
		return m.FindAllFunc(ctx)
	}
	return []domain.Device{}, nil
}
