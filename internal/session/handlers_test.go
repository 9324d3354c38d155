package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp"
	"github.com/voltgrid/csms/pkg/config"
)

func acceptedTag(tag string) *domain.IdTag {
	return &domain.IdTag{Tag: tag, Status: domain.AuthorizationAccepted}
}

func TestBootNotification(t *testing.T) {
	t.Run("auto-provisions unknown charge point", func(t *testing.T) {
		// Arrange
		f := newFixture(t, nil)
		var saved *domain.ChargePoint
		f.chargePoints.SaveFunc = func(_ context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		}

		// Act
		reply := f.deliver(t, "b1", ocpp.ActionBootNotification,
			`{"chargePointVendor":"VoltGrid","chargePointModel":"VG-22","firmwareVersion":"1.4.0"}`)

		// Assert
		if reply == nil || reply.Type != ocpp.MessageTypeCallResult {
			t.Fatalf("expected CALLRESULT, got %+v", reply)
		}
		var resp ocpp.BootNotificationResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != "Accepted" {
			t.Fatalf("expected Accepted, got %s", resp.Status)
		}
		if resp.Interval != 60 {
			t.Fatalf("expected interval 60, got %d", resp.Interval)
		}
		if saved == nil {
			t.Fatal("expected charge point to be provisioned")
		}
		if saved.Vendor != "VoltGrid" || saved.Model != "VG-22" || saved.FirmwareVersion != "1.4.0" {
			t.Fatalf("identity not recorded: %+v", saved)
		}
		if f.session.State() != StateOnline {
			t.Fatalf("expected Online, got %s", f.session.State())
		}
	})

	t.Run("rejects unknown charge point when auto-provision is off", func(t *testing.T) {
		f := newFixture(t, func(cfg *config.OCPPConfig) { cfg.AutoProvision = false })
		saveCalled := false
		f.chargePoints.SaveFunc = func(_ context.Context, cp *domain.ChargePoint) error {
			saveCalled = true
			return nil
		}

		reply := f.deliver(t, "b1", ocpp.ActionBootNotification,
			`{"chargePointVendor":"VoltGrid","chargePointModel":"VG-22"}`)

		var resp ocpp.BootNotificationResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Status != "Rejected" {
			t.Fatalf("expected Rejected, got %s", resp.Status)
		}
		if saveCalled {
			t.Fatal("rejected boot must not write the store")
		}
		if f.session.State() != StateBooting {
			t.Fatalf("expected session to stay Booting, got %s", f.session.State())
		}
	})

	t.Run("updates identity of a known charge point", func(t *testing.T) {
		f := newFixture(t, nil)
		f.chargePoints.FindByIDFunc = func(_ context.Context, id string) (*domain.ChargePoint, error) {
			return &domain.ChargePoint{ID: id, Vendor: "VoltGrid", Model: "VG-22", FirmwareVersion: "1.3.9"}, nil
		}
		var saved *domain.ChargePoint
		f.chargePoints.SaveFunc = func(_ context.Context, cp *domain.ChargePoint) error {
			saved = cp
			return nil
		}

		f.deliver(t, "b1", ocpp.ActionBootNotification,
			`{"chargePointVendor":"VoltGrid","chargePointModel":"VG-22","firmwareVersion":"1.4.0"}`)

		if saved == nil || saved.FirmwareVersion != "1.4.0" {
			t.Fatalf("firmware version not refreshed: %+v", saved)
		}
	})
}

func TestHeartbeat(t *testing.T) {
	f := newFixture(t, nil)

	var seen time.Time
	f.chargePoints.UpdateLastSeenFunc = func(_ context.Context, id string, ts time.Time) error {
		seen = ts
		return nil
	}

	reply := f.deliver(t, "h1", ocpp.ActionHeartbeat, `{}`)

	var resp ocpp.HeartbeatResp
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if _, err := time.Parse(time.RFC3339, resp.CurrentTime); err != nil {
		t.Fatalf("currentTime %q is not ISO-8601: %v", resp.CurrentTime, err)
	}
	if seen.IsZero() {
		t.Fatal("expected last_seen to be persisted")
	}
}

func TestStatusNotification(t *testing.T) {
	t.Run("updates connector status", func(t *testing.T) {
		f := newFixture(t, nil)
		var gotConnector int
		var gotStatus domain.ChargePointStatus
		f.evses.UpdateStatusFunc = func(_ context.Context, cpID string, connectorID int, status domain.ChargePointStatus, errorCode string) error {
			gotConnector = connectorID
			gotStatus = status
			return nil
		}

		reply := f.deliver(t, "s1", ocpp.ActionStatusNotification,
			`{"connectorId":1,"errorCode":"NoError","status":"Charging"}`)

		if reply.Type != ocpp.MessageTypeCallResult {
			t.Fatalf("expected CALLRESULT, got %+v", reply)
		}
		if gotConnector != 1 || gotStatus != domain.ChargePointStatusCharging {
			t.Fatalf("unexpected update: connector=%d status=%s", gotConnector, gotStatus)
		}
	})

	t.Run("connector zero addresses the charge point", func(t *testing.T) {
		f := newFixture(t, nil)
		var cpStatus domain.ChargePointStatus
		f.chargePoints.UpdateStatusFunc = func(_ context.Context, id string, status domain.ChargePointStatus) error {
			cpStatus = status
			return nil
		}
		evseCalled := false
		f.evses.UpdateStatusFunc = func(_ context.Context, cpID string, connectorID int, status domain.ChargePointStatus, errorCode string) error {
			evseCalled = true
			return nil
		}

		f.deliver(t, "s1", ocpp.ActionStatusNotification,
			`{"connectorId":0,"errorCode":"NoError","status":"Unavailable"}`)

		if cpStatus != domain.ChargePointStatusUnavailable {
			t.Fatalf("expected charge point status update, got %q", cpStatus)
		}
		if evseCalled {
			t.Fatal("connector 0 must not touch EVSE rows")
		}
	})

	t.Run("error code forces Faulted and aggregates upward", func(t *testing.T) {
		f := newFixture(t, nil)
		var evseStatus domain.ChargePointStatus
		f.evses.UpdateStatusFunc = func(_ context.Context, cpID string, connectorID int, status domain.ChargePointStatus, errorCode string) error {
			evseStatus = status
			return nil
		}
		f.evses.FindByChargePointFunc = func(_ context.Context, cpID string) ([]domain.EVSE, error) {
			return []domain.EVSE{
				{ConnectorID: 1, Status: domain.ChargePointStatusFaulted},
				{ConnectorID: 2, Status: domain.ChargePointStatusFaulted},
			}, nil
		}
		var cpStatus domain.ChargePointStatus
		f.chargePoints.UpdateStatusFunc = func(_ context.Context, id string, status domain.ChargePointStatus) error {
			cpStatus = status
			return nil
		}

		f.deliver(t, "s1", ocpp.ActionStatusNotification,
			`{"connectorId":1,"errorCode":"GroundFailure","status":"Available"}`)

		if evseStatus != domain.ChargePointStatusFaulted {
			t.Fatalf("expected connector forced to Faulted, got %s", evseStatus)
		}
		if cpStatus != domain.ChargePointStatusFaulted {
			t.Fatalf("expected charge point Faulted when all connectors fault, got %q", cpStatus)
		}
		if f.session.State() != StateFaulted {
			t.Fatalf("expected session Faulted, got %s", f.session.State())
		}
		if !f.session.IsOnline() {
			t.Fatal("faulted charger is still connected and must accept calls")
		}
	})
}

func TestAuthorize(t *testing.T) {
	t.Run("accepted tag", func(t *testing.T) {
		f := newFixture(t, nil)
		f.idTags.FindByTagFunc = func(_ context.Context, tag string) (*domain.IdTag, error) {
			return acceptedTag(tag), nil
		}

		reply := f.deliver(t, "a1", ocpp.ActionAuthorize, `{"idTag":"TAG001"}`)

		var resp ocpp.AuthorizeResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo.Status != "Accepted" {
			t.Fatalf("expected Accepted, got %s", resp.IdTagInfo.Status)
		}
	})

	t.Run("unknown tag is Invalid", func(t *testing.T) {
		f := newFixture(t, nil)

		reply := f.deliver(t, "a1", ocpp.ActionAuthorize, `{"idTag":"NOBODY"}`)

		var resp ocpp.AuthorizeResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo.Status != "Invalid" {
			t.Fatalf("expected Invalid, got %s", resp.IdTagInfo.Status)
		}
	})

	t.Run("expired tag", func(t *testing.T) {
		f := newFixture(t, nil)
		past := time.Now().Add(-time.Hour)
		f.idTags.FindByTagFunc = func(_ context.Context, tag string) (*domain.IdTag, error) {
			return &domain.IdTag{Tag: tag, Status: domain.AuthorizationAccepted, ExpiresAt: &past}, nil
		}

		reply := f.deliver(t, "a1", ocpp.ActionAuthorize, `{"idTag":"TAG001"}`)

		var resp ocpp.AuthorizeResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo.Status != "Expired" {
			t.Fatalf("expected Expired, got %s", resp.IdTagInfo.Status)
		}
	})

	t.Run("session cache answers while the store is down", func(t *testing.T) {
		f := newFixture(t, nil)
		storeUp := true
		f.idTags.FindByTagFunc = func(_ context.Context, tag string) (*domain.IdTag, error) {
			if !storeUp {
				return nil, errors.New("connection refused")
			}
			return acceptedTag(tag), nil
		}

		f.deliver(t, "a1", ocpp.ActionAuthorize, `{"idTag":"TAG001"}`)
		storeUp = false
		reply := f.deliver(t, "a2", ocpp.ActionAuthorize, `{"idTag":"TAG001"}`)

		var resp ocpp.AuthorizeResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo.Status != "Accepted" {
			t.Fatalf("expected cached Accepted verdict, got %s", resp.IdTagInfo.Status)
		}
	})
}

func TestStartTransaction(t *testing.T) {
	t.Run("assigns the transaction id", func(t *testing.T) {
		f := newFixture(t, nil)
		f.idTags.FindByTagFunc = func(_ context.Context, tag string) (*domain.IdTag, error) {
			return acceptedTag(tag), nil
		}
		f.sessions.CreateActiveFunc = func(_ context.Context, s *domain.ChargingSession) error {
			s.TransactionID = 42
			s.ID = 7
			return nil
		}

		reply := f.deliver(t, "t1", ocpp.ActionStartTransaction,
			`{"connectorId":1,"idTag":"TAG001","meterStart":1500,"timestamp":"2026-08-26T10:00:00Z"}`)

		var resp ocpp.StartTransactionResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.TransactionId != 42 {
			t.Fatalf("expected transactionId 42, got %d", resp.TransactionId)
		}
		if resp.IdTagInfo.Status != "Accepted" {
			t.Fatalf("expected Accepted, got %s", resp.IdTagInfo.Status)
		}
	})

	t.Run("unauthorized tag never creates a session", func(t *testing.T) {
		f := newFixture(t, nil)
		f.idTags.FindByTagFunc = func(_ context.Context, tag string) (*domain.IdTag, error) {
			return &domain.IdTag{Tag: tag, Status: domain.AuthorizationBlocked}, nil
		}
		createCalled := false
		f.sessions.CreateActiveFunc = func(_ context.Context, s *domain.ChargingSession) error {
			createCalled = true
			return nil
		}

		reply := f.deliver(t, "t1", ocpp.ActionStartTransaction,
			`{"connectorId":1,"idTag":"TAG001","meterStart":0,"timestamp":"2026-08-26T10:00:00Z"}`)

		var resp ocpp.StartTransactionResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo.Status != "Invalid" {
			t.Fatalf("expected Invalid, got %s", resp.IdTagInfo.Status)
		}
		if createCalled {
			t.Fatal("unauthorized start must not create a session")
		}
	})

	t.Run("busy connector answers ConcurrentTx", func(t *testing.T) {
		f := newFixture(t, nil)
		f.idTags.FindByTagFunc = func(_ context.Context, tag string) (*domain.IdTag, error) {
			return acceptedTag(tag), nil
		}
		f.sessions.CreateActiveFunc = func(_ context.Context, s *domain.ChargingSession) error {
			return domain.ErrSessionConflict
		}

		reply := f.deliver(t, "t1", ocpp.ActionStartTransaction,
			`{"connectorId":1,"idTag":"TAG001","meterStart":0,"timestamp":"2026-08-26T10:00:00Z"}`)

		var resp ocpp.StartTransactionResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo.Status != "ConcurrentTx" {
			t.Fatalf("expected ConcurrentTx, got %s", resp.IdTagInfo.Status)
		}
	})

	t.Run("store failure is an InternalError", func(t *testing.T) {
		f := newFixture(t, nil)
		f.idTags.FindByTagFunc = func(_ context.Context, tag string) (*domain.IdTag, error) {
			return acceptedTag(tag), nil
		}
		f.sessions.CreateActiveFunc = func(_ context.Context, s *domain.ChargingSession) error {
			return errors.New("connection refused")
		}

		reply := f.deliver(t, "t1", ocpp.ActionStartTransaction,
			`{"connectorId":1,"idTag":"TAG001","meterStart":0,"timestamp":"2026-08-26T10:00:00Z"}`)

		if reply.Type != ocpp.MessageTypeCallError {
			t.Fatalf("expected CALLERROR, got %+v", reply)
		}
		if reply.ErrorCode != ocpp.ErrInternalError {
			t.Fatalf("expected InternalError, got %s", reply.ErrorCode)
		}
	})
}

func TestMeterValues(t *testing.T) {
	activeSession := &domain.ChargingSession{
		ID:            7,
		ChargePointID: "CP001",
		EVSEID:        1,
		TransactionID: 42,
		Status:        domain.SessionStatusActive,
	}

	t.Run("stores attributed samples", func(t *testing.T) {
		f := newFixture(t, nil)
		f.sessions.FindByTransactionIDFunc = func(_ context.Context, cpID string, txID int) (*domain.ChargingSession, error) {
			return activeSession, nil
		}
		var saved []*domain.MeterValue
		f.meterValues.SaveFunc = func(_ context.Context, mv *domain.MeterValue) error {
			saved = append(saved, mv)
			return nil
		}

		reply := f.deliver(t, "mv1", ocpp.ActionMeterValues,
			`{"connectorId":1,"transactionId":42,"meterValue":[{"timestamp":"2026-08-26T10:05:00Z","sampledValue":[{"value":"2500","measurand":"Energy.Active.Import.Register","unit":"Wh"}]}]}`)

		if reply.Type != ocpp.MessageTypeCallResult {
			t.Fatalf("expected CALLRESULT, got %+v", reply)
		}
		if len(saved) != 1 {
			t.Fatalf("expected 1 sample stored, got %d", len(saved))
		}
		if saved[0].SessionID != 7 || saved[0].ValueWh != 2500 {
			t.Fatalf("unexpected sample: %+v", saved[0])
		}
	})

	t.Run("discards samples without a transaction", func(t *testing.T) {
		f := newFixture(t, nil)
		saveCalled := false
		f.meterValues.SaveFunc = func(_ context.Context, mv *domain.MeterValue) error {
			saveCalled = true
			return nil
		}
		var kinds []domain.EventKind
		f.events.AppendFunc = func(_ context.Context, e *domain.DeviceEvent) error {
			kinds = append(kinds, e.Kind)
			return nil
		}

		reply := f.deliver(t, "mv1", ocpp.ActionMeterValues,
			`{"connectorId":1,"meterValue":[{"timestamp":"2026-08-26T10:05:00Z","sampledValue":[{"value":"2500"}]}]}`)

		if reply.Type != ocpp.MessageTypeCallResult {
			t.Fatalf("expected CALLRESULT even when discarding, got %+v", reply)
		}
		if saveCalled {
			t.Fatal("unattributed sample must not be stored")
		}
		found := false
		for _, k := range kinds {
			if k == domain.EventMeterDiscarded {
				found = true
			}
		}
		if !found {
			t.Fatal("expected a meter_discarded audit event")
		}
	})

	t.Run("clamps samples behind the last stored timestamp", func(t *testing.T) {
		f := newFixture(t, nil)
		f.sessions.FindByTransactionIDFunc = func(_ context.Context, cpID string, txID int) (*domain.ChargingSession, error) {
			return activeSession, nil
		}
		last := time.Date(2026, 8, 26, 10, 10, 0, 0, time.UTC)
		f.meterValues.LastTimestampFunc = func(_ context.Context, sessionID uint) (time.Time, error) {
			return last, nil
		}
		var saved *domain.MeterValue
		f.meterValues.SaveFunc = func(_ context.Context, mv *domain.MeterValue) error {
			saved = mv
			return nil
		}

		f.deliver(t, "mv1", ocpp.ActionMeterValues,
			`{"connectorId":1,"transactionId":42,"meterValue":[{"timestamp":"2026-08-26T10:00:00Z","sampledValue":[{"value":"2500"}]}]}`)

		if saved == nil {
			t.Fatal("expected the clamped sample to be stored")
		}
		want := last.Add(time.Millisecond)
		if !saved.Timestamp.Equal(want) {
			t.Fatalf("expected timestamp clamped to %s, got %s", want, saved.Timestamp)
		}
	})
}

func TestStopTransaction(t *testing.T) {
	t.Run("completes the session and prices the order", func(t *testing.T) {
		f := newFixture(t, nil)
		stop := int64(6500)
		f.sessions.CompleteFunc = func(_ context.Context, cpID string, txID int, endTime time.Time, meterStop int64) (*domain.ChargingSession, error) {
			end := endTime
			return &domain.ChargingSession{
				ID: 7, ChargePointID: cpID, EVSEID: 1, TransactionID: txID,
				MeterStart: 1500, MeterStop: &stop, EndTime: &end,
				Status: domain.SessionStatusCompleted,
			}, nil
		}
		f.chargePoints.FindByIDFunc = func(_ context.Context, id string) (*domain.ChargePoint, error) {
			return &domain.ChargePoint{ID: id, PricePerKwh: 1200}, nil
		}
		var order *domain.Order
		f.orders.SaveFunc = func(_ context.Context, o *domain.Order) error {
			order = o
			return nil
		}

		reply := f.deliver(t, "st1", ocpp.ActionStopTransaction,
			`{"transactionId":42,"meterStop":6500,"timestamp":"2026-08-26T11:00:00Z"}`)

		var resp ocpp.StopTransactionResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo == nil || resp.IdTagInfo.Status != "Accepted" {
			t.Fatalf("expected Accepted, got %+v", resp.IdTagInfo)
		}
		if order == nil {
			t.Fatal("expected an order")
		}
		if order.ID != "order_CP001_42" {
			t.Fatalf("unexpected order id %s", order.ID)
		}
		// 5 kWh at 1200/kWh.
		if order.Cost != 6000 {
			t.Fatalf("expected cost 6000, got %v", order.Cost)
		}
	})

	t.Run("repeated stop is idempotent", func(t *testing.T) {
		f := newFixture(t, nil)
		f.sessions.CompleteFunc = func(_ context.Context, cpID string, txID int, endTime time.Time, meterStop int64) (*domain.ChargingSession, error) {
			return nil, domain.ErrNoActiveSession
		}
		f.sessions.FindByTransactionIDFunc = func(_ context.Context, cpID string, txID int) (*domain.ChargingSession, error) {
			return &domain.ChargingSession{ID: 7, TransactionID: txID, Status: domain.SessionStatusCompleted}, nil
		}
		orderSaved := false
		f.orders.SaveFunc = func(_ context.Context, o *domain.Order) error {
			orderSaved = true
			return nil
		}

		reply := f.deliver(t, "st1", ocpp.ActionStopTransaction,
			`{"transactionId":42,"meterStop":6500,"timestamp":"2026-08-26T11:00:00Z"}`)

		var resp ocpp.StopTransactionResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo == nil || resp.IdTagInfo.Status != "Accepted" {
			t.Fatalf("expected Accepted on repeat stop, got %+v", resp.IdTagInfo)
		}
		if orderSaved {
			t.Fatal("repeated stop must not create another order")
		}
	})

	t.Run("unknown transaction is accepted and audited", func(t *testing.T) {
		f := newFixture(t, nil)
		f.sessions.CompleteFunc = func(_ context.Context, cpID string, txID int, endTime time.Time, meterStop int64) (*domain.ChargingSession, error) {
			return nil, domain.ErrNoActiveSession
		}
		var kinds []domain.EventKind
		f.events.AppendFunc = func(_ context.Context, e *domain.DeviceEvent) error {
			kinds = append(kinds, e.Kind)
			return nil
		}

		reply := f.deliver(t, "st1", ocpp.ActionStopTransaction,
			`{"transactionId":99,"meterStop":100,"timestamp":"2026-08-26T11:00:00Z"}`)

		var resp ocpp.StopTransactionResp
		if err := json.Unmarshal(reply.Payload, &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.IdTagInfo == nil || resp.IdTagInfo.Status != "Accepted" {
			t.Fatalf("expected Accepted for unknown stop, got %+v", resp.IdTagInfo)
		}
		found := false
		for _, k := range kinds {
			if k == domain.EventUnknownStop {
				found = true
			}
		}
		if !found {
			t.Fatal("expected an unknown_stop audit event")
		}
	})
}

func TestDataTransfer(t *testing.T) {
	f := newFixture(t, nil)

	reply := f.deliver(t, "d1", ocpp.ActionDataTransfer, `{"vendorId":"com.voltgrid","data":"ping"}`)

	var resp ocpp.DataTransferResp
	if err := json.Unmarshal(reply.Payload, &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "Accepted" {
		t.Fatalf("expected Accepted, got %s", resp.Status)
	}
}
