package session

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ocpp"
)

// handleCall dispatches a validated inbound CALL to its handler. The
// returned payload becomes the CALLRESULT; a CallError becomes a
// CALLERROR frame.
func (s *Session) handleCall(action string, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	ctx := context.Background()

	switch action {
	case ocpp.ActionBootNotification:
		return s.handleBootNotification(ctx, payload)
	case ocpp.ActionHeartbeat:
		return s.handleHeartbeat(ctx)
	case ocpp.ActionStatusNotification:
		return s.handleStatusNotification(ctx, payload)
	case ocpp.ActionAuthorize:
		return s.handleAuthorize(ctx, payload)
	case ocpp.ActionStartTransaction:
		return s.handleStartTransaction(ctx, payload)
	case ocpp.ActionStopTransaction:
		return s.handleStopTransaction(ctx, payload)
	case ocpp.ActionMeterValues:
		return s.handleMeterValues(ctx, payload)
	case ocpp.ActionDataTransfer:
		return s.handleDataTransfer(ctx, payload)
	case ocpp.ActionFirmwareStatusNotification:
		return s.handleFirmwareStatus(ctx, payload)
	case ocpp.ActionDiagnosticsStatusNotification:
		return s.handleDiagnosticsStatus(ctx, payload)
	default:
		return nil, ocpp.NewCallError(ocpp.ErrNotImplemented, "no handler for action "+action)
	}
}

func (s *Session) handleBootNotification(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.BootNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrTypeConstraintViolation, err.Error())
	}

	s.log.Info("BootNotification",
		zap.String("vendor", req.ChargePointVendor),
		zap.String("model", req.ChargePointModel),
		zap.String("firmware", req.FirmwareVersion),
	)

	interval := int(s.deps.Config.HeartbeatInterval.Seconds())
	now := time.Now().UTC()

	cp, err := s.deps.ChargePoints.FindByID(ctx, s.chargePointID)
	if err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrInternalError, "charge point lookup failed")
	}

	if cp == nil {
		if !s.deps.Config.AutoProvision {
			s.log.Warn("Rejecting boot from unknown charge point")
			return ocpp.BootNotificationResp{
				Status:      "Rejected",
				CurrentTime: ocpp.FormatTime(now),
				Interval:    interval,
			}, nil
		}
		cp = &domain.ChargePoint{
			ID:                s.chargePointID,
			OperationalStatus: domain.OperationalEnabled,
			Status:            domain.ChargePointStatusAvailable,
		}
	}

	cp.Vendor = req.ChargePointVendor
	cp.Model = req.ChargePointModel
	cp.FirmwareVersion = req.FirmwareVersion
	cp.LastSeen = now

	start := time.Now()
	if err := s.deps.ChargePoints.Save(ctx, cp); err != nil {
		s.log.Error("Failed to save charge point on boot", zap.Error(err))
		return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store write failed")
	}
	telemetry.StoreLatency.Observe(time.Since(start).Seconds())

	s.appendEvent(domain.EventBoot, string(payload), nil)
	s.deps.Liveness.TouchLastSeen(ctx, s.chargePointID, now)
	s.setState(StateOnline)

	return ocpp.BootNotificationResp{
		Status:      "Accepted",
		CurrentTime: ocpp.FormatTime(now),
		Interval:    interval,
	}, nil
}

func (s *Session) handleHeartbeat(ctx context.Context) (interface{}, *ocpp.CallError) {
	now := time.Now().UTC()

	if err := s.deps.ChargePoints.UpdateLastSeen(ctx, s.chargePointID, now); err != nil {
		s.log.Warn("Failed to persist last_seen", zap.Error(err))
	}
	s.appendEvent(domain.EventHeartbeat, "", nil)

	return ocpp.HeartbeatResp{CurrentTime: ocpp.FormatTime(now)}, nil
}

func (s *Session) handleStatusNotification(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.StatusNotificationReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrTypeConstraintViolation, err.Error())
	}

	status := domain.ChargePointStatus(req.Status)
	if req.ErrorCode != "NoError" {
		status = domain.ChargePointStatusFaulted
	}

	s.log.Info("StatusNotification",
		zap.Int("connector_id", req.ConnectorId),
		zap.String("status", string(status)),
		zap.String("error_code", req.ErrorCode),
	)

	if req.ConnectorId == 0 {
		// Connector 0 addresses the charge point as a whole.
		if err := s.deps.ChargePoints.UpdateStatus(ctx, s.chargePointID, status); err != nil {
			return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store write failed")
		}
	} else {
		if err := s.deps.EVSEs.UpdateStatus(ctx, s.chargePointID, req.ConnectorId, status, req.ErrorCode); err != nil {
			return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store write failed")
		}
		if err := s.reconcileAggregateStatus(ctx); err != nil {
			return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store write failed")
		}
	}

	s.deps.Liveness.SetStatus(ctx, s.chargePointID, status)
	evseID := req.ConnectorId
	s.appendEvent(domain.EventStatus, string(payload), &evseID)

	return struct{}{}, nil
}

// reconcileAggregateStatus folds connector statuses up to the charge
// point: all connectors Faulted means the whole unit is Faulted.
func (s *Session) reconcileAggregateStatus(ctx context.Context) error {
	evses, err := s.deps.EVSEs.FindByChargePoint(ctx, s.chargePointID)
	if err != nil {
		return err
	}
	if len(evses) == 0 {
		return nil
	}

	allFaulted := true
	for _, evse := range evses {
		if evse.Status != domain.ChargePointStatusFaulted {
			allFaulted = false
			break
		}
	}

	if allFaulted {
		if err := s.deps.ChargePoints.UpdateStatus(ctx, s.chargePointID, domain.ChargePointStatusFaulted); err != nil {
			return err
		}
		s.setState(StateFaulted)
	} else if s.State() == StateFaulted {
		s.setState(StateOnline)
	}
	return nil
}

func (s *Session) handleAuthorize(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.AuthorizeReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrTypeConstraintViolation, err.Error())
	}

	status := s.authorize(ctx, req.IdTag)
	s.appendEvent(domain.EventAuthorize, req.IdTag+":"+string(status), nil)

	return ocpp.AuthorizeResp{IdTagInfo: ocpp.IdTagInfo{Status: string(status)}}, nil
}

// authorize resolves a tag through the store and populates both
// caches. While the store is unreachable the session cache answers for
// recently seen tags; unknown tags come back Invalid.
func (s *Session) authorize(ctx context.Context, tag string) domain.AuthorizationStatus {
	record, err := s.deps.IdTags.FindByTag(ctx, tag)
	if err != nil {
		s.log.Warn("IdTag lookup failed, falling back to session cache",
			zap.String("id_tag", tag),
			zap.Error(err),
		)
		if cached, ok := s.auth.Get(tag); ok {
			return cached
		}
		return domain.AuthorizationInvalid
	}

	status := domain.AuthorizationInvalid
	if record != nil {
		status = record.EffectiveStatus(time.Now())
	}

	s.auth.Put(tag, status)
	s.deps.Liveness.CacheAuthorization(ctx, tag, status, s.deps.Config.AuthorizeCacheTTL)
	return status
}

func (s *Session) handleStartTransaction(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.StartTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrTypeConstraintViolation, err.Error())
	}

	status := s.authorize(ctx, req.IdTag)
	if status != domain.AuthorizationAccepted {
		s.log.Warn("StartTransaction with unauthorized tag",
			zap.String("id_tag", req.IdTag),
			zap.String("status", string(status)),
		)
		return ocpp.StartTransactionResp{
			TransactionId: 0,
			IdTagInfo:     ocpp.IdTagInfo{Status: string(domain.AuthorizationInvalid)},
		}, nil
	}

	startTime, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrPropertyConstraintViolation, "timestamp is not ISO-8601")
	}

	charging := &domain.ChargingSession{
		ChargePointID: s.chargePointID,
		EVSEID:        req.ConnectorId,
		IdTag:         req.IdTag,
		StartTime:     startTime.UTC(),
		MeterStart:    req.MeterStart,
	}

	start := time.Now()
	if err := s.deps.Sessions.CreateActive(ctx, charging); err != nil {
		if err == domain.ErrSessionConflict {
			s.log.Warn("StartTransaction on busy connector", zap.Int("connector_id", req.ConnectorId))
			return ocpp.StartTransactionResp{
				TransactionId: 0,
				IdTagInfo:     ocpp.IdTagInfo{Status: string(domain.AuthorizationConcurrentTx)},
			}, nil
		}
		s.log.Error("Failed to create charging session", zap.Error(err))
		return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store write failed")
	}
	telemetry.StoreLatency.Observe(time.Since(start).Seconds())
	telemetry.ActiveChargingSessions.Inc()

	evseID := req.ConnectorId
	s.appendEvent(domain.EventTxStarted, string(payload), &evseID)
	s.log.Info("Transaction started",
		zap.Int("transaction_id", charging.TransactionID),
		zap.Int("connector_id", req.ConnectorId),
		zap.String("id_tag", req.IdTag),
	)

	return ocpp.StartTransactionResp{
		TransactionId: charging.TransactionID,
		IdTagInfo:     ocpp.IdTagInfo{Status: string(domain.AuthorizationAccepted)},
	}, nil
}

func (s *Session) handleStopTransaction(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.StopTransactionReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrTypeConstraintViolation, err.Error())
	}

	endTime, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrPropertyConstraintViolation, "timestamp is not ISO-8601")
	}

	accepted := ocpp.StopTransactionResp{IdTagInfo: &ocpp.IdTagInfo{Status: string(domain.AuthorizationAccepted)}}

	start := time.Now()
	completed, err := s.deps.Sessions.Complete(ctx, s.chargePointID, req.TransactionId, endTime.UTC(), req.MeterStop)
	if err != nil {
		if err == domain.ErrNoActiveSession {
			// Double stop after a reconnect replay, or a transaction we
			// never saw. Accept idempotently, never mutate, audit the
			// truly unknown case.
			existing, findErr := s.deps.Sessions.FindByTransactionID(ctx, s.chargePointID, req.TransactionId)
			if findErr == nil && existing == nil {
				s.appendEvent(domain.EventUnknownStop, string(payload), nil)
			}
			s.log.Info("StopTransaction for non-active transaction, accepting",
				zap.Int("transaction_id", req.TransactionId),
			)
			return accepted, nil
		}
		s.log.Error("Failed to complete charging session", zap.Error(err))
		return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store write failed")
	}
	telemetry.StoreLatency.Observe(time.Since(start).Seconds())
	telemetry.ActiveChargingSessions.Dec()
	telemetry.EnergyDeliveredTotal.Add(completed.EnergyKwh())

	order := s.finalizeOrder(ctx, completed)
	evseID := completed.EVSEID
	s.appendEvent(domain.EventTxStopped, string(payload), &evseID)
	s.deps.Publisher.PublishTransactionCompleted(completed, order)

	s.log.Info("Transaction stopped",
		zap.Int("transaction_id", completed.TransactionID),
		zap.Float64("energy_kwh", completed.EnergyKwh()),
	)

	return accepted, nil
}

// finalizeOrder prices the completed session. A failed order write
// must not fail the StopTransaction reply; billing is reconciled from
// the queue.
func (s *Session) finalizeOrder(ctx context.Context, completed *domain.ChargingSession) *domain.Order {
	cp, err := s.deps.ChargePoints.FindByID(ctx, s.chargePointID)
	if err != nil || cp == nil {
		s.log.Warn("Cannot price session, charge point lookup failed", zap.Error(err))
		return nil
	}

	order := &domain.Order{
		ID:            domain.OrderID(s.chargePointID, completed.TransactionID),
		ChargePointID: s.chargePointID,
		SessionID:     completed.ID,
		TransactionID: completed.TransactionID,
		EnergyKwh:     completed.EnergyKwh(),
		PricePerKwh:   cp.PricePerKwh,
		Cost:          domain.SessionCost(completed.EnergyKwh(), cp.PricePerKwh),
		Currency:      "COP",
		Status:        domain.OrderStatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.deps.Orders.Save(ctx, order); err != nil {
		s.log.Error("Failed to save order",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return nil
	}
	return order
}

func (s *Session) handleMeterValues(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.MeterValuesReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrTypeConstraintViolation, err.Error())
	}

	// Samples must belong to an active session; anything else is
	// discarded and audited, never stored as an orphan.
	if req.TransactionId == nil {
		s.appendEvent(domain.EventMeterDiscarded, "missing transactionId", nil)
		return struct{}{}, nil
	}

	charging, err := s.deps.Sessions.FindByTransactionID(ctx, s.chargePointID, *req.TransactionId)
	if err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store read failed")
	}
	if charging == nil || charging.Status != domain.SessionStatusActive {
		s.log.Warn("Discarding meter values for unknown or closed transaction",
			zap.Int("transaction_id", *req.TransactionId),
		)
		s.appendEvent(domain.EventMeterDiscarded, strconv.Itoa(*req.TransactionId), nil)
		return struct{}{}, nil
	}

	lastStored, err := s.deps.MeterValues.LastTimestamp(ctx, charging.ID)
	if err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store read failed")
	}

	for _, entry := range req.MeterValue {
		ts, err := time.Parse(time.RFC3339, entry.Timestamp)
		if err != nil {
			continue
		}
		ts = ts.UTC()

		// Late samples are clamped forward, never rejected: a charger
		// with a skewed clock still gets its energy accounted.
		if !lastStored.IsZero() && ts.Before(lastStored) {
			clamped := lastStored.Add(time.Millisecond)
			s.log.Warn("Clock skew in meter sample, clamping",
				zap.Time("sample", ts),
				zap.Time("clamped", clamped),
			)
			s.appendEvent(domain.EventClockSkew, entry.Timestamp, &req.ConnectorId)
			ts = clamped
		}

		raw, _ := json.Marshal(entry.SampledValue)
		mv := &domain.MeterValue{
			SessionID:    charging.ID,
			ConnectorID:  req.ConnectorId,
			Timestamp:    ts,
			ValueWh:      extractEnergyWh(entry.SampledValue),
			SampledValue: string(raw),
		}
		if err := s.deps.MeterValues.Save(ctx, mv); err != nil {
			s.log.Error("Failed to save meter value", zap.Error(err))
			return nil, ocpp.NewCallError(ocpp.ErrInternalError, "store write failed")
		}
		lastStored = ts
	}

	return struct{}{}, nil
}

// extractEnergyWh pulls the energy register out of a sample. The
// default measurand in OCPP 1.6 is Energy.Active.Import.Register, so
// an unset measurand counts too.
func extractEnergyWh(samples []ocpp.SampledValue) int64 {
	for _, sv := range samples {
		if sv.Measurand != "" && sv.Measurand != "Energy.Active.Import.Register" {
			continue
		}
		value, err := strconv.ParseFloat(sv.Value, 64)
		if err != nil {
			continue
		}
		if sv.Unit == "kWh" {
			value *= 1000
		}
		return int64(value)
	}
	return 0
}

func (s *Session) handleDataTransfer(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	var req ocpp.DataTransferReq
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, ocpp.NewCallError(ocpp.ErrTypeConstraintViolation, err.Error())
	}

	s.appendEvent(domain.EventDataTransfer, string(payload), nil)
	s.log.Debug("DataTransfer", zap.String("vendor_id", req.VendorId), zap.String("message_id", req.MessageId))

	return ocpp.DataTransferResp{Status: "Accepted"}, nil
}

func (s *Session) handleFirmwareStatus(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	s.appendEvent(domain.EventFirmwareStatus, string(payload), nil)
	return struct{}{}, nil
}

func (s *Session) handleDiagnosticsStatus(ctx context.Context, payload json.RawMessage) (interface{}, *ocpp.CallError) {
	s.appendEvent(domain.EventDiagnosticsInfo, string(payload), nil)
	return struct{}{}, nil
}
