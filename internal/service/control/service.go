// Package control exposes server-initiated OCPP commands to the
// operator API: remote start/stop, reset, availability, diagnostics.
package control

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp"
	"github.com/voltgrid/csms/internal/ports"
)

type Service struct {
	dispatcher  ports.CallDispatcher
	sessions    ports.SessionRepository
	callTimeout time.Duration
	log         *zap.Logger
}

func NewService(
	dispatcher ports.CallDispatcher,
	sessions ports.SessionRepository,
	callTimeout time.Duration,
	log *zap.Logger,
) ports.ControlService {
	return &Service{
		dispatcher:  dispatcher,
		sessions:    sessions,
		callTimeout: callTimeout,
		log:         log,
	}
}

// dispatch sends one command and decodes the shared Accepted/Rejected
// reply shape.
func (s *Service) dispatch(ctx context.Context, chargePointID, action string, req interface{}) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	s.log.Info("Dispatching command",
		zap.String("charge_point_id", chargePointID),
		zap.String("action", action),
	)

	reply, err := s.dispatcher.Dispatch(ctx, chargePointID, action, payload, s.callTimeout)
	if err != nil {
		return "", err
	}

	var resp ocpp.RemoteCommandResp
	if err := json.Unmarshal(reply, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (s *Service) RemoteStart(ctx context.Context, chargePointID, idTag string, connectorID *int) (string, error) {
	return s.dispatch(ctx, chargePointID, ocpp.ActionRemoteStartTransaction, ocpp.RemoteStartTransactionReq{
		IdTag:       idTag,
		ConnectorId: connectorID,
	})
}

// RemoteStop resolves the transaction to stop when the caller does not
// name one: a single active session is unambiguous, zero or several are
// errors the operator has to disambiguate.
func (s *Service) RemoteStop(ctx context.Context, chargePointID string, transactionID *int) (string, error) {
	txID := 0
	if transactionID != nil {
		txID = *transactionID
	} else {
		active, err := s.sessions.FindActiveByChargePoint(ctx, chargePointID)
		if err != nil {
			return "", err
		}
		switch len(active) {
		case 0:
			return "", domain.ErrNoActiveSession
		case 1:
			txID = active[0].TransactionID
		default:
			return "", domain.ErrAmbiguousSession
		}
	}

	return s.dispatch(ctx, chargePointID, ocpp.ActionRemoteStopTransaction, ocpp.RemoteStopTransactionReq{
		TransactionId: txID,
	})
}

func (s *Service) Reset(ctx context.Context, chargePointID, resetType string) (string, error) {
	return s.dispatch(ctx, chargePointID, ocpp.ActionReset, ocpp.ResetReq{Type: resetType})
}

func (s *Service) ChangeAvailability(ctx context.Context, chargePointID string, connectorID int, availabilityType string) (string, error) {
	return s.dispatch(ctx, chargePointID, ocpp.ActionChangeAvailability, ocpp.ChangeAvailabilityReq{
		ConnectorId: connectorID,
		Type:        availabilityType,
	})
}

func (s *Service) TriggerMessage(ctx context.Context, chargePointID, requestedMessage string) (string, error) {
	return s.dispatch(ctx, chargePointID, ocpp.ActionTriggerMessage, ocpp.TriggerMessageReq{
		RequestedMessage: requestedMessage,
	})
}

func (s *Service) UnlockConnector(ctx context.Context, chargePointID string, connectorID int) (string, error) {
	return s.dispatch(ctx, chargePointID, ocpp.ActionUnlockConnector, ocpp.UnlockConnectorReq{
		ConnectorId: connectorID,
	})
}

func (s *Service) GetDiagnostics(ctx context.Context, chargePointID, location string) (string, error) {
	payload, err := json.Marshal(ocpp.GetDiagnosticsReq{Location: location})
	if err != nil {
		return "", err
	}
	reply, err := s.dispatcher.Dispatch(ctx, chargePointID, ocpp.ActionGetDiagnostics, payload, s.callTimeout)
	if err != nil {
		return "", err
	}
	var resp ocpp.GetDiagnosticsResp
	if err := json.Unmarshal(reply, &resp); err != nil {
		return "", err
	}
	return resp.FileName, nil
}

func (s *Service) UpdateFirmware(ctx context.Context, chargePointID, location string, retrieveDate time.Time) error {
	payload, err := json.Marshal(ocpp.UpdateFirmwareReq{
		Location:     location,
		RetrieveDate: ocpp.FormatTime(retrieveDate),
	})
	if err != nil {
		return err
	}
	// UpdateFirmware.conf is empty; only transport errors matter.
	_, err = s.dispatcher.Dispatch(ctx, chargePointID, ocpp.ActionUpdateFirmware, payload, s.callTimeout)
	return err
}
