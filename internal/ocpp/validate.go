package ocpp

import (
	"encoding/json"
	"fmt"
	"time"
)

var chargePointStatuses = map[string]bool{
	"Available": true, "Preparing": true, "Charging": true,
	"SuspendedEV": true, "SuspendedEVSE": true, "Finishing": true,
	"Reserved": true, "Unavailable": true, "Faulted": true,
}

var statusErrorCodes = map[string]bool{
	"ConnectorLockFailure": true, "EVCommunicationError": true,
	"GroundFailure": true, "HighTemperature": true, "InternalError": true,
	"LocalListConflict": true, "NoError": true, "OtherError": true,
	"OverCurrentFailure": true, "PowerMeterFailure": true,
	"PowerSwitchFailure": true, "ReaderFailure": true, "ResetFailure": true,
	"UnderVoltage": true, "OverVoltage": true, "WeakSignal": true,
}

var resetTypes = map[string]bool{"Hard": true, "Soft": true}

var availabilityTypes = map[string]bool{"Inoperative": true, "Operative": true}

var triggerableMessages = map[string]bool{
	"BootNotification": true, "DiagnosticsStatusNotification": true,
	"FirmwareStatusNotification": true, "Heartbeat": true,
	"MeterValues": true, "StatusNotification": true,
}

const maxIdTagLength = 20

// ValidateCall checks an inbound or outbound CALL payload against the
// action's schema. A nil return means the payload is acceptable.
func ValidateCall(action string, payload json.RawMessage) *CallError {
	if !IsSupportedAction(action) {
		return NewCallError(ErrNotImplemented, fmt.Sprintf("action %q is not supported", action))
	}

	switch action {
	case ActionBootNotification:
		return validateBootNotification(payload)
	case ActionHeartbeat:
		return nil
	case ActionStatusNotification:
		return validateStatusNotification(payload)
	case ActionAuthorize:
		return validateAuthorize(payload)
	case ActionStartTransaction:
		return validateStartTransaction(payload)
	case ActionStopTransaction:
		return validateStopTransaction(payload)
	case ActionMeterValues:
		return validateMeterValues(payload)
	case ActionDataTransfer:
		return validateDataTransfer(payload)
	case ActionFirmwareStatusNotification, ActionDiagnosticsStatusNotification:
		return validateStatusOnly(action, payload)
	case ActionRemoteStartTransaction:
		return validateRemoteStart(payload)
	case ActionRemoteStopTransaction:
		return validateRemoteStop(payload)
	case ActionReset:
		return validateReset(payload)
	case ActionChangeAvailability:
		return validateChangeAvailability(payload)
	case ActionChangeConfiguration:
		return validateChangeConfiguration(payload)
	case ActionTriggerMessage:
		return validateTriggerMessage(payload)
	case ActionUnlockConnector:
		return validateUnlockConnector(payload)
	case ActionGetDiagnostics:
		return validateGetDiagnostics(payload)
	case ActionUpdateFirmware:
		return validateUpdateFirmware(payload)
	default:
		// Remaining server actions carry free-form or profile payloads
		// that the charger validates on its side.
		return nil
	}
}

func formation(format string, args ...interface{}) *CallError {
	return NewCallError(ErrFormationViolation, fmt.Sprintf(format, args...))
}

func propertyViolation(format string, args ...interface{}) *CallError {
	return NewCallError(ErrPropertyConstraintViolation, fmt.Sprintf(format, args...))
}

func decode(payload json.RawMessage, dst interface{}) *CallError {
	if err := json.Unmarshal(payload, dst); err != nil {
		return NewCallError(ErrTypeConstraintViolation, err.Error())
	}
	return nil
}

func validTimestamp(value string) bool {
	_, err := time.Parse(time.RFC3339, value)
	return err == nil
}

func validateBootNotification(payload json.RawMessage) *CallError {
	var req BootNotificationReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.ChargePointVendor == "" {
		return formation("BootNotification requires chargePointVendor")
	}
	if req.ChargePointModel == "" {
		return formation("BootNotification requires chargePointModel")
	}
	if len(req.ChargePointVendor) > 20 || len(req.ChargePointModel) > 20 {
		return propertyViolation("vendor/model exceed 20 characters")
	}
	return nil
}

func validateStatusNotification(payload json.RawMessage) *CallError {
	var req StatusNotificationReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.ConnectorId < 0 {
		return propertyViolation("connectorId %d must be >= 0", req.ConnectorId)
	}
	if !chargePointStatuses[req.Status] {
		return propertyViolation("unknown status %q", req.Status)
	}
	if !statusErrorCodes[req.ErrorCode] {
		return propertyViolation("unknown errorCode %q", req.ErrorCode)
	}
	if req.Timestamp != "" && !validTimestamp(req.Timestamp) {
		return propertyViolation("timestamp %q is not ISO-8601", req.Timestamp)
	}
	return nil
}

func validateAuthorize(payload json.RawMessage) *CallError {
	var req AuthorizeReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.IdTag == "" {
		return formation("Authorize requires idTag")
	}
	if len(req.IdTag) > maxIdTagLength {
		return propertyViolation("idTag exceeds %d characters", maxIdTagLength)
	}
	return nil
}

func validateStartTransaction(payload json.RawMessage) *CallError {
	var req StartTransactionReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.ConnectorId < 1 {
		return propertyViolation("connectorId %d must be >= 1", req.ConnectorId)
	}
	if req.IdTag == "" {
		return formation("StartTransaction requires idTag")
	}
	if len(req.IdTag) > maxIdTagLength {
		return propertyViolation("idTag exceeds %d characters", maxIdTagLength)
	}
	if req.MeterStart < 0 {
		return propertyViolation("meterStart %d must be >= 0", req.MeterStart)
	}
	if req.Timestamp == "" || !validTimestamp(req.Timestamp) {
		return propertyViolation("timestamp %q is not ISO-8601", req.Timestamp)
	}
	return nil
}

func validateStopTransaction(payload json.RawMessage) *CallError {
	var req StopTransactionReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.MeterStop < 0 {
		return propertyViolation("meterStop %d must be >= 0", req.MeterStop)
	}
	if req.Timestamp == "" || !validTimestamp(req.Timestamp) {
		return propertyViolation("timestamp %q is not ISO-8601", req.Timestamp)
	}
	return nil
}

func validateMeterValues(payload json.RawMessage) *CallError {
	var req MeterValuesReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.ConnectorId < 0 {
		return propertyViolation("connectorId %d must be >= 0", req.ConnectorId)
	}
	if len(req.MeterValue) == 0 {
		return NewCallError(ErrOccurrenceConstraintViolation, "MeterValues requires at least one meterValue entry")
	}
	for _, entry := range req.MeterValue {
		if !validTimestamp(entry.Timestamp) {
			return propertyViolation("meterValue timestamp %q is not ISO-8601", entry.Timestamp)
		}
		if len(entry.SampledValue) == 0 {
			return NewCallError(ErrOccurrenceConstraintViolation, "meterValue entry requires at least one sampledValue")
		}
	}
	return nil
}

func validateDataTransfer(payload json.RawMessage) *CallError {
	var req DataTransferReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.VendorId == "" {
		return formation("DataTransfer requires vendorId")
	}
	return nil
}

func validateStatusOnly(action string, payload json.RawMessage) *CallError {
	var req FirmwareStatusNotificationReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.Status == "" {
		return formation("%s requires status", action)
	}
	return nil
}

func validateRemoteStart(payload json.RawMessage) *CallError {
	var req RemoteStartTransactionReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.IdTag == "" {
		return formation("RemoteStartTransaction requires idTag")
	}
	if req.ConnectorId != nil && *req.ConnectorId < 1 {
		return propertyViolation("connectorId %d must be >= 1", *req.ConnectorId)
	}
	return nil
}

func validateRemoteStop(payload json.RawMessage) *CallError {
	var req RemoteStopTransactionReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.TransactionId <= 0 {
		return propertyViolation("transactionId %d must be > 0", req.TransactionId)
	}
	return nil
}

func validateReset(payload json.RawMessage) *CallError {
	var req ResetReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if !resetTypes[req.Type] {
		return propertyViolation("reset type %q must be Hard or Soft", req.Type)
	}
	return nil
}

func validateChangeAvailability(payload json.RawMessage) *CallError {
	var req ChangeAvailabilityReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.ConnectorId < 0 {
		return propertyViolation("connectorId %d must be >= 0", req.ConnectorId)
	}
	if !availabilityTypes[req.Type] {
		return propertyViolation("availability type %q must be Inoperative or Operative", req.Type)
	}
	return nil
}

func validateChangeConfiguration(payload json.RawMessage) *CallError {
	var req ChangeConfigurationReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.Key == "" {
		return formation("ChangeConfiguration requires key")
	}
	if len(req.Key) > 50 || len(req.Value) > 500 {
		return propertyViolation("key/value exceed OCPP length limits")
	}
	return nil
}

func validateTriggerMessage(payload json.RawMessage) *CallError {
	var req TriggerMessageReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if !triggerableMessages[req.RequestedMessage] {
		return propertyViolation("requestedMessage %q cannot be triggered", req.RequestedMessage)
	}
	return nil
}

func validateUnlockConnector(payload json.RawMessage) *CallError {
	var req UnlockConnectorReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.ConnectorId < 1 {
		return propertyViolation("connectorId %d must be >= 1", req.ConnectorId)
	}
	return nil
}

func validateGetDiagnostics(payload json.RawMessage) *CallError {
	var req GetDiagnosticsReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.Location == "" {
		return formation("GetDiagnostics requires location")
	}
	return nil
}

func validateUpdateFirmware(payload json.RawMessage) *CallError {
	var req UpdateFirmwareReq
	if ce := decode(payload, &req); ce != nil {
		return ce
	}
	if req.Location == "" {
		return formation("UpdateFirmware requires location")
	}
	if req.RetrieveDate == "" || !validTimestamp(req.RetrieveDate) {
		return propertyViolation("retrieveDate %q is not ISO-8601", req.RetrieveDate)
	}
	return nil
}
