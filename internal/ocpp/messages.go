package ocpp

import (
	"encoding/json"
	"time"
)

// Timestamp format on the wire. OCPP 1.6J uses ISO-8601 UTC.
const TimeLayout = time.RFC3339

// FormatTime renders a timestamp the way chargers expect it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// IdTagInfo is the authorization verdict embedded in several responses.
type IdTagInfo struct {
	Status      string `json:"status"`
	ParentIdTag string `json:"parentIdTag,omitempty"`
	ExpiryDate  string `json:"expiryDate,omitempty"`
}

// --- Charger-initiated requests and their responses ---

type BootNotificationReq struct {
	ChargePointVendor       string `json:"chargePointVendor"`
	ChargePointModel        string `json:"chargePointModel"`
	ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
	ChargeBoxSerialNumber   string `json:"chargeBoxSerialNumber,omitempty"`
	FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	Iccid                   string `json:"iccid,omitempty"`
	Imsi                    string `json:"imsi,omitempty"`
	MeterType               string `json:"meterType,omitempty"`
	MeterSerialNumber       string `json:"meterSerialNumber,omitempty"`
}

type BootNotificationResp struct {
	Status      string `json:"status"` // Accepted | Pending | Rejected
	CurrentTime string `json:"currentTime"`
	Interval    int    `json:"interval"`
}

type HeartbeatResp struct {
	CurrentTime string `json:"currentTime"`
}

type StatusNotificationReq struct {
	ConnectorId     int    `json:"connectorId"`
	ErrorCode       string `json:"errorCode"`
	Status          string `json:"status"`
	Timestamp       string `json:"timestamp,omitempty"`
	Info            string `json:"info,omitempty"`
	VendorId        string `json:"vendorId,omitempty"`
	VendorErrorCode string `json:"vendorErrorCode,omitempty"`
}

type AuthorizeReq struct {
	IdTag string `json:"idTag"`
}

type AuthorizeResp struct {
	IdTagInfo IdTagInfo `json:"idTagInfo"`
}

type StartTransactionReq struct {
	ConnectorId   int    `json:"connectorId"`
	IdTag         string `json:"idTag"`
	MeterStart    int64  `json:"meterStart"`
	Timestamp     string `json:"timestamp"`
	ReservationId *int   `json:"reservationId,omitempty"`
}

type StartTransactionResp struct {
	TransactionId int       `json:"transactionId"`
	IdTagInfo     IdTagInfo `json:"idTagInfo"`
}

type StopTransactionReq struct {
	TransactionId   int          `json:"transactionId"`
	MeterStop       int64        `json:"meterStop"`
	Timestamp       string       `json:"timestamp"`
	IdTag           string       `json:"idTag,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	TransactionData []MeterEntry `json:"transactionData,omitempty"`
}

type StopTransactionResp struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// SampledValue is one measurand inside a meter entry. Value stays a
// string on the wire; chargers send both "1500" and "1500.0".
type SampledValue struct {
	Value     string `json:"value"`
	Context   string `json:"context,omitempty"`
	Format    string `json:"format,omitempty"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
}

type MeterEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []SampledValue `json:"sampledValue"`
}

type MeterValuesReq struct {
	ConnectorId   int          `json:"connectorId"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterEntry `json:"meterValue"`
}

type DataTransferReq struct {
	VendorId  string `json:"vendorId"`
	MessageId string `json:"messageId,omitempty"`
	Data      string `json:"data,omitempty"`
}

type DataTransferResp struct {
	Status string `json:"status"` // Accepted | Rejected | UnknownMessageId | UnknownVendorId
	Data   string `json:"data,omitempty"`
}

type FirmwareStatusNotificationReq struct {
	Status string `json:"status"`
}

type DiagnosticsStatusNotificationReq struct {
	Status string `json:"status"`
}

// --- Server-initiated requests and their responses ---

type RemoteStartTransactionReq struct {
	IdTag           string          `json:"idTag"`
	ConnectorId     *int            `json:"connectorId,omitempty"`
	ChargingProfile json.RawMessage `json:"chargingProfile,omitempty"`
}

type RemoteStopTransactionReq struct {
	TransactionId int `json:"transactionId"`
}

// RemoteCommandResp covers the Accepted/Rejected replies shared by
// RemoteStart, RemoteStop, Reset, ChangeAvailability, ClearCache,
// TriggerMessage and friends.
type RemoteCommandResp struct {
	Status string `json:"status"`
}

type ResetReq struct {
	Type string `json:"type"` // Hard | Soft
}

type ChangeAvailabilityReq struct {
	ConnectorId int    `json:"connectorId"`
	Type        string `json:"type"` // Inoperative | Operative
}

type ChangeConfigurationReq struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type GetConfigurationReq struct {
	Key []string `json:"key,omitempty"`
}

type ConfigurationKey struct {
	Key      string  `json:"key"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty"`
}

type GetConfigurationResp struct {
	ConfigurationKey []ConfigurationKey `json:"configurationKey,omitempty"`
	UnknownKey       []string           `json:"unknownKey,omitempty"`
}

type TriggerMessageReq struct {
	RequestedMessage string `json:"requestedMessage"`
	ConnectorId      *int   `json:"connectorId,omitempty"`
}

type UnlockConnectorReq struct {
	ConnectorId int `json:"connectorId"`
}

type GetDiagnosticsReq struct {
	Location      string `json:"location"`
	Retries       *int   `json:"retries,omitempty"`
	RetryInterval *int   `json:"retryInterval,omitempty"`
	StartTime     string `json:"startTime,omitempty"`
	StopTime      string `json:"stopTime,omitempty"`
}

type GetDiagnosticsResp struct {
	FileName string `json:"fileName,omitempty"`
}

type UpdateFirmwareReq struct {
	Location      string `json:"location"`
	RetrieveDate  string `json:"retrieveDate"`
	Retries       *int   `json:"retries,omitempty"`
	RetryInterval *int   `json:"retryInterval,omitempty"`
}

type ReserveNowReq struct {
	ConnectorId   int    `json:"connectorId"`
	ExpiryDate    string `json:"expiryDate"`
	IdTag         string `json:"idTag"`
	ParentIdTag   string `json:"parentIdTag,omitempty"`
	ReservationId int    `json:"reservationId"`
}

type CancelReservationReq struct {
	ReservationId int `json:"reservationId"`
}

type SendLocalListReq struct {
	ListVersion            int               `json:"listVersion"`
	LocalAuthorizationList []json.RawMessage `json:"localAuthorizationList,omitempty"`
	UpdateType             string            `json:"updateType"` // Differential | Full
}

type GetLocalListVersionResp struct {
	ListVersion int `json:"listVersion"`
}

type SetChargingProfileReq struct {
	ConnectorId        int             `json:"connectorId"`
	CsChargingProfiles json.RawMessage `json:"csChargingProfiles"`
}

type ClearChargingProfileReq struct {
	Id            *int   `json:"id,omitempty"`
	ConnectorId   *int   `json:"connectorId,omitempty"`
	StackLevel    *int   `json:"stackLevel,omitempty"`
	PurposeString string `json:"chargingProfilePurpose,omitempty"`
}

type GetCompositeScheduleReq struct {
	ConnectorId      int    `json:"connectorId"`
	Duration         int    `json:"duration"`
	ChargingRateUnit string `json:"chargingRateUnit,omitempty"`
}
