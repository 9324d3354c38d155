package domain

import (
	"time"
)

// EventKind classifies an entry in the device audit log.
type EventKind string

const (
	EventBoot            EventKind = "boot"
	EventHeartbeat       EventKind = "heartbeat"
	EventStatus          EventKind = "status"
	EventAuthorize       EventKind = "authorize"
	EventTxStarted       EventKind = "tx_started"
	EventTxStopped       EventKind = "tx_stopped"
	EventTxInterrupted   EventKind = "tx_interrupted"
	EventMeterDiscarded  EventKind = "meter_discarded"
	EventClockSkew       EventKind = "clock_skew"
	EventDecodeFailure   EventKind = "decode_failure"
	EventEncodeFailure   EventKind = "encode_failure"
	EventConnected       EventKind = "connected"
	EventDisconnected    EventKind = "disconnected"
	EventInboundDropped  EventKind = "inbound_dropped"
	EventUnknownStop     EventKind = "unknown_stop"
	EventDataTransfer    EventKind = "data_transfer"
	EventFirmwareStatus  EventKind = "firmware_status"
	EventDiagnosticsInfo EventKind = "diagnostics_status"
)

// DeviceEvent is an append-only audit record of OCPP traffic and state
// transitions. It doubles as the source for the statistics timelines
// and for the cold-start cache rebuild.
type DeviceEvent struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ChargePointID string    `json:"charge_point_id" gorm:"index:idx_event_cp_ts"`
	EVSEID        *int      `json:"evse_id,omitempty"`
	Kind          EventKind `json:"kind"`
	Payload       string    `json:"payload"`
	Timestamp     time.Time `json:"timestamp" gorm:"index:idx_event_cp_ts"`
}
