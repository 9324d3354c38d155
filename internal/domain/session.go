package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a charging session.
type SessionStatus string

const (
	SessionStatusActive      SessionStatus = "active"
	SessionStatusCompleted   SessionStatus = "completed"
	SessionStatusCancelled   SessionStatus = "cancelled"
	SessionStatusInterrupted SessionStatus = "interrupted"
)

// ChargingSession is one active or historical charging transaction.
// TransactionID is the integer the server assigned in the
// StartTransaction response; (ChargePointID, EVSEID, TransactionID)
// is unique and at most one session per (ChargePointID, EVSEID) may be
// active at a time.
type ChargingSession struct {
	ID            uint          `json:"id" gorm:"primaryKey"`
	ChargePointID string        `json:"charge_point_id" gorm:"uniqueIndex:idx_session_cp_evse_tx;index:idx_session_cp_status"`
	EVSEID        int           `json:"evse_id" gorm:"uniqueIndex:idx_session_cp_evse_tx"`
	TransactionID int           `json:"transaction_id" gorm:"uniqueIndex:idx_session_cp_evse_tx"`
	IdTag         string        `json:"id_tag"`
	UserID        string        `json:"user_id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       *time.Time    `json:"end_time,omitempty"`
	MeterStart    int64         `json:"meter_start"` // Wh
	MeterStop     *int64        `json:"meter_stop,omitempty"`
	Status        SessionStatus `json:"status" gorm:"index:idx_session_cp_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// EnergyKwh is the energy delivered over the session, zero until the
// stop reading is known.
func (s *ChargingSession) EnergyKwh() float64 {
	if s.MeterStop == nil {
		return 0
	}
	return float64(*s.MeterStop-s.MeterStart) / 1000.0
}

// MeterValue is one sampled meter reading. SessionID is required: a
// reading that cannot be attributed to a session is discarded upstream,
// never stored.
type MeterValue struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	SessionID    uint      `json:"session_id" gorm:"index:idx_meter_session_ts"`
	ConnectorID  int       `json:"connector_id"`
	Timestamp    time.Time `json:"timestamp" gorm:"index:idx_meter_session_ts"`
	ValueWh      int64     `json:"value_wh"`
	SampledValue string    `json:"sampled_value"` // raw sampledValue JSON for audit
	CreatedAt    time.Time `json:"created_at"`
}
