package domain

import (
	"strings"
	"time"
	"unicode"
)

// ChargePointStatus is the physical status reported by the charger
// (OCPP 1.6 ChargePointStatus enumeration).
type ChargePointStatus string

const (
	ChargePointStatusAvailable     ChargePointStatus = "Available"
	ChargePointStatusPreparing     ChargePointStatus = "Preparing"
	ChargePointStatusCharging      ChargePointStatus = "Charging"
	ChargePointStatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	ChargePointStatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	ChargePointStatusFinishing     ChargePointStatus = "Finishing"
	ChargePointStatusReserved      ChargePointStatus = "Reserved"
	ChargePointStatusUnavailable   ChargePointStatus = "Unavailable"
	ChargePointStatusFaulted       ChargePointStatus = "Faulted"
)

// OperationalStatus is the operator-controlled administrative state.
type OperationalStatus string

const (
	OperationalEnabled     OperationalStatus = "ENABLED"
	OperationalDisabled    OperationalStatus = "DISABLED"
	OperationalMaintenance OperationalStatus = "MAINTENANCE"
)

// ChargePoint is one logical OCPP endpoint. Its ID equals the device
// serial number in practice.
type ChargePoint struct {
	ID                string            `json:"id" gorm:"primaryKey"`
	Vendor            string            `json:"vendor"`
	Model             string            `json:"model"`
	FirmwareVersion   string            `json:"firmware_version"`
	Status            ChargePointStatus `json:"status"`
	OperationalStatus OperationalStatus `json:"operational_status"`
	LastSeen          time.Time         `json:"last_seen"`
	Latitude          *float64          `json:"latitude,omitempty"`
	Longitude         *float64          `json:"longitude,omitempty"`
	Address           string            `json:"address"`
	PricePerKwh       float64           `json:"price_per_kwh"`
	ChargeRateKW      float64           `json:"charge_rate_kw"`
	EVSEs             []EVSE            `json:"evses" gorm:"foreignKey:ChargePointID"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// IsAvailable reports whether the charge point can accept a new charging
// session right now.
func (cp *ChargePoint) IsAvailable() bool {
	return cp.Status == ChargePointStatusAvailable && cp.OperationalStatus == OperationalEnabled
}

// IsConfigured reports whether the operator has finished onboarding:
// a charge point needs both a location and a price before it is shown
// to drivers.
func (cp *ChargePoint) IsConfigured() bool {
	return cp.HasLocation() && cp.PricePerKwh > 0
}

func (cp *ChargePoint) HasLocation() bool {
	return cp.Latitude != nil && cp.Longitude != nil
}

// ConnectorType identifies the physical plug standard of an EVSE.
type ConnectorType string

const (
	ConnectorType1    ConnectorType = "Type1"
	ConnectorType2    ConnectorType = "Type2"
	ConnectorTypeCCS1 ConnectorType = "CCS1"
	ConnectorTypeCCS2 ConnectorType = "CCS2"
	ConnectorTypeGBT  ConnectorType = "GBT"
)

// EVSE is one physical outlet of a charge point. ConnectorID is the
// 1-based OCPP connector number; (ChargePointID, ConnectorID) is unique.
type EVSE struct {
	ID            uint              `json:"id" gorm:"primaryKey"`
	ChargePointID string            `json:"charge_point_id" gorm:"uniqueIndex:idx_evse_cp_connector"`
	ConnectorID   int               `json:"connector_id" gorm:"uniqueIndex:idx_evse_cp_connector"`
	ConnectorType ConnectorType     `json:"connector_type"`
	Status        ChargePointStatus `json:"status"`
	LastErrorCode string            `json:"last_error_code"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SanitizeChargePointID reduces a reported charger identity to the
// characters we accept as a primary key. Chargers in the field have
// been seen sending ids with embedded whitespace and punctuation.
func SanitizeChargePointID(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
