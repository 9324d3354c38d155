package domain

import (
	"time"
)

// Device is the provisioned identity of a physical unit. The master
// secret is stored encrypted; the MQTT password handed to the device is
// derived from it and never persisted.
type Device struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	SerialNumber    string    `json:"serial_number" gorm:"uniqueIndex"`
	TypeCode        string    `json:"type_code"`
	EncryptedSecret string    `json:"-"`
	EncryptionAlgo  string    `json:"encryption_algo"`
	MQTTClientID    string    `json:"mqtt_client_id"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MQTTCredentials are the broker credentials derived for a device at
// provisioning time. Returned once in the provisioning response.
type MQTTCredentials struct {
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}
