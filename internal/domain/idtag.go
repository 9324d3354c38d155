package domain

import (
	"time"
)

// AuthorizationStatus is the OCPP 1.6 idTagInfo status enumeration.
type AuthorizationStatus string

const (
	AuthorizationAccepted     AuthorizationStatus = "Accepted"
	AuthorizationBlocked      AuthorizationStatus = "Blocked"
	AuthorizationExpired      AuthorizationStatus = "Expired"
	AuthorizationInvalid      AuthorizationStatus = "Invalid"
	AuthorizationConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// IdTag is an authorization record for a driver token (RFID card, app
// token).
type IdTag struct {
	Tag       string              `json:"tag" gorm:"primaryKey"`
	Status    AuthorizationStatus `json:"status"`
	ParentTag string              `json:"parent_tag"`
	ExpiresAt *time.Time          `json:"expires_at,omitempty"`
	UserID    string              `json:"user_id"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// EffectiveStatus accounts for expiry on top of the stored status.
func (t *IdTag) EffectiveStatus(now time.Time) AuthorizationStatus {
	if t.Status == AuthorizationAccepted && t.ExpiresAt != nil && t.ExpiresAt.Before(now) {
		return AuthorizationExpired
	}
	return t.Status
}
