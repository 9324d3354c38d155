package domain

import (
	"errors"
)

// Error kinds surfaced by the session engine and the control plane.
// Control API handlers map these onto HTTP statuses; everything else is
// wrapped with %w and logged.
var (
	ErrUnknownCharger      = errors.New("unknown charge point")
	ErrChargerOffline      = errors.New("charge point is offline")
	ErrChargerBusy         = errors.New("charge point outbound queue is full")
	ErrCallTimeout         = errors.New("call timed out waiting for charger reply")
	ErrChargerDisconnected = errors.New("charge point disconnected")
	ErrDuplicateCall       = errors.New("duplicate call in flight")
	ErrNoActiveSession     = errors.New("no active charging session")
	ErrAmbiguousSession    = errors.New("more than one active charging session")
	ErrSessionConflict     = errors.New("connector already has an active session")
	ErrDeviceExists        = errors.New("device serial already provisioned")
	ErrInvalidChargerID    = errors.New("charge point id is empty after sanitization")
	ErrNotFound            = errors.New("record not found")
)
