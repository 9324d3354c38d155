package domain

import (
	"fmt"
	"math"
	"time"
)

// OrderStatus is the billing state of an order.
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusSettled OrderStatus = "settled"
)

// Order is the commercial wrapper around a completed charging session.
// Created when the session is finalized; settlement happens downstream.
type Order struct {
	ID            string      `json:"id" gorm:"primaryKey"`
	ChargePointID string      `json:"charge_point_id" gorm:"index"`
	SessionID     uint        `json:"session_id" gorm:"uniqueIndex"`
	TransactionID int         `json:"transaction_id"`
	EnergyKwh     float64     `json:"energy_kwh"`
	PricePerKwh   float64     `json:"price_per_kwh"`
	Cost          float64     `json:"cost"`
	Currency      string      `json:"currency"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
}

// OrderID builds the deterministic order identifier for a transaction.
func OrderID(chargePointID string, transactionID int) string {
	return fmt.Sprintf("order_%s_%d", chargePointID, transactionID)
}

// SessionCost is the linear tariff: energy times unit price, rounded
// half-up to two decimals.
func SessionCost(energyKwh, pricePerKwh float64) float64 {
	return math.Floor(energyKwh*pricePerKwh*100+0.5) / 100
}
