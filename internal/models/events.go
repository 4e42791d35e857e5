package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypePurchaseCreated       = "PURCHASE_CREATED"
	EventTypePurchaseStatusChanged = "PURCHASE_STATUS_CHANGED"
	EventTypePaymentSucceeded      = "PAYMENT_SUCCEEDED"
	EventTypePaymentFailed         = "PAYMENT_FAILED"
	EventTypeRefundSucceeded       = "REFUND_SUCCEEDED"
	EventTypeRefundFailed          = "REFUND_FAILED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseCreatedEvent published for every purchase written by checkout or buy-now
type PurchaseCreatedEvent struct {
	BaseEvent
	PurchaseID int64           `json:"purchase_id"`
	UserID     int64           `json:"user_id"`
	ProductID  int64           `json:"product_id"`
	Quantity   int             `json:"quantity"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// PurchaseStatusChangedEvent published when an admin moves a purchase
type PurchaseStatusChangedEvent struct {
	BaseEvent
	PurchaseID     int64          `json:"purchase_id"`
	UserID         int64          `json:"user_id"`
	From           PurchaseStatus `json:"from"`
	To             PurchaseStatus `json:"to"`
	TrackingNumber string         `json:"tracking_number,omitempty"`
}

// PaymentSucceededEvent published once when a payment reaches succeeded
type PaymentSucceededEvent struct {
	BaseEvent
	PaymentID  int64           `json:"payment_id"`
	PurchaseID int64           `json:"purchase_id"`
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	Provider   ProviderName    `json:"provider"`
}

// PaymentFailedEvent published once when a payment reaches failed
type PaymentFailedEvent struct {
	BaseEvent
	PaymentID      int64        `json:"payment_id"`
	PurchaseID     int64        `json:"purchase_id"`
	UserID         int64        `json:"user_id"`
	Provider       ProviderName `json:"provider"`
	FailureCode    string       `json:"failure_code,omitempty"`
	FailureMessage string       `json:"failure_message,omitempty"`
}

// RefundSucceededEvent published when a refund is confirmed by the provider
type RefundSucceededEvent struct {
	BaseEvent
	RefundID      int64           `json:"refund_id"`
	PaymentID     int64           `json:"payment_id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
}

// RefundFailedEvent published when a refund attempt is rejected
type RefundFailedEvent struct {
	BaseEvent
	RefundID       int64           `json:"refund_id"`
	PaymentID      int64           `json:"payment_id"`
	UserID         int64           `json:"user_id"`
	Amount         decimal.Decimal `json:"amount"`
	FailureCode    string          `json:"failure_code,omitempty"`
	FailureMessage string          `json:"failure_message,omitempty"`
}
