// Package provider adapts external payment processors to a single capability
// interface: open an intent, read its status, refund, and authenticate webhooks.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"shop-service/internal/models"

	"github.com/shopspring/decimal"
)

// Provider is implemented by every payment processor integration
type Provider interface {
	Name() models.ProviderName
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	GetStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResult, error)
	GetRefund(ctx context.Context, providerRefundID string) (*RefundResult, error)
	// ParseWebhook authenticates payload and decodes it. Authentication
	// failures wrap models.ErrInvalidSignature.
	ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error)
}

const refundReferencePrefix = "refund-"

// RefundReference is the id a refund is tagged with at the provider
func RefundReference(refundID int64) string {
	return refundReferencePrefix + strconv.FormatInt(refundID, 10)
}

// ParseRefundReference extracts the local refund id from a reference made by
// RefundReference. Anything else, including a bare payment id, is rejected.
func ParseRefundReference(reference string) (int64, bool) {
	raw, ok := strings.CutPrefix(reference, refundReferencePrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IntentRequest opens a provider-side intent or order
type IntentRequest struct {
	// IdempotencyKey makes a retried request return the original intent
	IdempotencyKey    string
	Reference         string
	PurchaseID        int64
	Amount            decimal.Decimal
	Currency          string
	PaymentMethodType string
	Description       string
}

// Intent is the continuation data handed back to the client
type Intent struct {
	ProviderPaymentID string
	Status            models.PaymentStatus
	ClientSecret      string
	ApprovalURL       string
}

// StatusResult is the provider's view of a payment
type StatusResult struct {
	Status           models.PaymentStatus
	ProviderChargeID string
	PaymentMethod    string
	FailureCode      string
	FailureMessage   string
}

// RefundRequest returns money for a captured payment
type RefundRequest struct {
	IdempotencyKey    string
	Reference         string
	ProviderPaymentID string
	ProviderChargeID  string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
}

// RefundResult is the provider's answer to a refund request
type RefundResult struct {
	ProviderRefundID string
	Status           models.RefundStatus
	FailureCode      string
	FailureMessage   string
}

// EventKind groups webhook event types by what they concern
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPayment
	EventRefund
	EventDispute
)

func (k EventKind) String() string {
	switch k {
	case EventPayment:
		return "payment"
	case EventRefund:
		return "refund"
	case EventDispute:
		return "dispute"
	}
	return "unknown"
}

// WebhookEvent is an authenticated, decoded provider notification
type WebhookEvent struct {
	ID   string
	Type string
	Kind EventKind

	ProviderPaymentID string
	// Reference echoes the local id of the payment or refund the event concerns
	Reference string
	Payment   StatusResult

	ProviderRefundID     string
	RefundStatus         models.RefundStatus
	RefundFailureCode    string
	RefundFailureMessage string
}

// Error is a definitive rejection returned by a provider
type Error struct {
	Provider   models.ProviderName
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s rejected request (%d %s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return models.ErrProviderRejected
}

// UnavailableError reports a call that got no usable answer from the provider
type UnavailableError struct {
	Provider  models.ProviderName
	Operation string
	// NotSent is set when the request provably never reached the provider
	NotSent bool
	Err     error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", models.ErrProviderUnavailable, e.Provider, e.Operation, e.Err)
}

func (e *UnavailableError) Is(target error) bool {
	return target == models.ErrProviderUnavailable
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
