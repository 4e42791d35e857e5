package models

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound        = errors.New("product not found")
	ErrOutOfStock             = errors.New("out of stock")
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrOperationInProgress    = errors.New("operation already in progress")
	ErrPurchaseNotFound       = errors.New("purchase not found")
	ErrPurchaseNotPayable     = errors.New("purchase cannot be paid")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrDuplicateActivePayment = errors.New("an active payment already exists for this purchase")
	ErrInvalidSignature       = errors.New("invalid webhook signature")
	ErrMalformedWebhook       = errors.New("malformed webhook payload")
	ErrPaymentNotRefundable   = errors.New("payment is not refundable")
	ErrRefundExceedsBalance   = errors.New("refund exceeds refundable balance")
	ErrRefundNotFound         = errors.New("refund not found")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrUnsupportedProvider    = errors.New("unsupported payment provider")
	ErrProviderUnavailable    = errors.New("payment provider unavailable")
	ErrProviderRejected       = errors.New("payment provider rejected the request")
	ErrForbidden              = errors.New("admin privileges required")
)

// StockError names the product whose stock could not cover a request.
// Kind is ErrOutOfStock or ErrInsufficientStock.
type StockError struct {
	Kind      error
	ProductID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%v: product=%d, requested=%d, available=%d",
		e.Kind, e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return e.Kind
}

// RefundBalanceError carries the balance a refund request was checked against
type RefundBalanceError struct {
	Requested decimal.Decimal
	Balance   decimal.Decimal
}

func (e *RefundBalanceError) Error() string {
	return fmt.Sprintf("%v: requested=%s, refundable=%s",
		ErrRefundExceedsBalance, e.Requested.StringFixed(2), e.Balance.StringFixed(2))
}

func (e *RefundBalanceError) Unwrap() error {
	return ErrRefundExceedsBalance
}
