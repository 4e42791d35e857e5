package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPurchaseStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to PurchaseStatus
		allowed  bool
	}{
		{PurchaseStatusPending, PurchaseStatusConfirmed, true},
		{PurchaseStatusPending, PurchaseStatusShipped, true},
		{PurchaseStatusConfirmed, PurchaseStatusProcessing, true},
		{PurchaseStatusShipped, PurchaseStatusDelivered, true},
		{PurchaseStatusShipped, PurchaseStatusCancelled, true},
		{PurchaseStatusShipped, PurchaseStatusShipped, true},
		{PurchaseStatusDelivered, PurchaseStatusShipped, false},
		{PurchaseStatusProcessing, PurchaseStatusConfirmed, false},
		{PurchaseStatusDelivered, PurchaseStatusCancelled, false},
		{PurchaseStatusCancelled, PurchaseStatusPending, false},
		{PurchaseStatusPending, PurchaseStatus("lost"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestRestocksOnCancel(t *testing.T) {
	assert.True(t, PurchaseStatusPending.RestocksOnCancel())
	assert.True(t, PurchaseStatusProcessing.RestocksOnCancel())
	assert.False(t, PurchaseStatusShipped.RestocksOnCancel())
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusProcessing))
	assert.True(t, PaymentStatusProcessing.CanTransitionTo(PaymentStatusSucceeded))
	assert.True(t, PaymentStatusSucceeded.CanTransitionTo(PaymentStatusPartiallyRefunded))
	assert.True(t, PaymentStatusPartiallyRefunded.CanTransitionTo(PaymentStatusRefunded))

	assert.False(t, PaymentStatusSucceeded.CanTransitionTo(PaymentStatusSucceeded))
	assert.False(t, PaymentStatusSucceeded.CanTransitionTo(PaymentStatusFailed))
	assert.False(t, PaymentStatusProcessing.CanTransitionTo(PaymentStatusPending))
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusSucceeded))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusPartiallyRefunded))
}

func TestPaymentSourcesFor(t *testing.T) {
	assert.ElementsMatch(t,
		[]PaymentStatus{PaymentStatusPending, PaymentStatusProcessing},
		PaymentSourcesFor(PaymentStatusSucceeded))
	assert.ElementsMatch(t,
		[]PaymentStatus{PaymentStatusPending},
		PaymentSourcesFor(PaymentStatusProcessing))
	assert.Empty(t, PaymentSourcesFor(PaymentStatusPending))
}
