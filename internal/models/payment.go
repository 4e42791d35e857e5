package models

// PaymentStatus is the state of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusProcessing        PaymentStatus = "processing"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusCancelled         PaymentStatus = "cancelled"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending: {
		PaymentStatusProcessing,
		PaymentStatusSucceeded,
		PaymentStatusFailed,
		PaymentStatusCancelled,
	},
	PaymentStatusProcessing: {
		PaymentStatusSucceeded,
		PaymentStatusFailed,
		PaymentStatusCancelled,
	},
	PaymentStatusSucceeded: {
		PaymentStatusPartiallyRefunded,
		PaymentStatusRefunded,
	},
	PaymentStatusPartiallyRefunded: {
		PaymentStatusPartiallyRefunded,
		PaymentStatusRefunded,
	},
}

// CanTransitionTo reports whether next is a valid forward move from s
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentSourcesFor returns every status from which next may be reached
func PaymentSourcesFor(next PaymentStatus) []PaymentStatus {
	var sources []PaymentStatus
	for from, targets := range paymentTransitions {
		for _, to := range targets {
			if to == next {
				sources = append(sources, from)
				break
			}
		}
	}
	return sources
}

// IsActive reports whether the payment still awaits a provider outcome
func (s PaymentStatus) IsActive() bool {
	return s == PaymentStatusPending || s == PaymentStatusProcessing
}

// IsRefundable reports whether refunds may be created against the payment
func (s PaymentStatus) IsRefundable() bool {
	return s == PaymentStatusSucceeded || s == PaymentStatusPartiallyRefunded
}

// IsPaid reports whether money was collected at some point
func (s PaymentStatus) IsPaid() bool {
	return s.IsRefundable() || s == PaymentStatusRefunded
}

// IsProviderDriven reports whether the status is reached through the provider
// rather than through a refund.
func (s PaymentStatus) IsProviderDriven() bool {
	switch s {
	case PaymentStatusProcessing, PaymentStatusSucceeded, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// RefundStatus is the state of a refund
type RefundStatus string

const (
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusSucceeded  RefundStatus = "succeeded"
	RefundStatusFailed     RefundStatus = "failed"
	RefundStatusCancelled  RefundStatus = "cancelled"
)

// IsOpen reports whether the refund still awaits a provider outcome
func (s RefundStatus) IsOpen() bool {
	return s == RefundStatusPending || s == RefundStatusProcessing
}
