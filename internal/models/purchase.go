package models

// PurchaseStatus is the fulfilment state of a purchase
type PurchaseStatus string

const (
	PurchaseStatusPending    PurchaseStatus = "pending"
	PurchaseStatusConfirmed  PurchaseStatus = "confirmed"
	PurchaseStatusProcessing PurchaseStatus = "processing"
	PurchaseStatusShipped    PurchaseStatus = "shipped"
	PurchaseStatusDelivered  PurchaseStatus = "delivered"
	PurchaseStatusCancelled  PurchaseStatus = "cancelled"
)

// position along the fulfilment line; cancelled is off the line
var purchaseStatusRank = map[PurchaseStatus]int{
	PurchaseStatusPending:    0,
	PurchaseStatusConfirmed:  1,
	PurchaseStatusProcessing: 2,
	PurchaseStatusShipped:    3,
	PurchaseStatusDelivered:  4,
}

// PurchaseStatuses lists every known status in lifecycle order
var PurchaseStatuses = []PurchaseStatus{
	PurchaseStatusPending,
	PurchaseStatusConfirmed,
	PurchaseStatusProcessing,
	PurchaseStatusShipped,
	PurchaseStatusDelivered,
	PurchaseStatusCancelled,
}

// Valid reports whether s is a known status
func (s PurchaseStatus) Valid() bool {
	_, ok := purchaseStatusRank[s]
	return ok || s == PurchaseStatusCancelled
}

// IsTerminal reports whether no further movement is possible
func (s PurchaseStatus) IsTerminal() bool {
	return s == PurchaseStatusDelivered || s == PurchaseStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is forward-only.
// Staying on the same status is allowed so tracking and notes can be rewritten.
func (s PurchaseStatus) CanTransitionTo(next PurchaseStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if next == PurchaseStatusCancelled {
		return true
	}
	return purchaseStatusRank[next] > purchaseStatusRank[s]
}

// RestocksOnCancel reports whether cancelling from s returns goods to stock
func (s PurchaseStatus) RestocksOnCancel() bool {
	switch s {
	case PurchaseStatusPending, PurchaseStatusConfirmed, PurchaseStatusProcessing:
		return true
	}
	return false
}
