package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// Product is the catalog row the inventory ledger works against
type Product struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Price         decimal.Decimal `db:"price" json:"price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// CartLine is one (product, quantity) pair in a user's cart
type CartLine struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	AddedAt   time.Time `db:"added_at" json:"added_at"`
}

// CartLineDetail is a cart line joined with the live product row
type CartLineDetail struct {
	CartLine
	ProductName   string          `db:"product_name" json:"product_name"`
	ProductPrice  decimal.Decimal `db:"product_price" json:"product_price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	Subtotal      decimal.Decimal `db:"-" json:"subtotal"`
}

// CartSummary is the read-only projection of a cart
type CartSummary struct {
	Items      []CartLineDetail `json:"items"`
	TotalItems int              `json:"total_items"`
	TotalPrice decimal.Decimal  `json:"total_price"`
}

// Purchase is the immutable record of one bought line
type Purchase struct {
	ID              int64           `db:"id" json:"id"`
	ItemID          int64           `db:"item_id" json:"item_id"`
	CustomerID      int64           `db:"customer_id" json:"customer_id"`
	Quantity        int             `db:"quantity" json:"quantity"`
	UnitPrice       decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice      decimal.Decimal `db:"total_price" json:"total_price"`
	Status          PurchaseStatus  `db:"status" json:"status"`
	StatusUpdatedAt time.Time       `db:"status_updated_at" json:"status_updated_at"`
	TrackingNumber  *string         `db:"tracking_number" json:"tracking_number,omitempty"`
	Notes           *string         `db:"notes" json:"notes,omitempty"`
	PurchaseDate    time.Time       `db:"purchase_date" json:"purchase_date"`
}

// Payment is one attempt to collect money for a purchase
type Payment struct {
	ID                int64           `db:"id" json:"id"`
	PurchaseID        int64           `db:"purchase_id" json:"purchase_id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	Status            PaymentStatus   `db:"status" json:"status"`
	Provider          ProviderName    `db:"provider" json:"provider"`
	ProviderPaymentID *string         `db:"provider_payment_id" json:"provider_payment_id,omitempty"`
	ProviderChargeID  *string         `db:"provider_charge_id" json:"provider_charge_id,omitempty"`
	PaymentMethod     string          `db:"payment_method" json:"payment_method"`
	Metadata          types.JSONText  `db:"metadata" json:"metadata,omitempty"`
	FailureCode       *string         `db:"failure_code" json:"failure_code,omitempty"`
	FailureMessage    *string         `db:"failure_message" json:"failure_message,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	SucceededAt       *time.Time      `db:"succeeded_at" json:"succeeded_at,omitempty"`
	FailedAt          *time.Time      `db:"failed_at" json:"failed_at,omitempty"`
}

// PaymentWithRefunds is a payment together with every refund made against it
type PaymentWithRefunds struct {
	Payment
	Refunds []Refund `json:"refunds"`
}

// Refund is a partial or full return of a succeeded payment
type Refund struct {
	ID               int64           `db:"id" json:"id"`
	PaymentID        int64           `db:"payment_id" json:"payment_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Currency         string          `db:"currency" json:"currency"`
	Status           RefundStatus    `db:"status" json:"status"`
	Reason           string          `db:"reason" json:"reason"`
	ProviderRefundID *string         `db:"provider_refund_id" json:"provider_refund_id,omitempty"`
	Metadata         types.JSONText  `db:"metadata" json:"metadata,omitempty"`
	AdminNotes       *string         `db:"admin_notes" json:"admin_notes,omitempty"`
	FailureCode      *string         `db:"failure_code" json:"failure_code,omitempty"`
	FailureMessage   *string         `db:"failure_message" json:"failure_message,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
	SucceededAt      *time.Time      `db:"succeeded_at" json:"succeeded_at,omitempty"`
	FailedAt         *time.Time      `db:"failed_at" json:"failed_at,omitempty"`
	InitiatedBy      int64           `db:"initiated_by" json:"initiated_by"`
}

// ProviderName identifies a payment provider integration
type ProviderName string

const (
	ProviderStripe ProviderName = "stripe"
	ProviderPayPal ProviderName = "paypal"
)

// OrderStats aggregates purchases by status
type OrderStats struct {
	TotalOrders   int64                              `json:"total_orders"`
	TotalRevenue  decimal.Decimal                    `json:"total_revenue"`
	RecentOrders  int64                              `json:"recent_orders"`
	StatusCounts  map[PurchaseStatus]int64           `json:"status_counts"`
	StatusRevenue map[PurchaseStatus]decimal.Decimal `json:"status_revenue"`
}

// StatusAggregate is one GROUP BY status row
type StatusAggregate struct {
	Status  string          `db:"status"`
	Count   int64           `db:"count"`
	Revenue decimal.Decimal `db:"revenue"`
}

// PaymentSummary is the admin overview of payments and refunds
type PaymentSummary struct {
	TotalPayments      int64           `db:"total_payments" json:"total_payments"`
	SuccessfulPayments int64           `db:"successful_payments" json:"successful_payments"`
	FailedPayments     int64           `db:"failed_payments" json:"failed_payments"`
	PendingPayments    int64           `db:"pending_payments" json:"pending_payments"`
	TotalAmount        decimal.Decimal `db:"total_amount" json:"total_amount"`
	TotalRefunds       int64           `db:"total_refunds" json:"total_refunds"`
	RefundAmount       decimal.Decimal `db:"refund_amount" json:"refund_amount"`
}

// PurchaseFilter narrows admin purchase listings
type PurchaseFilter struct {
	Status PurchaseStatus
	Limit  int
	Offset int
}

// PaymentFilter narrows payment listings
type PaymentFilter struct {
	UserID     int64
	PurchaseID int64
	Status     PaymentStatus
	Provider   ProviderName
	Limit      int
	Offset     int
}

// RefundFilter narrows refund listings
type RefundFilter struct {
	PaymentID int64
	Status    RefundStatus
	Limit     int
	Offset    int
}
