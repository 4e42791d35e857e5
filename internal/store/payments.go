package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
)

// PaymentUpdate carries the provider-reported fields applied with a status move
type PaymentUpdate struct {
	Status           models.PaymentStatus
	ProviderChargeID *string
	PaymentMethod    string
	FailureCode      *string
	FailureMessage   *string
}

// CreatePayment inserts a payment attempt. A second active attempt for the
// same purchase trips the partial unique index.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if len(payment.Metadata) == 0 {
		payment.Metadata = types.JSONText("{}")
	}

	query := `
		INSERT INTO payments (purchase_id, user_id, amount, currency, status, provider, payment_method, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *`

	err := s.db.GetContext(ctx, payment, query,
		payment.PurchaseID, payment.UserID, payment.Amount, payment.Currency,
		payment.Status, payment.Provider, payment.PaymentMethod, payment.Metadata)
	if isUniqueViolation(err, activePaymentConstraint) {
		return fmt.Errorf("%w: purchase %d", models.ErrDuplicateActivePayment, payment.PurchaseID)
	}
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrPaymentNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByProviderID retrieves a payment by the provider's intent/order id
func (s *Store) GetPaymentByProviderID(ctx context.Context, provider models.ProviderName, providerPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE provider = $1 AND provider_payment_id = $2",
		provider, providerPaymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", models.ErrPaymentNotFound, provider, providerPaymentID)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetActivePayment returns the pending/processing payment of a purchase, or nil
func (s *Store) GetActivePayment(ctx context.Context, purchaseID int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE purchase_id = $1 AND status IN ('pending', 'processing')",
		purchaseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// HasPaidPayment reports whether any attempt for the purchase collected money
func (s *Store) HasPaidPayment(ctx context.Context, purchaseID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM payments
			WHERE purchase_id = $1 AND status IN ('succeeded', 'partially_refunded', 'refunded')
		)`, purchaseID)
	return exists, err
}

// SetProviderPaymentID records the provider's id for a payment that has none yet
func (s *Store) SetProviderPaymentID(ctx context.Context, id int64, providerPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, `
		UPDATE payments
		SET provider_payment_id = COALESCE(provider_payment_id, $1), updated_at = NOW()
		WHERE id = $2
		RETURNING *`, providerPaymentID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrPaymentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to store provider payment id: %w", err)
	}
	return &payment, nil
}

// TransitionPayment applies update only if the stored status may move to
// update.Status. It reports whether the row changed; when it did not, the
// current row is returned unchanged. succeeded_at and failed_at are set once.
func (s *Store) TransitionPayment(ctx context.Context, id int64, update PaymentUpdate) (*models.Payment, bool, error) {
	sources := models.PaymentSourcesFor(update.Status)
	from := make([]string, len(sources))
	for i, st := range sources {
		from[i] = string(st)
	}

	query := `
		UPDATE payments
		SET status = $1,
		    provider_charge_id = COALESCE($2, provider_charge_id),
		    payment_method = COALESCE(NULLIF($3, ''), payment_method),
		    failure_code = COALESCE($4, failure_code),
		    failure_message = COALESCE($5, failure_message),
		    succeeded_at = CASE WHEN $1 = 'succeeded' THEN COALESCE(succeeded_at, NOW()) ELSE succeeded_at END,
		    failed_at = CASE WHEN $1 = 'failed' THEN COALESCE(failed_at, NOW()) ELSE failed_at END,
		    updated_at = NOW()
		WHERE id = $6 AND status = ANY($7::text[])
		RETURNING *`

	var payment models.Payment
	err := s.db.GetContext(ctx, &payment, query,
		string(update.Status), update.ProviderChargeID, update.PaymentMethod,
		update.FailureCode, update.FailureMessage, id, pq.Array(from))
	if errors.Is(err, sql.ErrNoRows) {
		current, err := s.GetPaymentByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to transition payment: %w", err)
	}
	return &payment, true, nil
}

// ListPayments retrieves payments matching filter, newest first
func (s *Store) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	var w whereBuilder
	if filter.UserID != 0 {
		w.add("user_id = $%d", filter.UserID)
	}
	if filter.PurchaseID != 0 {
		w.add("purchase_id = $%d", filter.PurchaseID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	if filter.Provider != "" {
		w.add("provider = $%d", filter.Provider)
	}
	query := "SELECT * FROM payments" + w.sql() + " ORDER BY created_at DESC, id DESC" + w.page(filter.Limit, filter.Offset)

	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments, query, w.args...)
	return payments, err
}

// GetPaymentSummary aggregates payments and succeeded refunds
func (s *Store) GetPaymentSummary(ctx context.Context) (*models.PaymentSummary, error) {
	query := `
		SELECT
			COUNT(*) AS total_payments,
			COUNT(*) FILTER (WHERE status IN ('succeeded', 'partially_refunded', 'refunded')) AS successful_payments,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed_payments,
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')) AS pending_payments,
			COALESCE(SUM(amount) FILTER (WHERE status IN ('succeeded', 'partially_refunded', 'refunded')), 0) AS total_amount,
			(SELECT COUNT(*) FROM refunds WHERE status = 'succeeded') AS total_refunds,
			(SELECT COALESCE(SUM(amount), 0) FROM refunds WHERE status = 'succeeded') AS refund_amount
		FROM payments`

	var summary models.PaymentSummary
	if err := s.db.GetContext(ctx, &summary, query); err != nil {
		return nil, fmt.Errorf("failed to summarize payments: %w", err)
	}
	return &summary, nil
}
