package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// refundTotals splits a payment's refunds into settled and in-flight sums
type refundTotals struct {
	Succeeded decimal.Decimal `db:"succeeded"`
	InFlight  decimal.Decimal `db:"in_flight"`
}

const refundTotalsSQL = `
	SELECT
		COALESCE(SUM(amount) FILTER (WHERE status = 'succeeded'), 0) AS succeeded,
		COALESCE(SUM(amount) FILTER (WHERE status IN ('pending', 'processing')), 0) AS in_flight
	FROM refunds
	WHERE payment_id = $1`

func lockPaymentTx(ctx context.Context, tx *sqlx.Tx, paymentID int64) (*models.Payment, error) {
	var payment models.Payment
	err := tx.GetContext(ctx, &payment, "SELECT * FROM payments WHERE id = $1 FOR UPDATE", paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrPaymentNotFound, paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	return &payment, nil
}

// CreateRefund validates the request against the payment's refundable balance
// and inserts the refund as pending. In-flight refunds are reserved against
// the balance so concurrent requests cannot jointly exceed the payment amount.
// It returns the payment the refund was written against.
func (s *Store) CreateRefund(ctx context.Context, refund *models.Refund) (*models.Payment, error) {
	if len(refund.Metadata) == 0 {
		refund.Metadata = types.JSONText("{}")
	}

	var payment *models.Payment
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		payment, err = lockPaymentTx(ctx, tx, refund.PaymentID)
		if err != nil {
			return err
		}
		if !payment.Status.IsRefundable() {
			return fmt.Errorf("%w: payment %d is %s", models.ErrPaymentNotRefundable, payment.ID, payment.Status)
		}

		var totals refundTotals
		if err := tx.GetContext(ctx, &totals, refundTotalsSQL, payment.ID); err != nil {
			return fmt.Errorf("failed to sum refunds: %w", err)
		}

		balance := payment.Amount.Sub(totals.Succeeded).Sub(totals.InFlight)
		if refund.Amount.GreaterThan(balance) {
			return &models.RefundBalanceError{Requested: refund.Amount, Balance: balance}
		}

		refund.Currency = payment.Currency
		query := `
			INSERT INTO refunds (payment_id, amount, currency, status, reason, metadata, admin_notes, initiated_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING *`
		err = tx.GetContext(ctx, refund, query,
			refund.PaymentID, refund.Amount, refund.Currency, models.RefundStatusPending,
			refund.Reason, refund.Metadata, refund.AdminNotes, refund.InitiatedBy)
		if err != nil {
			return fmt.Errorf("failed to create refund: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// MarkRefundSubmitted records the provider's refund id and moves a pending refund to processing
func (s *Store) MarkRefundSubmitted(ctx context.Context, id int64, providerRefundID string) (*models.Refund, error) {
	var refund models.Refund
	err := s.db.GetContext(ctx, &refund, `
		UPDATE refunds
		SET provider_refund_id = COALESCE(provider_refund_id, NULLIF($1, '')),
		    status = CASE WHEN status = 'pending' THEN 'processing' ELSE status END,
		    updated_at = NOW()
		WHERE id = $2
		RETURNING *`, providerRefundID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrRefundNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark refund submitted: %w", err)
	}
	return &refund, nil
}

// CompleteRefund marks an open refund succeeded and cascades the payment to
// partially_refunded or refunded in the same transaction. A refund that is
// already closed is returned unchanged with applied=false.
func (s *Store) CompleteRefund(ctx context.Context, id int64, providerRefundID string) (*models.Refund, *models.Payment, bool, error) {
	var (
		refund  models.Refund
		payment *models.Payment
		applied bool
	)

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &refund, "SELECT * FROM refunds WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", models.ErrRefundNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock refund: %w", err)
		}

		payment, err = lockPaymentTx(ctx, tx, refund.PaymentID)
		if err != nil {
			return err
		}
		if !refund.Status.IsOpen() {
			return nil
		}

		var totals refundTotals
		if err := tx.GetContext(ctx, &totals, refundTotalsSQL, payment.ID); err != nil {
			return fmt.Errorf("failed to sum refunds: %w", err)
		}
		refunded := totals.Succeeded.Add(refund.Amount)
		if refunded.GreaterThan(payment.Amount) {
			return &models.RefundBalanceError{Requested: refund.Amount, Balance: payment.Amount.Sub(totals.Succeeded)}
		}

		err = tx.GetContext(ctx, &refund, `
			UPDATE refunds
			SET status = 'succeeded',
			    provider_refund_id = COALESCE(provider_refund_id, NULLIF($1, '')),
			    succeeded_at = COALESCE(succeeded_at, NOW()),
			    updated_at = NOW()
			WHERE id = $2
			RETURNING *`, providerRefundID, id)
		if err != nil {
			return fmt.Errorf("failed to complete refund: %w", err)
		}

		next := models.PaymentStatusPartiallyRefunded
		if refunded.Equal(payment.Amount) {
			next = models.PaymentStatusRefunded
		}
		if !payment.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: payment %s -> %s", models.ErrInvalidTransition, payment.Status, next)
		}

		var updated models.Payment
		err = tx.GetContext(ctx, &updated,
			"UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING *",
			next, payment.ID)
		if err != nil {
			return fmt.Errorf("failed to cascade refund to payment: %w", err)
		}
		payment = &updated
		applied = true
		return nil
	})
	if err != nil {
		return nil, nil, false, err
	}
	return &refund, payment, applied, nil
}

// FailRefund closes an open refund as failed. The payment is not touched.
func (s *Store) FailRefund(ctx context.Context, id int64, failureCode, failureMessage string) (*models.Refund, bool, error) {
	var refund models.Refund
	err := s.db.GetContext(ctx, &refund, `
		UPDATE refunds
		SET status = 'failed',
		    failure_code = NULLIF($1, ''),
		    failure_message = NULLIF($2, ''),
		    failed_at = COALESCE(failed_at, NOW()),
		    updated_at = NOW()
		WHERE id = $3 AND status IN ('pending', 'processing')
		RETURNING *`, failureCode, failureMessage, id)
	if errors.Is(err, sql.ErrNoRows) {
		current, err := s.GetRefundByID(ctx, id)
		if err != nil {
			return nil, false, err
		}
		return current, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fail refund: %w", err)
	}
	return &refund, true, nil
}

// GetRefundByID retrieves a refund by ID
func (s *Store) GetRefundByID(ctx context.Context, id int64) (*models.Refund, error) {
	var refund models.Refund
	err := s.db.GetContext(ctx, &refund, "SELECT * FROM refunds WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrRefundNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// GetRefundByProviderID retrieves a refund by the provider's refund id
func (s *Store) GetRefundByProviderID(ctx context.Context, providerRefundID string) (*models.Refund, error) {
	var refund models.Refund
	err := s.db.GetContext(ctx, &refund,
		"SELECT * FROM refunds WHERE provider_refund_id = $1", providerRefundID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrRefundNotFound, providerRefundID)
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

// ListRefunds retrieves refunds matching filter, newest first
func (s *Store) ListRefunds(ctx context.Context, filter models.RefundFilter) ([]models.Refund, error) {
	var w whereBuilder
	if filter.PaymentID != 0 {
		w.add("payment_id = $%d", filter.PaymentID)
	}
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	query := "SELECT * FROM refunds" + w.sql() + " ORDER BY created_at DESC, id DESC" + w.page(filter.Limit, filter.Offset)

	var refunds []models.Refund
	err := s.db.SelectContext(ctx, &refunds, query, w.args...)
	return refunds, err
}
