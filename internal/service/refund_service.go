package service

import (
	"context"
	"errors"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/provider"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RefundStore persists refunds and their effect on payments
type RefundStore interface {
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	CreateRefund(ctx context.Context, refund *models.Refund) (*models.Payment, error)
	MarkRefundSubmitted(ctx context.Context, id int64, providerRefundID string) (*models.Refund, error)
	CompleteRefund(ctx context.Context, id int64, providerRefundID string) (*models.Refund, *models.Payment, bool, error)
	FailRefund(ctx context.Context, id int64, failureCode, failureMessage string) (*models.Refund, bool, error)
	GetRefundByID(ctx context.Context, id int64) (*models.Refund, error)
	GetRefundByProviderID(ctx context.Context, providerRefundID string) (*models.Refund, error)
	ListRefunds(ctx context.Context, filter models.RefundFilter) ([]models.Refund, error)
}

// CreateRefundRequest returns part or all of a succeeded payment
type CreateRefundRequest struct {
	PaymentID  int64           `json:"payment_id" binding:"required"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	AdminNotes *string         `json:"admin_notes,omitempty"`
}

// RefundService validates refunds against the refundable balance and
// submits them to the provider that took the payment.
type RefundService struct {
	store          RefundStore
	providers      map[models.ProviderName]provider.Provider
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewRefundService creates a new refund service
func NewRefundService(store RefundStore, providers []provider.Provider, eventPublisher EventPublisher) *RefundService {
	byName := make(map[models.ProviderName]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	return &RefundService{
		store:          store,
		providers:      byName,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// CreateRefund records a pending refund and submits it. A provider rejection
// closes the refund as failed and leaves the payment untouched, as does a
// request that never reached the provider. When the outcome is unknown the
// refund stays pending until a webhook or SettleRefund resolves it.
func (s *RefundService) CreateRefund(ctx context.Context, caller Caller, req CreateRefundRequest) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.CreateRefund")
	defer span.End()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	amount := req.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: refund amount must be at least 0.01", models.ErrInvalidAmount)
	}

	refund := &models.Refund{
		PaymentID:   req.PaymentID,
		Amount:      amount,
		Reason:      req.Reason,
		AdminNotes:  req.AdminNotes,
		InitiatedBy: caller.UserID,
	}

	payment, err := s.store.CreateRefund(ctx, refund)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Refund created",
		zap.Int64("refund_id", refund.ID),
		zap.Int64("payment_id", payment.ID),
		zap.String("amount", refund.Amount.StringFixed(2)),
		zap.Int64("admin_id", caller.UserID))

	refund, err = s.submit(ctx, refund, payment)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}
	return refund, nil
}

// submit sends the refund under its idempotency key and applies the answer.
// Resubmitting the same refund returns whatever the provider already did.
func (s *RefundService) submit(ctx context.Context, refund *models.Refund, payment *models.Payment) (*models.Refund, error) {
	p, ok := s.providers[payment.Provider]
	if !ok {
		return nil, s.fail(ctx, refund, payment, fmt.Errorf("%w: %q", models.ErrUnsupportedProvider, payment.Provider))
	}

	result, err := p.Refund(ctx, provider.RefundRequest{
		IdempotencyKey:    fmt.Sprintf("refund-%d", refund.ID),
		Reference:         provider.RefundReference(refund.ID),
		ProviderPaymentID: derefString(payment.ProviderPaymentID),
		ProviderChargeID:  derefString(payment.ProviderChargeID),
		Amount:            refund.Amount,
		Currency:          refund.Currency,
		Reason:            refund.Reason,
	})
	if err != nil {
		if errors.Is(err, models.ErrProviderUnavailable) && !neverSent(err) {
			util.RefundsTotal.WithLabelValues("awaiting_provider").Inc()
			s.logger.Warn("Refund submission did not complete, awaiting settlement",
				zap.Int64("refund_id", refund.ID),
				zap.Error(err))
			return nil, fmt.Errorf("refund %d not confirmed: %w", refund.ID, err)
		}
		return nil, s.fail(ctx, refund, payment, err)
	}

	updated, _, err := s.apply(ctx, refund.ID, payment.UserID, result.Status, result.ProviderRefundID, result.FailureCode, result.FailureMessage)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// neverSent reports a transport failure that happened before the request left
func neverSent(err error) bool {
	var uerr *provider.UnavailableError
	return errors.As(err, &uerr) && uerr.NotSent
}

// fail closes the refund as failed and returns the wrapped cause
func (s *RefundService) fail(ctx context.Context, refund *models.Refund, payment *models.Payment, cause error) error {
	code, message := "refund_error", cause.Error()
	var perr *provider.Error
	switch {
	case errors.As(cause, &perr):
		code, message = perr.Code, perr.Message
	case neverSent(cause):
		code = "provider_unreachable"
	}

	if _, _, err := s.apply(ctx, refund.ID, payment.UserID, models.RefundStatusFailed, "", code, message); err != nil {
		s.logger.Error("Failed to record failed refund",
			zap.Int64("refund_id", refund.ID),
			zap.Error(err))
	}
	return fmt.Errorf("refund %d failed: %w", refund.ID, cause)
}

// SettleRefund resolves a refund left open by an inconclusive submission.
// A refund the provider already acknowledged is polled; one it never
// acknowledged is resubmitted under the original idempotency key.
func (s *RefundService) SettleRefund(ctx context.Context, caller Caller, refundID int64) (*models.Refund, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.SettleRefund")
	defer span.End()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}

	refund, err := s.store.GetRefundByID(ctx, refundID)
	if err != nil {
		return nil, err
	}
	if !refund.Status.IsOpen() {
		return refund, nil
	}

	payment, err := s.store.GetPaymentByID(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}

	providerRefundID := derefString(refund.ProviderRefundID)
	if providerRefundID == "" {
		s.logger.Info("Resubmitting unacknowledged refund", zap.Int64("refund_id", refund.ID))
		refund, err = s.submit(ctx, refund, payment)
		if err != nil {
			util.RecordError(span, err)
			return nil, err
		}
		return refund, nil
	}

	p, ok := s.providers[payment.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedProvider, payment.Provider)
	}
	result, err := p.GetRefund(ctx, providerRefundID)
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to poll refund %d: %w", refund.ID, err)
	}

	updated, _, err := s.apply(ctx, refund.ID, payment.UserID, result.Status, result.ProviderRefundID, result.FailureCode, result.FailureMessage)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// apply moves a refund to the provider-reported status. Success cascades to
// the payment; failure and cancellation only close the refund.
func (s *RefundService) apply(
	ctx context.Context,
	refundID, userID int64,
	status models.RefundStatus,
	providerRefundID, failureCode, failureMessage string,
) (*models.Refund, bool, error) {
	switch status {
	case models.RefundStatusSucceeded:
		refund, payment, applied, err := s.store.CompleteRefund(ctx, refundID, providerRefundID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to complete refund %d: %w", refundID, err)
		}
		if applied {
			util.RefundsTotal.WithLabelValues(string(refund.Status)).Inc()
			s.logger.Info("Refund succeeded",
				zap.Int64("refund_id", refund.ID),
				zap.Int64("payment_id", payment.ID),
				zap.String("payment_status", string(payment.Status)))

			event := &models.RefundSucceededEvent{
				BaseEvent:     newBaseEvent(models.EventTypeRefundSucceeded),
				RefundID:      refund.ID,
				PaymentID:     payment.ID,
				UserID:        payment.UserID,
				Amount:        refund.Amount,
				Currency:      refund.Currency,
				PaymentStatus: payment.Status,
			}
			if err := s.eventPublisher.PublishRefundSucceeded(ctx, event); err != nil {
				s.logger.Error("Failed to publish RefundSucceeded event", zap.Error(err))
			}
		}
		return refund, applied, nil

	case models.RefundStatusFailed, models.RefundStatusCancelled:
		if failureCode == "" {
			failureCode = string(status)
		}
		refund, applied, err := s.store.FailRefund(ctx, refundID, failureCode, failureMessage)
		if err != nil {
			return nil, false, fmt.Errorf("failed to close refund %d: %w", refundID, err)
		}
		if applied {
			util.RefundsTotal.WithLabelValues(string(refund.Status)).Inc()
			s.logger.Warn("Refund failed",
				zap.Int64("refund_id", refund.ID),
				zap.String("failure_code", failureCode))

			event := &models.RefundFailedEvent{
				BaseEvent:      newBaseEvent(models.EventTypeRefundFailed),
				RefundID:       refund.ID,
				PaymentID:      refund.PaymentID,
				UserID:         userID,
				Amount:         refund.Amount,
				FailureCode:    derefString(refund.FailureCode),
				FailureMessage: derefString(refund.FailureMessage),
			}
			if err := s.eventPublisher.PublishRefundFailed(ctx, event); err != nil {
				s.logger.Error("Failed to publish RefundFailed event", zap.Error(err))
			}
		}
		return refund, applied, nil
	}

	refund, err := s.store.MarkRefundSubmitted(ctx, refundID, providerRefundID)
	if err != nil {
		return nil, false, err
	}
	util.RefundsTotal.WithLabelValues(string(refund.Status)).Inc()
	return refund, false, nil
}

// ReconcileRefund applies a refund webhook. Events for refunds that already
// closed, or that this service never created, change nothing.
func (s *RefundService) ReconcileRefund(ctx context.Context, event *provider.WebhookEvent) (string, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.ReconcileRefund")
	defer span.End()

	refund, err := s.findRefund(ctx, event)
	if err != nil {
		return "", err
	}
	if refund == nil {
		s.logger.Warn("Webhook for unknown refund",
			zap.String("provider_refund_id", event.ProviderRefundID),
			zap.String("reference", event.Reference))
		return WebhookUnmatched, nil
	}
	if !refund.Status.IsOpen() {
		return WebhookIgnored, nil
	}

	payment, err := s.store.GetPaymentByID(ctx, refund.PaymentID)
	if err != nil {
		return "", err
	}

	_, applied, err := s.apply(ctx, refund.ID, payment.UserID, event.RefundStatus, event.ProviderRefundID, event.RefundFailureCode, event.RefundFailureMessage)
	if err != nil {
		return "", err
	}
	if applied {
		return WebhookApplied, nil
	}
	return WebhookIgnored, nil
}

func (s *RefundService) findRefund(ctx context.Context, event *provider.WebhookEvent) (*models.Refund, error) {
	if event.ProviderRefundID != "" {
		refund, err := s.store.GetRefundByProviderID(ctx, event.ProviderRefundID)
		if err == nil {
			return refund, nil
		}
		if !errors.Is(err, models.ErrRefundNotFound) {
			return nil, err
		}
	}

	// only references this service minted are trusted as refund ids
	id, ok := provider.ParseRefundReference(event.Reference)
	if !ok {
		return nil, nil
	}
	refund, err := s.store.GetRefundByID(ctx, id)
	if errors.Is(err, models.ErrRefundNotFound) {
		return nil, nil
	}
	return refund, err
}

// GetRefund returns a refund for administrators
func (s *RefundService) GetRefund(ctx context.Context, caller Caller, refundID int64) (*models.Refund, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.GetRefundByID(ctx, refundID)
}

// ListRefunds returns refunds matching filter for administrators
func (s *RefundService) ListRefunds(ctx context.Context, caller Caller, filter models.RefundFilter) ([]models.Refund, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.ListRefunds(ctx, filter)
}
