package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/provider"
	"shop-service/internal/store"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

const (
	webhookDedupTTL     = 72 * time.Hour
	paymentRefundsLimit = 200
)

// Webhook outcomes reported back to the receiver
const (
	WebhookApplied   = "applied"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
	WebhookUnmatched = "unmatched"
)

// PaymentStore persists payments and reads the purchases they collect for
type PaymentStore interface {
	GetPurchaseByID(ctx context.Context, id int64) (*models.Purchase, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error)
	GetPaymentByProviderID(ctx context.Context, providerName models.ProviderName, providerPaymentID string) (*models.Payment, error)
	GetActivePayment(ctx context.Context, purchaseID int64) (*models.Payment, error)
	HasPaidPayment(ctx context.Context, purchaseID int64) (bool, error)
	SetProviderPaymentID(ctx context.Context, id int64, providerPaymentID string) (*models.Payment, error)
	TransitionPayment(ctx context.Context, id int64, update store.PaymentUpdate) (*models.Payment, bool, error)
	ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error)
	GetPaymentSummary(ctx context.Context) (*models.PaymentSummary, error)
	ListRefunds(ctx context.Context, filter models.RefundFilter) ([]models.Refund, error)
}

// CreateIntentRequest opens a payment for a purchase
type CreateIntentRequest struct {
	PurchaseID        int64               `json:"purchase_id" binding:"required"`
	Provider          models.ProviderName `json:"provider" binding:"required"`
	PaymentMethodType string              `json:"payment_method_type"`
}

// IntentResponse carries what the client needs to finish paying
type IntentResponse struct {
	Payment      *models.Payment `json:"payment"`
	ClientSecret string          `json:"client_secret,omitempty"`
	ApprovalURL  string          `json:"approval_url,omitempty"`
}

// WebhookResult describes what a webhook delivery did
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Outcome   string `json:"outcome"`
}

// PaymentService drives payments through their provider-backed lifecycle
type PaymentService struct {
	store          PaymentStore
	providers      map[models.ProviderName]provider.Provider
	refunds        *RefundService
	idempotency    IdempotencyStore
	eventPublisher EventPublisher
	currency       string
	logger         *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store PaymentStore,
	providers []provider.Provider,
	refunds *RefundService,
	idempotency IdempotencyStore,
	eventPublisher EventPublisher,
	currency string,
) *PaymentService {
	byName := make(map[models.ProviderName]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}

	return &PaymentService{
		store:          store,
		providers:      byName,
		refunds:        refunds,
		idempotency:    idempotency,
		eventPublisher: eventPublisher,
		currency:       currency,
		logger:         util.GetLogger(),
	}
}

func (s *PaymentService) lookupProvider(name models.ProviderName) (provider.Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedProvider, name)
	}
	return p, nil
}

// CreateIntent records a pending payment for the purchase and opens the
// matching intent at the provider. It does not wait for the payer.
func (s *PaymentService) CreateIntent(ctx context.Context, caller Caller, req CreateIntentRequest) (*IntentResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.CreateIntent")
	defer span.End()

	p, err := s.lookupProvider(req.Provider)
	if err != nil {
		return nil, err
	}

	purchase, err := s.store.GetPurchaseByID(ctx, req.PurchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.CustomerID != caller.UserID {
		return nil, fmt.Errorf("%w: %d", models.ErrPurchaseNotFound, req.PurchaseID)
	}
	if purchase.Status == models.PurchaseStatusCancelled {
		return nil, fmt.Errorf("%w: purchase %d is cancelled", models.ErrPurchaseNotPayable, purchase.ID)
	}

	paid, err := s.store.HasPaidPayment(ctx, purchase.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing payments: %w", err)
	}
	if paid {
		return nil, fmt.Errorf("%w: purchase %d is already paid", models.ErrPurchaseNotPayable, purchase.ID)
	}

	payment, err := s.store.GetActivePayment(ctx, purchase.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check active payment: %w", err)
	}

	switch {
	case payment == nil:
		payment = &models.Payment{
			PurchaseID:    purchase.ID,
			UserID:        caller.UserID,
			Amount:        purchase.TotalPrice,
			Currency:      s.currency,
			Status:        models.PaymentStatusPending,
			Provider:      p.Name(),
			PaymentMethod: req.PaymentMethodType,
		}
		if err := s.store.CreatePayment(ctx, payment); err != nil {
			return nil, err
		}

	case payment.ProviderPaymentID == nil && payment.Provider == p.Name():
		// an earlier attempt timed out before the provider id was stored;
		// the same idempotency key makes the provider return that intent
		s.logger.Info("Resuming pending payment", zap.Int64("payment_id", payment.ID))

	default:
		return nil, fmt.Errorf("%w: payment %d is %s", models.ErrDuplicateActivePayment, payment.ID, payment.Status)
	}

	intent, err := p.CreateIntent(ctx, provider.IntentRequest{
		IdempotencyKey:    fmt.Sprintf("payment-%d", payment.ID),
		Reference:         strconv.FormatInt(payment.ID, 10),
		PurchaseID:        purchase.ID,
		Amount:            payment.Amount,
		Currency:          payment.Currency,
		PaymentMethodType: req.PaymentMethodType,
		Description:       fmt.Sprintf("Purchase #%d", purchase.ID),
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, s.intentFailed(ctx, payment, err)
	}

	payment, err = s.store.SetProviderPaymentID(ctx, payment.ID, intent.ProviderPaymentID)
	if err != nil {
		return nil, err
	}

	util.PaymentIntentsTotal.WithLabelValues(string(p.Name()), "ok").Inc()
	s.logger.Info("Payment intent created",
		zap.Int64("payment_id", payment.ID),
		zap.Int64("purchase_id", purchase.ID),
		zap.String("provider", string(p.Name())),
		zap.String("provider_payment_id", intent.ProviderPaymentID))

	return &IntentResponse{
		Payment:      payment,
		ClientSecret: intent.ClientSecret,
		ApprovalURL:  intent.ApprovalURL,
	}, nil
}

// intentFailed records a provider rejection on the payment. An unavailable
// provider leaves the payment pending so a retry resumes it.
func (s *PaymentService) intentFailed(ctx context.Context, payment *models.Payment, cause error) error {
	if errors.Is(cause, models.ErrProviderUnavailable) {
		util.PaymentIntentsTotal.WithLabelValues(string(payment.Provider), "unavailable").Inc()
		s.logger.Warn("Payment provider unavailable",
			zap.Int64("payment_id", payment.ID),
			zap.Error(cause))
		return cause
	}

	util.PaymentIntentsTotal.WithLabelValues(string(payment.Provider), "rejected").Inc()

	update := store.PaymentUpdate{Status: models.PaymentStatusFailed}
	var perr *provider.Error
	if errors.As(cause, &perr) {
		update.FailureCode = stringPtr(perr.Code)
		update.FailureMessage = stringPtr(perr.Message)
	} else {
		update.FailureCode = stringPtr("intent_error")
		update.FailureMessage = stringPtr(cause.Error())
	}

	if _, _, err := s.transition(ctx, payment, update); err != nil {
		s.logger.Error("Failed to record rejected intent",
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
	}
	return fmt.Errorf("failed to create payment intent: %w", cause)
}

// Confirm asks the provider for the payment's outcome and applies it. Calling
// it on a payment that already settled returns the stored payment unchanged.
func (s *PaymentService) Confirm(ctx context.Context, caller Caller, paymentID int64) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.Confirm")
	defer span.End()

	payment, err := s.ownedPayment(ctx, caller, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.IsActive() || payment.ProviderPaymentID == nil {
		return payment, nil
	}

	p, err := s.lookupProvider(payment.Provider)
	if err != nil {
		return nil, err
	}

	result, err := p.GetStatus(ctx, *payment.ProviderPaymentID)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	updated, _, err := s.applyStatus(ctx, payment, *result)
	return updated, err
}

// applyStatus moves the payment to the provider-reported status if that is a
// forward move from what is stored. Stale or repeated reports change nothing.
func (s *PaymentService) applyStatus(ctx context.Context, payment *models.Payment, result provider.StatusResult) (*models.Payment, bool, error) {
	if !result.Status.IsProviderDriven() {
		return payment, false, nil
	}

	update := store.PaymentUpdate{
		Status:           result.Status,
		ProviderChargeID: stringPtr(result.ProviderChargeID),
		PaymentMethod:    result.PaymentMethod,
	}
	if result.Status == models.PaymentStatusFailed {
		update.FailureCode = stringPtr(result.FailureCode)
		update.FailureMessage = stringPtr(result.FailureMessage)
	}

	return s.transition(ctx, payment, update)
}

// transition applies update and emits the event for the status reached.
// When the stored status does not allow the move, the stored row is returned
// with applied=false.
func (s *PaymentService) transition(ctx context.Context, payment *models.Payment, update store.PaymentUpdate) (*models.Payment, bool, error) {
	updated, applied, err := s.store.TransitionPayment(ctx, payment.ID, update)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update payment %d: %w", payment.ID, err)
	}
	if !applied {
		s.logger.Debug("Ignored stale payment status",
			zap.Int64("payment_id", payment.ID),
			zap.String("stored", string(updated.Status)),
			zap.String("reported", string(update.Status)))
		return updated, false, nil
	}

	util.PaymentTransitionsTotal.WithLabelValues(string(updated.Provider), string(updated.Status)).Inc()
	s.logger.Info("Payment status changed",
		zap.Int64("payment_id", updated.ID),
		zap.String("from", string(payment.Status)),
		zap.String("to", string(updated.Status)))

	switch updated.Status {
	case models.PaymentStatusSucceeded:
		event := &models.PaymentSucceededEvent{
			BaseEvent:  newBaseEvent(models.EventTypePaymentSucceeded),
			PaymentID:  updated.ID,
			PurchaseID: updated.PurchaseID,
			UserID:     updated.UserID,
			Amount:     updated.Amount,
			Currency:   updated.Currency,
			Provider:   updated.Provider,
		}
		if err := s.eventPublisher.PublishPaymentSucceeded(ctx, event); err != nil {
			s.logger.Error("Failed to publish PaymentSucceeded event", zap.Error(err))
		}

	case models.PaymentStatusFailed:
		event := &models.PaymentFailedEvent{
			BaseEvent:      newBaseEvent(models.EventTypePaymentFailed),
			PaymentID:      updated.ID,
			PurchaseID:     updated.PurchaseID,
			UserID:         updated.UserID,
			Provider:       updated.Provider,
			FailureCode:    derefString(updated.FailureCode),
			FailureMessage: derefString(updated.FailureMessage),
		}
		if err := s.eventPublisher.PublishPaymentFailed(ctx, event); err != nil {
			s.logger.Error("Failed to publish PaymentFailed event", zap.Error(err))
		}
	}

	return updated, true, nil
}

// ReconcileWebhook authenticates a provider notification and applies it.
// Deliveries are at least once and unordered: repeats and stale events are
// acknowledged without effect.
func (s *PaymentService) ReconcileWebhook(
	ctx context.Context,
	providerName models.ProviderName,
	payload []byte,
	header http.Header,
) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ReconcileWebhook")
	defer span.End()

	p, err := s.lookupProvider(providerName)
	if err != nil {
		return nil, err
	}

	event, err := p.ParseWebhook(ctx, payload, header)
	if err != nil {
		if errors.Is(err, models.ErrProviderUnavailable) {
			// signature verification needs the provider; let it redeliver
			util.WebhookEventsTotal.WithLabelValues(string(providerName), "error").Inc()
			return nil, err
		}
		if errors.Is(err, models.ErrInvalidSignature) {
			util.WebhookEventsTotal.WithLabelValues(string(providerName), "rejected").Inc()
			s.logger.Warn("Rejected webhook with invalid signature",
				zap.Bool("security_event", true),
				zap.String("provider", string(providerName)),
				zap.Int("payload_bytes", len(payload)),
				zap.Error(err))
			return nil, err
		}
		util.WebhookEventsTotal.WithLabelValues(string(providerName), "malformed").Inc()
		s.logger.Warn("Malformed webhook payload",
			zap.String("provider", string(providerName)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedWebhook, err)
	}

	result := &WebhookResult{EventID: event.ID, EventType: event.Type}
	dedupKey := fmt.Sprintf("webhook:%s:%s", providerName, event.ID)

	if event.ID != "" {
		seen, err := s.idempotency.CheckIdempotencyKey(ctx, dedupKey)
		if err != nil {
			s.logger.Warn("Webhook dedup check failed", zap.String("event_id", event.ID), zap.Error(err))
		} else if seen {
			result.Outcome = WebhookDuplicate
			util.WebhookEventsTotal.WithLabelValues(string(providerName), result.Outcome).Inc()
			return result, nil
		}
	}

	switch event.Kind {
	case provider.EventPayment:
		result.Outcome, err = s.reconcilePayment(ctx, providerName, event)
	case provider.EventRefund:
		result.Outcome, err = s.refunds.ReconcileRefund(ctx, event)
	case provider.EventDispute:
		s.logger.Warn("Payment dispute opened",
			zap.String("provider", string(providerName)),
			zap.String("event_id", event.ID),
			zap.String("provider_payment_id", event.ProviderPaymentID))
		result.Outcome = WebhookIgnored
	default:
		result.Outcome = WebhookIgnored
	}
	if err != nil {
		util.RecordError(span, err)
		util.WebhookEventsTotal.WithLabelValues(string(providerName), "error").Inc()
		return nil, err
	}

	if event.ID != "" {
		if err := s.idempotency.SetIdempotencyKey(ctx, dedupKey, result.Outcome, webhookDedupTTL); err != nil {
			s.logger.Warn("Failed to record processed webhook", zap.String("event_id", event.ID), zap.Error(err))
		}
	}

	util.WebhookEventsTotal.WithLabelValues(string(providerName), result.Outcome).Inc()
	s.logger.Info("Webhook processed",
		zap.String("provider", string(providerName)),
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.String("outcome", result.Outcome))

	return result, nil
}

func (s *PaymentService) reconcilePayment(ctx context.Context, providerName models.ProviderName, event *provider.WebhookEvent) (string, error) {
	payment, err := s.findPayment(ctx, providerName, event)
	if err != nil {
		return "", err
	}
	if payment == nil {
		s.logger.Warn("Webhook for unknown payment",
			zap.String("provider", string(providerName)),
			zap.String("provider_payment_id", event.ProviderPaymentID),
			zap.String("reference", event.Reference))
		return WebhookUnmatched, nil
	}

	if payment.ProviderPaymentID == nil && event.ProviderPaymentID != "" {
		// the intent was opened but its id never made it into our row
		if payment, err = s.store.SetProviderPaymentID(ctx, payment.ID, event.ProviderPaymentID); err != nil {
			return "", err
		}
	}

	_, applied, err := s.applyStatus(ctx, payment, event.Payment)
	if err != nil {
		return "", err
	}
	if applied {
		return WebhookApplied, nil
	}
	return WebhookIgnored, nil
}

// findPayment looks the payment up by provider id, falling back to the local
// id echoed in the event. It returns nil when neither matches.
func (s *PaymentService) findPayment(ctx context.Context, providerName models.ProviderName, event *provider.WebhookEvent) (*models.Payment, error) {
	if event.ProviderPaymentID != "" {
		payment, err := s.store.GetPaymentByProviderID(ctx, providerName, event.ProviderPaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, models.ErrPaymentNotFound) {
			return nil, err
		}
	}

	id, err := strconv.ParseInt(event.Reference, 10, 64)
	if err != nil {
		return nil, nil
	}
	payment, err := s.store.GetPaymentByID(ctx, id)
	if errors.Is(err, models.ErrPaymentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if payment.Provider != providerName {
		return nil, nil
	}
	return payment, nil
}

// GetPayment returns a payment owned by the caller with its refunds; admins
// see any payment
func (s *PaymentService) GetPayment(ctx context.Context, caller Caller, paymentID int64) (*models.PaymentWithRefunds, error) {
	payment, err := s.ownedPayment(ctx, caller, paymentID)
	if err != nil {
		return nil, err
	}

	refunds, err := s.store.ListRefunds(ctx, models.RefundFilter{PaymentID: payment.ID, Limit: paymentRefundsLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to list refunds for payment %d: %w", payment.ID, err)
	}
	if refunds == nil {
		refunds = []models.Refund{}
	}
	return &models.PaymentWithRefunds{Payment: *payment, Refunds: refunds}, nil
}

func (s *PaymentService) ownedPayment(ctx context.Context, caller Caller, paymentID int64) (*models.Payment, error) {
	payment, err := s.store.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != caller.UserID && !caller.IsAdmin {
		return nil, fmt.Errorf("%w: %d", models.ErrPaymentNotFound, paymentID)
	}
	return payment, nil
}

// ListPayments returns the caller's payments, newest first
func (s *PaymentService) ListPayments(ctx context.Context, caller Caller, limit, offset int) ([]models.Payment, error) {
	return s.store.ListPayments(ctx, models.PaymentFilter{UserID: caller.UserID, Limit: limit, Offset: offset})
}

// ListPaymentsByPurchase returns every attempt made for one of the caller's purchases
func (s *PaymentService) ListPaymentsByPurchase(ctx context.Context, caller Caller, purchaseID int64) ([]models.Payment, error) {
	purchase, err := s.store.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.CustomerID != caller.UserID && !caller.IsAdmin {
		return nil, fmt.Errorf("%w: %d", models.ErrPurchaseNotFound, purchaseID)
	}
	return s.store.ListPayments(ctx, models.PaymentFilter{PurchaseID: purchaseID})
}

// ListAllPayments returns payments across users for administrators
func (s *PaymentService) ListAllPayments(ctx context.Context, caller Caller, filter models.PaymentFilter) ([]models.Payment, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, filter)
}

// Summary aggregates payments and refunds for administrators
func (s *PaymentService) Summary(ctx context.Context, caller Caller) (*models.PaymentSummary, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.GetPaymentSummary(ctx)
}
