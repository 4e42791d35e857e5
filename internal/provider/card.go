package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shop-service/internal/models"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const cardSignatureHeader = "Stripe-Signature"

// CardConfig configures the card processor integration
type CardConfig struct {
	// BaseURL overrides the Stripe API endpoint; empty uses the live API
	BaseURL          string
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Timeout          time.Duration
}

// CardProvider talks to the Stripe payment intents API. The client
// confirms the intent directly with the returned client secret.
type CardProvider struct {
	cfg CardConfig
	api *client.API
}

// NewCardProvider creates a card provider
func NewCardProvider(cfg CardConfig) *CardProvider {
	backendCfg := &stripe.BackendConfig{
		HTTPClient: httpClient(cfg.Timeout),
		// callers retry with the same idempotency key
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = webhook.DefaultTolerance
	}
	return &CardProvider{cfg: cfg, api: api}
}

func (p *CardProvider) Name() models.ProviderName {
	return models.ProviderStripe
}

// CreateIntent opens a payment intent for the amount in minor units
func (p *CardProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	method := req.PaymentMethodType
	if method == "" {
		method = "card"
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount.Shift(2).IntPart()),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{method}),
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("payment_id", req.Reference)
	params.AddMetadata("purchase_id", strconv.FormatInt(req.PurchaseID, 10))

	var intent *stripe.PaymentIntent
	err := p.call("create_intent", func() (err error) {
		intent, err = p.api.PaymentIntents.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}

	return &Intent{
		ProviderPaymentID: intent.ID,
		Status:            mapCardIntentStatus(intent.Status),
		ClientSecret:      intent.ClientSecret,
	}, nil
}

// GetStatus reads the intent and maps it onto the local payment status
func (p *CardProvider) GetStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	var intent *stripe.PaymentIntent
	err := p.call("get_status", func() (err error) {
		intent, err = p.api.PaymentIntents.Get(providerPaymentID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return intentResult(intent, mapCardIntentStatus(intent.Status)), nil
}

// Refund refunds part or all of the intent's captured charge
func (p *CardProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ProviderPaymentID),
		Amount:        stripe.Int64(req.Amount.Shift(2).IntPart()),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("refund_id", req.Reference)
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	var refund *stripe.Refund
	err := p.call("refund", func() (err error) {
		refund, err = p.api.Refunds.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cardRefundResult(refund), nil
}

// GetRefund reads a refund the provider already knows about
func (p *CardProvider) GetRefund(ctx context.Context, providerRefundID string) (*RefundResult, error) {
	params := &stripe.RefundParams{}
	params.Context = ctx

	var refund *stripe.Refund
	err := p.call("get_refund", func() (err error) {
		refund, err = p.api.Refunds.Get(providerRefundID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cardRefundResult(refund), nil
}

// ParseWebhook verifies the signature header and decodes the event
func (p *CardProvider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	if p.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: no webhook secret configured", models.ErrInvalidSignature)
	}

	raw, err := webhook.ConstructEventWithOptions(payload, header.Get(cardSignatureHeader), p.cfg.WebhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                p.cfg.WebhookTolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		if isCardSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("failed to decode card webhook: %w", err)
	}

	eventType := string(raw.Type)
	event := &WebhookEvent{ID: raw.ID, Type: eventType}
	if raw.Data == nil {
		return event, nil
	}

	switch {
	case strings.HasPrefix(eventType, "payment_intent."):
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(raw.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		status := mapCardIntentStatus(intent.Status)
		switch eventType {
		case "payment_intent.succeeded":
			status = models.PaymentStatusSucceeded
		case "payment_intent.payment_failed":
			// the intent itself drops back to requires_payment_method
			status = models.PaymentStatusFailed
		case "payment_intent.canceled":
			status = models.PaymentStatusCancelled
		}
		event.Kind = EventPayment
		event.ProviderPaymentID = intent.ID
		event.Reference = intent.Metadata["payment_id"]
		event.Payment = *intentResult(&intent, status)

	case strings.HasPrefix(eventType, "refund.") || eventType == "charge.refund.updated":
		var refund stripe.Refund
		if err := json.Unmarshal(raw.Data.Raw, &refund); err != nil {
			return nil, fmt.Errorf("failed to decode refund: %w", err)
		}
		result := cardRefundResult(&refund)
		event.Kind = EventRefund
		if refund.PaymentIntent != nil {
			event.ProviderPaymentID = refund.PaymentIntent.ID
		}
		event.ProviderRefundID = refund.ID
		event.Reference = refund.Metadata["refund_id"]
		event.RefundStatus = result.Status
		event.RefundFailureCode = result.FailureCode
		event.RefundFailureMessage = result.FailureMessage

	case strings.HasPrefix(eventType, "charge.dispute."):
		var dispute stripe.Dispute
		if err := json.Unmarshal(raw.Data.Raw, &dispute); err != nil {
			return nil, fmt.Errorf("failed to decode dispute: %w", err)
		}
		event.Kind = EventDispute
		if dispute.PaymentIntent != nil {
			event.ProviderPaymentID = dispute.PaymentIntent.ID
		}

	default:
		event.Kind = EventUnknown
	}

	return event, nil
}

func (p *CardProvider) call(operation string, fn func() error) error {
	start := time.Now()
	err := classifyCardError(operation, fn())
	observe(models.ProviderStripe, operation, start, err)
	return err
}

// classifyCardError turns API errors into *Error and everything that did not
// produce a definitive answer into *UnavailableError.
func classifyCardError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return unavailable(models.ProviderStripe, operation, err)
	}
	if retryableStatus(serr.HTTPStatusCode) {
		return unavailable(models.ProviderStripe, operation, err)
	}

	code := string(serr.Code)
	if serr.DeclineCode != "" {
		code = string(serr.DeclineCode)
	}
	return &Error{
		Provider:   models.ProviderStripe,
		StatusCode: serr.HTTPStatusCode,
		Code:       code,
		Message:    serr.Msg,
	}
}

func isCardSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func intentResult(intent *stripe.PaymentIntent, status models.PaymentStatus) *StatusResult {
	res := &StatusResult{Status: status}
	if intent.LatestCharge != nil {
		res.ProviderChargeID = intent.LatestCharge.ID
	}
	if len(intent.PaymentMethodTypes) > 0 {
		res.PaymentMethod = intent.PaymentMethodTypes[0]
	}
	if status == models.PaymentStatusFailed && intent.LastPaymentError != nil {
		res.FailureCode = string(intent.LastPaymentError.Code)
		if intent.LastPaymentError.DeclineCode != "" {
			res.FailureCode = string(intent.LastPaymentError.DeclineCode)
		}
		res.FailureMessage = intent.LastPaymentError.Msg
	}
	return res
}

func cardRefundResult(refund *stripe.Refund) *RefundResult {
	res := &RefundResult{
		ProviderRefundID: refund.ID,
		Status:           mapCardRefundStatus(refund.Status),
	}
	if res.Status == models.RefundStatusFailed || res.Status == models.RefundStatusCancelled {
		res.FailureCode = string(res.Status)
		res.FailureMessage = string(refund.FailureReason)
	}
	return res
}

func mapCardIntentStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresAction:
		return models.PaymentStatusPending
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return models.PaymentStatusProcessing
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentStatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		return models.PaymentStatusCancelled
	}
	return models.PaymentStatusFailed
}

func mapCardRefundStatus(status stripe.RefundStatus) models.RefundStatus {
	switch status {
	case stripe.RefundStatusSucceeded:
		return models.RefundStatusSucceeded
	case stripe.RefundStatusFailed:
		return models.RefundStatusFailed
	case stripe.RefundStatusCanceled:
		return models.RefundStatusCancelled
	}
	return models.RefundStatusPending
}
