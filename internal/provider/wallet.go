package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"shop-service/internal/models"

	"github.com/plutov/paypal/v4"
)

const (
	walletTransmissionID  = "Paypal-Transmission-Id"
	walletTransmissionSig = "Paypal-Transmission-Sig"
	walletVerified        = "SUCCESS"
)

// WalletConfig configures the redirect-based wallet integration
type WalletConfig struct {
	// BaseURL overrides the PayPal API endpoint; empty uses the sandbox
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
}

// WalletProvider talks to the PayPal orders API. The payer approves the
// order on PayPal's site; the order is captured on confirm.
type WalletProvider struct {
	cfg    WalletConfig
	client *paypal.Client
}

// NewWalletProvider creates a wallet provider
func NewWalletProvider(cfg WalletConfig) (*WalletProvider, error) {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = paypal.APIBaseSandBox
	}

	c, err := paypal.NewClient(cfg.ClientID, cfg.ClientSecret, base)
	if err != nil {
		return nil, fmt.Errorf("failed to create wallet client: %w", err)
	}
	c.SetHTTPClient(httpClient(cfg.Timeout))

	return &WalletProvider{cfg: cfg, client: c}, nil
}

func (p *WalletProvider) Name() models.ProviderName {
	return models.ProviderPayPal
}

type walletOrderRequest struct {
	Intent             string                       `json:"intent"`
	PurchaseUnits      []paypal.PurchaseUnitRequest `json:"purchase_units"`
	ApplicationContext *paypal.ApplicationContext   `json:"application_context,omitempty"`
}

type walletRefundRequest struct {
	Amount      *paypal.Money `json:"amount"`
	CustomID    string        `json:"custom_id,omitempty"`
	NoteToPayer string        `json:"note_to_payer,omitempty"`
}

type walletCapture struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CustomID          string `json:"custom_id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
	StatusDetails struct {
		Reason string `json:"reason"`
	} `json:"status_details"`
}

type walletOrder struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	Links         []paypal.Link `json:"links"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []walletCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type walletRefund struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CustomID      string `json:"custom_id"`
	StatusDetails struct {
		Reason string `json:"reason"`
	} `json:"status_details"`
}

// CreateIntent creates an order and returns its approval link
func (p *WalletProvider) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	body := walletOrderRequest{
		Intent: paypal.OrderIntentCapture,
		PurchaseUnits: []paypal.PurchaseUnitRequest{{
			ReferenceID: fmt.Sprintf("purchase-%d", req.PurchaseID),
			CustomID:    req.Reference,
			Description: req.Description,
			Amount: &paypal.PurchaseUnitAmount{
				Currency: strings.ToUpper(req.Currency),
				Value:    req.Amount.StringFixed(2),
			},
		}},
		ApplicationContext: &paypal.ApplicationContext{
			ReturnURL: p.cfg.ReturnURL,
			CancelURL: p.cfg.CancelURL,
		},
	}

	var order walletOrder
	if err := p.send(ctx, "create_intent", http.MethodPost, "/v2/checkout/orders", body, req.IdempotencyKey, &order); err != nil {
		return nil, err
	}

	intent := &Intent{
		ProviderPaymentID: order.ID,
		Status:            models.PaymentStatusPending,
	}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			intent.ApprovalURL = link.Href
			break
		}
	}
	if intent.ApprovalURL == "" {
		return nil, &Error{Provider: models.ProviderPayPal, Code: "missing_approval_link", Message: "order has no approval link"}
	}
	return intent, nil
}

// GetStatus reads the order; an approved order is captured first
func (p *WalletProvider) GetStatus(ctx context.Context, providerPaymentID string) (*StatusResult, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(providerPaymentID)

	var order walletOrder
	if err := p.send(ctx, "get_status", http.MethodGet, path, nil, "", &order); err != nil {
		return nil, err
	}

	if order.Status == "APPROVED" {
		// capture is idempotent on the request id, so a repeated confirm cannot double charge
		err := p.send(ctx, "capture", http.MethodPost, path+"/capture", struct{}{}, "capture-"+providerPaymentID, &order)
		if err != nil {
			return nil, err
		}
	}

	return walletOrderResult(&order), nil
}

// Refund refunds part or all of a captured payment
func (p *WalletProvider) Refund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	if req.ProviderChargeID == "" {
		return nil, &Error{Provider: models.ProviderPayPal, Code: "missing_capture", Message: "payment has no capture to refund"}
	}

	body := walletRefundRequest{
		Amount: &paypal.Money{
			Currency: strings.ToUpper(req.Currency),
			Value:    req.Amount.StringFixed(2),
		},
		CustomID:    req.Reference,
		NoteToPayer: req.Reason,
	}

	var refund walletRefund
	path := "/v2/payments/captures/" + url.PathEscape(req.ProviderChargeID) + "/refund"
	if err := p.send(ctx, "refund", http.MethodPost, path, body, req.IdempotencyKey, &refund); err != nil {
		return nil, err
	}
	return walletRefundResult(&refund), nil
}

// GetRefund reads a refund the provider already knows about
func (p *WalletProvider) GetRefund(ctx context.Context, providerRefundID string) (*RefundResult, error) {
	var refund walletRefund
	path := "/v2/payments/refunds/" + url.PathEscape(providerRefundID)
	if err := p.send(ctx, "get_refund", http.MethodGet, path, nil, "", &refund); err != nil {
		return nil, err
	}
	return walletRefundResult(&refund), nil
}

type walletEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

// ParseWebhook has PayPal verify the transmission signature and decodes the event
func (p *WalletProvider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookEvent, error) {
	if header.Get(walletTransmissionID) == "" || header.Get(walletTransmissionSig) == "" || p.cfg.WebhookID == "" {
		return nil, fmt.Errorf("%w: missing transmission headers", models.ErrInvalidSignature)
	}

	var raw walletEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode wallet webhook: %w", err)
	}

	if err := p.verify(ctx, payload, header); err != nil {
		return nil, err
	}

	event := &WebhookEvent{ID: raw.ID, Type: raw.EventType}

	switch raw.EventType {
	case "CHECKOUT.ORDER.APPROVED":
		var order walletOrder
		if err := json.Unmarshal(raw.Resource, &order); err != nil {
			return nil, fmt.Errorf("failed to decode order: %w", err)
		}
		event.Kind = EventPayment
		event.ProviderPaymentID = order.ID
		if len(order.PurchaseUnits) > 0 {
			event.Reference = order.PurchaseUnits[0].CustomID
		}
		event.Payment = StatusResult{Status: models.PaymentStatusProcessing, PaymentMethod: "paypal"}

	case "PAYMENT.CAPTURE.COMPLETED", "PAYMENT.CAPTURE.PENDING", "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		var capture walletCapture
		if err := json.Unmarshal(raw.Resource, &capture); err != nil {
			return nil, fmt.Errorf("failed to decode capture: %w", err)
		}
		event.Kind = EventPayment
		event.ProviderPaymentID = capture.SupplementaryData.RelatedIDs.OrderID
		event.Reference = capture.CustomID
		event.Payment = captureResult(&capture)

	case "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
		// capture-level notices whose custom_id is the payment's; refund rows
		// settle from PAYMENT.REFUND.* events or a status read
		event.Kind = EventUnknown

	case "PAYMENT.REFUND.PENDING", "PAYMENT.REFUND.COMPLETED", "PAYMENT.REFUND.FAILED", "PAYMENT.REFUND.CANCELLED":
		var refund walletRefund
		if err := json.Unmarshal(raw.Resource, &refund); err != nil {
			return nil, fmt.Errorf("failed to decode refund: %w", err)
		}
		result := walletRefundResult(&refund)
		event.Kind = EventRefund
		event.ProviderRefundID = refund.ID
		event.Reference = refund.CustomID
		event.RefundStatus = result.Status
		event.RefundFailureCode = result.FailureCode
		event.RefundFailureMessage = result.FailureMessage

	case "CUSTOMER.DISPUTE.CREATED":
		event.Kind = EventDispute

	default:
		event.Kind = EventUnknown
	}

	return event, nil
}

// verify asks PayPal whether the transmission headers sign payload for the
// configured webhook. A negative answer wraps models.ErrInvalidSignature.
func (p *WalletProvider) verify(ctx context.Context, payload []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header = header.Clone()

	start := time.Now()
	resp, err := p.client.VerifyWebhookSignature(ctx, req, p.cfg.WebhookID)
	err = classifyWalletError("verify_webhook", err)
	observe(models.ProviderPayPal, "verify_webhook", start, err)

	var perr *Error
	switch {
	case errors.As(err, &perr):
		return fmt.Errorf("%w: %v", models.ErrInvalidSignature, err)
	case err != nil:
		return err
	case resp.VerificationStatus != walletVerified:
		return fmt.Errorf("%w: verification status %s", models.ErrInvalidSignature, resp.VerificationStatus)
	}
	return nil
}

// send issues an authenticated call; the client fetches and caches the
// OAuth token. requestID makes a retried POST return the first result.
func (p *WalletProvider) send(ctx context.Context, operation, method, path string, body interface{}, requestID string, out interface{}) error {
	req, err := p.client.NewRequest(ctx, method, p.client.APIBase+path, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", operation, err)
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	start := time.Now()
	err = classifyWalletError(operation, p.client.SendWithAuth(req, out))
	observe(models.ProviderPayPal, operation, start, err)
	return err
}

// classifyWalletError turns API errors into *Error and everything that did
// not produce a definitive answer into *UnavailableError.
func classifyWalletError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var perr *paypal.ErrorResponse
	if !errors.As(err, &perr) {
		return unavailable(models.ProviderPayPal, operation, err)
	}

	status := 0
	if perr.Response != nil {
		status = perr.Response.StatusCode
	}
	if retryableStatus(status) {
		return unavailable(models.ProviderPayPal, operation, err)
	}

	code := perr.Name
	if len(perr.Details) > 0 && perr.Details[0].Issue != "" {
		code = perr.Details[0].Issue
	}
	return &Error{Provider: models.ProviderPayPal, StatusCode: status, Code: code, Message: perr.Message}
}

func walletOrderResult(order *walletOrder) *StatusResult {
	if len(order.PurchaseUnits) > 0 && len(order.PurchaseUnits[0].Payments.Captures) > 0 {
		res := captureResult(&order.PurchaseUnits[0].Payments.Captures[0])
		return &res
	}

	res := &StatusResult{PaymentMethod: "paypal"}
	switch order.Status {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		res.Status = models.PaymentStatusPending
	case "APPROVED":
		res.Status = models.PaymentStatusProcessing
	case "VOIDED":
		res.Status = models.PaymentStatusCancelled
	case "COMPLETED":
		res.Status = models.PaymentStatusSucceeded
	default:
		res.Status = models.PaymentStatusFailed
		res.FailureCode = strings.ToLower(order.Status)
	}
	return res
}

func captureResult(capture *walletCapture) StatusResult {
	res := StatusResult{ProviderChargeID: capture.ID, PaymentMethod: "paypal"}
	switch capture.Status {
	case "COMPLETED", "REFUNDED", "PARTIALLY_REFUNDED":
		res.Status = models.PaymentStatusSucceeded
	case "PENDING":
		res.Status = models.PaymentStatusProcessing
	default:
		res.Status = models.PaymentStatusFailed
		res.FailureCode = strings.ToLower(capture.Status)
		res.FailureMessage = capture.StatusDetails.Reason
	}
	return res
}

func walletRefundResult(refund *walletRefund) *RefundResult {
	res := &RefundResult{
		ProviderRefundID: refund.ID,
		Status:           mapWalletRefundStatus(refund.Status),
	}
	if res.Status == models.RefundStatusFailed || res.Status == models.RefundStatusCancelled {
		res.FailureCode = string(res.Status)
		res.FailureMessage = refund.StatusDetails.Reason
	}
	return res
}

func mapWalletRefundStatus(status string) models.RefundStatus {
	switch status {
	case "COMPLETED":
		return models.RefundStatusSucceeded
	case "FAILED":
		return models.RefundStatusFailed
	case "CANCELLED":
		return models.RefundStatusCancelled
	}
	return models.RefundStatusPending
}
