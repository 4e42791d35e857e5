package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shop-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCardProvider(t *testing.T, handler http.HandlerFunc) *CardProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewCardProvider(CardConfig{
		BaseURL:          srv.URL,
		SecretKey:        "sk_test",
		WebhookSecret:    "whsec_test",
		WebhookTolerance: 5 * time.Minute,
		Timeout:          2 * time.Second,
	})
}

func TestCardCreateIntent(t *testing.T) {
	p := newTestCardProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "payment-7", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "1998", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "7", r.PostForm.Get("metadata[payment_id]"))
		assert.Equal(t, "3", r.PostForm.Get("metadata[purchase_id]"))

		fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","status":"requires_payment_method","client_secret":"pi_1_secret"}`)
	})

	intent, err := p.CreateIntent(context.Background(), IntentRequest{
		IdempotencyKey: "payment-7",
		Reference:      "7",
		PurchaseID:     3,
		Amount:         decimal.RequireFromString("19.98"),
		Currency:       "USD",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_1", intent.ProviderPaymentID)
	assert.Equal(t, "pi_1_secret", intent.ClientSecret)
	assert.Equal(t, models.PaymentStatusPending, intent.Status)
}

func TestCardErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"declined", http.StatusPaymentRequired, models.ErrProviderRejected},
		{"bad request", http.StatusBadRequest, models.ErrProviderRejected},
		{"rate limited", http.StatusTooManyRequests, models.ErrProviderUnavailable},
		{"server error", http.StatusBadGateway, models.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestCardProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprint(w, `{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`)
			})

			_, err := p.GetStatus(context.Background(), "pi_1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var perr *Error
			if errors.As(err, &perr) {
				assert.Equal(t, "insufficient_funds", perr.Code)
				assert.Equal(t, "Your card has insufficient funds.", perr.Message)
			}
		})
	}
}

func TestCardTimeoutIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewCardProvider(CardConfig{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: 20 * time.Millisecond})
	_, err := p.GetStatus(context.Background(), "pi_1")
	require.ErrorIs(t, err, models.ErrProviderUnavailable)

	var uerr *UnavailableError
	require.True(t, errors.As(err, &uerr))
	assert.False(t, uerr.NotSent)
}

func TestCardUnreachableIsNotSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	p := NewCardProvider(CardConfig{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})
	_, err := p.Refund(context.Background(), RefundRequest{
		IdempotencyKey:    "refund-1",
		Reference:         RefundReference(1),
		ProviderPaymentID: "pi_1",
		Amount:            decimal.NewFromInt(5),
	})
	require.ErrorIs(t, err, models.ErrProviderUnavailable)

	var uerr *UnavailableError
	require.True(t, errors.As(err, &uerr))
	assert.True(t, uerr.NotSent)
}

func TestCardGetStatusMapsCancelled(t *testing.T) {
	p := newTestCardProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
		fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","status":"canceled","payment_method_types":["card"]}`)
	})

	res, err := p.GetStatus(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCancelled, res.Status)
	assert.Equal(t, "card", res.PaymentMethod)
}

func TestCardRefund(t *testing.T) {
	p := newTestCardProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		assert.Equal(t, "refund-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "pi_1", r.PostForm.Get("payment_intent"))
		assert.Equal(t, "500", r.PostForm.Get("amount"))
		assert.Equal(t, "refund-1", r.PostForm.Get("metadata[refund_id]"))
		fmt.Fprint(w, `{"id":"re_1","object":"refund","status":"pending"}`)
	})

	res, err := p.Refund(context.Background(), RefundRequest{
		IdempotencyKey:    "refund-1",
		Reference:         RefundReference(1),
		ProviderPaymentID: "pi_1",
		Amount:            decimal.NewFromInt(5),
		Currency:          "usd",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", res.ProviderRefundID)
	assert.Equal(t, models.RefundStatusPending, res.Status)
}

func TestCardGetRefundKeepsCodeAndReasonApart(t *testing.T) {
	p := newTestCardProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/refunds/re_1", r.URL.Path)
		fmt.Fprint(w, `{"id":"re_1","object":"refund","status":"failed","failure_reason":"expired_or_canceled_card"}`)
	})

	res, err := p.GetRefund(context.Background(), "re_1")
	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusFailed, res.Status)
	assert.Equal(t, "failed", res.FailureCode)
	assert.Equal(t, "expired_or_canceled_card", res.FailureMessage)
}

func signedCardHeader(payload []byte, secret string, at time.Time) string {
	ts := fmt.Sprintf("%d", at.Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return "t=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestCardParseWebhook(t *testing.T) {
	ctx := context.Background()
	p := NewCardProvider(CardConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test", WebhookTolerance: 5 * time.Minute})

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1","payment_method_types":["card"],"metadata":{"payment_id":"7"}}}}`)

	t.Run("valid signature", func(t *testing.T) {
		header := http.Header{}
		header.Set(cardSignatureHeader, signedCardHeader(payload, "whsec_test", time.Now()))

		event, err := p.ParseWebhook(ctx, payload, header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, EventPayment, event.Kind)
		assert.Equal(t, "pi_1", event.ProviderPaymentID)
		assert.Equal(t, "7", event.Reference)
		assert.Equal(t, models.PaymentStatusSucceeded, event.Payment.Status)
		assert.Equal(t, "ch_1", event.Payment.ProviderChargeID)
	})

	t.Run("wrong secret", func(t *testing.T) {
		header := http.Header{}
		header.Set(cardSignatureHeader, signedCardHeader(payload, "other", time.Now()))

		_, err := p.ParseWebhook(ctx, payload, header)
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("tampered payload", func(t *testing.T) {
		header := http.Header{}
		header.Set(cardSignatureHeader, signedCardHeader(payload, "whsec_test", time.Now()))

		_, err := p.ParseWebhook(ctx, append([]byte{}, payload[:len(payload)-1]...), header)
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		header := http.Header{}
		header.Set(cardSignatureHeader, signedCardHeader(payload, "whsec_test", time.Now().Add(-time.Hour)))

		_, err := p.ParseWebhook(ctx, payload, header)
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := p.ParseWebhook(ctx, payload, http.Header{})
		assert.ErrorIs(t, err, models.ErrInvalidSignature)
	})

	t.Run("signed garbage is malformed", func(t *testing.T) {
		garbage := []byte(`not json`)
		header := http.Header{}
		header.Set(cardSignatureHeader, signedCardHeader(garbage, "whsec_test", time.Now()))

		_, err := p.ParseWebhook(ctx, garbage, header)
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrInvalidSignature)
	})
}

func TestCardParseRefundWebhook(t *testing.T) {
	p := NewCardProvider(CardConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"})
	payload := []byte(`{"id":"evt_2","object":"event","type":"refund.updated","data":{"object":{"id":"re_1","object":"refund","status":"failed","payment_intent":"pi_1","failure_reason":"expired_or_canceled_card","metadata":{"refund_id":"refund-4"}}}}`)

	header := http.Header{}
	header.Set(cardSignatureHeader, signedCardHeader(payload, "whsec_test", time.Now()))

	event, err := p.ParseWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	assert.Equal(t, EventRefund, event.Kind)
	assert.Equal(t, "pi_1", event.ProviderPaymentID)
	assert.Equal(t, "re_1", event.ProviderRefundID)
	assert.Equal(t, "refund-4", event.Reference)
	assert.Equal(t, models.RefundStatusFailed, event.RefundStatus)
	assert.Equal(t, "failed", event.RefundFailureCode)
	assert.Equal(t, "expired_or_canceled_card", event.RefundFailureMessage)
}

func TestRefundReference(t *testing.T) {
	id, ok := ParseRefundReference(RefundReference(21))
	require.True(t, ok)
	assert.Equal(t, int64(21), id)

	for _, ref := range []string{"21", "", "refund-", "refund-x", "refund-0", "payment-21"} {
		_, ok := ParseRefundReference(ref)
		assert.False(t, ok, ref)
	}
}
