package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"shop-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestPublishKeysByAggregate(t *testing.T) {
	w := &recordingWriter{}
	ep := NewEventPublisher(newProducer(w))
	ctx := context.Background()

	require.NoError(t, ep.PublishPurchaseCreated(ctx, &models.PurchaseCreatedEvent{PurchaseID: 4}))
	require.NoError(t, ep.PublishPaymentSucceeded(ctx, &models.PaymentSucceededEvent{PaymentID: 9, PurchaseID: 4}))
	require.NoError(t, ep.PublishRefundFailed(ctx, &models.RefundFailedEvent{RefundID: 1, PaymentID: 9}))

	require.Len(t, w.messages, 3)
	assert.Equal(t, "purchase-4", string(w.messages[0].Key))
	assert.Equal(t, "payment-9", string(w.messages[1].Key))
	assert.Equal(t, "payment-9", string(w.messages[2].Key))
}

func TestPublishWrapsWriterError(t *testing.T) {
	w := &recordingWriter{err: errors.New("broker down")}
	ep := NewEventPublisher(newProducer(w))

	err := ep.PublishPaymentFailed(context.Background(), &models.PaymentFailedEvent{PaymentID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestHandleMessageDispatchesByType(t *testing.T) {
	event := models.RefundSucceededEvent{
		BaseEvent: models.BaseEvent{
			EventID:   "e1",
			EventType: models.EventTypeRefundSucceeded,
			Timestamp: time.Now(),
		},
		RefundID:      3,
		PaymentID:     9,
		Amount:        decimal.NewFromInt(5),
		PaymentStatus: models.PaymentStatusPartiallyRefunded,
	}
	value, err := json.Marshal(event)
	require.NoError(t, err)

	var got *models.RefundSucceededEvent
	eh := NewEventHandler()
	eh.OnRefundSucceeded(func(ctx context.Context, e *models.RefundSucceededEvent) error {
		got = e
		return nil
	})
	eh.OnPaymentFailed(func(ctx context.Context, e *models.PaymentFailedEvent) error {
		t.Fatal("wrong handler")
		return nil
	})

	require.NoError(t, eh.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, int64(3), got.RefundID)
	assert.True(t, decimal.NewFromInt(5).Equal(got.Amount))
	assert.Equal(t, models.PaymentStatusPartiallyRefunded, got.PaymentStatus)
}

func TestHandleMessageIgnoresUnregisteredAndUnknown(t *testing.T) {
	eh := NewEventHandler()

	assert.NoError(t, eh.HandleMessage(context.Background(),
		kafka.Message{Value: []byte(`{"event_type":"PAYMENT_SUCCEEDED","payment_id":1}`)}))
	assert.NoError(t, eh.HandleMessage(context.Background(),
		kafka.Message{Value: []byte(`{"event_type":"SOMETHING_ELSE"}`)}))
	assert.Error(t, eh.HandleMessage(context.Background(), kafka.Message{Value: []byte(`not json`)}))
}
