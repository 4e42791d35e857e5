package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. Purchase events are keyed
// by purchase and payment/refund events by payment so each stream stays ordered.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishPurchaseCreated publishes PurchaseCreated event
func (ep *EventPublisher) PublishPurchaseCreated(ctx context.Context, event *models.PurchaseCreatedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("purchase-%d", event.PurchaseID), event)
}

// PublishPurchaseStatusChanged publishes PurchaseStatusChanged event
func (ep *EventPublisher) PublishPurchaseStatusChanged(ctx context.Context, event *models.PurchaseStatusChangedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("purchase-%d", event.PurchaseID), event)
}

// PublishPaymentSucceeded publishes PaymentSucceeded event
func (ep *EventPublisher) PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("payment-%d", event.PaymentID), event)
}

// PublishPaymentFailed publishes PaymentFailed event
func (ep *EventPublisher) PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("payment-%d", event.PaymentID), event)
}

// PublishRefundSucceeded publishes RefundSucceeded event
func (ep *EventPublisher) PublishRefundSucceeded(ctx context.Context, event *models.RefundSucceededEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("payment-%d", event.PaymentID), event)
}

// PublishRefundFailed publishes RefundFailed event
func (ep *EventPublisher) PublishRefundFailed(ctx context.Context, event *models.RefundFailedEvent) error {
	return ep.producer.PublishEvent(ctx, fmt.Sprintf("payment-%d", event.PaymentID), event)
}

// EventHandler routes consumed events to registered callbacks
type EventHandler struct {
	onPurchaseCreated       func(context.Context, *models.PurchaseCreatedEvent) error
	onPurchaseStatusChanged func(context.Context, *models.PurchaseStatusChangedEvent) error
	onPaymentSucceeded      func(context.Context, *models.PaymentSucceededEvent) error
	onPaymentFailed         func(context.Context, *models.PaymentFailedEvent) error
	onRefundSucceeded       func(context.Context, *models.RefundSucceededEvent) error
	onRefundFailed          func(context.Context, *models.RefundFailedEvent) error
	logger                  *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

func (eh *EventHandler) OnPurchaseCreated(handler func(context.Context, *models.PurchaseCreatedEvent) error) {
	eh.onPurchaseCreated = handler
}

func (eh *EventHandler) OnPurchaseStatusChanged(handler func(context.Context, *models.PurchaseStatusChangedEvent) error) {
	eh.onPurchaseStatusChanged = handler
}

func (eh *EventHandler) OnPaymentSucceeded(handler func(context.Context, *models.PaymentSucceededEvent) error) {
	eh.onPaymentSucceeded = handler
}

func (eh *EventHandler) OnPaymentFailed(handler func(context.Context, *models.PaymentFailedEvent) error) {
	eh.onPaymentFailed = handler
}

func (eh *EventHandler) OnRefundSucceeded(handler func(context.Context, *models.RefundSucceededEvent) error) {
	eh.onRefundSucceeded = handler
}

func (eh *EventHandler) OnRefundFailed(handler func(context.Context, *models.RefundFailedEvent) error) {
	eh.onRefundFailed = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypePurchaseCreated:
		return dispatch(ctx, msg.Value, eh.onPurchaseCreated)
	case models.EventTypePurchaseStatusChanged:
		return dispatch(ctx, msg.Value, eh.onPurchaseStatusChanged)
	case models.EventTypePaymentSucceeded:
		return dispatch(ctx, msg.Value, eh.onPaymentSucceeded)
	case models.EventTypePaymentFailed:
		return dispatch(ctx, msg.Value, eh.onPaymentFailed)
	case models.EventTypeRefundSucceeded:
		return dispatch(ctx, msg.Value, eh.onRefundSucceeded)
	case models.EventTypeRefundFailed:
		return dispatch(ctx, msg.Value, eh.onRefundFailed)
	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

func dispatch[T any](ctx context.Context, value []byte, handler func(context.Context, *T) error) error {
	if handler == nil {
		return nil
	}
	var event T
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal %T: %w", event, err)
	}
	return handler(ctx, &event)
}
