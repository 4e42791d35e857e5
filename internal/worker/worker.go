package worker

import (
	"context"
	"fmt"
	"time"

	"shop-service/internal/broker"
	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// Notifier delivers a notification to its user
type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-backed notifier
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (n *LogNotifier) Notify(ctx context.Context, notification models.Notification) error {
	util.NotificationsTotal.WithLabelValues(string(notification.Type)).Inc()
	n.logger.Info("Notification",
		zap.Int64("user_id", notification.UserID),
		zap.String("type", string(notification.Type)),
		zap.String("priority", string(notification.Priority)),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
		zap.String("source_event_id", notification.SourceID))
	return nil
}

// NotificationWorker turns domain events into user notifications
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	notifier     Notifier
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, notifier Notifier) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		notifier:     notifier,
		logger:       util.GetLogger(),
	}

	w.eventHandler.OnPurchaseCreated(w.handlePurchaseCreated)
	w.eventHandler.OnPurchaseStatusChanged(w.handlePurchaseStatusChanged)
	w.eventHandler.OnPaymentSucceeded(w.handlePaymentSucceeded)
	w.eventHandler.OnPaymentFailed(w.handlePaymentFailed)
	w.eventHandler.OnRefundSucceeded(w.handleRefundSucceeded)

	return w
}

// Start consumes events until ctx is cancelled
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the underlying consumer
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}

func (w *NotificationWorker) send(ctx context.Context, n models.Notification, source models.BaseEvent) error {
	n.SourceID = source.EventID
	n.CreatedAt = time.Now().UTC()
	if err := w.notifier.Notify(ctx, n); err != nil {
		return fmt.Errorf("failed to deliver %s notification: %w", n.Type, err)
	}
	return nil
}

func (w *NotificationWorker) handlePurchaseCreated(ctx context.Context, e *models.PurchaseCreatedEvent) error {
	return w.send(ctx, models.Notification{
		UserID:   e.UserID,
		Type:     models.NotificationOrderCreated,
		Title:    "Order placed",
		Message:  fmt.Sprintf("Your order #%d for %d item(s) totalling %s was placed.", e.PurchaseID, e.Quantity, e.TotalPrice.StringFixed(2)),
		Priority: models.PriorityMedium,
	}, e.BaseEvent)
}

func (w *NotificationWorker) handlePurchaseStatusChanged(ctx context.Context, e *models.PurchaseStatusChangedEvent) error {
	nt, ok := statusNotification[e.To]
	if !ok {
		return nil
	}

	message := fmt.Sprintf("Your order #%d is now %s.", e.PurchaseID, e.To)
	if e.To == models.PurchaseStatusShipped && e.TrackingNumber != "" {
		message = fmt.Sprintf("Your order #%d has shipped. Tracking number: %s.", e.PurchaseID, e.TrackingNumber)
	}

	priority := models.PriorityMedium
	if e.To == models.PurchaseStatusCancelled {
		priority = models.PriorityHigh
	}

	return w.send(ctx, models.Notification{
		UserID:   e.UserID,
		Type:     nt,
		Title:    fmt.Sprintf("Order %s", e.To),
		Message:  message,
		Priority: priority,
	}, e.BaseEvent)
}

func (w *NotificationWorker) handlePaymentSucceeded(ctx context.Context, e *models.PaymentSucceededEvent) error {
	return w.send(ctx, models.Notification{
		UserID:   e.UserID,
		Type:     models.NotificationPaymentSucceeded,
		Title:    "Payment received",
		Message:  fmt.Sprintf("We received your payment of %s %s for order #%d.", e.Amount.StringFixed(2), e.Currency, e.PurchaseID),
		Priority: models.PriorityMedium,
	}, e.BaseEvent)
}

func (w *NotificationWorker) handlePaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	reason := e.FailureMessage
	if reason == "" {
		reason = e.FailureCode
	}
	return w.send(ctx, models.Notification{
		UserID:   e.UserID,
		Type:     models.NotificationPaymentFailed,
		Title:    "Payment failed",
		Message:  fmt.Sprintf("Payment for order #%d failed: %s", e.PurchaseID, reason),
		Priority: models.PriorityHigh,
	}, e.BaseEvent)
}

func (w *NotificationWorker) handleRefundSucceeded(ctx context.Context, e *models.RefundSucceededEvent) error {
	return w.send(ctx, models.Notification{
		UserID:   e.UserID,
		Type:     models.NotificationRefundProcessed,
		Title:    "Refund processed",
		Message:  fmt.Sprintf("A refund of %s %s was issued to your original payment method.", e.Amount.StringFixed(2), e.Currency),
		Priority: models.PriorityMedium,
	}, e.BaseEvent)
}

// pending has no notification; purchases are created pending
var statusNotification = map[models.PurchaseStatus]models.NotificationType{
	models.PurchaseStatusConfirmed:  models.NotificationOrderConfirmed,
	models.PurchaseStatusProcessing: models.NotificationOrderProcessing,
	models.PurchaseStatusShipped:    models.NotificationOrderShipped,
	models.PurchaseStatusDelivered:  models.NotificationOrderDelivered,
	models.PurchaseStatusCancelled:  models.NotificationOrderCancelled,
}
