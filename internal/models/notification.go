package models

import "time"

// NotificationType mirrors the kinds of messages users receive
type NotificationType string

const (
	NotificationOrderCreated     NotificationType = "order_created"
	NotificationOrderConfirmed   NotificationType = "order_confirmed"
	NotificationOrderProcessing  NotificationType = "order_processing"
	NotificationOrderShipped     NotificationType = "order_shipped"
	NotificationOrderDelivered   NotificationType = "order_delivered"
	NotificationOrderCancelled   NotificationType = "order_cancelled"
	NotificationPaymentSucceeded NotificationType = "payment_succeeded"
	NotificationPaymentFailed    NotificationType = "payment_failed"
	NotificationRefundProcessed  NotificationType = "refund_processed"
)

// NotificationPriority orders notifications for delivery
type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityMedium NotificationPriority = "medium"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is what the notification collaborator delivers to a user
type Notification struct {
	UserID    int64                `json:"user_id"`
	Type      NotificationType     `json:"type"`
	Title     string               `json:"title"`
	Message   string               `json:"message"`
	Priority  NotificationPriority `json:"priority"`
	SourceID  string               `json:"source_event_id"`
	CreatedAt time.Time            `json:"created_at"`
}
