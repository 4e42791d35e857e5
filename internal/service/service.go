package service

import (
	"context"
	"fmt"
	"time"

	"shop-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Caller is the identity a request runs as, resolved by the auth layer
type Caller struct {
	UserID  int64
	IsAdmin bool
}

func requireAdmin(caller Caller) error {
	if !caller.IsAdmin {
		return models.ErrForbidden
	}
	return nil
}

// EventPublisher emits domain events for the notification collaborator
type EventPublisher interface {
	PublishPurchaseCreated(ctx context.Context, event *models.PurchaseCreatedEvent) error
	PublishPurchaseStatusChanged(ctx context.Context, event *models.PurchaseStatusChangedEvent) error
	PublishPaymentSucceeded(ctx context.Context, event *models.PaymentSucceededEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
	PublishRefundSucceeded(ctx context.Context, event *models.RefundSucceededEvent) error
	PublishRefundFailed(ctx context.Context, event *models.RefundFailedEvent) error
}

// Locker provides short-lived distributed locks
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// IdempotencyStore remembers keys that were already handled
type IdempotencyStore interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}

const lockRetryInterval = 25 * time.Millisecond

// withLock runs fn while holding key. It polls for up to wait before giving up
// with ErrOperationInProgress. The database keeps its own guarantees, so when
// Redis itself fails fn still runs unlocked.
func withLock(
	ctx context.Context,
	locker Locker,
	logger *zap.Logger,
	key string,
	ttl, wait time.Duration,
	fn func() error,
) error {
	deadline := time.Now().Add(wait)

	for {
		token, ok, err := locker.AcquireLock(ctx, key, ttl)
		if err != nil {
			logger.Warn("Lock unavailable, continuing without it", zap.String("lock", key), zap.Error(err))
			return fn()
		}

		if ok {
			defer func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := locker.ReleaseLock(releaseCtx, key, token); err != nil {
					logger.Warn("Failed to release lock", zap.String("lock", key), zap.Error(err))
				}
			}()
			return fn()
		}

		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", models.ErrOperationInProgress, key)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
