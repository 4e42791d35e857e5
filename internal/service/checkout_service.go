package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

const checkoutLockTTL = 30 * time.Second

// CheckoutStore converts carts into purchases atomically
type CheckoutStore interface {
	CheckoutCart(ctx context.Context, userID int64) ([]models.Purchase, error)
	PurchaseDirect(ctx context.Context, userID, productID int64, quantity int) (*models.Purchase, error)
}

// CheckoutService turns carts and buy-now requests into purchases
type CheckoutService struct {
	store          CheckoutStore
	locker         Locker
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(store CheckoutStore, locker Locker, eventPublisher EventPublisher) *CheckoutService {
	return &CheckoutService{
		store:          store,
		locker:         locker,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// Checkout buys every line in the caller's cart. Either all lines become
// purchases and the cart is emptied, or nothing changes.
func (s *CheckoutService) Checkout(ctx context.Context, caller Caller) ([]models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	var purchases []models.Purchase
	lockKey := fmt.Sprintf("checkout:%d", caller.UserID)
	err := withLock(ctx, s.locker, s.logger, lockKey, checkoutLockTTL, 0, func() error {
		var err error
		purchases, err = s.store.CheckoutCart(ctx, caller.UserID)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		util.CheckoutsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		s.logger.Info("Checkout failed", zap.Int64("user_id", caller.UserID), zap.Error(err))
		return nil, err
	}

	util.PurchasesCreatedTotal.WithLabelValues("cart").Add(float64(len(purchases)))
	s.logger.Info("Checkout completed",
		zap.Int64("user_id", caller.UserID),
		zap.Int("purchases", len(purchases)))

	for i := range purchases {
		s.publishCreated(ctx, &purchases[i])
	}

	return purchases, nil
}

// PurchaseDirect buys a single product without touching the cart
func (s *CheckoutService) PurchaseDirect(ctx context.Context, caller Caller, productID int64, quantity int) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.PurchaseDirect")
	defer span.End()

	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", models.ErrInvalidQuantity)
	}

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	purchase, err := s.store.PurchaseDirect(ctx, caller.UserID, productID, quantity)
	if err != nil {
		util.RecordError(span, err)
		util.CheckoutsFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.PurchasesCreatedTotal.WithLabelValues("direct").Inc()
	s.logger.Info("Direct purchase created",
		zap.Int64("purchase_id", purchase.ID),
		zap.Int64("user_id", caller.UserID))

	s.publishCreated(ctx, purchase)
	return purchase, nil
}

func (s *CheckoutService) publishCreated(ctx context.Context, purchase *models.Purchase) {
	event := &models.PurchaseCreatedEvent{
		BaseEvent:  newBaseEvent(models.EventTypePurchaseCreated),
		PurchaseID: purchase.ID,
		UserID:     purchase.CustomerID,
		ProductID:  purchase.ItemID,
		Quantity:   purchase.Quantity,
		TotalPrice: purchase.TotalPrice,
	}
	if err := s.eventPublisher.PublishPurchaseCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish PurchaseCreated event",
			zap.Int64("purchase_id", purchase.ID),
			zap.Error(err))
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, models.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, models.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, models.ErrOperationInProgress):
		return "in_progress"
	}
	return "error"
}
