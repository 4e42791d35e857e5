package service

import (
	"context"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// PurchaseStore reads purchases and applies status changes
type PurchaseStore interface {
	GetPurchaseByID(ctx context.Context, id int64) (*models.Purchase, error)
	ListPurchasesByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Purchase, error)
	ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error)
	UpdatePurchaseStatus(ctx context.Context, id int64, next models.PurchaseStatus, trackingNumber, notes *string) (*models.Purchase, models.PurchaseStatus, error)
	GetOrderStats(ctx context.Context) (*models.OrderStats, error)
}

// UpdateStatusRequest moves a purchase along its fulfilment lifecycle.
// Nil TrackingNumber or Notes keep the stored value.
type UpdateStatusRequest struct {
	Status         models.PurchaseStatus `json:"status" binding:"required"`
	TrackingNumber *string               `json:"tracking_number,omitempty"`
	Notes          *string               `json:"notes,omitempty"`
}

// PurchaseService handles the fulfilment lifecycle of purchases
type PurchaseService struct {
	store          PurchaseStore
	eventPublisher EventPublisher
	logger         *zap.Logger
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(store PurchaseStore, eventPublisher EventPublisher) *PurchaseService {
	return &PurchaseService{
		store:          store,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// UpdateStatus applies an admin status change. Moves must go forward or to
// cancelled; anything else fails with ErrInvalidTransition and changes nothing.
func (s *PurchaseService) UpdateStatus(ctx context.Context, caller Caller, purchaseID int64, req UpdateStatusRequest) (*models.Purchase, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.UpdateStatus")
	defer span.End()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !req.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, req.Status)
	}

	purchase, previous, err := s.store.UpdatePurchaseStatus(ctx, purchaseID, req.Status, req.TrackingNumber, req.Notes)
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	if previous == purchase.Status {
		return purchase, nil
	}

	util.PurchaseTransitionsTotal.WithLabelValues(string(purchase.Status)).Inc()
	s.logger.Info("Purchase status changed",
		zap.Int64("purchase_id", purchase.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(purchase.Status)),
		zap.Int64("admin_id", caller.UserID))

	event := &models.PurchaseStatusChangedEvent{
		BaseEvent:      newBaseEvent(models.EventTypePurchaseStatusChanged),
		PurchaseID:     purchase.ID,
		UserID:         purchase.CustomerID,
		From:           previous,
		To:             purchase.Status,
		TrackingNumber: derefString(purchase.TrackingNumber),
	}
	if err := s.eventPublisher.PublishPurchaseStatusChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish PurchaseStatusChanged event", zap.Error(err))
	}

	return purchase, nil
}

// GetPurchase returns a purchase owned by the caller; admins see any purchase
func (s *PurchaseService) GetPurchase(ctx context.Context, caller Caller, purchaseID int64) (*models.Purchase, error) {
	purchase, err := s.store.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if purchase.CustomerID != caller.UserID && !caller.IsAdmin {
		return nil, fmt.Errorf("%w: %d", models.ErrPurchaseNotFound, purchaseID)
	}
	return purchase, nil
}

// ListPurchases returns the caller's purchase history, newest first
func (s *PurchaseService) ListPurchases(ctx context.Context, caller Caller, limit, offset int) ([]models.Purchase, error) {
	return s.store.ListPurchasesByUser(ctx, caller.UserID, limit, offset)
}

// ListAllPurchases returns purchases across users for administrators
func (s *PurchaseService) ListAllPurchases(ctx context.Context, caller Caller, filter models.PurchaseFilter) ([]models.Purchase, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, filter.Status)
	}
	return s.store.ListPurchases(ctx, filter)
}

// OrderStats aggregates purchases by status, computed on demand
func (s *PurchaseService) OrderStats(ctx context.Context, caller Caller) (*models.OrderStats, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.OrderStats")
	defer span.End()

	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	return s.store.GetOrderStats(ctx)
}
