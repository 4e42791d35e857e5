package service

import (
	"context"
	"fmt"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	cartLockTTL  = 5 * time.Second
	cartLockWait = 500 * time.Millisecond
)

// CartStore persists cart lines
type CartStore interface {
	AddCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error)
	GetCartLine(ctx context.Context, userID, lineID int64) (*models.CartLine, error)
	SetCartLineQuantity(ctx context.Context, userID, lineID int64, quantity int) (*models.CartLine, error)
	DeleteCartLine(ctx context.Context, userID, lineID int64) error
	ClearCart(ctx context.Context, userID int64) (int64, error)
	ListCartDetails(ctx context.Context, userID int64) ([]models.CartLineDetail, error)
}

// Catalog reports product availability
type Catalog interface {
	GetProduct(ctx context.Context, productID int64) (*models.Product, error)
	AvailableStock(ctx context.Context, productID int64) (int, error)
}

// CartService handles the per-user shopping cart
type CartService struct {
	store   CartStore
	catalog Catalog
	locker  Locker
	logger  *zap.Logger
}

// NewCartService creates a new cart service
func NewCartService(store CartStore, catalog Catalog, locker Locker) *CartService {
	return &CartService{
		store:   store,
		catalog: catalog,
		locker:  locker,
		logger:  util.GetLogger(),
	}
}

// AddItem adds quantity units of a product to the caller's cart. Re-adding a
// product increments its line; the stored total never exceeds stock.
func (s *CartService) AddItem(ctx context.Context, caller Caller, productID int64, quantity int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.AddItem")
	defer span.End()

	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", models.ErrInvalidQuantity)
	}

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		util.CartOperationsTotal.WithLabelValues("add", "not_found").Inc()
		return nil, err
	}

	if quantity > product.StockQuantity {
		util.CartOperationsTotal.WithLabelValues("add", "out_of_stock").Inc()
		return nil, &models.StockError{
			Kind:      models.ErrOutOfStock,
			ProductID: productID,
			Requested: quantity,
			Available: product.StockQuantity,
		}
	}

	var line *models.CartLine
	lockKey := fmt.Sprintf("cart:%d:%d", caller.UserID, productID)
	err = withLock(ctx, s.locker, s.logger, lockKey, cartLockTTL, cartLockWait, func() error {
		var err error
		line, err = s.store.AddCartLine(ctx, caller.UserID, productID, quantity)
		return err
	})
	if err != nil {
		util.RecordError(span, err)
		util.CartOperationsTotal.WithLabelValues("add", "error").Inc()
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("add", "ok").Inc()
	s.logger.Debug("Cart line added",
		zap.Int64("user_id", caller.UserID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", line.Quantity))

	return line, nil
}

// UpdateQuantity sets a line's quantity, clamped to available stock. A
// quantity of zero or less removes the line and returns nil.
func (s *CartService) UpdateQuantity(ctx context.Context, caller Caller, lineID int64, quantity int) (*models.CartLine, error) {
	ctx, span := util.StartSpan(ctx, "CartService.UpdateQuantity")
	defer span.End()

	if quantity <= 0 {
		if err := s.RemoveItem(ctx, caller, lineID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	line, err := s.store.GetCartLine(ctx, caller.UserID, lineID)
	if err != nil {
		return nil, err
	}

	available, err := s.catalog.AvailableStock(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	if available == 0 {
		util.CartOperationsTotal.WithLabelValues("update", "out_of_stock").Inc()
		return nil, &models.StockError{
			Kind:      models.ErrOutOfStock,
			ProductID: line.ProductID,
			Requested: quantity,
		}
	}
	if quantity > available {
		quantity = available
	}

	updated, err := s.store.SetCartLineQuantity(ctx, caller.UserID, lineID, quantity)
	if err != nil {
		util.CartOperationsTotal.WithLabelValues("update", "error").Inc()
		return nil, err
	}

	util.CartOperationsTotal.WithLabelValues("update", "ok").Inc()
	return updated, nil
}

// RemoveItem deletes one of the caller's lines
func (s *CartService) RemoveItem(ctx context.Context, caller Caller, lineID int64) error {
	if err := s.store.DeleteCartLine(ctx, caller.UserID, lineID); err != nil {
		util.CartOperationsTotal.WithLabelValues("remove", "error").Inc()
		return err
	}
	util.CartOperationsTotal.WithLabelValues("remove", "ok").Inc()
	return nil
}

// Clear empties the caller's cart and reports how many lines were removed
func (s *CartService) Clear(ctx context.Context, caller Caller) (int64, error) {
	n, err := s.store.ClearCart(ctx, caller.UserID)
	if err != nil {
		util.CartOperationsTotal.WithLabelValues("clear", "error").Inc()
		return 0, err
	}
	util.CartOperationsTotal.WithLabelValues("clear", "ok").Inc()
	return n, nil
}

// GetSummary returns the cart priced at current catalog prices. Lines whose
// product has been deactivated are listed but left out of the totals.
func (s *CartService) GetSummary(ctx context.Context, caller Caller) (*models.CartSummary, error) {
	ctx, span := util.StartSpan(ctx, "CartService.GetSummary")
	defer span.End()

	lines, err := s.store.ListCartDetails(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	summary := &models.CartSummary{
		Items:      make([]models.CartLineDetail, 0, len(lines)),
		TotalPrice: decimal.Zero,
	}
	for _, line := range lines {
		line.Subtotal = line.ProductPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		if line.IsActive {
			summary.TotalItems += line.Quantity
			summary.TotalPrice = summary.TotalPrice.Add(line.Subtotal)
		}
		summary.Items = append(summary.Items, line)
	}

	return summary, nil
}
