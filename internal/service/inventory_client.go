package service

import (
	"context"
	"errors"
	"fmt"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"go.uber.org/zap"
)

// ProductStore is the catalog read the inventory client needs
type ProductStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
}

// InventoryClient answers catalog questions for the cart: whether a product
// can be sold and how much of it is in stock right now.
type InventoryClient struct {
	store  ProductStore
	logger *zap.Logger
}

// NewInventoryClient creates a new inventory client
func NewInventoryClient(store ProductStore) *InventoryClient {
	return &InventoryClient{
		store:  store,
		logger: util.GetLogger(),
	}
}

// GetProduct returns a sellable product. Inactive products are reported as
// not found so they cannot be added to a cart.
func (ic *InventoryClient) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryClient.GetProduct")
	defer span.End()

	product, err := ic.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		ic.logger.Debug("Inactive product requested", zap.Int64("product_id", productID))
		return nil, fmt.Errorf("%w: %d is not active", models.ErrProductNotFound, productID)
	}
	return product, nil
}

// AvailableStock returns the units currently sellable, zero for inactive or
// missing products.
func (ic *InventoryClient) AvailableStock(ctx context.Context, productID int64) (int, error) {
	product, err := ic.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, models.ErrProductNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return product.StockQuantity, nil
}
