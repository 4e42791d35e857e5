package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrProductNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// decrementStockSQL takes stock only when the product is active and can cover
// the amount, so stock can never go negative.
const decrementStockSQL = `
	UPDATE products
	SET stock_quantity = stock_quantity - $1, updated_at = NOW()
	WHERE id = $2 AND is_active AND stock_quantity >= $1`

// takeStockTx decrements stock inside tx and returns the unit price at that moment.
// The conditional UPDATE holds the row lock, so concurrent buyers re-check the
// predicate against the committed quantity.
func takeStockTx(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := tx.GetContext(ctx, &price, decrementStockSQL+" RETURNING price", quantity, productID)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, stockShortfallTx(ctx, tx, productID, quantity)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decrement stock for product %d: %w", productID, err)
	}
	return price, nil
}

func stockShortfallTx(ctx context.Context, tx *sqlx.Tx, productID int64, requested int) error {
	var product models.Product
	err := tx.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %d", models.ErrProductNotFound, productID)
	}
	if err != nil {
		return err
	}

	available := product.StockQuantity
	if !product.IsActive {
		available = 0
	}
	return &models.StockError{
		Kind:      models.ErrInsufficientStock,
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}

func restockTx(ctx context.Context, tx *sqlx.Tx, productID int64, quantity int) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW() WHERE id = $2",
		quantity, productID)
	if err != nil {
		return fmt.Errorf("failed to restock product %d: %w", productID, err)
	}
	return nil
}
