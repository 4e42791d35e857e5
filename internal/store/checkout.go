package store

import (
	"context"
	"fmt"

	"shop-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// CheckoutCart converts every line of the user's cart into purchases in a
// single transaction. Any line that stock cannot cover rolls back the whole
// checkout; no purchase is written and no stock moves.
func (s *Store) CheckoutCart(ctx context.Context, userID int64) ([]models.Purchase, error) {
	var purchases []models.Purchase

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var lines []models.CartLine
		// product order keeps row locks in a consistent order across buyers
		err := tx.SelectContext(ctx, &lines,
			"SELECT * FROM cart_lines WHERE user_id = $1 ORDER BY product_id FOR UPDATE", userID)
		if err != nil {
			return fmt.Errorf("failed to lock cart lines: %w", err)
		}
		if len(lines) == 0 {
			return models.ErrEmptyCart
		}

		purchases = make([]models.Purchase, 0, len(lines))
		for _, line := range lines {
			purchase, err := purchaseTx(ctx, tx, userID, line.ProductID, line.Quantity)
			if err != nil {
				return err
			}
			purchases = append(purchases, *purchase)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM cart_lines WHERE user_id = $1", userID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchases, nil
}

// PurchaseDirect buys quantity units of a product without touching the cart
func (s *Store) PurchaseDirect(ctx context.Context, userID, productID int64, quantity int) (*models.Purchase, error) {
	var purchase *models.Purchase

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		purchase, err = purchaseTx(ctx, tx, userID, productID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

// purchaseTx takes stock and records the purchase with the price snapshot
func purchaseTx(ctx context.Context, tx *sqlx.Tx, userID, productID int64, quantity int) (*models.Purchase, error) {
	price, err := takeStockTx(ctx, tx, productID, quantity)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO purchases (item_id, customer_id, quantity, unit_price, total_price, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING *`

	var purchase models.Purchase
	err = tx.GetContext(ctx, &purchase, query,
		productID, userID, quantity, price, price.Mul(decimal.NewFromInt(int64(quantity))), models.PurchaseStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to create purchase: %w", err)
	}
	return &purchase, nil
}
