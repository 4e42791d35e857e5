package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"shop-service/internal/models"
)

// errCartLineNotOwned is returned when the line does not exist for that user
var errCartLineNotOwned = fmt.Errorf("%w: cart line not found for user", models.ErrInvalidQuantity)

// AddCartLine inserts or increments the user's line for a product. The stored
// quantity is clamped to the product's stock as read by the same statement.
func (s *Store) AddCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	query := `
		INSERT INTO cart_lines (user_id, product_id, quantity)
		SELECT $1, p.id, LEAST($3::int, p.stock_quantity)
		FROM products p
		WHERE p.id = $2 AND p.stock_quantity > 0
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET quantity = LEAST(
			cart_lines.quantity + $3::int,
			(SELECT stock_quantity FROM products WHERE id = $2)
		)
		RETURNING *`

	var line models.CartLine
	err := s.db.GetContext(ctx, &line, query, userID, productID, quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.StockError{Kind: models.ErrOutOfStock, ProductID: productID, Requested: quantity}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return &line, nil
}

// GetCartLine retrieves a cart line owned by userID
func (s *Store) GetCartLine(ctx context.Context, userID, lineID int64) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.GetContext(ctx, &line,
		"SELECT * FROM cart_lines WHERE id = $1 AND user_id = $2", lineID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errCartLineNotOwned
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// SetCartLineQuantity overwrites the quantity of a line owned by userID
func (s *Store) SetCartLineQuantity(ctx context.Context, userID, lineID int64, quantity int) (*models.CartLine, error) {
	var line models.CartLine
	err := s.db.GetContext(ctx, &line,
		"UPDATE cart_lines SET quantity = $1 WHERE id = $2 AND user_id = $3 RETURNING *",
		quantity, lineID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errCartLineNotOwned
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update cart line: %w", err)
	}
	return &line, nil
}

// DeleteCartLine removes a line owned by userID
func (s *Store) DeleteCartLine(ctx context.Context, userID, lineID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM cart_lines WHERE id = $1 AND user_id = $2", lineID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errCartLineNotOwned
	}
	return nil
}

// ClearCart removes every line for userID and reports how many were removed
func (s *Store) ClearCart(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM cart_lines WHERE user_id = $1", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cart: %w", err)
	}
	return res.RowsAffected()
}

// ListCartDetails returns the user's lines joined with live product data
func (s *Store) ListCartDetails(ctx context.Context, userID int64) ([]models.CartLineDetail, error) {
	query := `
		SELECT c.id, c.user_id, c.product_id, c.quantity, c.added_at,
		       p.name AS product_name, p.price AS product_price,
		       p.stock_quantity, p.is_active
		FROM cart_lines c
		JOIN products p ON p.id = c.product_id
		WHERE c.user_id = $1
		ORDER BY c.added_at, c.id`

	var lines []models.CartLineDetail
	if err := s.db.SelectContext(ctx, &lines, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list cart: %w", err)
	}
	return lines, nil
}
