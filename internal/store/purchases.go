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

// GetPurchaseByID retrieves a purchase by ID
func (s *Store) GetPurchaseByID(ctx context.Context, id int64) (*models.Purchase, error) {
	var purchase models.Purchase
	err := s.db.GetContext(ctx, &purchase, "SELECT * FROM purchases WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", models.ErrPurchaseNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// ListPurchasesByUser retrieves purchases for a user, newest first
func (s *Store) ListPurchasesByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Purchase, error) {
	limit, offset = pageBounds(limit, offset)
	var purchases []models.Purchase
	err := s.db.SelectContext(ctx, &purchases,
		"SELECT * FROM purchases WHERE customer_id = $1 ORDER BY purchase_date DESC, id DESC LIMIT $2 OFFSET $3",
		userID, limit, offset)
	return purchases, err
}

// ListPurchases retrieves purchases across all users
func (s *Store) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	var w whereBuilder
	if filter.Status != "" {
		w.add("status = $%d", filter.Status)
	}
	query := "SELECT * FROM purchases" + w.sql() + " ORDER BY purchase_date DESC, id DESC" + w.page(filter.Limit, filter.Offset)

	var purchases []models.Purchase
	err := s.db.SelectContext(ctx, &purchases, query, w.args...)
	return purchases, err
}

// UpdatePurchaseStatus moves a purchase to next under a row lock and returns
// the updated row together with the status it moved from. Nil tracking or
// notes leave the stored value in place. Cancelling before shipment puts the
// quantity back into stock.
func (s *Store) UpdatePurchaseStatus(
	ctx context.Context,
	id int64,
	next models.PurchaseStatus,
	trackingNumber, notes *string,
) (*models.Purchase, models.PurchaseStatus, error) {
	var (
		updated  models.Purchase
		previous models.PurchaseStatus
	)

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var current models.Purchase
		err := tx.GetContext(ctx, &current, "SELECT * FROM purchases WHERE id = $1 FOR UPDATE", id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %d", models.ErrPurchaseNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock purchase: %w", err)
		}

		if !current.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, current.Status, next)
		}
		previous = current.Status

		query := `
			UPDATE purchases
			SET status = $1,
			    status_updated_at = NOW(),
			    tracking_number = COALESCE($2, tracking_number),
			    notes = COALESCE($3, notes)
			WHERE id = $4
			RETURNING *`
		if err := tx.GetContext(ctx, &updated, query, next, trackingNumber, notes, id); err != nil {
			return fmt.Errorf("failed to update purchase status: %w", err)
		}

		if next == models.PurchaseStatusCancelled && previous != next && previous.RestocksOnCancel() {
			return restockTx(ctx, tx, current.ItemID, current.Quantity)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return &updated, previous, nil
}

// GetOrderStats aggregates every purchase by status
func (s *Store) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	var rows []models.StatusAggregate
	err := s.db.SelectContext(ctx, &rows, `
		SELECT status, COUNT(*) AS count, COALESCE(SUM(total_price), 0) AS revenue
		FROM purchases
		GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate purchases: %w", err)
	}

	var recent int64
	err = s.db.GetContext(ctx, &recent,
		"SELECT COUNT(*) FROM purchases WHERE purchase_date >= NOW() - INTERVAL '30 days'")
	if err != nil {
		return nil, fmt.Errorf("failed to count recent purchases: %w", err)
	}

	stats := &models.OrderStats{
		TotalRevenue:  decimal.Zero,
		RecentOrders:  recent,
		StatusCounts:  make(map[models.PurchaseStatus]int64, len(models.PurchaseStatuses)),
		StatusRevenue: make(map[models.PurchaseStatus]decimal.Decimal, len(models.PurchaseStatuses)),
	}
	for _, status := range models.PurchaseStatuses {
		stats.StatusCounts[status] = 0
		stats.StatusRevenue[status] = decimal.Zero
	}

	for _, row := range rows {
		status := models.PurchaseStatus(row.Status)
		stats.StatusCounts[status] = row.Count
		stats.StatusRevenue[status] = row.Revenue
		stats.TotalOrders += row.Count
		if status != models.PurchaseStatusCancelled {
			stats.TotalRevenue = stats.TotalRevenue.Add(row.Revenue)
		}
	}

	return stats, nil
}
