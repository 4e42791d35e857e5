package service

import (
	"context"
	"errors"
	"testing"

	"shop-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var buyer = Caller{UserID: 7}

func newCartService(st *mockStore, locker Locker) *CartService {
	return NewCartService(st, NewInventoryClient(st), locker)
}

func TestAddItem(t *testing.T) {
	ctx := context.Background()

	t.Run("adds within stock", func(t *testing.T) {
		st := &mockStore{}
		locker := newMemLocker()
		st.On("GetProductByID", mock.Anything, int64(1)).
			Return(&models.Product{ID: 1, StockQuantity: 5, IsActive: true}, nil)
		st.On("AddCartLine", mock.Anything, int64(7), int64(1), 2).
			Return(&models.CartLine{ID: 10, UserID: 7, ProductID: 1, Quantity: 2}, nil)

		line, err := newCartService(st, locker).AddItem(ctx, buyer, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, line.Quantity)
		assert.Empty(t, locker.held, "lock released")
		st.AssertExpectations(t)
	})

	t.Run("more than stock is out of stock", func(t *testing.T) {
		st := &mockStore{}
		st.On("GetProductByID", mock.Anything, int64(1)).
			Return(&models.Product{ID: 1, StockQuantity: 3, IsActive: true}, nil)

		_, err := newCartService(st, newMemLocker()).AddItem(ctx, buyer, 1, 4)
		require.ErrorIs(t, err, models.ErrOutOfStock)

		var stockErr *models.StockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, int64(1), stockErr.ProductID)
		assert.Equal(t, 3, stockErr.Available)
		st.AssertNotCalled(t, "AddCartLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("inactive product is not found", func(t *testing.T) {
		st := &mockStore{}
		st.On("GetProductByID", mock.Anything, int64(1)).
			Return(&models.Product{ID: 1, StockQuantity: 3, IsActive: false}, nil)

		_, err := newCartService(st, newMemLocker()).AddItem(ctx, buyer, 1, 1)
		assert.ErrorIs(t, err, models.ErrProductNotFound)
	})

	t.Run("zero quantity is invalid", func(t *testing.T) {
		_, err := newCartService(&mockStore{}, newMemLocker()).AddItem(ctx, buyer, 1, 0)
		assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	})

	t.Run("held lock times out as in progress", func(t *testing.T) {
		st := &mockStore{}
		locker := newMemLocker()
		locker.held["cart:7:1"] = "other"
		st.On("GetProductByID", mock.Anything, int64(1)).
			Return(&models.Product{ID: 1, StockQuantity: 3, IsActive: true}, nil)

		_, err := newCartService(st, locker).AddItem(ctx, buyer, 1, 1)
		assert.ErrorIs(t, err, models.ErrOperationInProgress)
		st.AssertNotCalled(t, "AddCartLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("redis failure falls back to unlocked upsert", func(t *testing.T) {
		st := &mockStore{}
		locker := newMemLocker()
		locker.err = errors.New("connection refused")
		st.On("GetProductByID", mock.Anything, int64(1)).
			Return(&models.Product{ID: 1, StockQuantity: 3, IsActive: true}, nil)
		st.On("AddCartLine", mock.Anything, int64(7), int64(1), 1).
			Return(&models.CartLine{ID: 10, Quantity: 1}, nil)

		_, err := newCartService(st, locker).AddItem(ctx, buyer, 1, 1)
		assert.NoError(t, err)
	})
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()

	t.Run("clamps to stock", func(t *testing.T) {
		st := &mockStore{}
		st.On("GetCartLine", mock.Anything, int64(7), int64(10)).
			Return(&models.CartLine{ID: 10, UserID: 7, ProductID: 1, Quantity: 1}, nil)
		st.On("GetProductByID", mock.Anything, int64(1)).
			Return(&models.Product{ID: 1, StockQuantity: 4, IsActive: true}, nil)
		st.On("SetCartLineQuantity", mock.Anything, int64(7), int64(10), 4).
			Return(&models.CartLine{ID: 10, Quantity: 4}, nil)

		line, err := newCartService(st, nil).UpdateQuantity(ctx, buyer, 10, 9)
		require.NoError(t, err)
		assert.Equal(t, 4, line.Quantity)
		st.AssertExpectations(t)
	})

	t.Run("zero removes the line", func(t *testing.T) {
		st := &mockStore{}
		st.On("DeleteCartLine", mock.Anything, int64(7), int64(10)).Return(nil)

		line, err := newCartService(st, nil).UpdateQuantity(ctx, buyer, 10, 0)
		require.NoError(t, err)
		assert.Nil(t, line)
		st.AssertExpectations(t)
	})

	t.Run("foreign line is invalid quantity", func(t *testing.T) {
		st := &mockStore{}
		st.On("GetCartLine", mock.Anything, int64(7), int64(99)).
			Return(nil, models.ErrInvalidQuantity)

		_, err := newCartService(st, nil).UpdateQuantity(ctx, buyer, 99, 2)
		assert.ErrorIs(t, err, models.ErrInvalidQuantity)
	})

	t.Run("sold out product", func(t *testing.T) {
		st := &mockStore{}
		st.On("GetCartLine", mock.Anything, int64(7), int64(10)).
			Return(&models.CartLine{ID: 10, UserID: 7, ProductID: 1, Quantity: 1}, nil)
		st.On("GetProductByID", mock.Anything, int64(1)).
			Return(&models.Product{ID: 1, StockQuantity: 0, IsActive: true}, nil)

		_, err := newCartService(st, nil).UpdateQuantity(ctx, buyer, 10, 2)
		assert.ErrorIs(t, err, models.ErrOutOfStock)
	})
}

func TestGetSummary(t *testing.T) {
	st := &mockStore{}
	st.On("ListCartDetails", mock.Anything, int64(7)).Return([]models.CartLineDetail{
		{
			CartLine:     models.CartLine{ID: 1, ProductID: 1, Quantity: 2},
			ProductPrice: decimal.RequireFromString("10.00"),
			IsActive:     true,
		},
		{
			CartLine:     models.CartLine{ID: 2, ProductID: 2, Quantity: 1},
			ProductPrice: decimal.RequireFromString("5.00"),
			IsActive:     true,
		},
		{
			CartLine:     models.CartLine{ID: 3, ProductID: 3, Quantity: 4},
			ProductPrice: decimal.RequireFromString("1.25"),
			IsActive:     false,
		},
	}, nil)

	summary, err := newCartService(st, nil).GetSummary(context.Background(), buyer)
	require.NoError(t, err)

	require.Len(t, summary.Items, 3)
	assert.Equal(t, "20.00", summary.Items[0].Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", summary.Items[1].Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", summary.Items[2].Subtotal.StringFixed(2))
	assert.Equal(t, 3, summary.TotalItems)
	assert.Equal(t, "25.00", summary.TotalPrice.StringFixed(2))
}

func TestClearCart(t *testing.T) {
	st := &mockStore{}
	st.On("ClearCart", mock.Anything, int64(7)).Return(int64(3), nil)

	n, err := newCartService(st, nil).Clear(context.Background(), buyer)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
