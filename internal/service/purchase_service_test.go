package service

import (
	"context"
	"testing"

	"shop-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var admin = Caller{UserID: 1, IsAdmin: true}

func TestUpdateStatusRequiresAdmin(t *testing.T) {
	st := &mockStore{}
	svc := NewPurchaseService(st, &recordingPublisher{})

	_, err := svc.UpdateStatus(context.Background(), buyer, 3, UpdateStatusRequest{Status: models.PurchaseStatusShipped})
	assert.ErrorIs(t, err, models.ErrForbidden)
	st.AssertNotCalled(t, "UpdatePurchaseStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatusPublishesChange(t *testing.T) {
	st := &mockStore{}
	pub := &recordingPublisher{}
	tracking := "1Z999"

	st.On("UpdatePurchaseStatus", mock.Anything, int64(3), models.PurchaseStatusShipped, &tracking, (*string)(nil)).
		Return(&models.Purchase{ID: 3, CustomerID: 7, Status: models.PurchaseStatusShipped, TrackingNumber: &tracking},
			models.PurchaseStatusProcessing, nil)

	purchase, err := NewPurchaseService(st, pub).UpdateStatus(context.Background(), admin, 3, UpdateStatusRequest{
		Status:         models.PurchaseStatusShipped,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PurchaseStatusShipped, purchase.Status)

	events := pub.all()
	require.Len(t, events, 1)
	changed := events[0].(*models.PurchaseStatusChangedEvent)
	assert.Equal(t, models.PurchaseStatusProcessing, changed.From)
	assert.Equal(t, models.PurchaseStatusShipped, changed.To)
	assert.Equal(t, "1Z999", changed.TrackingNumber)
	assert.Equal(t, int64(7), changed.UserID)
}

func TestUpdateStatusSameStatusIsSilent(t *testing.T) {
	st := &mockStore{}
	pub := &recordingPublisher{}
	notes := "left at door"

	st.On("UpdatePurchaseStatus", mock.Anything, int64(3), models.PurchaseStatusShipped, (*string)(nil), &notes).
		Return(&models.Purchase{ID: 3, Status: models.PurchaseStatusShipped, Notes: &notes},
			models.PurchaseStatusShipped, nil)

	_, err := NewPurchaseService(st, pub).UpdateStatus(context.Background(), admin, 3, UpdateStatusRequest{
		Status: models.PurchaseStatusShipped,
		Notes:  &notes,
	})
	require.NoError(t, err)
	assert.Empty(t, pub.all())
}

func TestUpdateStatusRejectsBackwardMove(t *testing.T) {
	st := &mockStore{}
	st.On("UpdatePurchaseStatus", mock.Anything, int64(3), models.PurchaseStatusShipped, (*string)(nil), (*string)(nil)).
		Return(nil, models.PurchaseStatus(""), models.ErrInvalidTransition)

	_, err := NewPurchaseService(st, &recordingPublisher{}).UpdateStatus(context.Background(), admin, 3,
		UpdateStatusRequest{Status: models.PurchaseStatusShipped})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	_, err := NewPurchaseService(&mockStore{}, &recordingPublisher{}).UpdateStatus(context.Background(), admin, 3,
		UpdateStatusRequest{Status: "lost"})
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestGetPurchaseHidesOtherUsers(t *testing.T) {
	st := &mockStore{}
	st.On("GetPurchaseByID", mock.Anything, int64(3)).Return(&models.Purchase{ID: 3, CustomerID: 8}, nil)
	svc := NewPurchaseService(st, &recordingPublisher{})

	_, err := svc.GetPurchase(context.Background(), buyer, 3)
	assert.ErrorIs(t, err, models.ErrPurchaseNotFound)

	purchase, err := svc.GetPurchase(context.Background(), admin, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), purchase.CustomerID)
}

func TestOrderStatsRequiresAdmin(t *testing.T) {
	st := &mockStore{}
	st.On("GetOrderStats", mock.Anything).Return(&models.OrderStats{TotalOrders: 4}, nil)
	svc := NewPurchaseService(st, &recordingPublisher{})

	_, err := svc.OrderStats(context.Background(), buyer)
	assert.ErrorIs(t, err, models.ErrForbidden)

	stats, err := svc.OrderStats(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalOrders)
}
