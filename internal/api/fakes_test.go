package api

import (
	"context"
	"errors"
	"net/http"

	"shop-service/internal/models"
	"shop-service/internal/service"

	"github.com/stretchr/testify/mock"
)

// fakeServices implements every service interface the handlers use
type fakeServices struct {
	mock.Mock
}

func (f *fakeServices) AddItem(ctx context.Context, caller service.Caller, productID int64, quantity int) (*models.CartLine, error) {
	args := f.Called(caller, productID, quantity)
	l, _ := args.Get(0).(*models.CartLine)
	return l, args.Error(1)
}

func (f *fakeServices) UpdateQuantity(ctx context.Context, caller service.Caller, lineID int64, quantity int) (*models.CartLine, error) {
	args := f.Called(caller, lineID, quantity)
	l, _ := args.Get(0).(*models.CartLine)
	return l, args.Error(1)
}

func (f *fakeServices) RemoveItem(ctx context.Context, caller service.Caller, lineID int64) error {
	return f.Called(caller, lineID).Error(0)
}

func (f *fakeServices) Clear(ctx context.Context, caller service.Caller) (int64, error) {
	args := f.Called(caller)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (f *fakeServices) GetSummary(ctx context.Context, caller service.Caller) (*models.CartSummary, error) {
	args := f.Called(caller)
	s, _ := args.Get(0).(*models.CartSummary)
	return s, args.Error(1)
}

func (f *fakeServices) Checkout(ctx context.Context, caller service.Caller) ([]models.Purchase, error) {
	args := f.Called(caller)
	p, _ := args.Get(0).([]models.Purchase)
	return p, args.Error(1)
}

func (f *fakeServices) PurchaseDirect(ctx context.Context, caller service.Caller, productID int64, quantity int) (*models.Purchase, error) {
	args := f.Called(caller, productID, quantity)
	p, _ := args.Get(0).(*models.Purchase)
	return p, args.Error(1)
}

func (f *fakeServices) UpdateStatus(ctx context.Context, caller service.Caller, purchaseID int64, req service.UpdateStatusRequest) (*models.Purchase, error) {
	args := f.Called(caller, purchaseID, req)
	p, _ := args.Get(0).(*models.Purchase)
	return p, args.Error(1)
}

func (f *fakeServices) GetPurchase(ctx context.Context, caller service.Caller, purchaseID int64) (*models.Purchase, error) {
	args := f.Called(caller, purchaseID)
	p, _ := args.Get(0).(*models.Purchase)
	return p, args.Error(1)
}

func (f *fakeServices) ListPurchases(ctx context.Context, caller service.Caller, limit, offset int) ([]models.Purchase, error) {
	args := f.Called(caller, limit, offset)
	p, _ := args.Get(0).([]models.Purchase)
	return p, args.Error(1)
}

func (f *fakeServices) ListAllPurchases(ctx context.Context, caller service.Caller, filter models.PurchaseFilter) ([]models.Purchase, error) {
	args := f.Called(caller, filter)
	p, _ := args.Get(0).([]models.Purchase)
	return p, args.Error(1)
}

func (f *fakeServices) OrderStats(ctx context.Context, caller service.Caller) (*models.OrderStats, error) {
	args := f.Called(caller)
	s, _ := args.Get(0).(*models.OrderStats)
	return s, args.Error(1)
}

func (f *fakeServices) CreateIntent(ctx context.Context, caller service.Caller, req service.CreateIntentRequest) (*service.IntentResponse, error) {
	args := f.Called(caller, req)
	r, _ := args.Get(0).(*service.IntentResponse)
	return r, args.Error(1)
}

func (f *fakeServices) Confirm(ctx context.Context, caller service.Caller, paymentID int64) (*models.Payment, error) {
	args := f.Called(caller, paymentID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (f *fakeServices) GetPayment(ctx context.Context, caller service.Caller, paymentID int64) (*models.PaymentWithRefunds, error) {
	args := f.Called(caller, paymentID)
	p, _ := args.Get(0).(*models.PaymentWithRefunds)
	return p, args.Error(1)
}

func (f *fakeServices) ListPayments(ctx context.Context, caller service.Caller, limit, offset int) ([]models.Payment, error) {
	args := f.Called(caller, limit, offset)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

func (f *fakeServices) ListPaymentsByPurchase(ctx context.Context, caller service.Caller, purchaseID int64) ([]models.Payment, error) {
	args := f.Called(caller, purchaseID)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

func (f *fakeServices) ListAllPayments(ctx context.Context, caller service.Caller, filter models.PaymentFilter) ([]models.Payment, error) {
	args := f.Called(caller, filter)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

func (f *fakeServices) Summary(ctx context.Context, caller service.Caller) (*models.PaymentSummary, error) {
	args := f.Called(caller)
	s, _ := args.Get(0).(*models.PaymentSummary)
	return s, args.Error(1)
}

func (f *fakeServices) ReconcileWebhook(ctx context.Context, providerName models.ProviderName, payload []byte, header http.Header) (*service.WebhookResult, error) {
	args := f.Called(providerName, string(payload))
	r, _ := args.Get(0).(*service.WebhookResult)
	return r, args.Error(1)
}

func (f *fakeServices) CreateRefund(ctx context.Context, caller service.Caller, req service.CreateRefundRequest) (*models.Refund, error) {
	args := f.Called(caller, req)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

func (f *fakeServices) GetRefund(ctx context.Context, caller service.Caller, refundID int64) (*models.Refund, error) {
	args := f.Called(caller, refundID)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

func (f *fakeServices) ListRefunds(ctx context.Context, caller service.Caller, filter models.RefundFilter) ([]models.Refund, error) {
	args := f.Called(caller, filter)
	r, _ := args.Get(0).([]models.Refund)
	return r, args.Error(1)
}

func (f *fakeServices) SettleRefund(ctx context.Context, caller service.Caller, refundID int64) (*models.Refund, error) {
	args := f.Called(caller, refundID)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

type pingFunc func(ctx context.Context) error

func (p pingFunc) Ping(ctx context.Context) error { return p(ctx) }

var errDown = errors.New("connection refused")
