package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/provider"
	"shop-service/internal/store"

	"github.com/stretchr/testify/mock"
)

// mockStore implements every store interface the services depend on
type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Product)
	return p, args.Error(1)
}

func (m *mockStore) AddCartLine(ctx context.Context, userID, productID int64, quantity int) (*models.CartLine, error) {
	args := m.Called(ctx, userID, productID, quantity)
	l, _ := args.Get(0).(*models.CartLine)
	return l, args.Error(1)
}

func (m *mockStore) GetCartLine(ctx context.Context, userID, lineID int64) (*models.CartLine, error) {
	args := m.Called(ctx, userID, lineID)
	l, _ := args.Get(0).(*models.CartLine)
	return l, args.Error(1)
}

func (m *mockStore) SetCartLineQuantity(ctx context.Context, userID, lineID int64, quantity int) (*models.CartLine, error) {
	args := m.Called(ctx, userID, lineID, quantity)
	l, _ := args.Get(0).(*models.CartLine)
	return l, args.Error(1)
}

func (m *mockStore) DeleteCartLine(ctx context.Context, userID, lineID int64) error {
	return m.Called(ctx, userID, lineID).Error(0)
}

func (m *mockStore) ClearCart(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStore) ListCartDetails(ctx context.Context, userID int64) ([]models.CartLineDetail, error) {
	args := m.Called(ctx, userID)
	l, _ := args.Get(0).([]models.CartLineDetail)
	return l, args.Error(1)
}

func (m *mockStore) CheckoutCart(ctx context.Context, userID int64) ([]models.Purchase, error) {
	args := m.Called(ctx, userID)
	p, _ := args.Get(0).([]models.Purchase)
	return p, args.Error(1)
}

func (m *mockStore) PurchaseDirect(ctx context.Context, userID, productID int64, quantity int) (*models.Purchase, error) {
	args := m.Called(ctx, userID, productID, quantity)
	p, _ := args.Get(0).(*models.Purchase)
	return p, args.Error(1)
}

func (m *mockStore) GetPurchaseByID(ctx context.Context, id int64) (*models.Purchase, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Purchase)
	return p, args.Error(1)
}

func (m *mockStore) ListPurchasesByUser(ctx context.Context, userID int64, limit, offset int) ([]models.Purchase, error) {
	args := m.Called(ctx, userID, limit, offset)
	p, _ := args.Get(0).([]models.Purchase)
	return p, args.Error(1)
}

func (m *mockStore) ListPurchases(ctx context.Context, filter models.PurchaseFilter) ([]models.Purchase, error) {
	args := m.Called(ctx, filter)
	p, _ := args.Get(0).([]models.Purchase)
	return p, args.Error(1)
}

func (m *mockStore) UpdatePurchaseStatus(ctx context.Context, id int64, next models.PurchaseStatus, trackingNumber, notes *string) (*models.Purchase, models.PurchaseStatus, error) {
	args := m.Called(ctx, id, next, trackingNumber, notes)
	p, _ := args.Get(0).(*models.Purchase)
	prev, _ := args.Get(1).(models.PurchaseStatus)
	return p, prev, args.Error(2)
}

func (m *mockStore) GetOrderStats(ctx context.Context) (*models.OrderStats, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*models.OrderStats)
	return s, args.Error(1)
}

func (m *mockStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return m.Called(ctx, payment).Error(0)
}

func (m *mockStore) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) GetPaymentByProviderID(ctx context.Context, providerName models.ProviderName, providerPaymentID string) (*models.Payment, error) {
	args := m.Called(ctx, providerName, providerPaymentID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) GetActivePayment(ctx context.Context, purchaseID int64) (*models.Payment, error) {
	args := m.Called(ctx, purchaseID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) HasPaidPayment(ctx context.Context, purchaseID int64) (bool, error) {
	args := m.Called(ctx, purchaseID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SetProviderPaymentID(ctx context.Context, id int64, providerPaymentID string) (*models.Payment, error) {
	args := m.Called(ctx, id, providerPaymentID)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) TransitionPayment(ctx context.Context, id int64, update store.PaymentUpdate) (*models.Payment, bool, error) {
	args := m.Called(ctx, id, update)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Bool(1), args.Error(2)
}

func (m *mockStore) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	args := m.Called(ctx, filter)
	p, _ := args.Get(0).([]models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) GetPaymentSummary(ctx context.Context) (*models.PaymentSummary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*models.PaymentSummary)
	return s, args.Error(1)
}

func (m *mockStore) CreateRefund(ctx context.Context, refund *models.Refund) (*models.Payment, error) {
	args := m.Called(ctx, refund)
	p, _ := args.Get(0).(*models.Payment)
	return p, args.Error(1)
}

func (m *mockStore) MarkRefundSubmitted(ctx context.Context, id int64, providerRefundID string) (*models.Refund, error) {
	args := m.Called(ctx, id, providerRefundID)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

func (m *mockStore) CompleteRefund(ctx context.Context, id int64, providerRefundID string) (*models.Refund, *models.Payment, bool, error) {
	args := m.Called(ctx, id, providerRefundID)
	r, _ := args.Get(0).(*models.Refund)
	p, _ := args.Get(1).(*models.Payment)
	return r, p, args.Bool(2), args.Error(3)
}

func (m *mockStore) FailRefund(ctx context.Context, id int64, failureCode, failureMessage string) (*models.Refund, bool, error) {
	args := m.Called(ctx, id, failureCode, failureMessage)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Bool(1), args.Error(2)
}

func (m *mockStore) GetRefundByID(ctx context.Context, id int64) (*models.Refund, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

func (m *mockStore) GetRefundByProviderID(ctx context.Context, providerRefundID string) (*models.Refund, error) {
	args := m.Called(ctx, providerRefundID)
	r, _ := args.Get(0).(*models.Refund)
	return r, args.Error(1)
}

func (m *mockStore) ListRefunds(ctx context.Context, filter models.RefundFilter) ([]models.Refund, error) {
	args := m.Called(ctx, filter)
	r, _ := args.Get(0).([]models.Refund)
	return r, args.Error(1)
}

// mockProvider is a scripted payment provider
type mockProvider struct {
	mock.Mock
	name models.ProviderName
}

func (m *mockProvider) Name() models.ProviderName {
	return m.name
}

func (m *mockProvider) CreateIntent(ctx context.Context, req provider.IntentRequest) (*provider.Intent, error) {
	args := m.Called(ctx, req)
	i, _ := args.Get(0).(*provider.Intent)
	return i, args.Error(1)
}

func (m *mockProvider) GetStatus(ctx context.Context, providerPaymentID string) (*provider.StatusResult, error) {
	args := m.Called(ctx, providerPaymentID)
	r, _ := args.Get(0).(*provider.StatusResult)
	return r, args.Error(1)
}

func (m *mockProvider) Refund(ctx context.Context, req provider.RefundRequest) (*provider.RefundResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*provider.RefundResult)
	return r, args.Error(1)
}

func (m *mockProvider) GetRefund(ctx context.Context, providerRefundID string) (*provider.RefundResult, error) {
	args := m.Called(ctx, providerRefundID)
	r, _ := args.Get(0).(*provider.RefundResult)
	return r, args.Error(1)
}

func (m *mockProvider) ParseWebhook(ctx context.Context, payload []byte, header http.Header) (*provider.WebhookEvent, error) {
	args := m.Called(payload, header)
	e, _ := args.Get(0).(*provider.WebhookEvent)
	return e, args.Error(1)
}

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) record(event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) all() []interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]interface{}(nil), p.events...)
}

func (p *recordingPublisher) PublishPurchaseCreated(ctx context.Context, e *models.PurchaseCreatedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishPurchaseStatusChanged(ctx context.Context, e *models.PurchaseStatusChangedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishPaymentSucceeded(ctx context.Context, e *models.PaymentSucceededEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishPaymentFailed(ctx context.Context, e *models.PaymentFailedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishRefundSucceeded(ctx context.Context, e *models.RefundSucceededEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishRefundFailed(ctx context.Context, e *models.RefundFailedEvent) error {
	return p.record(e)
}

// memLocker is an in-process Locker
type memLocker struct {
	mu    sync.Mutex
	held  map[string]string
	err   error
	calls int
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]string)}
}

func (l *memLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return "", false, l.err
	}
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = key + "-token"
	return key + "-token", true, nil
}

func (l *memLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// memIdempotency is an in-process IdempotencyStore
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]interface{}
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]interface{})}
}

func (m *memIdempotency) CheckIdempotencyKey(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.keys[key]
	return ok, nil
}

func (m *memIdempotency) SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = value
	return nil
}
