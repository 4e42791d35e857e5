package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"shop-service/internal/models"
	"shop-service/internal/service"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// CartService is the cart surface the handlers call
type CartService interface {
	AddItem(ctx context.Context, caller service.Caller, productID int64, quantity int) (*models.CartLine, error)
	UpdateQuantity(ctx context.Context, caller service.Caller, lineID int64, quantity int) (*models.CartLine, error)
	RemoveItem(ctx context.Context, caller service.Caller, lineID int64) error
	Clear(ctx context.Context, caller service.Caller) (int64, error)
	GetSummary(ctx context.Context, caller service.Caller) (*models.CartSummary, error)
}

type CheckoutService interface {
	Checkout(ctx context.Context, caller service.Caller) ([]models.Purchase, error)
	PurchaseDirect(ctx context.Context, caller service.Caller, productID int64, quantity int) (*models.Purchase, error)
}

type PurchaseService interface {
	UpdateStatus(ctx context.Context, caller service.Caller, purchaseID int64, req service.UpdateStatusRequest) (*models.Purchase, error)
	GetPurchase(ctx context.Context, caller service.Caller, purchaseID int64) (*models.Purchase, error)
	ListPurchases(ctx context.Context, caller service.Caller, limit, offset int) ([]models.Purchase, error)
	ListAllPurchases(ctx context.Context, caller service.Caller, filter models.PurchaseFilter) ([]models.Purchase, error)
	OrderStats(ctx context.Context, caller service.Caller) (*models.OrderStats, error)
}

type PaymentService interface {
	CreateIntent(ctx context.Context, caller service.Caller, req service.CreateIntentRequest) (*service.IntentResponse, error)
	Confirm(ctx context.Context, caller service.Caller, paymentID int64) (*models.Payment, error)
	GetPayment(ctx context.Context, caller service.Caller, paymentID int64) (*models.PaymentWithRefunds, error)
	ListPayments(ctx context.Context, caller service.Caller, limit, offset int) ([]models.Payment, error)
	ListPaymentsByPurchase(ctx context.Context, caller service.Caller, purchaseID int64) ([]models.Payment, error)
	ListAllPayments(ctx context.Context, caller service.Caller, filter models.PaymentFilter) ([]models.Payment, error)
	Summary(ctx context.Context, caller service.Caller) (*models.PaymentSummary, error)
	ReconcileWebhook(ctx context.Context, providerName models.ProviderName, payload []byte, header http.Header) (*service.WebhookResult, error)
}

type RefundService interface {
	CreateRefund(ctx context.Context, caller service.Caller, req service.CreateRefundRequest) (*models.Refund, error)
	GetRefund(ctx context.Context, caller service.Caller, refundID int64) (*models.Refund, error)
	ListRefunds(ctx context.Context, caller service.Caller, filter models.RefundFilter) ([]models.Refund, error)
	SettleRefund(ctx context.Context, caller service.Caller, refundID int64) (*models.Refund, error)
}

// Pinger is a dependency checked by /ready
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups everything the handlers depend on
type Services struct {
	Cart      CartService
	Checkout  CheckoutService
	Purchases PurchaseService
	Payments  PaymentService
	Refunds   RefundService
}

// Handler contains HTTP handlers
type Handler struct {
	cart      CartService
	checkout  CheckoutService
	purchases PurchaseService
	payments  PaymentService
	refunds   RefundService
	auth      *Authenticator
	readiness map[string]Pinger
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(services Services, auth *Authenticator, readiness map[string]Pinger) *Handler {
	return &Handler{
		cart:      services.Cart,
		checkout:  services.Checkout,
		purchases: services.Purchases,
		payments:  services.Payments,
		refunds:   services.Refunds,
		auth:      auth,
		readiness: readiness,
		logger:    util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := router.Group("/webhooks")
	{
		webhooks.POST("/card", h.webhook(models.ProviderStripe))
		webhooks.POST("/wallet", h.webhook(models.ProviderPayPal))
	}

	v1 := router.Group("/api/v1", h.auth.Middleware())
	{
		v1.GET("/cart", h.getCart)
		v1.DELETE("/cart", h.clearCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PUT("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)

		v1.POST("/checkout", h.checkoutCart)

		v1.POST("/purchases", h.purchaseDirect)
		v1.GET("/purchases", h.listPurchases)
		v1.GET("/purchases/:id", h.getPurchase)
		v1.GET("/purchases/:id/payments", h.listPurchasePayments)

		v1.POST("/payments/intent", h.createPaymentIntent)
		v1.POST("/payments/:id/confirm", h.confirmPayment)
		v1.GET("/payments", h.listPayments)
		v1.GET("/payments/:id", h.getPayment)

		admin := v1.Group("/admin", RequireAdmin())
		{
			admin.PUT("/purchases/:id/status", h.updatePurchaseStatus)
			admin.GET("/purchases", h.listAllPurchases)
			admin.GET("/stats/orders", h.orderStats)
			admin.GET("/payments", h.listAllPayments)
			admin.GET("/payments/summary", h.paymentSummary)
			admin.POST("/refunds", h.createRefund)
			admin.GET("/refunds", h.listRefunds)
			admin.GET("/refunds/:id", h.getRefund)
			admin.POST("/refunds/:id/settle", h.settleRefund)
		}
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports the ones that failed
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.readiness {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		h.logger.Warn("Readiness check failed", zap.Any("dependencies", failed))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// pageQuery binds ?limit=&offset=
type pageQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset"`
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name + " ID",
		})
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return false
	}
	return true
}

func bindQuery(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query",
			"details": err.Error(),
		})
		return false
	}
	return true
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
