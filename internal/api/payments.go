package api

import (
	"errors"
	"io"
	"net/http"

	"shop-service/internal/models"
	"shop-service/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// providers sign payloads far smaller than this
const maxWebhookBytes = 1 << 20

type paymentListQuery struct {
	pageQuery
	Status   models.PaymentStatus `form:"status"`
	Provider models.ProviderName  `form:"provider"`
	UserID   int64                `form:"user_id"`
}

type refundListQuery struct {
	pageQuery
	PaymentID int64               `form:"payment_id"`
	Status    models.RefundStatus `form:"status"`
}

func (h *Handler) createPaymentIntent(c *gin.Context) {
	var req service.CreateIntentRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.payments.CreateIntent(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) confirmPayment(c *gin.Context) {
	paymentID, ok := pathID(c, "payment")
	if !ok {
		return
	}

	payment, err := h.payments.Confirm(c.Request.Context(), callerFrom(c), paymentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) listPayments(c *gin.Context) {
	var q pageQuery
	if !bindQuery(c, &q) {
		return
	}

	payments, err := h.payments.ListPayments(c.Request.Context(), callerFrom(c), q.Limit, q.Offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) getPayment(c *gin.Context) {
	paymentID, ok := pathID(c, "payment")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), callerFrom(c), paymentID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

func (h *Handler) listPurchasePayments(c *gin.Context) {
	purchaseID, ok := pathID(c, "purchase")
	if !ok {
		return
	}

	payments, err := h.payments.ListPaymentsByPurchase(c.Request.Context(), callerFrom(c), purchaseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) listAllPayments(c *gin.Context) {
	var q paymentListQuery
	if !bindQuery(c, &q) {
		return
	}

	payments, err := h.payments.ListAllPayments(c.Request.Context(), callerFrom(c), models.PaymentFilter{
		UserID:   q.UserID,
		Status:   q.Status,
		Provider: q.Provider,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (h *Handler) paymentSummary(c *gin.Context) {
	summary, err := h.payments.Summary(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) createRefund(c *gin.Context) {
	var req service.CreateRefundRequest
	if !bindJSON(c, &req) {
		return
	}

	refund, err := h.refunds.CreateRefund(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, refund)
}

func (h *Handler) listRefunds(c *gin.Context) {
	var q refundListQuery
	if !bindQuery(c, &q) {
		return
	}

	refunds, err := h.refunds.ListRefunds(c.Request.Context(), callerFrom(c), models.RefundFilter{
		PaymentID: q.PaymentID,
		Status:    q.Status,
		Limit:     q.Limit,
		Offset:    q.Offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refunds": refunds})
}

func (h *Handler) getRefund(c *gin.Context) {
	refundID, ok := pathID(c, "refund")
	if !ok {
		return
	}

	refund, err := h.refunds.GetRefund(c.Request.Context(), callerFrom(c), refundID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

// settleRefund resolves a refund whose submission ended without an answer
func (h *Handler) settleRefund(c *gin.Context) {
	refundID, ok := pathID(c, "refund")
	if !ok {
		return
	}

	refund, err := h.refunds.SettleRefund(c.Request.Context(), callerFrom(c), refundID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, refund)
}

// webhook receives provider notifications. Once the body is read the provider
// always gets a 200 unless processing hit an internal error, so rejected and
// repeated deliveries are not retried.
func (h *Handler) webhook(providerName models.ProviderName) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read body"})
			return
		}

		result, err := h.payments.ReconcileWebhook(c.Request.Context(), providerName, payload, c.Request.Header)
		switch {
		case err == nil:
			status := "received"
			if result.Outcome != service.WebhookApplied {
				status = "ignored"
			}
			c.JSON(http.StatusOK, gin.H{
				"status":   status,
				"outcome":  result.Outcome,
				"event_id": result.EventID,
			})

		case errors.Is(err, models.ErrInvalidSignature):
			c.JSON(http.StatusOK, gin.H{"status": "rejected"})

		case errors.Is(err, models.ErrMalformedWebhook):
			c.JSON(http.StatusOK, gin.H{"status": "ignored"})

		case errors.Is(err, models.ErrUnsupportedProvider):
			c.JSON(http.StatusNotFound, gin.H{"error": "Provider not configured"})

		default:
			h.logger.Error("Webhook processing failed",
				zap.String("provider", string(providerName)),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
		}
	}
}
