package api

import (
	"errors"
	"net/http"

	"shop-service/internal/models"
	"shop-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var errorStatus = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{models.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{models.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{models.ErrUnsupportedProvider, http.StatusBadRequest, "unsupported_provider"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{models.ErrPurchaseNotFound, http.StatusNotFound, "purchase_not_found"},
	{models.ErrPaymentNotFound, http.StatusNotFound, "payment_not_found"},
	{models.ErrRefundNotFound, http.StatusNotFound, "refund_not_found"},
	{models.ErrDuplicateActivePayment, http.StatusConflict, "duplicate_active_payment"},
	{models.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{models.ErrPaymentNotRefundable, http.StatusConflict, "payment_not_refundable"},
	{models.ErrPurchaseNotPayable, http.StatusConflict, "purchase_not_payable"},
	{models.ErrOperationInProgress, http.StatusConflict, "operation_in_progress"},
	{models.ErrProviderUnavailable, http.StatusServiceUnavailable, "provider_unavailable"},
	{models.ErrProviderRejected, http.StatusBadGateway, "provider_error"},
}

// writeError maps a service error to its HTTP response
func writeError(c *gin.Context, err error) {
	var stockErr *models.StockError
	if errors.As(err, &stockErr) {
		code := "insufficient_stock"
		if errors.Is(stockErr.Kind, models.ErrOutOfStock) {
			code = "out_of_stock"
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":      err.Error(),
			"code":       code,
			"product_id": stockErr.ProductID,
			"requested":  stockErr.Requested,
			"available":  stockErr.Available,
		})
		return
	}

	var balanceErr *models.RefundBalanceError
	if errors.As(err, &balanceErr) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":              err.Error(),
			"code":               "refund_exceeds_balance",
			"requested":          balanceErr.Requested,
			"refundable_balance": balanceErr.Balance,
		})
		return
	}

	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			if m.status == http.StatusServiceUnavailable {
				c.Header("Retry-After", "5")
			}
			c.JSON(m.status, gin.H{
				"error": err.Error(),
				"code":  m.code,
			})
			return
		}
	}

	util.GetLogger().Error("Unhandled request error",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
	})
}
