package api

import (
	"net/http"

	"shop-service/internal/models"
	"shop-service/internal/service"

	"github.com/gin-gonic/gin"
)

type purchaseListQuery struct {
	pageQuery
	Status models.PurchaseStatus `form:"status"`
}

func (h *Handler) listPurchases(c *gin.Context) {
	var q pageQuery
	if !bindQuery(c, &q) {
		return
	}

	purchases, err := h.purchases.ListPurchases(c.Request.Context(), callerFrom(c), q.Limit, q.Offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

func (h *Handler) getPurchase(c *gin.Context) {
	purchaseID, ok := pathID(c, "purchase")
	if !ok {
		return
	}

	purchase, err := h.purchases.GetPurchase(c.Request.Context(), callerFrom(c), purchaseID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *Handler) updatePurchaseStatus(c *gin.Context) {
	purchaseID, ok := pathID(c, "purchase")
	if !ok {
		return
	}
	var req service.UpdateStatusRequest
	if !bindJSON(c, &req) {
		return
	}

	purchase, err := h.purchases.UpdateStatus(c.Request.Context(), callerFrom(c), purchaseID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, purchase)
}

func (h *Handler) listAllPurchases(c *gin.Context) {
	var q purchaseListQuery
	if !bindQuery(c, &q) {
		return
	}

	purchases, err := h.purchases.ListAllPurchases(c.Request.Context(), callerFrom(c), models.PurchaseFilter{
		Status: q.Status,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"purchases": purchases})
}

func (h *Handler) orderStats(c *gin.Context) {
	stats, err := h.purchases.OrderStats(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
