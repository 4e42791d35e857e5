package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type purchaseDirectRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

func (h *Handler) getCart(c *gin.Context) {
	summary, err := h.cart.GetSummary(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	line, err := h.cart.AddItem(c.Request.Context(), callerFrom(c), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, line)
}

// updateCartItem sets a line's quantity; zero or less removes the line
func (h *Handler) updateCartItem(c *gin.Context) {
	lineID, ok := pathID(c, "cart item")
	if !ok {
		return
	}
	var req updateCartItemRequest
	if !bindJSON(c, &req) {
		return
	}

	line, err := h.cart.UpdateQuantity(c.Request.Context(), callerFrom(c), lineID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	if line == nil {
		c.JSON(http.StatusOK, gin.H{"removed": true})
		return
	}
	c.JSON(http.StatusOK, line)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	lineID, ok := pathID(c, "cart item")
	if !ok {
		return
	}

	if err := h.cart.RemoveItem(c.Request.Context(), callerFrom(c), lineID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) clearCart(c *gin.Context) {
	removed, err := h.cart.Clear(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) checkoutCart(c *gin.Context) {
	purchases, err := h.checkout.Checkout(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"purchases": purchases})
}

func (h *Handler) purchaseDirect(c *gin.Context) {
	var req purchaseDirectRequest
	if !bindJSON(c, &req) {
		return
	}

	purchase, err := h.checkout.PurchaseDirect(c.Request.Context(), callerFrom(c), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, purchase)
}
