package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handler) getCart(c *gin.Context) {
	snap, err := h.carts.Snapshot(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

func (h *handler) addToCart(c *gin.Context) {
	var req struct {
		ProductID uint `json:"product_id" binding:"required,min=1"`
		Quantity  int  `json:"quantity" binding:"omitempty,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalid(err.Error()))
		return
	}
	item, err := h.carts.Add(c.Request.Context(), caller(c), req.ProductID, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, item)
}

func (h *handler) updateCartItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req struct {
		Quantity int `json:"quantity" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalid("quantity must be >= 1"))
		return
	}
	item, err := h.carts.UpdateQuantity(c.Request.Context(), caller(c), id, req.Quantity)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, item)
}

func (h *handler) removeCartItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.carts.Remove(c.Request.Context(), caller(c), id); err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id})
}

func (h *handler) clearCart(c *gin.Context) {
	n, err := h.carts.Clear(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"deleted_count": n})
}
