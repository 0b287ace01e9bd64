package router

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"griff_shop/internal/order"
)

// createOrder 购物车 → 订单。body 可为空。
func (h *handler) createOrder(c *gin.Context) {
	var req order.CreateInput
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, invalid(err.Error()))
		return
	}
	ord, err := h.orders.Create(c.Request.Context(), caller(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, ord)
}

func (h *handler) listOrders(c *gin.Context) {
	list, err := h.orders.List(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, list)
}

func (h *handler) getOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	ord, err := h.orders.Get(c.Request.Context(), caller(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ord)
}

// cancelOrder 用户取消：库存回补 + 明细回到购物车。
func (h *handler) cancelOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	ord, err := h.orders.Cancel(c.Request.Context(), caller(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ord)
}
