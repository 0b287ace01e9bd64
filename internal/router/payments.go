package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"griff_shop/internal/payment"
)

func (h *handler) confirmPayment(c *gin.Context) {
	var req payment.ConfirmInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalid("paymentKey, orderId and amount are required"))
		return
	}
	p, err := h.reconciler.Confirm(c.Request.Context(), caller(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"payment": p, "order_id": p.OrderID, "status": "paid"})
}

func (h *handler) getPayment(c *gin.Context) {
	orderID, err := pathID(c, "orderId")
	if err != nil {
		h.fail(c, err)
		return
	}
	p, err := h.reconciler.Get(c.Request.Context(), caller(c), orderID)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// paymentWebhook 网关回调：只要没有内部错误就回 success，避免网关无意义重试。
func (h *handler) paymentWebhook(c *gin.Context) {
	var ev payment.WebhookEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		h.fail(c, invalid("malformed webhook payload"))
		return
	}
	res, err := h.reconciler.HandleWebhook(c.Request.Context(), ev)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Debug("webhook handled", zap.String("outcome", string(res.Outcome)))
	c.JSON(http.StatusOK, gin.H{"success": true})
}
