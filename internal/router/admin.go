package router

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"griff_shop/internal/apperr"
	"griff_shop/internal/order"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

func (h *handler) adminStats(c *gin.Context) {
	st, err := h.admin.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, st)
}

// adminListOrders ?status=&page=&limit=，非法的分页参数按默认值处理。
func (h *handler) adminListOrders(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	res, err := h.admin.List(c.Request.Context(), order.AdminListQuery{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

func (h *handler) adminGetOrder(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	d, err := h.admin.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

func (h *handler) adminUpdateStatus(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, invalid("status is required"))
		return
	}
	ord, err := h.admin.Transition(c.Request.Context(), id, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, ord)
}

// adminOrderAudit ?limit=，返回订单的审计事件（新的在前）。
func (h *handler) adminOrderAudit(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		h.fail(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	limit = min(limit, maxAuditLimit)

	if _, err := h.admin.Get(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	entries, err := h.audit.History(c.Request.Context(), id, int64(limit))
	if err != nil {
		h.fail(c, apperr.Internal("audit.history", err))
		return
	}
	ok(c, http.StatusOK, gin.H{"order_id": id, "entries": entries})
}
