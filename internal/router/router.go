package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"griff_shop/internal/audit"
	"griff_shop/internal/cart"
	"griff_shop/internal/config"
	"griff_shop/internal/logging"
	"griff_shop/internal/middleware"
	"griff_shop/internal/order"
	"griff_shop/internal/payment"
)

// AuditTrail 读取订单审计记录，由 mongo 审计库实现。
type AuditTrail interface {
	History(ctx context.Context, orderID uint, limit int64) ([]audit.Entry, error)
	Ping(ctx context.Context) error
}

// Deps 由 main 组装后注入；Redis 可以为 nil（关闭限流），Audit 为 nil 时不注册审计查询。
type Deps struct {
	DB         *gorm.DB
	Redis      *rd.Client
	Orders     *order.Service
	Admin      *order.AdminService
	Carts      *cart.Service
	Reconciler *payment.Reconciler
	Audit      AuditTrail
	Config     config.AppConfig
	Logger     *zap.Logger
}

type handler struct {
	orders     *order.Service
	admin      *order.AdminService
	carts      *cart.Service
	reconciler *payment.Reconciler
	audit      AuditTrail
	db         *gorm.DB
	logger     *zap.Logger
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, deps Deps) {
	logger := logging.OrNop(deps.Logger)
	h := &handler{
		orders:     deps.Orders,
		admin:      deps.Admin,
		carts:      deps.Carts,
		reconciler: deps.Reconciler,
		audit:      deps.Audit,
		db:         deps.DB,
		logger:     logger,
	}
	limit := func(scope string) gin.HandlerFunc {
		return middleware.RedisRateLimit(deps.Redis, scope, deps.Config.RateLimit, deps.Config.RateWindow, logger)
	}

	r.GET("/ping", h.ping)

	api := r.Group("/api")

	orders := api.Group("/orders", middleware.RequireUser())
	{
		orders.POST("", limit("orders"), h.createOrder)
		orders.GET("", h.listOrders)
		orders.GET("/:id", h.getOrder)
		orders.POST("/:id/cancel", h.cancelOrder)
	}

	carts := api.Group("/cart", middleware.RequireUser())
	{
		carts.GET("", h.getCart)
		carts.POST("", h.addToCart)
		carts.DELETE("", h.clearCart)
		carts.PUT("/:id", h.updateCartItem)
		carts.DELETE("/:id", h.removeCartItem)
	}

	payments := api.Group("/payments")
	{
		// webhook 由网关调用，没有用户身份
		payments.POST("/webhook", h.paymentWebhook)
		payments.POST("/confirm", middleware.RequireUser(), limit("payments_confirm"), h.confirmPayment)
		payments.GET("/:orderId", middleware.RequireUser(), h.getPayment)
	}

	admin := api.Group("/admin", middleware.RequireAdmin(deps.Config.AdminToken))
	{
		admin.GET("/stats", h.adminStats)
		admin.GET("/orders", h.adminListOrders)
		admin.GET("/orders/:id", h.adminGetOrder)
		admin.PUT("/orders/:id/status", h.adminUpdateStatus)
		if h.audit != nil {
			admin.GET("/orders/:id/audit", h.adminOrderAudit)
		}
	}
}

// ping 健康检查：数据库不可用返回 503；审计库只报告状态，不影响结果。
func (h *handler) ping(c *gin.Context) {
	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			h.logger.Error("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "msg": "database unavailable"})
			return
		}
	}
	body := gin.H{"msg": "pong", "time": time.Now().UTC()}
	if h.audit != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		body["audit"] = "ok"
		if err := h.audit.Ping(ctx); err != nil {
			h.logger.Warn("audit store unreachable", zap.Error(err))
			body["audit"] = "unavailable"
		}
	}
	c.JSON(http.StatusOK, body)
}
