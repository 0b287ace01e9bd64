package order

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"griff_shop/internal/apperr"
	"griff_shop/internal/inventory"
	"griff_shop/internal/model"
	"griff_shop/internal/queue"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// AdminListQuery filters and paginates the operator order list.
type AdminListQuery struct {
	Status string
	Page   int
	Limit  int
}

// Pagination describes a page of results.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalCount int64 `json:"total_count"`
	TotalPages int64 `json:"total_pages"`
}

// AdminPage is one page of orders.
type AdminPage struct {
	Orders     []Summary  `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Detail is an order with its items and payments.
type Detail struct {
	model.Order
	Payments []model.Payment `json:"payments"`
}

// Stats 后台看板统计。营收只计算 paid/shipping/delivered。
type Stats struct {
	TotalOrders    int64            `json:"total_orders"`
	TotalRevenue   int64            `json:"total_revenue"`
	ActiveProducts int64            `json:"active_products"`
	OrdersByStatus map[string]int64 `json:"orders_by_status"`
}

// AdminService is the operator-facing transition gate.
type AdminService struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	events EventPublisher
	logger *zap.Logger
}

// NewAdminService shares the dependencies of the user-facing service.
func NewAdminService(svc *Service) *AdminService {
	return &AdminService{db: svc.db, ledger: svc.ledger, events: svc.events, logger: svc.logger.Named("admin")}
}

// Transition 管理员改状态：校验状态值 → 锁订单 → 查迁移表 → 取消时回补库存（不回补购物车）。
func (s *AdminService) Transition(ctx context.Context, orderID uint, status string) (model.Order, error) {
	to, ok := model.ParseOrderStatus(strings.TrimSpace(status))
	if !ok {
		return model.Order{}, apperr.Newf(apperr.CodeInvalidInput, "invalid status %q", status).
			WithDetails(map[string]any{"valid": model.OrderStatuses})
	}

	var ord model.Order
	var from model.OrderStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ord, err = LockOrder(tx, orderID)
		if err != nil {
			return err
		}
		from = ord.Status
		return Apply(tx, s.ledger, &ord, to)
	})
	if err != nil {
		return model.Order{}, apperr.OrInternal("order.admin_transition", err)
	}

	s.logger.Info("order status changed by admin",
		zap.Uint("order_id", ord.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	Emit(ctx, s.events, s.logger, queue.NewOrderEvent(queue.EventOrderStatusChanged, ord, from, queue.SourceAdmin))
	return ord, nil
}

// List 全部订单，可按状态过滤，limit 上限 100。
func (s *AdminService) List(ctx context.Context, q AdminListQuery) (AdminPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = defaultPageLimit
	}
	if q.Limit > maxPageLimit {
		q.Limit = maxPageLimit
	}
	status := strings.TrimSpace(q.Status)
	if status != "" {
		if _, ok := model.ParseOrderStatus(status); !ok {
			return AdminPage{}, apperr.Newf(apperr.CodeInvalidInput, "invalid status %q", status)
		}
	}

	db := s.db.WithContext(ctx)
	count := db.Model(&model.Order{})
	if status != "" {
		count = count.Where("status = ?", status)
	}
	var total int64
	if err := count.Count(&total).Error; err != nil {
		return AdminPage{}, apperr.Internal("order.admin_list", err)
	}

	rows := []Summary{}
	query := summaryQuery(db)
	if status != "" {
		query = query.Where("o.status = ?", status)
	}
	err := query.Order("o.created_at DESC, o.id DESC").
		Limit(q.Limit).
		Offset((q.Page - 1) * q.Limit).
		Scan(&rows).Error
	if err != nil {
		return AdminPage{}, apperr.Internal("order.admin_list", err)
	}

	limit := int64(q.Limit)
	return AdminPage{
		Orders: rows,
		Pagination: Pagination{
			Page:       q.Page,
			Limit:      q.Limit,
			TotalCount: total,
			TotalPages: (total + limit - 1) / limit,
		},
	}, nil
}

// Get 订单详情，含明细与支付记录。
func (s *AdminService) Get(ctx context.Context, orderID uint) (Detail, error) {
	db := s.db.WithContext(ctx)
	var ord model.Order
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id ASC") }).
		First(&ord, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Detail{}, apperr.Newf(apperr.CodeOrderNotFound, "order %d not found", orderID)
		}
		return Detail{}, apperr.Internal("order.admin_get", err)
	}
	payments := []model.Payment{}
	if err := db.Where("order_id = ?", orderID).Order("id ASC").Find(&payments).Error; err != nil {
		return Detail{}, apperr.Internal("order.admin_get", err)
	}
	return Detail{Order: ord, Payments: payments}, nil
}

// Stats 汇总订单数、营收、按状态分布和在售商品数。
func (s *AdminService) Stats(ctx context.Context) (Stats, error) {
	db := s.db.WithContext(ctx)
	out := Stats{OrdersByStatus: map[string]int64{}}

	if err := db.Model(&model.Order{}).Count(&out.TotalOrders).Error; err != nil {
		return Stats{}, apperr.Internal("order.stats", err)
	}
	err := db.Model(&model.Order{}).
		Select("COALESCE(SUM(total_amount), 0)").
		Where("status IN ?", []model.OrderStatus{model.OrderPaid, model.OrderShipping, model.OrderDelivered}).
		Scan(&out.TotalRevenue).Error
	if err != nil {
		return Stats{}, apperr.Internal("order.stats", err)
	}
	if err := db.Model(&model.Product{}).Where("is_active = ?", true).Count(&out.ActiveProducts).Error; err != nil {
		return Stats{}, apperr.Internal("order.stats", err)
	}

	var groups []struct {
		Status string
		Count  int64
	}
	err = db.Model(&model.Order{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&groups).Error
	if err != nil {
		return Stats{}, apperr.Internal("order.stats", err)
	}
	for _, g := range groups {
		out.OrdersByStatus[g.Status] = g.Count
	}
	return out, nil
}
