// Package order owns the order lifecycle: creating orders from carts,
// user cancellation and operator-driven transitions.
package order

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"griff_shop/internal/apperr"
	"griff_shop/internal/cart"
	"griff_shop/internal/identity"
	"griff_shop/internal/inventory"
	"griff_shop/internal/logging"
	"griff_shop/internal/model"
	"griff_shop/internal/queue"
)

const maxAddressLen = 512

// Deps 由 main 注入，服务内部不持有任何全局连接。
type Deps struct {
	DB     *gorm.DB
	Ledger *inventory.Ledger
	Events EventPublisher
	Logger *zap.Logger
}

// Service implements order creation, reads and cancellation.
type Service struct {
	db     *gorm.DB
	ledger *inventory.Ledger
	events EventPublisher
	logger *zap.Logger
}

// NewService builds the order service.
func NewService(deps Deps) *Service {
	logger := logging.OrNop(deps.Logger)
	ledger := deps.Ledger
	if ledger == nil {
		ledger = inventory.NewLedger(logger)
	}
	events := deps.Events
	if events == nil {
		events = NopPublisher{}
	}
	return &Service{db: deps.DB, ledger: ledger, events: events, logger: logger}
}

// CreateInput is the order creation request.
type CreateInput struct {
	ShippingAddress *string `json:"shipping_address"`
}

// Summary is a list row with its item count.
type Summary struct {
	ID              uint              `json:"id"`
	UserID          uint              `json:"user_id"`
	TotalAmount     int64             `json:"total_amount"`
	Status          model.OrderStatus `json:"status"`
	ShippingAddress *string           `json:"shipping_address"`
	CreatedAt       time.Time         `json:"created_at"`
	ItemCount       int64             `json:"item_count"`
}

// Create 购物车 → 订单，整个过程在一个事务里：
// 1. 读取购物车行
// 2. 按商品 id 升序加行锁
// 3. 校验非空、上架、库存（任何失败都不写入）
// 4. 写订单(pending) + 明细（冻结单价与名称）
// 5. 条件扣减库存
// 6. 清空购物车
func (s *Service) Create(ctx context.Context, userID uint, in CreateInput) (model.Order, error) {
	if userID == 0 {
		return model.Order{}, apperr.New(apperr.CodeInvalidInput, "user is required")
	}
	address, err := normalizeAddress(in.ShippingAddress)
	if err != nil {
		return model.Order{}, err
	}

	var created model.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lines, err := cart.Items(tx, userID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return apperr.New(apperr.CodeEmptyCart, "cart is empty")
		}

		ids := make([]uint, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		products, err := s.ledger.LockProducts(tx, ids)
		if err != nil {
			return err
		}
		byID := make(map[uint]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		items := make([]model.OrderItem, 0, len(lines))
		var total int64
		for _, l := range lines {
			p, ok := byID[l.ProductID]
			if !ok {
				return apperr.Newf(apperr.CodeProductNotFound, "product %d not found", l.ProductID).
					WithDetails(map[string]any{"product_id": l.ProductID})
			}
			if !p.IsActive {
				return inventory.InactiveError(p)
			}
			if p.Stock < int64(l.Quantity) {
				return inventory.InsufficientError(p, l.Quantity)
			}
			price := p.EffectivePrice()
			total += price * int64(l.Quantity)
			items = append(items, model.OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				Quantity:  l.Quantity,
				Price:     price,
			})
		}

		ord := model.Order{
			UserID:          userID,
			TotalAmount:     total,
			Status:          model.OrderPending,
			ShippingAddress: address,
		}
		if err := tx.Create(&ord).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = ord.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		for _, it := range items {
			if err := s.ledger.Reserve(tx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if err := cart.Purge(tx, userID); err != nil {
			return err
		}

		ord.Items = items
		created = ord
		return nil
	})
	if err != nil {
		return model.Order{}, apperr.OrInternal("order.create", err)
	}

	s.logger.Info("order created",
		zap.Uint("order_id", created.ID),
		zap.Uint("user_id", userID),
		zap.Int64("total_amount", created.TotalAmount),
		zap.Int("items", len(created.Items)))
	Emit(ctx, s.events, s.logger, queue.NewOrderEvent(queue.EventOrderCreated, created, "", queue.SourceUser))
	return created, nil
}

// Get 查询自己的订单（含明细）；别人的订单按不存在处理。
func (s *Service) Get(ctx context.Context, userID, orderID uint) (model.Order, error) {
	var ord model.Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("product_id ASC") }).
		First(&ord, orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, apperr.Newf(apperr.CodeOrderNotFound, "order %d not found", orderID)
		}
		return model.Order{}, apperr.Internal("order.get", err)
	}
	if !identity.Same(ord.UserID, userID) {
		return model.Order{}, apperr.Newf(apperr.CodeOrderNotFound, "order %d not found", orderID)
	}
	return ord, nil
}

// List 返回自己的订单列表，按创建时间倒序。
func (s *Service) List(ctx context.Context, userID uint) ([]Summary, error) {
	rows := []Summary{}
	err := summaryQuery(s.db.WithContext(ctx)).
		Where("o.user_id = ?", userID).
		Order("o.created_at DESC, o.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, apperr.Internal("order.list", err)
	}
	return rows, nil
}

// Cancel 用户取消：仅 pending 可取消，回补库存并把明细放回购物车。
func (s *Service) Cancel(ctx context.Context, userID, orderID uint) (model.Order, error) {
	var ord model.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ord, err = LockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !identity.Same(ord.UserID, userID) {
			return apperr.Newf(apperr.CodeForbidden, "order %d belongs to another user", orderID)
		}
		if ord.Status != model.OrderPending {
			return NotPending(ord)
		}
		if err := Apply(tx, s.ledger, &ord, model.OrderCancelled); err != nil {
			return err
		}
		return cart.Merge(tx, ord.UserID, ord.Items)
	})
	if err != nil {
		return model.Order{}, apperr.OrInternal("order.cancel", err)
	}

	s.logger.Info("order cancelled by user",
		zap.Uint("order_id", ord.ID),
		zap.Uint("user_id", userID))
	Emit(ctx, s.events, s.logger, queue.NewOrderEvent(queue.EventOrderStatusChanged, ord, model.OrderPending, queue.SourceUser))
	return ord, nil
}

func summaryQuery(db *gorm.DB) *gorm.DB {
	return db.Table("orders AS o").
		Select("o.id, o.user_id, o.total_amount, o.status, o.shipping_address, o.created_at, COUNT(oi.id) AS item_count").
		Joins("LEFT JOIN order_items oi ON oi.order_id = o.id").
		Group("o.id")
}

// NotPending is the order_not_pending error for ord.
func NotPending(ord model.Order) *apperr.Error {
	return apperr.Newf(apperr.CodeOrderNotPending, "order %d is already %s", ord.ID, ord.Status).
		WithDetails(map[string]any{"order_id": ord.ID, "status": ord.Status})
}

func normalizeAddress(addr *string) (*string, error) {
	if addr == nil {
		return nil, nil
	}
	v := strings.TrimSpace(*addr)
	if v == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(v) > maxAddressLen {
		return nil, apperr.Newf(apperr.CodeInvalidInput, "shipping_address must be at most %d characters", maxAddressLen)
	}
	return &v, nil
}
