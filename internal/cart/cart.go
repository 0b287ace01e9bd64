// Package cart reads a user's cart joined with live product state and
// applies the cart mutations exposed over HTTP.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"griff_shop/internal/apperr"
	"griff_shop/internal/inventory"
	"griff_shop/internal/logging"
	"griff_shop/internal/model"
)

// Line 购物车行与商品实时状态的 join 结果。
type Line struct {
	ID        uint      `json:"id"`
	ProductID uint      `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	Stock     int64     `json:"stock"`
	Price     int64     `json:"price"`
	SalePrice *int64    `json:"sale_price"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// UnitPrice is the live effective price.
func (l Line) UnitPrice() int64 { return model.EffectivePrice(l.Price, l.SalePrice) }

// Snapshot is a point-in-time read of the cart; it is never cached.
type Snapshot struct {
	Items      []Line `json:"items"`
	TotalPrice int64  `json:"total_price"`
	Count      int    `json:"count"`
}

// Service 购物车读写。
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService builds the cart service on an injected pool.
func NewService(db *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: db, logger: logging.OrNop(logger)}
}

// Snapshot 实时 join 商品表，纯读无副作用。
func (s *Service) Snapshot(ctx context.Context, userID uint) (Snapshot, error) {
	var lines []Line
	err := s.db.WithContext(ctx).
		Table("cart_items AS ci").
		Select("ci.id, ci.product_id, ci.quantity, ci.created_at, p.name, p.price, p.sale_price, p.stock, p.is_active").
		Joins("JOIN products p ON p.id = ci.product_id AND p.deleted_at IS NULL").
		Where("ci.user_id = ?", userID).
		Order("ci.created_at DESC, ci.id DESC").
		Scan(&lines).Error
	if err != nil {
		return Snapshot{}, apperr.Internal("cart.snapshot", err)
	}

	snap := Snapshot{Items: lines, Count: len(lines)}
	if snap.Items == nil {
		snap.Items = []Line{}
	}
	for _, l := range lines {
		snap.TotalPrice += l.UnitPrice() * int64(l.Quantity)
	}
	return snap, nil
}

// Add 加购：同一商品数量累加，累加后的总数不能超过库存。
func (s *Service) Add(ctx context.Context, userID, productID uint, qty int) (model.CartItem, error) {
	if productID == 0 {
		return model.CartItem{}, apperr.New(apperr.CodeInvalidInput, "product_id is required")
	}
	if qty < 1 {
		qty = 1
	}

	var item model.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Product
		if err := tx.First(&p, productID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.CodeProductNotFound, "product %d not found", productID)
			}
			return err
		}
		if !p.IsActive {
			return inventory.InactiveError(p)
		}

		var current int
		err := tx.Model(&model.CartItem{}).
			Select("quantity").
			Where("user_id = ? AND product_id = ?", userID, productID).
			Scan(&current).Error
		if err != nil {
			return err
		}
		if int64(current+qty) > p.Stock {
			return inventory.InsufficientError(p, current+qty).
				WithDetails(map[string]any{"in_cart": current})
		}

		if err := merge(tx, userID, productID, qty); err != nil {
			return err
		}
		return tx.Where("user_id = ? AND product_id = ?", userID, productID).Take(&item).Error
	})
	if err != nil {
		return model.CartItem{}, apperr.OrInternal("cart.add", err)
	}
	return item, nil
}

// UpdateQuantity 覆盖某一行的数量，只能改自己的购物车。
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID uint, qty int) (model.CartItem, error) {
	if qty < 1 {
		return model.CartItem{}, apperr.New(apperr.CodeInvalidInput, "quantity must be >= 1")
	}

	var item model.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", itemID, userID).Take(&item).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.CodeCartItemNotFound, "cart item %d not found", itemID)
			}
			return err
		}
		var p model.Product
		if err := tx.First(&p, item.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Newf(apperr.CodeProductNotFound, "product %d not found", item.ProductID)
			}
			return err
		}
		if p.Stock < int64(qty) {
			return inventory.InsufficientError(p, qty)
		}
		item.Quantity = qty
		return tx.Model(&item).Update("quantity", qty).Error
	})
	if err != nil {
		return model.CartItem{}, apperr.OrInternal("cart.update", err)
	}
	return item, nil
}

// Remove 删除单行。
func (s *Service) Remove(ctx context.Context, userID, itemID uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", itemID, userID).Delete(&model.CartItem{})
	if res.Error != nil {
		return apperr.Internal("cart.remove", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.Newf(apperr.CodeCartItemNotFound, "cart item %d not found", itemID)
	}
	return nil
}

// Clear 清空购物车，返回删除行数。
func (s *Service) Clear(ctx context.Context, userID uint) (int64, error) {
	res := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&model.CartItem{})
	if res.Error != nil {
		return 0, apperr.Internal("cart.clear", res.Error)
	}
	return res.RowsAffected, nil
}

// Items 在调用方事务中读取并锁定购物车行（SELECT ... FOR UPDATE）。
// 同一用户并发结算时，后到者等先到者提交，之后读到的是已清空的购物车。
func Items(tx *gorm.DB, userID uint) ([]model.CartItem, error) {
	var items []model.CartItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		Order("product_id ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return items, nil
}

// Purge 在调用方事务中删除用户全部购物车行。
func Purge(tx *gorm.DB, userID uint) error {
	if err := tx.Where("user_id = ?", userID).Delete(&model.CartItem{}).Error; err != nil {
		return fmt.Errorf("purge cart: %w", err)
	}
	return nil
}

// Merge 把订单明细放回购物车：已有行累加数量，没有则新建。
// 取消订单的补偿路径使用，必须运行在调用方事务中。
func Merge(tx *gorm.DB, userID uint, items []model.OrderItem) error {
	for _, it := range items {
		if err := merge(tx, userID, it.ProductID, it.Quantity); err != nil {
			return fmt.Errorf("merge cart product %d: %w", it.ProductID, err)
		}
	}
	return nil
}

// merge 依赖 (user_id, product_id) 唯一索引做 upsert，
// mysql 生成 ON DUPLICATE KEY UPDATE，sqlite 生成 ON CONFLICT DO UPDATE。
func merge(tx *gorm.DB, userID, productID uint, qty int) error {
	row := model.CartItem{UserID: userID, ProductID: productID, Quantity: qty}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"quantity":   gorm.Expr("cart_items.quantity + ?", qty),
			"updated_at": time.Now(),
		}),
	}).Create(&row).Error
}
