// Package inventory owns the per-product stock counters. Every operation runs
// inside the caller's transaction so multi-item reservations roll back as one.
package inventory

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"griff_shop/internal/apperr"
	"griff_shop/internal/logging"
	"griff_shop/internal/model"
)

// Ledger reserves and restores product stock.
type Ledger struct {
	logger *zap.Logger
}

// NewLedger builds a ledger.
func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{logger: logging.OrNop(logger)}
}

// LockProducts 按 id 升序对商品行加排他锁（SELECT ... FOR UPDATE），
// 固定加锁顺序避免多商品订单之间死锁。返回结果同样按 id 升序。
func (l *Ledger) LockProducts(tx *gorm.DB, ids []uint) ([]model.Product, error) {
	ids = sortedUnique(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var products []model.Product
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	return products, nil
}

// Reserve 条件扣减：只有 stock >= qty 且商品上架时才扣减。
// 即使驱动忽略行锁（sqlite），库存也不会变成负数。
func (l *Ledger) Reserve(tx *gorm.DB, productID uint, qty int) error {
	if qty <= 0 {
		return apperr.Newf(apperr.CodeInvalidInput, "quantity must be > 0, got %d", qty)
	}
	res := tx.Model(&model.Product{}).
		Where("id = ? AND is_active = ? AND stock >= ?", productID, true, qty).
		UpdateColumn("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return fmt.Errorf("reserve product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return l.diagnose(tx, productID, qty)
}

// diagnose 解释条件扣减为何没有命中任何行。
func (l *Ledger) diagnose(tx *gorm.DB, productID uint, qty int) error {
	var p model.Product
	if err := tx.First(&p, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Newf(apperr.CodeProductNotFound, "product %d not found", productID).
				WithDetails(map[string]any{"product_id": productID})
		}
		return fmt.Errorf("load product %d: %w", productID, err)
	}
	if !p.IsActive {
		return InactiveError(p)
	}
	return InsufficientError(p, qty)
}

// Restore 无条件回补库存，不检查上限。
// 商品被软删除时仍然回补，保证库存与订单一致。
func (l *Ledger) Restore(tx *gorm.DB, productID uint, qty int) error {
	if qty <= 0 {
		return nil
	}
	res := tx.Unscoped().Model(&model.Product{}).
		Where("id = ?", productID).
		UpdateColumn("stock", gorm.Expr("stock + ?", qty))
	if res.Error != nil {
		return fmt.Errorf("restore product %d: %w", productID, res.Error)
	}
	if res.RowsAffected == 0 {
		l.logger.Warn("restore skipped, product row missing",
			zap.Uint("product_id", productID),
			zap.Int("quantity", qty))
	}
	return nil
}

// RestoreItems 回补订单全部明细，按商品 id 升序执行。
func (l *Ledger) RestoreItems(tx *gorm.DB, items []model.OrderItem) error {
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b model.OrderItem) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	for _, it := range sorted {
		if err := l.Restore(tx, it.ProductID, it.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// InactiveError names the offending product.
func InactiveError(p model.Product) *apperr.Error {
	return apperr.Newf(apperr.CodeProductInactive, "product %q is not available", p.Name).
		WithDetails(map[string]any{"product_id": p.ID, "name": p.Name})
}

// InsufficientError names the product, its stock and the requested quantity.
func InsufficientError(p model.Product, requested int) *apperr.Error {
	return apperr.Newf(apperr.CodeInsufficientStock, "insufficient stock for %q: %d left, %d requested", p.Name, p.Stock, requested).
		WithDetails(map[string]any{
			"product_id": p.ID,
			"name":       p.Name,
			"stock":      p.Stock,
			"requested":  requested,
		})
}

func sortedUnique(ids []uint) []uint {
	out := slices.Clone(ids)
	slices.Sort(out)
	out = slices.Compact(out)
	return slices.DeleteFunc(out, func(id uint) bool { return id == 0 })
}
