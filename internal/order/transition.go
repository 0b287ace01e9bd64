package order

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"griff_shop/internal/apperr"
	"griff_shop/internal/inventory"
	"griff_shop/internal/model"
)

// LockOrder 读取订单并加行锁（SELECT ... FOR UPDATE），之后再检查状态，
// 并发的确认、webhook、管理操作中后到者会看到已变更的状态。
func LockOrder(tx *gorm.DB, id uint) (model.Order, error) {
	var ord model.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&ord, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Order{}, apperr.Newf(apperr.CodeOrderNotFound, "order %d not found", id).
				WithDetails(map[string]any{"order_id": id})
		}
		return model.Order{}, fmt.Errorf("lock order %d: %w", id, err)
	}
	return ord, nil
}

// LoadItems fills ord.Items when they were not loaded yet.
func LoadItems(tx *gorm.DB, ord *model.Order) error {
	if ord.Items != nil {
		return nil
	}
	items := []model.OrderItem{}
	if err := tx.Where("order_id = ?", ord.ID).Order("product_id ASC").Find(&items).Error; err != nil {
		return fmt.Errorf("load order %d items: %w", ord.ID, err)
	}
	ord.Items = items
	return nil
}

// Apply 在调用方事务中执行一次状态迁移。ord 必须已由 LockOrder 加锁。
// 进入 cancelled 时回补全部明细库存；购物车回补由用户取消路径自行处理。
func Apply(tx *gorm.DB, ledger *inventory.Ledger, ord *model.Order, to model.OrderStatus) error {
	from := ord.Status
	if err := Check(from, to); err != nil {
		return err
	}

	if RestoresStock(to) {
		if err := LoadItems(tx, ord); err != nil {
			return err
		}
		if err := ledger.RestoreItems(tx, ord.Items); err != nil {
			return err
		}
	}

	// 条件更新：sqlite 不支持行锁时也不会覆盖别人的迁移。
	res := tx.Model(&model.Order{}).
		Where("id = ? AND status = ?", ord.ID, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("update order %d status: %w", ord.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return apperr.Newf(apperr.CodeIllegalTransition, "order %d left %s concurrently", ord.ID, from).
			WithDetails(map[string]any{"from": from, "to": to, "allowed": Allowed(from)})
	}
	ord.Status = to
	return nil
}
