package model

import (
	"time"

	"gorm.io/gorm"
)

// Product 商品：价格、可选促销价、库存、上架状态。
// 目录服务拥有该表；订单核心只修改 Stock。
type Product struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name      string `gorm:"size:128;not null" json:"name"`
	Price     int64  `gorm:"not null" json:"price"`
	SalePrice *int64 `json:"sale_price"`
	Stock     int64  `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	IsActive  bool   `gorm:"not null" json:"is_active"`
}

func (Product) TableName() string { return "products" }

// EffectivePrice returns the sale price when set, else the base price.
func (p Product) EffectivePrice() int64 {
	return EffectivePrice(p.Price, p.SalePrice)
}

// EffectivePrice 促销价优先。
func EffectivePrice(price int64, salePrice *int64) int64 {
	if salePrice != nil {
		return *salePrice
	}
	return price
}
