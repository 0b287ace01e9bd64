package model

import "time"

// CartItem 每个 (user, product) 至多一行，重复加购时数量累加。
type CartItem struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    uint `gorm:"not null;uniqueIndex:idx_cart_user_product" json:"user_id"`
	ProductID uint `gorm:"not null;uniqueIndex:idx_cart_user_product;index" json:"product_id"`
	Quantity  int  `gorm:"not null;check:quantity >= 1" json:"quantity"`
}

func (CartItem) TableName() string { return "cart_items" }
