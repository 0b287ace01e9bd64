package model

import "gorm.io/gorm"

// AutoMigrate 自动建表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Product{}, &CartItem{}, &Order{}, &OrderItem{}, &Payment{})
}
