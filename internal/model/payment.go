package model

import "time"

// PaymentStatus uses the gateway-side vocabulary, distinct from OrderStatus.
type PaymentStatus string

const (
	PaymentDone      PaymentStatus = "done"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment 由确认接口创建，之后只由匹配 PaymentKey 的 webhook 修改。
type Payment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PaymentKey string        `gorm:"size:200;uniqueIndex;not null" json:"payment_key"`
	OrderID    uint          `gorm:"not null;index" json:"order_id"`
	Amount     int64         `gorm:"not null" json:"amount"`
	Method     string        `gorm:"size:64" json:"method"`
	Status     PaymentStatus `gorm:"size:16;not null" json:"status"`
	ApprovedAt *time.Time    `json:"approved_at"`
}

func (Payment) TableName() string { return "payments" }
