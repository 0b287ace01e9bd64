package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"griff_shop/internal/model"
)

// EventType 订单事件类型。
type EventType string

const (
	EventOrderCreated       EventType = "order.created"
	EventOrderStatusChanged EventType = "order.status_changed"
)

// 事件来源。
const (
	SourceUser    = "user"
	SourceAdmin   = "admin"
	SourceConfirm = "payment_confirm"
	SourceWebhook = "payment_webhook"
)

// OrderEvent 是写入 Redis Stream / Kafka 的订单事件。
type OrderEvent struct {
	EventID    string    `json:"event_id"`
	Type       EventType `json:"type"`
	OrderID    uint      `json:"order_id"`
	UserID     uint      `json:"user_id"`
	From       string    `json:"from,omitempty"`
	To         string    `json:"to"`
	Amount     int64     `json:"amount"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewOrderEvent 为已提交的订单状态生成事件，event_id 用作下游幂等键。
func NewOrderEvent(typ EventType, ord model.Order, from model.OrderStatus, source string) OrderEvent {
	return OrderEvent{
		EventID:    uuid.NewString(),
		Type:       typ,
		OrderID:    ord.ID,
		UserID:     ord.UserID,
		From:       string(from),
		To:         string(ord.Status),
		Amount:     ord.TotalAmount,
		Source:     source,
		OccurredAt: time.Now().UTC(),
	}
}

// Validate 做最小字段校验，防止消费者处理脏消息。
func (m OrderEvent) Validate() error {
	if m.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	switch m.Type {
	case EventOrderCreated, EventOrderStatusChanged:
	default:
		return fmt.Errorf("unknown event type %q", m.Type)
	}
	if m.OrderID == 0 {
		return fmt.Errorf("order_id is required")
	}
	if m.UserID == 0 {
		return fmt.Errorf("user_id is required")
	}
	if _, ok := model.ParseOrderStatus(m.To); !ok {
		return fmt.Errorf("invalid to status %q", m.To)
	}
	if m.From != "" {
		if _, ok := model.ParseOrderStatus(m.From); !ok {
			return fmt.Errorf("invalid from status %q", m.From)
		}
	}
	if m.Amount < 0 {
		return fmt.Errorf("amount must be >= 0")
	}
	return nil
}
