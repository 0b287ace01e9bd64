package order

import (
	"context"

	"go.uber.org/zap"

	"griff_shop/internal/queue"
)

// EventPublisher receives order events once the owning transaction committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.OrderEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, queue.OrderEvent) error { return nil }

// Emit 提交后投递事件；状态已落库，投递失败只记日志。
func Emit(ctx context.Context, pub EventPublisher, logger *zap.Logger, ev queue.OrderEvent) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn("order event publish failed",
			zap.String("event_id", ev.EventID),
			zap.String("type", string(ev.Type)),
			zap.Uint("order_id", ev.OrderID),
			zap.Error(err))
	}
}
