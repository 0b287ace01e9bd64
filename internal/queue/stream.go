package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	rd "github.com/redis/go-redis/v9"
)

// StreamPublisher 将订单事件写入 Redis Stream（outbox），由 Relay 异步转发到 Kafka。
// API 请求只依赖 Redis，Kafka 抖动不影响下单和支付。
type StreamPublisher struct {
	rdb    *rd.Client
	stream string
}

func NewStreamPublisher(rdb *rd.Client, stream string) *StreamPublisher {
	return &StreamPublisher{rdb: rdb, stream: stream}
}

// Publish 追加一条事件到 Stream。
func (p *StreamPublisher) Publish(ctx context.Context, ev OrderEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("invalid order event: %w", err)
	}
	return p.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: p.stream,
		Values: ev.streamValues(),
	}).Err()
}

func (m OrderEvent) streamValues() map[string]any {
	return map[string]any{
		"event_id":    m.EventID,
		"type":        string(m.Type),
		"order_id":    strconv.FormatUint(uint64(m.OrderID), 10),
		"user_id":     strconv.FormatUint(uint64(m.UserID), 10),
		"from":        m.From,
		"to":          m.To,
		"amount":      strconv.FormatInt(m.Amount, 10),
		"source":      m.Source,
		"occurred_at": m.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// parseOrderEvent 从 Stream 字段还原事件。
func parseOrderEvent(values map[string]any) (OrderEvent, error) {
	var ev OrderEvent
	var err error
	if ev.EventID, err = getStreamString(values, "event_id"); err != nil {
		return OrderEvent{}, err
	}
	typ, err := getStreamString(values, "type")
	if err != nil {
		return OrderEvent{}, err
	}
	ev.Type = EventType(typ)

	orderStr, err := getStreamString(values, "order_id")
	if err != nil {
		return OrderEvent{}, err
	}
	orderID, err := strconv.ParseUint(orderStr, 10, 64)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("invalid order_id %q", orderStr)
	}
	ev.OrderID = uint(orderID)

	userStr, err := getStreamString(values, "user_id")
	if err != nil {
		return OrderEvent{}, err
	}
	userID, err := strconv.ParseUint(userStr, 10, 64)
	if err != nil {
		return OrderEvent{}, fmt.Errorf("invalid user_id %q", userStr)
	}
	ev.UserID = uint(userID)

	// from 在 order.created 中为空
	ev.From, _ = getStreamString(values, "from")
	if ev.To, err = getStreamString(values, "to"); err != nil {
		return OrderEvent{}, err
	}
	amountStr, err := getStreamString(values, "amount")
	if err != nil {
		return OrderEvent{}, err
	}
	if ev.Amount, err = strconv.ParseInt(amountStr, 10, 64); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid amount %q", amountStr)
	}
	ev.Source, _ = getStreamString(values, "source")

	occurred, err := getStreamString(values, "occurred_at")
	if err != nil {
		return OrderEvent{}, err
	}
	if ev.OccurredAt, err = time.Parse(time.RFC3339Nano, occurred); err != nil {
		return OrderEvent{}, fmt.Errorf("invalid occurred_at %q", occurred)
	}

	if err := ev.Validate(); err != nil {
		return OrderEvent{}, err
	}
	return ev, nil
}

func getStreamString(values map[string]any, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
