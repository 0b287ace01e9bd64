package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// AuditSink 持久化订单事件；重复 event_id 必须当作成功。
type AuditSink interface {
	Record(ctx context.Context, ev OrderEvent) error
}

// Consumer 消费 Kafka 订单事件并写入审计库。
// 写入成功后才提交 offset（至少一次），重复投递由 AuditSink 按 event_id 去重。
type Consumer struct {
	r      *kafka.Reader
	sink   AuditSink
	logger *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, sink AuditSink, logger *zap.Logger) *Consumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		sink:   sink,
		logger: logger,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

func (c *Consumer) Run(ctx context.Context) {
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			return // ctx cancel / 连接断开等
		}

		// 审计库暂不可用时原地重试，不提交 offset。
		for {
			err := c.handle(ctx, m.Value)
			if err == nil {
				break
			}
			if errors.Is(err, errPoison) {
				c.logger.Warn("consumer drop message",
					zap.Int("partition", m.Partition),
					zap.Int64("offset", m.Offset),
					zap.Error(err))
				break
			}
			c.logger.Error("consumer record", zap.Int64("offset", m.Offset), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			c.logger.Warn("consumer commit", zap.Error(err))
		}
	}
}

var errPoison = errors.New("poison message")

func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var ev OrderEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", errPoison, err)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	return c.sink.Record(ctx, ev)
}
